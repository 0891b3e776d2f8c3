package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBatchSize = 5000
	DefaultCooldown  = 500 * time.Millisecond
)

type Config struct {
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	Stream   StreamConfig   `yaml:"stream" json:"stream"`
	GUI      GUIConfig      `yaml:"gui" json:"gui"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

type PostgresConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Database string `yaml:"database" json:"database"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	MaxConns int32  `yaml:"max_conns" json:"max_conns"`
}

type StreamConfig struct {
	BatchSize int      `yaml:"batch_size" json:"batch_size"`
	Cooldown  Duration `yaml:"cooldown" json:"cooldown"`
}

type GUIConfig struct {
	ListenHost string `yaml:"listen_host" json:"listen_host"`
	ListenPort int    `yaml:"listen_port" json:"listen_port"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Duration aceita strings como "500ms" ou "2s" no YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// DSN builds the key/value connection string understood by pgx.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d database=%s user=%s password=%s application_name=pgresults",
		p.Host, p.Port, p.Database, p.User, p.Password)
}

func defaultConfig() *Config {
	return &Config{
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "postgres",
			User:     "postgres",
			Password: "",
			MaxConns: 8,
		},
		Stream: StreamConfig{
			BatchSize: DefaultBatchSize,
			Cooldown:  Duration{DefaultCooldown},
		},
		GUI: GUIConfig{
			ListenHost: "127.0.0.1",
			ListenPort: 8420,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadConfig reads defaults, then configPath (a missing file is not an
// error), then the environment, and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	config := defaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	loadFromEnv(config)

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

func loadFromEnv(config *Config) {
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		config.Postgres.Host = host
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Postgres.Port = p
		}
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		config.Postgres.Database = db
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		config.Postgres.User = user
	}
	if pass := os.Getenv("POSTGRES_PASSWORD"); pass != "" {
		config.Postgres.Password = pass
	}

	if port := os.Getenv("PGRESULTS_LISTEN_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.GUI.ListenPort = p
		}
	}
	if size := os.Getenv("PGRESULTS_BATCH_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			config.Stream.BatchSize = n
		}
	}
	if cooldown := os.Getenv("PGRESULTS_COOLDOWN"); cooldown != "" {
		if d, err := time.ParseDuration(cooldown); err == nil {
			config.Stream.Cooldown = Duration{d}
		}
	}

	if level := os.Getenv("PGRESULTS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if file := os.Getenv("PGRESULTS_LOG_FILE"); file != "" {
		config.Logging.File = file
	}
}

func validateConfig(config *Config) error {
	if config.Postgres.Host == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if config.Postgres.Port == 0 {
		return fmt.Errorf("POSTGRES_PORT is required")
	}
	if config.Postgres.Database == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}
	if config.Postgres.User == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if config.Stream.BatchSize <= 0 {
		return fmt.Errorf("stream.batch_size must be positive, got %d", config.Stream.BatchSize)
	}
	if config.Stream.Cooldown.Duration < 0 {
		return fmt.Errorf("stream.cooldown must not be negative")
	}
	return nil
}
