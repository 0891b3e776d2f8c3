package config

import (
	"sync"
)

type GlobalConfig struct {
	instance   *Config
	configPath string
	mu         sync.RWMutex
}

var (
	global *GlobalConfig
	once   sync.Once
)

func Init() {
	once.Do(func() {
		global = &GlobalConfig{}
	})
}

// SetOnce stores the process configuration. It panics when called twice.
func SetOnce(config *Config, cfgPath string) {
	Init()
	global.mu.Lock()
	defer global.mu.Unlock()
	if global.instance != nil {
		panic("AppConfig already initialized")
	}
	global.instance = config
	global.configPath = cfgPath
}

// GetCfg returns a copy of the process configuration.
func GetCfg() *Config {
	cfg, ok := GetCfgIfSet()
	if !ok {
		panic("AppConfig not initialized")
	}
	return cfg
}

// GetCfgIfSet is GetCfg without the panic.
func GetCfgIfSet() (*Config, bool) {
	Init()
	global.mu.RLock()
	defer global.mu.RUnlock()
	if global.instance == nil {
		return nil, false
	}
	cloned := *global.instance
	return &cloned, true
}

func GetConfigPath() string {
	Init()
	global.mu.RLock()
	defer global.mu.RUnlock()
	return global.configPath
}

// ConfigForAPI returns a copy of cfg safe to show in the GUI: the password
// is masked.
func ConfigForAPI(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	out := *cfg
	if out.Postgres.Password != "" {
		out.Postgres.Password = "********"
	}
	return &out
}
