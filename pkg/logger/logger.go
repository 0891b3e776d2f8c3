package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel representa os níveis de log disponíveis
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String retorna a representação em string do nível de log
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converte uma string em LogLevel (INFO quando não reconhecida)
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger gerencia mensagens de log com níveis configuráveis
type Logger struct {
	level  LogLevel
	logger *log.Logger
	mu     sync.RWMutex
	prefix string
	flags  int
}

var (
	defaultLogger = NewLogger(INFO, "", log.LstdFlags)
	mu            sync.RWMutex
	logFile       *os.File
)

// NewLogger cria uma nova instância de Logger escrevendo em os.Stderr
func NewLogger(level LogLevel, prefix string, flags int) *Logger {
	return &Logger{
		level:  level,
		logger: log.New(os.Stderr, prefix, flags),
		prefix: prefix,
		flags:  flags,
	}
}

// SetLevel define o nível mínimo de log
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel retorna o nível atual de log
func (l *Logger) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// SetOutput define o destino de saída do log
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = log.New(w, l.prefix, l.flags)
}

func (l *Logger) enabled(level LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if !l.enabled(level) {
		return
	}
	l.mu.RLock()
	out := l.logger
	l.mu.RUnlock()
	out.Printf("[%s] %s", level, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// Init configura o logger padrão: nível e, se file não for vazio, também
// grava no arquivo (append). Pode ser chamado de novo; o arquivo anterior é fechado.
func Init(level, file string) error {
	l := NewLogger(ParseLogLevel(level), "", log.LstdFlags)
	var f *os.File
	if file != "" {
		var err error
		f, err = os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", file, err)
		}
		l.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	defaultLogger = l
	return nil
}

// SetDefaultLogger define o logger padrão usado globalmente; nil é ignorado
func SetDefaultLogger(logger *Logger) {
	if logger == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// GetDefaultLogger retorna o logger padrão
func GetDefaultLogger() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Funções globais que usam o logger padrão

func Debug(format string, args ...interface{}) { GetDefaultLogger().Debug(format, args...) }
func Info(format string, args ...interface{})  { GetDefaultLogger().Info(format, args...) }
func Warn(format string, args ...interface{})  { GetDefaultLogger().Warn(format, args...) }
func Error(format string, args ...interface{}) { GetDefaultLogger().Error(format, args...) }

// WouldLog verifica se um nível de log seria exibido no logger padrão
func WouldLog(level LogLevel) bool {
	return GetDefaultLogger().enabled(level)
}
