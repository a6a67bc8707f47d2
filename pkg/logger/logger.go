package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"igtags/pkg/config"
)

// Logger is the structured logger passed to every component.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	DebugWithFields(msg string, fields map[string]interface{})
	InfoWithFields(msg string, fields map[string]interface{})
	WarnWithFields(msg string, fields map[string]interface{})
	ErrorWithFields(msg string, fields map[string]interface{})
}

type zlog struct {
	zl zerolog.Logger
}

// New builds a console logger on stderr, teeing to cfg.File when set.
func New(cfg *config.LoggingConfig) (Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = console(os.Stderr)
	if cfg.File != "" {
		f, err := openLogFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to setup file output: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, f)
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Str("app", "igtags").Logger()
	return NewFromZerolog(zl), nil
}

// NewFromZerolog wraps an existing zerolog logger.
func NewFromZerolog(zl zerolog.Logger) Logger {
	return &zlog{zl: zl}
}

var levelTags = map[string]string{
	"debug": "\033[37mDEBG\033[0m",
	"info":  "\033[32mINFO\033[0m",
	"warn":  "\033[33mWARN\033[0m",
	"error": "\033[31mERRO\033[0m",
}

func console(out io.Writer) zerolog.ConsoleWriter {
	w := zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	w.FormatLevel = func(i interface{}) string {
		s, _ := i.(string)
		if tag, ok := levelTags[s]; ok {
			return tag
		}
		return strings.ToUpper(s)
	}
	w.FormatMessage = func(i interface{}) string {
		if i == nil {
			return ""
		}
		return fmt.Sprintf("| %s", i)
	}
	w.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("\033[36m%s\033[0m:", i)
	}
	return w
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

// parseLogLevel accepts zerolog's level names plus "warning".
func parseLogLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	if s == "" {
		return zerolog.InfoLevel, fmt.Errorf("empty log level")
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("unknown log level: %s", s)
	}
	return level, nil
}

func (l *zlog) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *zlog) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *zlog) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *zlog) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *zlog) DebugWithFields(msg string, fields map[string]interface{}) {
	l.zl.Debug().Fields(fields).Msg(msg)
}

func (l *zlog) InfoWithFields(msg string, fields map[string]interface{}) {
	l.zl.Info().Fields(fields).Msg(msg)
}

func (l *zlog) WarnWithFields(msg string, fields map[string]interface{}) {
	l.zl.Warn().Fields(fields).Msg(msg)
}

func (l *zlog) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.zl.Error().Fields(fields).Msg(msg)
}

func (l *zlog) WithField(key string, value interface{}) Logger {
	return &zlog{zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *zlog) WithFields(fields map[string]interface{}) Logger {
	return &zlog{zl: l.zl.With().Fields(fields).Logger()}
}

// WithError returns l unchanged for a nil error.
func (l *zlog) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return &zlog{zl: l.zl.With().Err(err).Logger()}
}

var (
	globalMu sync.RWMutex
	global   Logger
)

// Initialize builds the process logger from cfg and installs it both here
// and as zerolog's package logger.
func Initialize(cfg *config.LoggingConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	SetGlobal(l)
	log.Logger = l.(*zlog).zl
	return nil
}

func SetGlobal(l Logger) {
	globalMu.Lock()
	global = l
	globalMu.Unlock()
}

// GetLogger returns the process logger, creating an info-level one on
// first use.
func GetLogger() Logger {
	globalMu.RLock()
	l := global
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	l, _ = New(&config.LoggingConfig{Level: "info"})
	SetGlobal(l)
	return l
}

// WithField is shorthand for GetLogger().WithField.
func WithField(key string, value interface{}) Logger {
	return GetLogger().WithField(key, value)
}
