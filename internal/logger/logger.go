// Package logger builds the zap loggers used across upscalectl.
//
// Components never reach for a global logger on their own; they receive a
// named *zap.SugaredLogger at construction. For returns one derived from the
// process-wide logger set up by Initialize or Set.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a textual log level.
type Level string

// Format selects the encoder.
type Format string

const (
	DebugLevel Level = "DEBUG"
	InfoLevel  Level = "INFO"
	WarnLevel  Level = "WARN"
	ErrorLevel Level = "ERROR"

	// FormatConsole is human-readable output with colored levels.
	FormatConsole Format = "CONSOLE"
	// FormatJSON is one JSON object per line.
	FormatJSON Format = "JSON"
)

// Environment variables read by FromEnv.
const (
	EnvLevel  = "LOGGING_LEVEL"
	EnvFormat = "LOGGING_FORMAT"
)

var (
	mu     sync.RWMutex
	global *zap.Logger
)

// ParseLevel maps a level name to a zap level. Unknown names are INFO.
func ParseLevel(level string) zapcore.Level {
	switch Level(strings.ToUpper(strings.TrimSpace(level))) {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseFormat maps a format name to a Format. Unknown names are CONSOLE.
func ParseFormat(format string) Format {
	if Format(strings.ToUpper(strings.TrimSpace(format))) == FormatJSON {
		return FormatJSON
	}
	return FormatConsole
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05 MST"))
}

// New creates a logger writing to w with the given level and format.
func New(w io.Writer, level string, format Format) *zap.Logger {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if format == FormatJSON {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncodeTime = timeEncoder
		cfg.ConsoleSeparator = " | "
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), zap.NewAtomicLevelAt(ParseLevel(level)))
	return zap.New(core, zap.AddCaller())
}

// FromEnv creates a stderr logger configured by LOGGING_LEVEL and
// LOGGING_FORMAT, falling back to the given defaults.
func FromEnv(defaultLevel string, defaultFormat Format) *zap.Logger {
	level := os.Getenv(EnvLevel)
	if level == "" {
		level = defaultLevel
	}
	format := defaultFormat
	if f := os.Getenv(EnvFormat); f != "" {
		format = ParseFormat(f)
	}
	return New(os.Stderr, level, format)
}

// Set installs l as the process-wide logger.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = l
	zap.ReplaceGlobals(l)
}

// Get returns the process-wide logger. Until Set is called it is a no-op
// logger, so library code stays quiet in tests.
func Get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return zap.NewNop()
	}
	return global
}

// For returns a sugared logger named after a component.
func For(component string) *zap.SugaredLogger {
	return Get().Sugar().Named(component)
}

// Sync flushes the process-wide logger.
func Sync() error {
	return Get().Sync()
}
