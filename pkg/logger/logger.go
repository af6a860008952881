// Package logger provides structured, leveled logging for the whole
// application, backed by zap. Components receive a [Logger] by injection
// and tag themselves with With("component", ...); the package-level
// default exists for main and for code paths with no injected logger.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging contract used across the codebase.
// Key/value pairs follow the zap sugared convention: alternating string
// keys and arbitrary values.
type Logger interface {
	// Debug logs at debug level with optional key/value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs at info level with optional key/value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs at warn level with optional key/value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs at error level with optional key/value pairs.
	Error(msg string, keysAndValues ...any)

	// With returns a child logger with the given key/value pairs
	// attached to every subsequent entry.
	With(keysAndValues ...any) Logger
}

// zapLogger adapts a zap SugaredLogger to [Logger].
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}

// New wraps an existing zap logger.
func New(z *zap.Logger) Logger {
	return &zapLogger{s: z.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// MustProduction returns a production logger (JSON output, info level).
// Panics if the logger cannot be constructed.
func MustProduction() Logger {
	z, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return New(z)
}

// MustDevelopment returns a development logger (console output, debug level).
// Panics if the logger cannot be constructed.
func MustDevelopment() Logger {
	z, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return New(z)
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

var (
	defaultMu sync.RWMutex
	defaultL  Logger = MustProduction()
)

// Default returns the process-wide default logger.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultL
}

// SetDefault replaces the process-wide default logger.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultL = l
}

// SyncDefault flushes any buffered entries on the default logger.
// Call via defer in main.
func SyncDefault() {
	if zl, ok := Default().(*zapLogger); ok {
		_ = zl.s.Sync()
	}
}

// Fatal logs at error level on the default logger and exits the process.
func Fatal(msg string, keysAndValues ...any) {
	if zl, ok := Default().(*zapLogger); ok {
		zl.s.Fatalw(msg, keysAndValues...)
		return
	}
	Default().Error(msg, keysAndValues...)
	panic(msg)
}

// ParseLevel maps a config string to a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
