// Package logger provides the logging abstraction used by connections.
// It wraps log/slog and accepts custom implementations.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger is a structured logger taking key-value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger discards everything. It is the default.
type NoopLogger struct{}

// Debug does nothing.
func (n *NoopLogger) Debug(_ string, _ ...any) {}

// Info does nothing.
func (n *NoopLogger) Info(_ string, _ ...any) {}

// Warn does nothing.
func (n *NoopLogger) Warn(_ string, _ ...any) {}

// Error does nothing.
func (n *NoopLogger) Error(_ string, _ ...any) {}

// SlogAdapter wraps a *slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new logger adapter wrapping an slog.Logger.
// The provided logger must not be nil.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// New builds a slog-backed Logger writing to w.
// level is debug, info, warn or error; format is text or json.
func New(w io.Writer, level, format string) (Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "", "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return NewSlogAdapter(slog.New(h)), nil
}

// Debug logs a debug-level message with structured key-value pairs.
func (a *SlogAdapter) Debug(msg string, args ...any) {
	a.logger.Debug(msg, args...)
}

// Info logs an info-level message with structured key-value pairs.
func (a *SlogAdapter) Info(msg string, args ...any) {
	a.logger.Info(msg, args...)
}

// Warn logs a warning-level message with structured key-value pairs.
func (a *SlogAdapter) Warn(msg string, args ...any) {
	a.logger.Warn(msg, args...)
}

// Error logs an error-level message with structured key-value pairs.
func (a *SlogAdapter) Error(msg string, args ...any) {
	a.logger.Error(msg, args...)
}
