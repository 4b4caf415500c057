package utils

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a structured logger for the application. Arguments after the
// message are key-value pairs.
type Logger struct {
	l *slog.Logger
}

// NewLogger creates a new logger writing text records to stderr
func NewLogger(level string) *Logger {
	return NewLoggerTo(os.Stderr, level)
}

// NewLoggerTo creates a logger writing to w
func NewLoggerTo(w io.Writer, level string) *Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{l: slog.New(h)}
}

// NopLogger discards everything
func NopLogger() *Logger {
	return NewLoggerTo(io.Discard, "error")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Info logs an informational message
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.l.InfoContext(ctx, msg, args...)
}

// Warn logs a recoverable problem
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.l.WarnContext(ctx, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.l.ErrorContext(ctx, msg, args...)
}

// With returns a child logger that always includes the given key-value pairs
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l: l.l.With(args...)}
}
