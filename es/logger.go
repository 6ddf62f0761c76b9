// Package es provides core event sourcing interfaces and types.
package es

import (
	"context"
	"log/slog"
)

// Logger provides a minimal interface for observability and debugging.
// It is designed to be optional and non-blocking, with zero overhead when disabled.
// Users can implement this interface to integrate their preferred logging library.
type Logger interface {
	// Debug logs debug-level information for detailed troubleshooting.
	// Typically used for verbose operational details.
	Debug(ctx context.Context, msg string, keyvals ...interface{})

	// Info logs informational messages about normal operations.
	// Used to track significant events during normal execution.
	Info(ctx context.Context, msg string, keyvals ...interface{})

	// Error logs error-level information about failures.
	// Used to track errors that require attention.
	Error(ctx context.Context, msg string, keyvals ...interface{})
}

// NoOpLogger is a logger that does nothing.
// It can be used as a default when no logging is desired.
type NoOpLogger struct{}

// Debug implements Logger.
func (NoOpLogger) Debug(_ context.Context, _ string, _ ...interface{}) {}

// Info implements Logger.
func (NoOpLogger) Info(_ context.Context, _ string, _ ...interface{}) {}

// Error implements Logger.
func (NoOpLogger) Error(_ context.Context, _ string, _ ...interface{}) {}

// SlogLogger adapts a *slog.Logger to the Logger interface.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger. A nil logger falls back to slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// Debug implements Logger.
func (l *SlogLogger) Debug(ctx context.Context, msg string, keyvals ...interface{}) {
	l.logger.DebugContext(ctx, msg, keyvals...)
}

// Info implements Logger.
func (l *SlogLogger) Info(ctx context.Context, msg string, keyvals ...interface{}) {
	l.logger.InfoContext(ctx, msg, keyvals...)
}

// Error implements Logger.
func (l *SlogLogger) Error(ctx context.Context, msg string, keyvals ...interface{}) {
	l.logger.ErrorContext(ctx, msg, keyvals...)
}
