// Package logging adapts third-party loggers to es.Logger.
package logging

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/getpup/pupstreams/es"
)

// LogrusLogger adapts a logrus.FieldLogger to es.Logger.
// Key-value pairs become logrus fields.
type LogrusLogger struct {
	logger logrus.FieldLogger
}

var _ es.Logger = (*LogrusLogger)(nil)

// NewLogrusLogger wraps logger. A nil logger falls back to the logrus
// standard logger.
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusLogger{logger: logger}
}

// Debug implements es.Logger.
func (l *LogrusLogger) Debug(ctx context.Context, msg string, keyvals ...interface{}) {
	l.entry(ctx, keyvals).Debug(msg)
}

// Info implements es.Logger.
func (l *LogrusLogger) Info(ctx context.Context, msg string, keyvals ...interface{}) {
	l.entry(ctx, keyvals).Info(msg)
}

// Error implements es.Logger.
func (l *LogrusLogger) Error(ctx context.Context, msg string, keyvals ...interface{}) {
	l.entry(ctx, keyvals).Error(msg)
}

func (l *LogrusLogger) entry(ctx context.Context, keyvals []interface{}) *logrus.Entry {
	entry := l.logger.WithFields(fields(keyvals))
	if ctx != nil {
		entry = entry.WithContext(ctx)
	}
	return entry
}

// fields converts alternating key-value pairs. A trailing key without a value
// is kept under "!BADKEY", matching log/slog.
func fields(keyvals []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 == len(keyvals) {
			f["!BADKEY"] = keyvals[i]
			break
		}
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		f[key] = keyvals[i+1]
	}
	return f
}
