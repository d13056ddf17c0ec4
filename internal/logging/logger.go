// Package logging provides structured logging with trace-id and context support.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys this package reads/writes.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	NodeIDKey  ContextKey = "node_id"
	TaskIDKey  ContextKey = "task_id"
	ServiceKey ContextKey = "service"
)

// Logger wraps logrus.Logger with a fixed service name and context helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger for the given service name, level, and format ("json" or "text").
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv builds a logger using LOG_LEVEL and LOG_FORMAT, defaulting to info/json.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext returns an entry carrying this logger's service name plus any
// trace/node/task id values found on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if ctx == nil {
		return entry
	}
	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(NodeIDKey); v != nil {
		entry = entry.WithField("node_id", v)
	}
	if v := ctx.Value(TaskIDKey); v != nil {
		entry = entry.WithField("task_id", v)
	}
	return entry
}

// Debug logs at debug level with fields.
func (l *Logger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Debug(msg)
}

// Info logs at info level with fields.
func (l *Logger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Info(msg)
}

// Warn logs at warn level with fields.
func (l *Logger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Warn(msg)
}

// Error logs at error level, attaching err if non-nil.
func (l *Logger) Error(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	entry := l.WithContext(ctx)
	if err != nil {
		entry = entry.WithField("error", err.Error())
	}
	entry.WithFields(fields).Error(msg)
}

// NewTraceID returns a fresh random trace id.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches a trace id to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithNodeID attaches a scheduler node id to ctx.
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, NodeIDKey, nodeID)
}

// WithTaskID attaches a task id to ctx.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

// GetTraceID retrieves the trace id from ctx, if any.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}
