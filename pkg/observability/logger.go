package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	return []string{"DEBUG", "INFO", "WARN", "ERROR"}[l]
}

func (l LogLevel) toLogrus() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// ParseLogLevel converts a configuration string into a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Format selects the log line encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Logger provides structured logging backed by logrus
type Logger struct {
	entry *logrus.Entry
	level LogLevel
}

// NewLogger creates a new structured logger writing JSON lines
func NewLogger(level LogLevel, output io.Writer) *Logger {
	return NewLoggerWithFormat(level, FormatJSON, output)
}

// NewLoggerWithFormat creates a logger with an explicit encoding
func NewLoggerWithFormat(level LogLevel, format Format, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	base := logrus.New()
	base.SetOutput(output)
	base.SetLevel(level.toLogrus())
	if format == FormatText {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg: "message",
			},
		})
	}

	return &Logger{
		entry: logrus.NewEntry(base),
		level: level,
	}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value), level: l.level}
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields)), level: l.level}
}

// WithError adds an error to the logger context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{entry: l.entry.WithError(err), level: l.level}
}

// Level returns the configured minimum level
func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) Debug(message string) { l.entry.Debug(message) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *Logger) Info(message string) { l.entry.Info(message) }

func (l *Logger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *Logger) Warn(message string) { l.entry.Warn(message) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *Logger) Error(message string) { l.entry.Error(message) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

var defaultLogger = NewLogger(InfoLevel, os.Stdout)

// SetDefault replaces the logger used when a context carries none
func SetDefault(logger *Logger) {
	if logger != nil {
		defaultLogger = logger
	}
}

// GetLogger retrieves the logger from context
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := contextkeys.Logger(ctx).(*Logger); ok && logger != nil {
		return logger
	}
	return defaultLogger
}

// FromContext returns the context logger enriched with the request scope
// (request id, tenant id, user id and the active trace when present).
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)

	if requestID := contextkeys.RequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	if tenantID := contextkeys.TenantID(ctx); tenantID != "" {
		logger = logger.WithField("tenant_id", tenantID)
	}
	if userID := contextkeys.UserID(ctx); userID != "" {
		logger = logger.WithField("user_id", userID)
	}

	return WithTraceContext(ctx, logger)
}
