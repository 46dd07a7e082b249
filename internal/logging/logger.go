package logging

import (
	"strings"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

type Logger struct {
	*otelzap.Logger
	auditLog bool
}

type LoggerWithCtx = otelzap.LoggerWithCtx

type LoggerOption struct {
	LogLevel string
	AuditLog bool
}

type Option func(o *LoggerOption)

func WithLogLevel(logLevel string) Option {
	return func(o *LoggerOption) {
		o.LogLevel = logLevel
	}
}

// WithAuditLog enables the audit channel. Audit lines are emitted at info
// level with an "audit" marker so they can be filtered downstream.
func WithAuditLog(auditLog bool) Option {
	return func(o *LoggerOption) {
		o.AuditLog = auditLog
	}
}

func NewLogger(opts ...Option) (*Logger, error) {
	option := &LoggerOption{}
	for _, opt := range opts {
		opt(option)
	}

	logger, err := makeLogger(option.LogLevel)
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger, auditLog: option.AuditLog}, nil
}

// FromZap wraps an existing zap logger. Used by tests with zaptest loggers.
func FromZap(zapLogger *zap.Logger, opts ...Option) *Logger {
	option := &LoggerOption{}
	for _, opt := range opts {
		opt(option)
	}
	return &Logger{
		Logger:   otelzap.New(zapLogger, otelzap.WithMinLevel(parseLevel(option.LogLevel).Level())),
		auditLog: option.AuditLog,
	}
}

// Audit logs an audit record. It is a no-op unless audit logging is enabled.
func (l *Logger) Audit(msg string, fields ...zap.Field) {
	if !l.auditLog {
		return
	}
	l.Logger.Info(msg, append(fields, zap.Bool("audit", true))...)
}

func parseLevel(logLevel string) zap.AtomicLevel {
	level := zap.InfoLevel
	switch strings.ToLower(logLevel) {
	case "debug":
		level = zap.DebugLevel
	case "warn":
		level = zap.WarnLevel
	case "error":
		level = zap.ErrorLevel
	case "fatal":
		level = zap.FatalLevel
	}
	return zap.NewAtomicLevelAt(level)
}

func makeLogger(logLevel string) (*otelzap.Logger, error) {
	level := parseLevel(logLevel)

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = level
	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return otelzap.New(zapLogger,
		otelzap.WithMinLevel(level.Level()),
	), nil
}
