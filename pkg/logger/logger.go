package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging surface used throughout the module.
// It mirrors zap's sugared key/value style; Warnw and Errorw carry an
// error value so call sites never have to stringify errors themselves.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, err error, keysAndValues ...interface{})
	Errorw(msg string, err error, keysAndValues ...interface{})
	WithValues(keysAndValues ...interface{}) Logger
	WithComponent(component string) Logger
}

type zapLogger struct {
	zap *zap.SugaredLogger
}

var defaultLogger Logger = NewZapLogger(zap.NewNop())

// GetLogger returns the process-wide default logger.
func GetLogger() Logger {
	return defaultLogger
}

// SetLogger replaces the process-wide default logger. Intended to be called
// once by the host application before any session is created.
func SetLogger(l Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{zap: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// NewDevelopmentLogger builds a console logger at the given level, mainly
// for tests and example programs.
func NewDevelopmentLogger(level zapcore.Level) (Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l), nil
}

func (l *zapLogger) Debugw(msg string, keysAndValues ...interface{}) {
	l.zap.Debugw(msg, keysAndValues...)
}

func (l *zapLogger) Infow(msg string, keysAndValues ...interface{}) {
	l.zap.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Warnw(msg string, err error, keysAndValues ...interface{}) {
	if err != nil {
		keysAndValues = append(keysAndValues, "error", err)
	}
	l.zap.Warnw(msg, keysAndValues...)
}

func (l *zapLogger) Errorw(msg string, err error, keysAndValues ...interface{}) {
	if err != nil {
		keysAndValues = append(keysAndValues, "error", err)
	}
	l.zap.Errorw(msg, keysAndValues...)
}

func (l *zapLogger) WithValues(keysAndValues ...interface{}) Logger {
	return &zapLogger{zap: l.zap.With(keysAndValues...)}
}

func (l *zapLogger) WithComponent(component string) Logger {
	return &zapLogger{zap: l.zap.Named(component)}
}
