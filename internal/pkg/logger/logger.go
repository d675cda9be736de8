package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

func (l Level) String() string { return levelNames[l] }

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// ParseLevel maps a config string to a Level. Unknown values yield INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	}
	return INFO
}

// Logger provides structured JSON logging with optional PII redaction.
// Output goes through zap; callers use key/value pairs.
type Logger struct {
	mu        sync.RWMutex
	zl        *zap.Logger
	level     zap.AtomicLevel
	redactPII bool
}

func newDefault() *Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.DisableStacktrace = true
	zl, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		zl = zap.NewNop()
	}
	return &Logger{zl: zl, level: level, redactPII: true}
}

var defaultLogger = newDefault()

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.level.SetLevel(l.zapLevel()) }

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) {
	defaultLogger.mu.Lock()
	defaultLogger.redactPII = r
	defaultLogger.mu.Unlock()
}

// UseCore swaps the zap core behind the default logger and returns a restore
// func. Tests use it with zaptest/observer.
func UseCore(core zapcore.Core) func() {
	defaultLogger.mu.Lock()
	prev := defaultLogger.zl
	defaultLogger.zl = zap.New(core, zap.AddCallerSkip(2))
	defaultLogger.mu.Unlock()
	return func() {
		defaultLogger.mu.Lock()
		defaultLogger.zl = prev
		defaultLogger.mu.Unlock()
	}
}

// Sugar exposes the default logger to libraries that expect a printf-style
// logger (asynq, for instance).
func Sugar() *zap.SugaredLogger {
	defaultLogger.mu.RLock()
	defer defaultLogger.mu.RUnlock()
	return defaultLogger.zl.WithOptions(zap.AddCallerSkip(-2)).Sugar()
}

// Sync flushes buffered entries.
func Sync() error {
	defaultLogger.mu.RLock()
	defer defaultLogger.mu.RUnlock()
	return defaultLogger.zl.Sync()
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	l.mu.RLock()
	zl, redact := l.zl, l.redactPII
	l.mu.RUnlock()

	if ce := zl.Check(level.zapLevel(), msg); ce != nil {
		ce.Write(toZapFields(redact, fields)...)
	}
}

// toZapFields parses key/value pairs. A trailing key without a value is
// dropped.
func toZapFields(redact bool, fields []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields)/2)
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		var val string
		switch v := fields[i+1].(type) {
		case error:
			val = v.Error()
		default:
			val = fmt.Sprintf("%v", v)
		}
		if redact {
			val = redactPIIValue(key, val)
		}
		out = append(out, zap.String(key, val))
	}
	return out
}
