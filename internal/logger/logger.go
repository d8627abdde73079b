// Package logger provides the structured logger used by the veridicalql
// binary and shell. It satisfies engine.Logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger with key/value helpers.
type Logger struct {
	*zap.SugaredLogger
	base  *zap.Logger
	level zapcore.Level
}

// ParseLevel maps a configured level name to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func encoder(format string) (zapcore.Encoder, error) {
	switch strings.ToLower(format) {
	case "json":
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "timestamp"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg), nil
	case "text", "console", "":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		return zapcore.NewConsoleEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
}

// New creates a Logger. output is "stderr", "stdout" or a file path that is
// appended to.
func New(level, format, output string) (*Logger, error) {
	var ws zapcore.WriteSyncer
	switch strings.ToLower(output) {
	case "stderr", "":
		ws = zapcore.Lock(os.Stderr)
	case "stdout":
		ws = zapcore.Lock(os.Stdout)
	default:
		file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		ws = zapcore.AddSync(file)
	}
	return build(level, format, ws)
}

// NewWriter creates a Logger writing to w.
func NewWriter(level, format string, w io.Writer) (*Logger, error) {
	return build(level, format, zapcore.AddSync(w))
}

func build(level, format string, ws zapcore.WriteSyncer) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	enc, err := encoder(format)
	if err != nil {
		return nil, err
	}
	base := zap.New(zapcore.NewCore(enc, ws, lvl), zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{SugaredLogger: base.Sugar(), base: base, level: lvl}, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	base := zap.NewNop()
	return &Logger{SugaredLogger: base.Sugar(), base: base, level: zapcore.FatalLevel}
}

// Level reports the minimum enabled level.
func (l *Logger) Level() string {
	return l.level.String()
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.base.Sync()
}

// With returns a child Logger carrying extra key/value context.
func (l *Logger) With(args ...interface{}) *Logger {
	s := l.SugaredLogger.With(args...)
	return &Logger{SugaredLogger: s, base: s.Desugar(), level: l.level}
}

// Named returns a child Logger with name appended to the logger name.
func (l *Logger) Named(name string) *Logger {
	s := l.SugaredLogger.Named(name)
	return &Logger{SugaredLogger: s, base: s.Desugar(), level: l.level}
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
}
