// Package logging provides the structured logger used across the server.
package logging

import (
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper of zap.SugaredLogger.
type Logger = *zap.SugaredLogger

// Output formats accepted by SetFormat.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	format atomic.Value
)

func init() {
	format.Store(FormatConsole)
}

// SetLogLevel changes the level of every logger, including ones already
// created.
func SetLogLevel(name string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil || name == "" {
		return fmt.Errorf("invalid log level: %q", name)
	}
	level.SetLevel(l)
	return nil
}

// SetFormat selects the encoding of loggers created afterwards.
func SetFormat(f string) error {
	switch f {
	case FormatConsole, FormatJSON:
		format.Store(f)
		return nil
	default:
		return fmt.Errorf("invalid log format: %q", f)
	}
}

// New creates a logger for one component. keysAndValues are attached to every
// entry, e.g. New("session", "room", id).
func New(component string, keysAndValues ...interface{}) Logger {
	core := zapcore.NewCore(encoder(format.Load().(string)), zapcore.Lock(os.Stdout), level)
	logger := zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)).Named(component).Sugar()
	if len(keysAndValues) > 0 {
		logger = logger.With(keysAndValues...)
	}
	return logger
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return zap.NewNop().Sugar()
}

func encoder(f string) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "component",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if f == FormatJSON {
		return zapcore.NewJSONEncoder(cfg)
	}

	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}
