// Package diag builds the internal diagnostic logger shared by the toolbox
// packages. It reports configuration mistakes and sink/task failures, never
// the application's own log traffic (that goes through lgr sinks).
//
// Lines are console-encoded and written to a fallback writer (stderr by
// default) and, optionally, to a size-rotated diagnostics file.
package diag

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	DEFAULT_FILE_MAX_SIZE_MB = 5
	DEFAULT_FILE_MAX_BACKUPS = 3
	DEFAULT_FILE_MAX_AGE     = 7 // days
)

type config struct {
	level      zapcore.Level
	file       string
	maxSizeMB  int
	maxBackups int
}

// Option adjusts the diagnostic logger built by New.
type Option func(*config)

// WithLevel sets the minimal level of diagnostic messages (zap InfoLevel by default).
func WithLevel(level zapcore.Level) Option {
	return func(c *config) { c.level = level }
}

// WithFile tees diagnostics into a lumberjack-rotated file. Non-positive
// sizes fall back to the package defaults.
func WithFile(path string, maxSizeMB, maxBackups int) Option {
	return func(c *config) {
		c.file = path
		c.maxSizeMB = maxSizeMB
		c.maxBackups = maxBackups
	}
}

// New returns a logger writing to fallback (os.Stderr if nil).
func New(fallback io.Writer, opts ...Option) *zap.Logger {
	c := config{level: zapcore.InfoLevel}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if fallback == nil {
		fallback = os.Stderr
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(zapcore.AddSync(fallback)), c.level),
	}
	if c.file != "" {
		if c.maxSizeMB <= 0 {
			c.maxSizeMB = DEFAULT_FILE_MAX_SIZE_MB
		}
		if c.maxBackups <= 0 {
			c.maxBackups = DEFAULT_FILE_MAX_BACKUPS
		}
		rotated := &lumberjack.Logger{
			Filename:   c.file,
			MaxSize:    c.maxSizeMB,
			MaxBackups: c.maxBackups,
			MaxAge:     DEFAULT_FILE_MAX_AGE,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotated), c.level))
	}
	return zap.New(zapcore.NewTee(cores...))
}

// Or returns l, or a no-op logger when l is nil.
func Or(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
