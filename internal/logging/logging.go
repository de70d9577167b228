// Package logging builds the zap loggers used across opdflow.
package logging

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options select the logger level and destination.
type Options struct {
	Verbose bool
	Quiet   bool
	// Console switches from JSON to the human readable encoder.
	Console bool
}

// Level returns the minimum level for opts. Quiet wins over Verbose.
func (o Options) Level() zapcore.Level {
	switch {
	case o.Quiet:
		return zapcore.WarnLevel
	case o.Verbose:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a production logger writing to stderr.
func New(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(opts.Level())
	config.Sampling = nil
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if opts.Console {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// NewWriter builds a JSON logger writing to w, used by tests and the
// debug log file.
func NewWriter(w io.Writer, opts Options) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder = zapcore.NewJSONEncoder(enc)
	if opts.Console {
		encoder = zapcore.NewConsoleEncoder(enc)
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(w), zap.NewAtomicLevelAt(opts.Level()))
	return zap.New(core)
}
