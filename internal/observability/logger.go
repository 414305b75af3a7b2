// Package observability holds the process-wide CLI logger.
//
// The cmd layer logs through CLILogger; library packages take an
// explicit *zap.Logger instead, so their behavior is testable without
// capturing global output.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger for the cmd layer. It starts as a no-op and is
// replaced by Init before any command runs.
var CLILogger = zap.NewNop()

// Init configures CLILogger.
//
// Logs go to stderr so stdout stays clean for the tool's printed output.
// quiet suppresses stderr entirely; verbose forces debug level.
func Init(level string, quiet, verbose bool) error {
	if quiet {
		CLILogger = zap.NewNop()
		return nil
	}

	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	CLILogger = logger
	return nil
}

// Sync flushes buffered log entries. Safe to call on a no-op logger.
func Sync() {
	_ = CLILogger.Sync()
}
