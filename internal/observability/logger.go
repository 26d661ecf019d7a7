// Package observability wires up the process-wide structured logger used
// by the CLI and HTTP control surface.
package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger, initialized by Init. It defaults
// to a no-op logger so packages that capture it at import time never see
// a nil pointer before main() runs Init.
var CLILogger = zap.NewNop()

// Init builds CLILogger from a log level string ("debug", "info", "warn",
// "error") and whether output should be human-readable. Non-verbose runs
// get zap's production JSON encoder; verbose runs get a readable console
// encoder at debug level, matching how CLI tools in this stack report
// progress to a terminal versus a log aggregator.
func Init(level string, verbose bool) error {
	var lvl zapcore.Level
	if verbose {
		lvl = zapcore.DebugLevel
	} else if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	CLILogger = logger
	return nil
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	_ = CLILogger.Sync()
}
