// Package logging builds the loggers used by the fitters.
//
// Verbosity is a plain integer knob mirroring the constructor surface:
// 0 disables output entirely, 1 reports per-fit progress, 2 adds
// per-window optimization detail. Verbosity never changes fit results.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger for the given verbosity level. Levels above 2 are
// treated as 2; levels at or below 0 return a no-op logger.
func New(verbose int) *zap.Logger {
	if verbose <= 0 {
		return zap.NewNop()
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	if verbose == 1 {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}

	return logger
}
