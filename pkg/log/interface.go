// Package log provides the structured logging interface used across heartrisk.
//
// The interface is slog-compatible so that any backend can sit behind it. Two
// backends ship with the package: a zerolog provider (the default for the CLI)
// and an adapter over log/slog that emits JSON with cockroachdb/errors stack
// traces extracted into their own attribute.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("Trainer").With(
//	    log.MethodKey, "RF",
//	    log.RunIDKey, runID,
//	)
//	logger.Info("cross-validation finished",
//	    log.AUCKey, 0.81,
//	    log.SplitsKey, 10,
//	)
package log

import (
	"context"
	"log/slog"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key/value pairs. When the first field passed to Error is
// an error value, backends attach it as the error attribute together with its
// stack trace.
type Logger interface {
	// Debug logs diagnostic detail such as per-fold AUC values.
	Debug(msg string, fields ...any)

	// Info logs operational progress of the pipeline.
	Info(msg string, fields ...any)

	// Warn logs conditions that do not stop the run.
	Warn(msg string, fields ...any)

	// Error logs a failure. The first field may be an error.
	Error(msg string, fields ...any)

	// With returns a Logger that adds the given fields to every record.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	// Use it to skip building expensive fields.
	Enabled(ctx context.Context, level Level) bool
}

// Level is slog.Level so that levels parsed from configuration pass straight
// to either backend.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// LoggerProvider creates loggers that share one backend and one level.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum level for loggers created afterwards.
	SetLevel(level Level)
}
