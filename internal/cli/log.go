// Package cli implements the stackforge command-line interface.
//
// The CLI manages the generator registry (generator add, remove, list,
// show, deps), exports the dependency graph (graph), runs compositions
// (compose run, compose plan) and serves the HTTP API (serve). Commands
// are built with cobra; configuration is loaded with viper before any
// command runs.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging; otherwise
// log.level from the config applies. Loggers are passed through
// context.Context to allow structured progress tracking.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger writes leveled records with a short wall-clock stamp
// ("14:32:01.45") to w.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// stopwatch logs a finished step together with how long it took.
type stopwatch struct {
	logger *log.Logger
	start  time.Time
}

func startStopwatch(l *log.Logger) stopwatch {
	return stopwatch{logger: l, start: time.Now()}
}

// elapsed is rounded to milliseconds.
func (s stopwatch) elapsed() time.Duration {
	return time.Since(s.start).Round(time.Millisecond)
}

// done logs msg at info level with an "elapsed" field and any extra keyvals.
func (s stopwatch) done(msg string, keyvals ...any) {
	s.logger.Info(msg, append(keyvals, "elapsed", s.elapsed())...)
}

type loggerKey struct{}

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// loggerFromContext falls back to log.Default when the command ran without
// setup, as in unit tests that call run functions directly.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*log.Logger); ok && l != nil {
		return l
	}
	return log.Default()
}
