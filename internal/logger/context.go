// Package logger provides utilities for working with [zerolog.Logger] and
// [context.Context].
package logger

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey struct{}

var ctxLoggerKey = ctxKey{}

// InContext returns a copy of ctx carrying l, retrievable with FromContext.
func InContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey, l)
}

// FromContext returns the logger attached to ctx by InContext, or the
// global logger if none was attached.
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxLoggerKey).(zerolog.Logger); ok {
		return l
	}
	return log.Logger
}

// Fatal logs msg at fatal level with the logger attached to ctx and
// terminates the process (zerolog.Event.Msg calls os.Exit(1) after a
// Fatal-level event).
func Fatal(ctx context.Context, msg string) {
	l := FromContext(ctx)
	l.Fatal().Msg(msg)
}

// FatalError logs msg and err at fatal level using the global logger and
// terminates the process.
func FatalError(msg string, err error) {
	log.Fatal().Err(err).Msg(msg)
}

// FatalErrorContext logs msg and err at fatal level with the logger
// attached to ctx and terminates the process.
func FatalErrorContext(ctx context.Context, msg string, err error) {
	l := FromContext(ctx)
	l.Fatal().Err(err).Msg(msg)
}
