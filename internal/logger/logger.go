// Package logger builds the zerolog logger the expenses commands carry in
// their context. Log lines go to stderr; stdout is reserved for command
// output.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

var fallback = sync.OnceValue(New)

// New returns a human-readable console logger on stderr.
func New() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

// NewWithWriter returns a JSON logger on w, with caller information.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// WithLevel filters logger at the level named in config ("debug", "info",
// "warn", ...). Unknown names fall back to info.
func WithLevel(logger zerolog.Logger, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// WithCommand tags every line with the running command and, once
// configured, the user's email.
func WithCommand(logger zerolog.Logger, command, user string) zerolog.Logger {
	c := logger.With().Str("command", command)
	if user != "" {
		c = c.Str("user", user)
	}
	return c.Logger()
}

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the shared stderr logger
// when there is none.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return logger
	}
	return fallback()
}
