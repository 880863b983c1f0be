// Package logging builds the service logger and carries request-scoped
// loggers through context.
package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/mama165/sdk-go/logs"
)

type loggerKeyType struct{}

var loggerKey = loggerKeyType{}

// New returns the process logger for the given level name, tagged with the
// service identity, and installs it as the slog default.
func New(level, service, env string) *slog.Logger {
	logger := logs.GetLoggerFromString(level).With(
		slog.String("service", service),
		slog.String("env", env),
		slog.Int("pid", os.Getpid()),
	)
	slog.SetDefault(logger)
	return logger
}

// WithContext stores log in ctx.
func WithContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the request logger, or the default logger when none
// was injected.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
