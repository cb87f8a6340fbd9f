// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and propagates the
// signal id driving a pipeline run through context.Context.
package logger

import (
	"context"
	"log/slog"
	"os"
)

type ctxKey string

const signalIDKey ctxKey = "signal_id"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// WithSignalID stores the originating signal id in the context so every log
// line of a pipeline run can be correlated.
func WithSignalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, signalIDKey, id)
}

// SignalID extracts the signal id from context. Returns "" if not set.
func SignalID(ctx context.Context) string {
	if v, ok := ctx.Value(signalIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSignal returns slog attributes including the signal id from context.
// Usage: slog.Info("msg", logger.WithSignal(ctx)...)
func WithSignal(ctx context.Context) []any {
	id := SignalID(ctx)
	if id == "" {
		return nil
	}
	return []any{slog.String("signal_id", id)}
}
