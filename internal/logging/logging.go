// Package logging carries request scoped slog loggers through contexts and
// derives component loggers from them.
package logging

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// ContextWithLogger returns a derived context that carries the provided logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts a logger previously attached to the context.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(contextKey{}).(*slog.Logger)
	return logger
}

// OrDefault returns logger, or slog.Default when it is nil.
func OrDefault(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// Service returns the logger for one operation of an application service.
func Service(ctx context.Context, fallback *slog.Logger, name, operation string, attrs ...any) *slog.Logger {
	return scoped(ctx, fallback, "service", name, operation, attrs)
}

// Handler returns the logger for one operation of an HTTP handler.
func Handler(ctx context.Context, fallback *slog.Logger, name, operation string, attrs ...any) *slog.Logger {
	return scoped(ctx, fallback, "handler", name, operation, attrs)
}

// scoped prefers the context logger so request ids flow into component logs.
// Key/value pairs whose value is an empty string are dropped.
func scoped(ctx context.Context, fallback *slog.Logger, kind, name, operation string, attrs []any) *slog.Logger {
	logger := FromContext(ctx)
	if logger == nil {
		logger = OrDefault(fallback)
	}

	pairs := make([]any, 0, len(attrs)+4)
	pairs = append(pairs, kind, name)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		if s, ok := attrs[i+1].(string); ok && s == "" {
			continue
		}
		pairs = append(pairs, attrs[i], attrs[i+1])
	}
	if len(attrs)%2 == 1 {
		pairs = append(pairs, attrs[len(attrs)-1])
	}
	return logger.With(pairs...)
}
