package http

import (
	"context"
	"log/slog"

	"github.com/example/clinic-scheduler/internal/logging"
)

type contextKey string

const (
	seriesIDContextKey     contextKey = "series_id"
	occurrenceIDContextKey contextKey = "occurrence_id"
	requestIDContextKey    contextKey = "request_id"
)

// ContextWithLogger returns a derived context carrying the request logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts the request logger if one was attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}

// ContextWithSeriesID injects the series identifier resolved from the request path.
func ContextWithSeriesID(ctx context.Context, seriesID string) context.Context {
	return context.WithValue(ctx, seriesIDContextKey, seriesID)
}

// SeriesIDFromContext extracts a series identifier previously associated with the context.
func SeriesIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(seriesIDContextKey).(string)
	return id, ok
}

// ContextWithOccurrenceID injects the occurrence identifier resolved from the request path.
func ContextWithOccurrenceID(ctx context.Context, occurrenceID string) context.Context {
	return context.WithValue(ctx, occurrenceIDContextKey, occurrenceID)
}

// OccurrenceIDFromContext extracts an occurrence identifier previously associated with the context.
func OccurrenceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(occurrenceIDContextKey).(string)
	return id, ok
}

// RequestIDFromContext returns the id assigned by RequestLogger.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDContextKey).(string)
	return id, ok
}
