package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	entry := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestContextWithLogger(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	assert.Nil(t, FromContext(context.Background()))
	assert.Equal(t, context.Background(), ContextWithLogger(context.Background(), nil))
}

func TestOrDefault(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, custom, OrDefault(custom))
	assert.Same(t, slog.Default(), OrDefault(nil))
}

func TestService_PrefersContextLogger(t *testing.T) {
	t.Parallel()

	fallback, fallbackBuf := jsonLogger()
	request, requestBuf := jsonLogger()
	ctx := ContextWithLogger(context.Background(), request.With("request_id", "req-1"))

	Service(ctx, fallback, "GenerationService", "Generate", "series_id", "series-1").Info("generated")

	assert.Zero(t, fallbackBuf.Len())
	entry := lastEntry(t, requestBuf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "GenerationService", entry["service"])
	assert.Equal(t, "Generate", entry["operation"])
	assert.Equal(t, "series-1", entry["series_id"])
}

func TestHandler_DropsEmptyStringAttrs(t *testing.T) {
	t.Parallel()

	fallback, buf := jsonLogger()
	Handler(context.Background(), fallback, "SeriesHandler", "", "series_id", "", "status", 404).Info("rejected")

	entry := lastEntry(t, buf)
	assert.Equal(t, "SeriesHandler", entry["handler"])
	assert.NotContains(t, entry, "operation")
	assert.NotContains(t, entry, "series_id")
	assert.EqualValues(t, 404, entry["status"])
}
