package calendarsync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/clinic-scheduler/internal/application"
	"github.com/example/clinic-scheduler/internal/logging"
)

// LogAdapter records events in the log. It is used when no external
// calendar is configured.
type LogAdapter struct {
	logger *slog.Logger
}

// NewLogAdapter constructs a LogAdapter.
func NewLogAdapter(logger *slog.Logger) *LogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAdapter{logger: logger}
}

func (a *LogAdapter) Name() string { return "log" }

func (a *LogAdapter) Deliver(ctx context.Context, event application.OccurrenceEvent) error {
	logger := a.logger
	if fromCtx := logging.FromContext(ctx); fromCtx != nil {
		logger = fromCtx
	}
	logger.InfoContext(ctx, "calendar sync event",
		"kind", string(event.Kind),
		"occurrence_id", event.OccurrenceID,
		"series_id", event.SeriesID,
		"tenant_id", event.TenantID,
		"start_at", event.Start.UTC().Format(time.RFC3339),
		"end_at", event.End.UTC().Format(time.RFC3339),
	)
	return nil
}

// WebhookAdapter posts each event as an iCalendar object to a URL.
type WebhookAdapter struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookAdapter constructs a webhook adapter. A nil client uses a client
// with a ten second timeout.
func NewWebhookAdapter(url string, client *http.Client, now func() time.Time) *WebhookAdapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if now == nil {
		now = time.Now
	}
	return &WebhookAdapter{url: strings.TrimSpace(url), client: client, now: now}
}

func (a *WebhookAdapter) Name() string { return "webhook" }

func (a *WebhookAdapter) Deliver(ctx context.Context, event application.OccurrenceEvent) error {
	body := EventCalendar(event, a.now())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewBufferString(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	req.Header.Set("X-Occurrence-Event", string(event.Kind))

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}
