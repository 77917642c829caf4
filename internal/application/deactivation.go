package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/clinic-scheduler/internal/logging"
)

// DeactivationCascade cancels the future scheduled occurrences of a series.
// Past and terminal occurrences are left as they are, so running it again
// has no further effect.
type DeactivationCascade struct {
	occurrences OccurrenceRepository
	publisher   SyncPublisher
	now         func() time.Time
	logger      *slog.Logger
}

// NewDeactivationCascade constructs a cascade.
func NewDeactivationCascade(occurrences OccurrenceRepository, publisher SyncPublisher, now func() time.Time, logger *slog.Logger) *DeactivationCascade {
	if now == nil {
		now = time.Now
	}
	return &DeactivationCascade{
		occurrences: occurrences,
		publisher:   publisher,
		now:         now,
		logger:      logging.OrDefault(logger),
	}
}

// Run cancels the series' scheduled occurrences that start after now and
// returns how many were cancelled.
func (c *DeactivationCascade) Run(ctx context.Context, seriesID string) (cancelled int, err error) {
	if c == nil || c.occurrences == nil {
		err = fmt.Errorf("DeactivationCascade is not configured")
		return
	}

	logger := logging.Service(ctx, c.logger, "DeactivationCascade", "Run", "series_id", seriesID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel occurrences", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "future occurrences cancelled", "cancelled", cancelled)
	}()

	now := c.now().UTC()
	var affected []Occurrence
	affected, err = c.occurrences.CancelScheduledAfter(ctx, seriesID, now, now)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	for _, occurrence := range affected {
		publish(ctx, c.publisher, eventFor(EventCancelled, occurrence, seriesID))
	}
	cancelled = len(affected)
	return
}
