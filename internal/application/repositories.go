package application

import (
	"context"
	"time"
)

// SeriesRepository captures the persistence operations needed for series.
type SeriesRepository interface {
	CreateSeries(ctx context.Context, series Series) error
	UpdateSeries(ctx context.Context, series Series) error
	GetSeries(ctx context.Context, id string) (Series, error)
	ListActiveSeries(ctx context.Context) ([]Series, error)
	AdvanceWatermark(ctx context.Context, id string, until, updatedAt time.Time) error
	AddExclusion(ctx context.Context, seriesID string, startAt, createdAt time.Time) error
	ListExclusions(ctx context.Context, seriesID string) ([]time.Time, error)
}

// OccurrenceFilter narrows queries issued to the occurrence repository.
type OccurrenceFilter struct {
	SeriesID     string
	StaffID      string
	Statuses     []OccurrenceStatus
	StartsFrom   *time.Time
	StartsBefore *time.Time
	EndsAfter    *time.Time
}

// OccurrenceRepository captures the persistence operations needed for occurrences.
type OccurrenceRepository interface {
	// InsertOccurrence reports false when the series already has an
	// occurrence at the same start.
	InsertOccurrence(ctx context.Context, occurrence Occurrence) (bool, error)
	UpdateOccurrence(ctx context.Context, occurrence Occurrence) error
	GetOccurrence(ctx context.Context, id string) (Occurrence, error)
	ListOccurrences(ctx context.Context, filter OccurrenceFilter) ([]Occurrence, error)
	CountSeriesOccurrences(ctx context.Context, seriesID string) (int, error)
	DeleteScheduledFrom(ctx context.Context, seriesID string, from time.Time) ([]Occurrence, error)
	CancelScheduledAfter(ctx context.Context, seriesID string, after, updatedAt time.Time) ([]Occurrence, error)
}

// EventKind names the change an OccurrenceEvent reports.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventCancelled EventKind = "cancelled"
	EventDeleted   EventKind = "deleted"
)

// OccurrenceEvent is published after an occurrence write has been committed.
type OccurrenceEvent struct {
	Kind         EventKind
	OccurrenceID string
	SeriesID     string
	TenantID     string
	Start        time.Time
	End          time.Time
}

// SyncPublisher receives occurrence events for external calendars. Publish
// must not block on delivery and its failures never affect the caller.
type SyncPublisher interface {
	Publish(ctx context.Context, event OccurrenceEvent)
}

func eventFor(kind EventKind, occurrence Occurrence, seriesID string) OccurrenceEvent {
	if occurrence.SeriesID != nil {
		seriesID = *occurrence.SeriesID
	}
	return OccurrenceEvent{
		Kind:         kind,
		OccurrenceID: occurrence.ID,
		SeriesID:     seriesID,
		TenantID:     occurrence.TenantID,
		Start:        occurrence.StartAt,
		End:          occurrence.EndAt,
	}
}

func publish(ctx context.Context, publisher SyncPublisher, event OccurrenceEvent) {
	if publisher == nil {
		return
	}
	publisher.Publish(ctx, event)
}
