package persistence

import (
	"context"
	"time"
)

// SeriesRepository stores recurring series and their exclusions.
type SeriesRepository interface {
	CreateSeries(ctx context.Context, series Series) error
	UpdateSeries(ctx context.Context, series Series) error
	GetSeries(ctx context.Context, id string) (Series, error)
	ListActiveSeries(ctx context.Context) ([]Series, error)
	// AdvanceWatermark raises last_generated_until to until. It never lowers it.
	AdvanceWatermark(ctx context.Context, id string, until, updatedAt time.Time) error
	// AddExclusion is idempotent.
	AddExclusion(ctx context.Context, exclusion SeriesExclusion) error
	ListExclusions(ctx context.Context, seriesID string) ([]SeriesExclusion, error)
}

// OccurrenceFilter narrows occurrence queries. Zero values do not filter.
type OccurrenceFilter struct {
	SeriesID     string
	StaffID      string
	Statuses     []string
	StartsFrom   *time.Time // inclusive
	StartsBefore *time.Time // exclusive
	EndsAfter    *time.Time // exclusive
}

// OccurrenceRepository stores concrete appointments.
type OccurrenceRepository interface {
	// InsertOccurrence reports false without error when an occurrence with the
	// same series and start already exists.
	InsertOccurrence(ctx context.Context, occurrence Occurrence) (bool, error)
	UpdateOccurrence(ctx context.Context, occurrence Occurrence) error
	GetOccurrence(ctx context.Context, id string) (Occurrence, error)
	ListOccurrences(ctx context.Context, filter OccurrenceFilter) ([]Occurrence, error)
	CountSeriesOccurrences(ctx context.Context, seriesID string) (int, error)
	// DeleteScheduledFrom removes scheduled occurrences of the series starting
	// at or after from and returns them.
	DeleteScheduledFrom(ctx context.Context, seriesID string, from time.Time) ([]Occurrence, error)
	// CancelScheduledAfter cancels scheduled occurrences of the series starting
	// after the given instant and returns them in their new state.
	CancelScheduledAfter(ctx context.Context, seriesID string, after, updatedAt time.Time) ([]Occurrence, error)
}
