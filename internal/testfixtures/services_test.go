package testfixtures

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/clinic-scheduler/internal/application"
	"github.com/example/clinic-scheduler/internal/recurrence"
)

type capturingSeriesRepo struct {
	created application.Series
}

func (c *capturingSeriesRepo) CreateSeries(ctx context.Context, series application.Series) error {
	c.created = series
	return nil
}

func (c *capturingSeriesRepo) UpdateSeries(ctx context.Context, series application.Series) error {
	return nil
}

func (c *capturingSeriesRepo) GetSeries(ctx context.Context, id string) (application.Series, error) {
	return application.Series{}, application.ErrNotFound
}

func (c *capturingSeriesRepo) ListActiveSeries(ctx context.Context) ([]application.Series, error) {
	return nil, nil
}

func (c *capturingSeriesRepo) AdvanceWatermark(ctx context.Context, id string, until, updatedAt time.Time) error {
	return nil
}

func (c *capturingSeriesRepo) AddExclusion(ctx context.Context, seriesID string, startAt, createdAt time.Time) error {
	return nil
}

func (c *capturingSeriesRepo) ListExclusions(ctx context.Context, seriesID string) ([]time.Time, error) {
	return nil, nil
}

type emptyOccurrenceRepo struct{}

func (emptyOccurrenceRepo) InsertOccurrence(ctx context.Context, occurrence application.Occurrence) (bool, error) {
	return true, nil
}

func (emptyOccurrenceRepo) UpdateOccurrence(ctx context.Context, occurrence application.Occurrence) error {
	return nil
}

func (emptyOccurrenceRepo) GetOccurrence(ctx context.Context, id string) (application.Occurrence, error) {
	return application.Occurrence{}, application.ErrNotFound
}

func (emptyOccurrenceRepo) ListOccurrences(ctx context.Context, filter application.OccurrenceFilter) ([]application.Occurrence, error) {
	return nil, nil
}

func (emptyOccurrenceRepo) CountSeriesOccurrences(ctx context.Context, seriesID string) (int, error) {
	return 0, nil
}

func (emptyOccurrenceRepo) DeleteScheduledFrom(ctx context.Context, seriesID string, from time.Time) ([]application.Occurrence, error) {
	return nil, nil
}

func (emptyOccurrenceRepo) CancelScheduledAfter(ctx context.Context, seriesID string, after, updatedAt time.Time) ([]application.Occurrence, error) {
	return nil, nil
}

func TestServiceFactoryNewSeriesService(t *testing.T) {
	factory := NewServiceFactory()
	repo := &capturingSeriesRepo{}

	svc := factory.NewSeriesService(SeriesServiceDeps{Series: repo, Occurrences: emptyOccurrenceRepo{}})
	fixture := NewSeriesFixture()

	result, err := svc.CreateSeries(context.Background(), fixture.Input())
	// The capturing repository cannot load the series back, so only the
	// initial generation fails.
	if !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected generation to report ErrNotFound, got %v", err)
	}

	if result.Series.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", result.Series.ID)
	}
	if repo.created.ID != result.Series.ID {
		t.Fatalf("repository received unexpected ID: %q", repo.created.ID)
	}
	if !repo.created.CreatedAt.Equal(factory.Clock.Current()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Current(), repo.created.CreatedAt)
	}
	if repo.created.StartDate.String() != fixture.StartDate {
		t.Fatalf("expected start date %s, got %s", fixture.StartDate, repo.created.StartDate)
	}
}

func TestServiceFactoryNewRuleService(t *testing.T) {
	factory := NewServiceFactory()
	svc := factory.NewRuleService(nil)

	preview, err := svc.BuildRule(context.Background(), application.RulePreviewRequest{
		Config: recurrence.Config{
			Frequency: recurrence.FrequencyWeekly,
			Interval:  1,
			Weekdays:  []time.Weekday{time.Monday},
		},
		StartDate:       "2025-01-06",
		LocalStartTime:  "09:00",
		Timezone:        "America/Chicago",
		DurationMinutes: 50,
	})
	if err != nil {
		t.Fatalf("BuildRule returned error: %v", err)
	}
	if len(preview.Preview) != 3 {
		t.Fatalf("expected three preview instants, got %d", len(preview.Preview))
	}
	// Monday 2025-01-06 09:00 CST is 15:00 UTC and follows the factory clock.
	want := time.Date(2025, time.January, 6, 15, 0, 0, 0, time.UTC)
	if !preview.Preview[0].Equal(want) {
		t.Fatalf("expected first instant %v, got %v", want, preview.Preview[0])
	}
}
