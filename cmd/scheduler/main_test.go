package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/clinic-scheduler/internal/application"
	"github.com/example/clinic-scheduler/internal/config"
	"github.com/example/clinic-scheduler/internal/persistence"
	"github.com/example/clinic-scheduler/internal/testfixtures"
	"github.com/example/clinic-scheduler/internal/timeconv"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSeriesRepositoryAdapter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	repo := newSeriesRepositoryAdapter(harness.Series)

	series := testfixtures.NewSeriesFixture(
		testfixtures.WithSeriesStart("2025-03-03", "08:30:15", "Europe/Berlin"),
		testfixtures.WithSeriesUntil("2025-06-30"),
		testfixtures.WithSeriesMaxOccurrences(12),
	).Application()
	require.NoError(t, repo.CreateSeries(ctx, series))

	stored, err := repo.GetSeries(ctx, series.ID)
	require.NoError(t, err)
	assert.Equal(t, series.StartDate, stored.StartDate)
	assert.Equal(t, timeconv.Clock{Hour: 8, Minute: 30, Second: 15}, stored.LocalStartTime)
	require.NotNil(t, stored.UntilDate)
	assert.Equal(t, "2025-06-30", stored.UntilDate.String())
	require.NotNil(t, stored.MaxOccurrences)
	assert.Equal(t, 12, *stored.MaxOccurrences)
	assert.Nil(t, stored.LastGeneratedUntil)

	watermark := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.AdvanceWatermark(ctx, series.ID, watermark, watermark))
	active, err := repo.ListActiveSeries(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.NotNil(t, active[0].LastGeneratedUntil)
	assert.True(t, active[0].LastGeneratedUntil.Equal(watermark))

	excluded := time.Date(2025, time.March, 10, 7, 30, 15, 0, time.UTC)
	require.NoError(t, repo.AddExclusion(ctx, series.ID, excluded, watermark))
	exclusions, err := repo.ListExclusions(ctx, series.ID)
	require.NoError(t, err)
	require.Len(t, exclusions, 1)
	assert.True(t, exclusions[0].Equal(excluded))

	_, err = repo.GetSeries(ctx, "absent")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestOccurrenceRepositoryAdapter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	series := testfixtures.NewSeriesFixture()
	harness.SeedSeries(t, series)
	repo := newOccurrenceRepositoryAdapter(harness.Occurrences)

	base := time.Date(2025, time.January, 6, 15, 0, 0, 0, time.UTC)
	scheduled := testfixtures.NewOccurrenceFixture(
		testfixtures.WithOccurrenceSeries(series.ID),
		testfixtures.WithOccurrenceWindow(base, 50*time.Minute),
		testfixtures.WithOccurrenceTitle("Intake"),
	).Application()
	noShow := testfixtures.NewOccurrenceFixture(
		testfixtures.WithOccurrenceSeries(series.ID),
		testfixtures.WithOccurrenceWindow(base.AddDate(0, 0, 2), 50*time.Minute),
		testfixtures.WithOccurrenceStatus(string(application.StatusNoShow)),
	).Application()

	for _, occurrence := range []application.Occurrence{scheduled, noShow} {
		inserted, err := repo.InsertOccurrence(ctx, occurrence)
		require.NoError(t, err)
		require.True(t, inserted)
	}

	fetched, err := repo.GetOccurrence(ctx, noShow.ID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusNoShow, fetched.Status)
	assert.True(t, fetched.BelongsTo(series.ID))

	from := base.Add(-time.Hour)
	list, err := repo.ListOccurrences(ctx, application.OccurrenceFilter{
		SeriesID:   series.ID,
		Statuses:   []application.OccurrenceStatus{application.StatusScheduled},
		StartsFrom: &from,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, scheduled.ID, list[0].ID)
	require.NotNil(t, list[0].Title)
	assert.Equal(t, "Intake", *list[0].Title)

	removed, err := repo.DeleteScheduledFrom(ctx, series.ID, base)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, scheduled.ID, removed[0].ID)

	count, err := repo.CountSeriesOccurrences(ctx, series.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestApp_SeriesLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)
	clock := testfixtures.NewClock(time.Time{})
	cfg := config.Default()

	app := newApp(cfg, harness.Storage, clock.NowFunc(), discardLogger())
	require.NoError(t, app.dispatcher.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, app.shutdown(ctx))
	})

	server := httptest.NewServer(app.handler)
	t.Cleanup(server.Close)

	body := `{
		"tenant_id": "tenant-1",
		"client_id": "client-1",
		"staff_id": "staff-1",
		"service_id": "service-1",
		"start_date": "2025-01-06",
		"local_start_time": "09:00",
		"timezone": "America/Chicago",
		"duration_minutes": 50,
		"rrule": "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,WE,FR",
		"until_date": "2025-01-17"
	}`
	resp, err := http.Post(server.URL+"/series", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	var created struct {
		Series struct {
			ID     string `json:"id"`
			Active bool   `json:"active"`
		} `json:"series"`
		Generation struct {
			Created int `json:"created"`
		} `json:"generation"`
		GenerationError string `json:"generation_error"`
	}
	decodeResponse(t, resp, http.StatusCreated, &created)
	require.NotEmpty(t, created.Series.ID)
	assert.True(t, created.Series.Active)
	assert.Empty(t, created.GenerationError)
	assert.Equal(t, 6, created.Generation.Created)

	resp, err = http.Get(server.URL + "/series/" + created.Series.ID + "/occurrences")
	require.NoError(t, err)
	var listed struct {
		Occurrences []struct {
			StartAt time.Time `json:"start_at"`
			EndAt   time.Time `json:"end_at"`
			Status  string    `json:"status"`
		} `json:"occurrences"`
	}
	decodeResponse(t, resp, http.StatusOK, &listed)
	require.Len(t, listed.Occurrences, 6)
	first := time.Date(2025, time.January, 6, 15, 0, 0, 0, time.UTC)
	assert.True(t, listed.Occurrences[0].StartAt.Equal(first))
	assert.True(t, listed.Occurrences[0].EndAt.Equal(first.Add(50*time.Minute)))
	assert.Equal(t, "scheduled", listed.Occurrences[0].Status)

	resp, err = http.Post(server.URL+"/series/"+created.Series.ID+"/generate", "application/json", nil)
	require.NoError(t, err)
	var regenerated struct {
		Created int `json:"created"`
	}
	decodeResponse(t, resp, http.StatusOK, &regenerated)
	assert.Zero(t, regenerated.Created)

	resp, err = http.Post(server.URL+"/series/"+created.Series.ID+"/deactivate", "application/json", nil)
	require.NoError(t, err)
	var deactivated struct {
		Series struct {
			Active bool `json:"active"`
		} `json:"series"`
		Cancelled int `json:"cancelled"`
	}
	decodeResponse(t, resp, http.StatusOK, &deactivated)
	assert.False(t, deactivated.Series.Active)
	assert.Equal(t, 6, deactivated.Cancelled)
}

func decodeResponse(t *testing.T, resp *http.Response, status int, target any) {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, status, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}
