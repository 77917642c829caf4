package calendarsync

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/clinic-scheduler/internal/application"
)

func TestSeriesFeed(t *testing.T) {
	t.Parallel()

	seriesID := "series-1"
	title := "Weekly session"
	start := time.Date(2025, time.January, 6, 15, 0, 0, 0, time.UTC)
	occurrences := []application.Occurrence{
		{ID: "occ-1", SeriesID: &seriesID, StartAt: start, EndAt: start.Add(50 * time.Minute), Status: application.StatusDocumented, Title: &title},
		{ID: "occ-2", SeriesID: &seriesID, StartAt: start.AddDate(0, 0, 2), EndAt: start.AddDate(0, 0, 2).Add(50 * time.Minute), Status: application.StatusLateCancel},
		{ID: "occ-3", SeriesID: &seriesID, StartAt: start.AddDate(0, 0, 4), EndAt: start.AddDate(0, 0, 4).Add(50 * time.Minute), Status: application.StatusScheduled},
	}
	series := application.Series{ID: seriesID, Timezone: "America/Chicago"}

	feed := SeriesFeed(series, occurrences, start)
	assert.Contains(t, feed, "METHOD:PUBLISH")

	cal, err := ical.ParseCalendar(strings.NewReader(feed))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 3)

	assert.Equal(t, "occ-1@clinic-scheduler", events[0].Id())
	assert.Equal(t, title, events[0].GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, string(ical.ObjectStatusConfirmed), events[0].GetProperty(ical.ComponentPropertyStatus).Value)
	assert.Equal(t, string(ical.ObjectStatusCancelled), events[1].GetProperty(ical.ComponentPropertyStatus).Value)
	assert.Equal(t, "Appointment", events[2].GetProperty(ical.ComponentPropertySummary).Value)

	end, err := events[2].GetEndAt()
	require.NoError(t, err)
	assert.True(t, end.Equal(occurrences[2].EndAt))
}

func TestEventCalendar_MethodFollowsKind(t *testing.T) {
	t.Parallel()

	stamp := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.Contains(t, EventCalendar(testEvent("a", application.EventCreated), stamp), "METHOD:REQUEST")
	assert.Contains(t, EventCalendar(testEvent("a", application.EventUpdated), stamp), "METHOD:REQUEST")
	assert.Contains(t, EventCalendar(testEvent("a", application.EventDeleted), stamp), "METHOD:CANCEL")
}
