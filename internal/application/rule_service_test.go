package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/clinic-scheduler/internal/recurrence"
)

func mwfPreviewRequest() RulePreviewRequest {
	return RulePreviewRequest{
		Config: recurrence.Config{
			Frequency: recurrence.FrequencyWeekly,
			Interval:  1,
			Weekdays:  []time.Weekday{time.Friday, time.Monday, time.Wednesday},
		},
		StartDate:       "2025-01-06",
		LocalStartTime:  "09:00",
		Timezone:        "America/Chicago",
		DurationMinutes: 50,
	}
}

func TestRuleService_BuildRule(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.January, 1, 0, 0, 42, 0, time.UTC)
	service := NewRuleService(nil, func() time.Time { return now }, nil)

	preview, err := service.BuildRule(context.Background(), mwfPreviewRequest())
	require.NoError(t, err)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,WE,FR", preview.Rule)
	require.Len(t, preview.Preview, 3)
	assert.True(t, preview.Preview[0].Equal(januaryAt(6)))
	assert.True(t, preview.Preview[1].Equal(januaryAt(8)))
	assert.True(t, preview.Preview[2].Equal(januaryAt(10)))

	// A second request in the same minute is served from the cache.
	preview.Preview[0] = time.Time{}
	cached, err := service.BuildRule(context.Background(), mwfPreviewRequest())
	require.NoError(t, err)
	assert.True(t, cached.Preview[0].Equal(januaryAt(6)))
	assert.Len(t, service.cache.entries, 1)
}

func TestRuleService_BuildRule_PreviewStartsAtNow(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.January, 9, 0, 0, 0, 0, time.UTC)
	service := NewRuleService(nil, func() time.Time { return now }, nil)

	req := mwfPreviewRequest()
	req.Config = recurrence.Config{
		Frequency:      recurrence.FrequencyMonthly,
		Interval:       1,
		MonthlyPattern: recurrence.MonthlyByNthWeekday,
		Ordinal:        1,
		OrdinalWeekday: time.Monday,
	}

	preview, err := service.BuildRule(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "FREQ=MONTHLY;INTERVAL=1;BYDAY=1MO", preview.Rule)
	require.Len(t, preview.Preview, 3)
	assert.True(t, preview.Preview[0].Equal(time.Date(2025, time.February, 3, 15, 0, 0, 0, time.UTC)))
	assert.True(t, preview.Preview[2].Equal(time.Date(2025, time.April, 7, 14, 0, 0, 0, time.UTC)))
}

func TestRuleService_BuildRule_Errors(t *testing.T) {
	t.Parallel()

	service := NewRuleService(nil, func() time.Time { return newYear2025 }, nil)

	noDays := mwfPreviewRequest()
	noDays.Config.Weekdays = nil
	_, err := service.BuildRule(context.Background(), noDays)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "weekdays")

	badZone := mwfPreviewRequest()
	badZone.Timezone = "Pacific/Nowhere"
	_, err = service.BuildRule(context.Background(), badZone)
	assert.ErrorIs(t, err, ErrInvalidTimeInput)

	badDate := mwfPreviewRequest()
	badDate.StartDate = "06/01/2025"
	_, err = service.BuildRule(context.Background(), badDate)
	assert.ErrorIs(t, err, ErrInvalidTimeInput)
}

func TestRuleService_ParseRule(t *testing.T) {
	t.Parallel()

	service := NewRuleService(nil, nil, nil)

	config := service.ParseRule("FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH")
	assert.Equal(t, recurrence.FrequencyWeekly, config.Frequency)
	assert.Equal(t, 2, config.Interval)
	assert.Equal(t, []time.Weekday{time.Tuesday, time.Thursday}, config.Weekdays)

	assert.Equal(t, recurrence.DefaultConfig(), service.ParseRule("not a rule"))
}
