package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/clinic-scheduler/internal/timeconv"
)

func TestToRuleText(t *testing.T) {
	t.Parallel()

	until := timeconv.Date{Year: 2025, Month: time.June, Day: 30}
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "weekly weekdays are ordered from monday",
			cfg:  Config{Frequency: FrequencyWeekly, Interval: 1, Weekdays: []time.Weekday{time.Friday, time.Monday, time.Wednesday, time.Monday}},
			want: "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,WE,FR",
		},
		{
			name: "weekly with sunday and until",
			cfg:  Config{Frequency: FrequencyWeekly, Interval: 2, Weekdays: []time.Weekday{time.Sunday, time.Saturday}, Until: &until},
			want: "FREQ=WEEKLY;INTERVAL=2;BYDAY=SA,SU;UNTIL=20250630T235959Z",
		},
		{
			name: "monthly by day",
			cfg:  Config{Frequency: FrequencyMonthly, Interval: 1, MonthlyPattern: MonthlyByDay, MonthDay: 15},
			want: "FREQ=MONTHLY;INTERVAL=1;BYMONTHDAY=15",
		},
		{
			name: "monthly first monday",
			cfg:  Config{Frequency: FrequencyMonthly, Interval: 1, MonthlyPattern: MonthlyByNthWeekday, Ordinal: 1, OrdinalWeekday: time.Monday},
			want: "FREQ=MONTHLY;INTERVAL=1;BYDAY=1MO",
		},
		{
			name: "monthly last friday",
			cfg:  Config{Frequency: FrequencyMonthly, Interval: 3, MonthlyPattern: MonthlyByNthWeekday, Ordinal: OrdinalLast, OrdinalWeekday: time.Friday},
			want: "FREQ=MONTHLY;INTERVAL=3;BYDAY=-1FR",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ToRuleText(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuleTextRoundTrip(t *testing.T) {
	t.Parallel()

	until := timeconv.Date{Year: 2026, Month: time.January, Day: 31}
	configs := []Config{
		{Frequency: FrequencyWeekly, Interval: 1, Weekdays: []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		{Frequency: FrequencyWeekly, Interval: 4, Weekdays: []time.Weekday{time.Tuesday, time.Sunday}, Until: &until},
		{Frequency: FrequencyMonthly, Interval: 1, MonthlyPattern: MonthlyByDay, MonthDay: 31},
		{Frequency: FrequencyMonthly, Interval: 2, MonthlyPattern: MonthlyByNthWeekday, Ordinal: 4, OrdinalWeekday: time.Thursday, Until: &until},
		{Frequency: FrequencyMonthly, Interval: 1, MonthlyPattern: MonthlyByNthWeekday, Ordinal: OrdinalLast, OrdinalWeekday: time.Sunday},
	}

	for _, cfg := range configs {
		text, err := ToRuleText(cfg)
		require.NoError(t, err)

		parsed := FromRuleText(text)
		assert.Equal(t, cfg, parsed, text)

		again, err := ToRuleText(parsed)
		require.NoError(t, err)
		assert.Equal(t, text, again)
	}
}

func TestFromRuleText_FallsBackToDefault(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"not a rule",
		"FREQ=HOURLY;INTERVAL=1",
		"FREQ=YEARLY;BYMONTH=3",
		"FREQ=WEEKLY;COUNT=10;BYDAY=MO",
		"FREQ=MONTHLY;BYDAY=MO,TU",
		"FREQ=MONTHLY;BYMONTHDAY=-1",
		"FREQ=WEEKLY",
	}
	for _, input := range inputs {
		assert.Equal(t, DefaultConfig(), FromRuleText(input), input)
	}
}

func TestFromRuleText_AcceptsPrefix(t *testing.T) {
	t.Parallel()

	cfg := FromRuleText("RRULE:FREQ=WEEKLY;BYDAY=TH")
	assert.Equal(t, Config{Frequency: FrequencyWeekly, Interval: 1, Weekdays: []time.Weekday{time.Thursday}}, cfg)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"zero interval", Config{Frequency: FrequencyWeekly, Weekdays: []time.Weekday{time.Monday}}, "interval"},
		{"weekly without weekdays", Config{Frequency: FrequencyWeekly, Interval: 1}, "weekdays"},
		{"monthly without pattern", Config{Frequency: FrequencyMonthly, Interval: 1}, "monthly_pattern"},
		{"month day out of range", Config{Frequency: FrequencyMonthly, Interval: 1, MonthlyPattern: MonthlyByDay, MonthDay: 32}, "month_day"},
		{"fifth weekday", Config{Frequency: FrequencyMonthly, Interval: 1, MonthlyPattern: MonthlyByNthWeekday, Ordinal: 5}, "ordinal"},
		{"monthly with weekdays", Config{Frequency: FrequencyMonthly, Interval: 1, MonthlyPattern: MonthlyByDay, MonthDay: 1, Weekdays: []time.Weekday{time.Monday}}, "weekdays"},
		{"daily", Config{Frequency: "DAILY", Interval: 1}, "frequency"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRule)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestWithFrequency(t *testing.T) {
	t.Parallel()

	anchor := timeconv.Date{Year: 2025, Month: time.January, Day: 6}
	weekly := Config{Frequency: FrequencyWeekly, Interval: 2, Weekdays: []time.Weekday{time.Monday, time.Friday}}

	monthly := WithFrequency(weekly, FrequencyMonthly, anchor)
	assert.Equal(t, Config{Frequency: FrequencyMonthly, Interval: 2, MonthlyPattern: MonthlyByDay, MonthDay: 6}, monthly)
	require.NoError(t, monthly.Validate())

	back := WithFrequency(monthly, FrequencyWeekly, anchor)
	assert.Equal(t, Config{Frequency: FrequencyWeekly, Interval: 2, Weekdays: []time.Weekday{time.Monday}}, back)
	require.NoError(t, back.Validate())

	fallback := WithFrequency(weekly, FrequencyMonthly, timeconv.Date{})
	assert.Equal(t, 1, fallback.MonthDay)

	assert.Equal(t, weekly, WithFrequency(weekly, FrequencyWeekly, anchor))
}

func TestEngine_Preview(t *testing.T) {
	t.Parallel()

	engine := NewEngine(timeconv.DefaultPolicy())
	now := time.Date(2025, time.January, 7, 12, 0, 0, 0, time.UTC)

	got, err := engine.Preview(mwfDefinition(t), now)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(time.Date(2025, time.January, 8, 15, 0, 0, 0, time.UTC)))
	assert.True(t, got[2].Equal(time.Date(2025, time.January, 13, 15, 0, 0, 0, time.UTC)))

	ended := mwfDefinition(t)
	ended.Rule = "FREQ=WEEKLY;BYDAY=MO;UNTIL=20250105T235959Z"
	got, err = engine.Preview(ended, now)
	require.NoError(t, err)
	assert.Empty(t, got)

	yearly := mwfDefinition(t)
	yearly.Rule = "FREQ=YEARLY"
	got, err = engine.Preview(yearly, now)
	require.NoError(t, err)
	assert.Empty(t, got, "next yearly instance is beyond the preview horizon")
}
