package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/clinic-scheduler/internal/timeconv"
)

func chicago(t testing.TB) *time.Location {
	t.Helper()
	loc, err := timeconv.LoadZone("America/Chicago")
	require.NoError(t, err)
	return loc
}

func date(t testing.TB, value string) timeconv.Date {
	t.Helper()
	d, err := timeconv.ParseDate(value)
	require.NoError(t, err)
	return d
}

func mwfDefinition(t testing.TB) Definition {
	return Definition{
		Rule:      "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,WE,FR",
		StartDate: date(t, "2025-01-06"),
		StartTime: timeconv.Clock{Hour: 9},
		Location:  chicago(t),
		Duration:  50 * time.Minute,
	}
}

func TestEngine_Expand_WeeklyInStandardTime(t *testing.T) {
	t.Parallel()

	def := mwfDefinition(t)
	window := Window{
		Start: time.Date(2025, time.January, 1, 6, 0, 0, 0, time.UTC),
		End:   time.Date(2025, time.February, 1, 6, 0, 0, 0, time.UTC),
	}

	got, err := NewEngine(timeconv.DefaultPolicy()).Expand(def, window, 0)
	require.NoError(t, err)
	require.Len(t, got.Instances, 12)
	assert.False(t, got.Truncated)

	days := []int{6, 8, 10, 13, 15, 17, 20, 22, 24, 27, 29, 31}
	for i, inst := range got.Instances {
		want := time.Date(2025, time.January, days[i], 15, 0, 0, 0, time.UTC)
		assert.True(t, inst.Start.Equal(want), "instance %d: got %v want %v", i, inst.Start, want)
		assert.Equal(t, 50*time.Minute, inst.End.Sub(inst.Start))

		local := inst.Start.In(def.Location)
		assert.Equal(t, 9, local.Hour())
		_, offset := local.Zone()
		assert.Equal(t, -6*60*60, offset)
	}
}

func TestEngine_Expand_KeepsWallClockAcrossTransition(t *testing.T) {
	t.Parallel()

	def := Definition{
		Rule:      "FREQ=WEEKLY;INTERVAL=1;BYDAY=SA",
		StartDate: date(t, "2025-03-01"),
		StartTime: timeconv.Clock{Hour: 9},
		Location:  chicago(t),
		Duration:  time.Hour,
	}
	window := Window{
		Start: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC),
	}

	got, err := NewEngine(timeconv.DefaultPolicy()).Expand(def, window, 0)
	require.NoError(t, err)
	require.Len(t, got.Instances, 2)
	assert.True(t, got.Instances[0].Start.Equal(time.Date(2025, time.March, 1, 15, 0, 0, 0, time.UTC)))
	assert.True(t, got.Instances[1].Start.Equal(time.Date(2025, time.March, 8, 15, 0, 0, 0, time.UTC)))

	window.End = time.Date(2025, time.March, 16, 0, 0, 0, 0, time.UTC)
	got, err = NewEngine(timeconv.DefaultPolicy()).Expand(def, window, 0)
	require.NoError(t, err)
	require.Len(t, got.Instances, 3)
	// Daylight time starts on 2025-03-09, so 09:00 local is 14:00 UTC.
	assert.True(t, got.Instances[2].Start.Equal(time.Date(2025, time.March, 15, 14, 0, 0, 0, time.UTC)))
}

func TestEngine_Expand_GapPolicy(t *testing.T) {
	t.Parallel()

	def := Definition{
		Rule:      "FREQ=DAILY",
		StartDate: date(t, "2025-03-08"),
		StartTime: timeconv.Clock{Hour: 2, Minute: 30},
		Location:  chicago(t),
		Duration:  30 * time.Minute,
	}
	window := Window{
		Start: time.Date(2025, time.March, 8, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC),
	}

	shifted, err := NewEngine(timeconv.Policy{Gap: timeconv.GapShiftForward}).Expand(def, window, 0)
	require.NoError(t, err)
	require.Len(t, shifted.Instances, 3)
	assert.True(t, shifted.Instances[1].Start.Equal(time.Date(2025, time.March, 9, 8, 30, 0, 0, time.UTC)))
	assert.Zero(t, shifted.Skipped)

	rejected, err := NewEngine(timeconv.Policy{Gap: timeconv.GapReject}).Expand(def, window, 0)
	require.NoError(t, err)
	require.Len(t, rejected.Instances, 2)
	assert.Equal(t, 1, rejected.Skipped)
}

func TestEngine_Expand_ExclusionsAndUntil(t *testing.T) {
	t.Parallel()

	def := mwfDefinition(t)
	def.Rule = "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,WE,FR;UNTIL=20250115T235959Z"
	def.Exclusions = []time.Time{time.Date(2025, time.January, 8, 15, 0, 0, 0, time.UTC)}

	window := Window{
		Start: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
	got, err := NewEngine(timeconv.DefaultPolicy()).Expand(def, window, 0)
	require.NoError(t, err)

	starts := make([]int, 0, len(got.Instances))
	for _, inst := range got.Instances {
		starts = append(starts, inst.Start.Day())
	}
	assert.Equal(t, []int{6, 10, 13, 15}, starts)
}

func TestEngine_Expand_Bounded(t *testing.T) {
	t.Parallel()

	def := Definition{
		Rule:      "FREQ=DAILY",
		StartDate: date(t, "2025-01-01"),
		StartTime: timeconv.Clock{Hour: 8},
		Location:  chicago(t),
		Duration:  15 * time.Minute,
	}
	window := Window{
		Start: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2040, time.January, 1, 0, 0, 0, 0, time.UTC),
	}

	got, err := NewEngine(timeconv.DefaultPolicy()).WithSafetyCap(400).Expand(def, window, 0)
	require.NoError(t, err)
	assert.Len(t, got.Instances, 400)
	assert.True(t, got.Truncated)

	got, err = NewEngine(timeconv.DefaultPolicy()).Expand(def, window, 10)
	require.NoError(t, err)
	assert.Len(t, got.Instances, 10)
	assert.True(t, got.Truncated)
	for i := 1; i < len(got.Instances); i++ {
		assert.True(t, got.Instances[i].Start.After(got.Instances[i-1].Start))
	}
}

func TestEngine_Expand_Errors(t *testing.T) {
	t.Parallel()

	engine := NewEngine(timeconv.DefaultPolicy())
	window := Window{
		Start: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name   string
		mutate func(*Definition, *Window)
		want   error
	}{
		{"unparseable rule", func(d *Definition, _ *Window) { d.Rule = "FREQ=SOMETIMES" }, ErrInvalidRule},
		{"sub daily rule", func(d *Definition, _ *Window) { d.Rule = "FREQ=HOURLY" }, ErrInvalidRule},
		{"missing frequency", func(d *Definition, _ *Window) { d.Rule = "BYDAY=MO" }, ErrInvalidRule},
		{"zero duration", func(d *Definition, _ *Window) { d.Duration = 0 }, ErrInvalidDuration},
		{"inverted window", func(_ *Definition, w *Window) { w.End = w.Start.Add(-time.Second) }, ErrInvalidWindow},
		{"missing window end", func(_ *Definition, w *Window) { w.End = time.Time{} }, ErrInvalidWindow},
		{"missing location", func(d *Definition, _ *Window) { d.Location = nil }, ErrInvalidDefinition},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			def := mwfDefinition(t)
			w := window
			tt.mutate(&def, &w)
			_, err := engine.Expand(def, w, 0)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseRule_AcceptsPrefix(t *testing.T) {
	t.Parallel()

	opt, err := ParseRule("RRULE:FREQ=WEEKLY;BYDAY=TU")
	require.NoError(t, err)
	assert.Equal(t, 1, opt.Interval)
	require.Len(t, opt.Byweekday, 1)
	assert.Equal(t, time.Tuesday, toWeekday(opt.Byweekday[0].Day()))
}
