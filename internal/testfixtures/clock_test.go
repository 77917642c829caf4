package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClockAtLocalWallTime(t *testing.T) {
	// 09:00 in Chicago on the first Monday after the March DST change is CDT.
	clock := NewClockAt("2025-03-10", "09:00", "America/Chicago")
	want := time.Date(2025, time.March, 10, 14, 0, 0, 0, time.UTC)
	if !clock.Now().Equal(want) {
		t.Fatalf("expected %v, got %v", want, clock.Now())
	}
	if clock.Now().Location() != time.UTC {
		t.Fatalf("expected the clock to report UTC, got %v", clock.Now().Location())
	}
}

func TestClockAdvance(t *testing.T) {
	start := time.Date(2025, time.January, 31, 15, 0, 0, 0, time.UTC)
	clock := NewClock(start)
	nowFn := clock.NowFunc()

	if got := clock.Advance(50 * time.Minute); !got.Equal(start.Add(50 * time.Minute)) {
		t.Fatalf("advance returned %v", got)
	}
	if got := nowFn(); !got.Equal(clock.Current()) {
		t.Fatalf("expected NowFunc to follow the clock, got %v", got)
	}

	clock.Set(start)
	// AddDate normalises 2025-02-31 to 2025-03-03.
	want := time.Date(2025, time.March, 3, 15, 0, 0, 0, time.UTC)
	if got := clock.AdvanceMonths(1); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
