// Package timeconv converts between a local wall-clock date/time in a named
// IANA timezone and a UTC instant.
//
// Every function takes the timezone explicitly. The process-local zone is
// never consulted: an empty zone name or "Local" is rejected.
package timeconv

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidInput is returned for malformed dates, clock times or zone names.
	ErrInvalidInput = errors.New("timeconv: invalid input")
	// ErrNonexistentLocalTime is returned when the wall-clock value falls in a
	// DST gap and the policy is GapReject.
	ErrNonexistentLocalTime = errors.New("timeconv: local time does not exist in zone")
)

const (
	dateLayout = "2006-01-02"
	// transitionProbe is how far either side of a wall-clock value the zone
	// offsets are sampled to detect a gap or an overlap.
	transitionProbe = 26 * time.Hour
)

// Date is a calendar date without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, value)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// AddDays returns the date n days after d.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

// Weekday returns the day of the week of d.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// ParseClock parses HH:MM or HH:MM:SS.
func ParseClock(value string) (Clock, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, value); err == nil {
			return Clock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return Clock{}, fmt.Errorf("%w: time %q must be HH:MM or HH:MM:SS", ErrInvalidInput, value)
}

// ClockOf returns the time of day of t in t's own location.
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

// String formats the clock as HH:MM, or HH:MM:SS when seconds are set.
func (c Clock) String() string {
	if c.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
	}
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// LoadZone resolves an IANA zone name.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return nil, fmt.Errorf("%w: timezone must be an explicit IANA name", ErrInvalidInput)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidInput, name)
	}
	return loc, nil
}

// Floating returns the wall-clock value as a UTC-located time carrying the
// same fields. It is used to evaluate recurrence rules without DST effects.
func Floating(d Date, c Clock) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, c.Second, 0, time.UTC)
}

// LocalToUTC resolves the wall-clock value d c in zone to a UTC instant.
func LocalToUTC(d Date, c Clock, zone string, policy Policy) (time.Time, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return time.Time{}, err
	}
	return ResolveIn(d, c, loc, policy)
}

// ParseLocal parses date and clock strings and resolves them in zone.
func ParseLocal(date, clock, zone string, policy Policy) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	c, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return LocalToUTC(d, c, zone, policy)
}

// ResolveIn is LocalToUTC for an already loaded location.
func ResolveIn(d Date, c Clock, loc *time.Location, policy Policy) (time.Time, error) {
	if loc == nil {
		return time.Time{}, fmt.Errorf("%w: location is required", ErrInvalidInput)
	}
	if err := validate(d, c); err != nil {
		return time.Time{}, err
	}

	wall := Floating(d, c)
	before := offsetAt(wall.Add(-transitionProbe), loc)
	after := offsetAt(wall.Add(transitionProbe), loc)

	candidates := make([]time.Time, 0, 2)
	for _, offset := range uniqueOffsets(before, after) {
		instant := wall.Add(-time.Duration(offset) * time.Second)
		local := instant.In(loc)
		if DateOf(local) == d && ClockOf(local) == c {
			candidates = append(candidates, instant.UTC())
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 2:
		earlier, later := candidates[0], candidates[1]
		if later.Before(earlier) {
			earlier, later = later, earlier
		}
		if policy.Overlap == OverlapLater {
			return later, nil
		}
		return earlier, nil
	}

	if policy.Gap == GapReject {
		return time.Time{}, fmt.Errorf("%w: %s %s in %s", ErrNonexistentLocalTime, d, c, loc)
	}
	// Reading the wall value with the pre-transition offset moves it forward by
	// the length of the gap, e.g. 02:30 becomes 03:30 on a one hour jump.
	return wall.Add(-time.Duration(before) * time.Second).UTC(), nil
}

// UTCToLocal returns the wall-clock date and time of instant in zone.
func UTCToLocal(instant time.Time, zone string) (Date, Clock, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return Date{}, Clock{}, err
	}
	local := instant.In(loc)
	return DateOf(local), ClockOf(local), nil
}

// EndOfDay returns the last second of d in loc. A midnight that falls in a
// DST gap is shifted forward regardless of the caller's policy.
func EndOfDay(d Date, loc *time.Location) (time.Time, error) {
	next, err := ResolveIn(d.AddDays(1), Clock{}, loc, Policy{Gap: GapShiftForward})
	if err != nil {
		return time.Time{}, err
	}
	return next.Add(-time.Second), nil
}

func offsetAt(instant time.Time, loc *time.Location) int {
	_, offset := instant.In(loc).Zone()
	return offset
}

func uniqueOffsets(a, b int) []int {
	if a == b {
		return []int{a}
	}
	return []int{a, b}
}

func validate(d Date, c Clock) error {
	check := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	if d.Month < time.January || d.Month > time.December || DateOf(check) != d {
		return fmt.Errorf("%w: date %s does not exist", ErrInvalidInput, d)
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 || c.Second < 0 || c.Second > 59 {
		return fmt.Errorf("%w: time %02d:%02d:%02d is out of range", ErrInvalidInput, c.Hour, c.Minute, c.Second)
	}
	return nil
}
