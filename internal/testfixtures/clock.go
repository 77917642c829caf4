package testfixtures

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/clinic-scheduler/internal/timeconv"
)

// Clock is a controllable UTC time source for generation and status tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start.UTC()}
}

// NewClockAt returns a clock at a local wall time, resolved with the default
// DST policy. It panics on malformed input.
func NewClockAt(date, clock, zone string) *Clock {
	instant, err := timeconv.ParseLocal(date, clock, zone, timeconv.DefaultPolicy())
	if err != nil {
		panic(fmt.Sprintf("testfixtures: clock at %s %s %s: %v", date, clock, zone, err))
	}
	return NewClock(instant)
}

// Now returns the current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Current is Now without implying progression.
func (c *Clock) Current() time.Time {
	return c.Now()
}

// NowFunc exposes Now for constructor injection. A nil clock yields time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t.UTC()
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// AdvanceMonths moves the clock by calendar months, as a horizon refresh would
// observe after that much real time.
func (c *Clock) AdvanceMonths(months int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.AddDate(0, months, 0)
	return c.current
}
