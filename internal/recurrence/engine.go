package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/example/clinic-scheduler/internal/timeconv"
)

// DefaultSafetyCap bounds a single expansion regardless of rule density or
// the caller supplied limit.
const DefaultSafetyCap = 5000

// floatingMargin widens the floating evaluation window so that instants whose
// UTC offset differs from the window bounds are still considered before the
// exact UTC filter is applied.
const floatingMargin = 27 * time.Hour

var (
	// ErrInvalidRule indicates the rule text cannot be parsed or is unsupported.
	ErrInvalidRule = errors.New("recurrence: invalid rule")
	// ErrInvalidWindow indicates the generation window is unbounded or inverted.
	ErrInvalidWindow = errors.New("recurrence: generation window requires ordered bounds")
	// ErrInvalidDuration indicates the appointment duration is invalid.
	ErrInvalidDuration = errors.New("recurrence: duration must be positive")
	// ErrInvalidDefinition indicates the anchor or location is missing.
	ErrInvalidDefinition = errors.New("recurrence: invalid definition")
)

// Definition is a recurrence anchored at a local wall-clock date and time.
type Definition struct {
	Rule      string
	StartDate timeconv.Date
	StartTime timeconv.Clock
	Location  *time.Location
	Duration  time.Duration
	// Exclusions are UTC instants that must not be produced.
	Exclusions []time.Time
}

// Window is an inclusive UTC range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Instance is one concrete appointment slot in UTC.
type Instance struct {
	Start time.Time
	End   time.Time
}

// Expansion is the result of evaluating a Definition over a Window.
type Expansion struct {
	Instances []Instance
	// Skipped counts wall-clock values dropped because they do not exist in
	// the zone and the gap policy rejects them.
	Skipped int
	// Truncated is set when more instances matched than the limit allowed.
	Truncated bool
}

// Engine expands recurrence rules into UTC instances.
type Engine struct {
	policy    timeconv.Policy
	safetyCap int
}

// NewEngine constructs an Engine resolving local values with policy.
func NewEngine(policy timeconv.Policy) *Engine {
	return &Engine{policy: policy, safetyCap: DefaultSafetyCap}
}

// WithSafetyCap returns a copy of the engine using limit as the hard cap.
func (e *Engine) WithSafetyCap(limit int) *Engine {
	clone := *e
	if limit > 0 {
		clone.safetyCap = limit
	}
	return &clone
}

// Policy returns the DST policy the engine applies.
func (e *Engine) Policy() timeconv.Policy {
	if e == nil {
		return timeconv.DefaultPolicy()
	}
	return e.policy
}

// Anchor returns the UTC instant of the definition's first wall-clock value.
func (e *Engine) Anchor(def Definition) (time.Time, error) {
	if def.Location == nil {
		return time.Time{}, fmt.Errorf("%w: location is required", ErrInvalidDefinition)
	}
	return timeconv.ResolveIn(def.StartDate, def.StartTime, def.Location, e.Policy())
}

// Expand enumerates the instances of def that start inside window, in
// ascending order, minus exclusions. A limit of zero or less means only the
// safety cap applies.
//
// The rule is evaluated in a floating wall-clock frame anchored at the
// definition's local start, so each instance keeps the local time of day
// across DST transitions. Every wall-clock value is then resolved in the
// definition's zone with the engine policy.
func (e *Engine) Expand(def Definition, window Window, limit int) (Expansion, error) {
	if e == nil {
		e = NewEngine(timeconv.DefaultPolicy())
	}
	if def.Location == nil {
		return Expansion{}, fmt.Errorf("%w: location is required", ErrInvalidDefinition)
	}
	if def.Duration <= 0 {
		return Expansion{}, ErrInvalidDuration
	}
	if window.Start.IsZero() || window.End.IsZero() || window.End.Before(window.Start) {
		return Expansion{}, ErrInvalidWindow
	}

	opt, err := ParseRule(def.Rule)
	if err != nil {
		return Expansion{}, err
	}
	if _, err := timeconv.ResolveIn(def.StartDate, def.StartTime, def.Location, timeconv.DefaultPolicy()); err != nil {
		return Expansion{}, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	opt.Dtstart = timeconv.Floating(def.StartDate, def.StartTime)
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return Expansion{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	excluded := make(map[int64]struct{}, len(def.Exclusions))
	for _, ex := range def.Exclusions {
		excluded[ex.Unix()] = struct{}{}
	}

	after := floatingOf(window.Start, def.Location).Add(-floatingMargin)
	before := floatingOf(window.End, def.Location).Add(floatingMargin)

	allowed := e.safetyCap
	if allowed <= 0 {
		allowed = DefaultSafetyCap
	}
	if limit > 0 && limit < allowed {
		allowed = limit
	}

	var result Expansion
	seen := make(map[int64]struct{})
	instances := make([]Instance, 0)
	for _, wall := range rule.Between(after, before, true) {
		start, err := timeconv.ResolveIn(timeconv.DateOf(wall), timeconv.ClockOf(wall), def.Location, e.policy)
		if errors.Is(err, timeconv.ErrNonexistentLocalTime) {
			if inFloatingWindow(wall, window, def.Location) {
				result.Skipped++
			}
			continue
		}
		if err != nil {
			return Expansion{}, err
		}
		if start.Before(window.Start) || start.After(window.End) {
			continue
		}
		key := start.Unix()
		if _, ok := excluded[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		instances = append(instances, Instance{Start: start, End: start.Add(def.Duration)})
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Start.Before(instances[j].Start)
	})
	if len(instances) > allowed {
		instances = instances[:allowed]
		result.Truncated = true
	}
	result.Instances = instances
	return result, nil
}

// ParseRule parses rule text, accepting an optional "RRULE:" prefix. Only
// daily and coarser frequencies are supported.
func ParseRule(text string) (rrule.ROption, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) >= len("RRULE:") && strings.EqualFold(trimmed[:len("RRULE:")], "RRULE:") {
		trimmed = trimmed[len("RRULE:"):]
	}
	if trimmed == "" {
		return rrule.ROption{}, fmt.Errorf("%w: rule is empty", ErrInvalidRule)
	}

	opt, err := rrule.StrToROption(strings.ToUpper(trimmed))
	if err != nil {
		return rrule.ROption{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if !strings.Contains(strings.ToUpper(trimmed), "FREQ=") {
		return rrule.ROption{}, fmt.Errorf("%w: FREQ is required", ErrInvalidRule)
	}
	switch opt.Freq {
	case rrule.YEARLY, rrule.MONTHLY, rrule.WEEKLY, rrule.DAILY:
	default:
		return rrule.ROption{}, fmt.Errorf("%w: frequency %v is not supported", ErrInvalidRule, opt.Freq)
	}
	if opt.Interval < 0 {
		return rrule.ROption{}, fmt.Errorf("%w: interval must be positive", ErrInvalidRule)
	}
	if opt.Interval == 0 {
		opt.Interval = 1
	}
	return *opt, nil
}

func floatingOf(instant time.Time, loc *time.Location) time.Time {
	local := instant.In(loc)
	return timeconv.Floating(timeconv.DateOf(local), timeconv.ClockOf(local))
}

func inFloatingWindow(wall time.Time, window Window, loc *time.Location) bool {
	return !wall.Before(floatingOf(window.Start, loc)) && !wall.After(floatingOf(window.End, loc))
}
