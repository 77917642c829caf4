package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/clinic-scheduler/internal/recurrence"
	"github.com/example/clinic-scheduler/internal/timeconv"
)

// RegenerationInstruction tells the generator how to bring stored
// occurrences in line with an edited series.
type RegenerationInstruction struct {
	SeriesID string
	Scope    EditScope
	// Anchor is the UTC instant of the edited series' first wall-clock value.
	Anchor time.Time
	// SplitAt is the first instant affected by a this-and-future edit.
	SplitAt time.Time
	// OccurrenceID is the edited occurrence for this-only and this-and-future.
	OccurrenceID string
	// OriginalStart is the instant a this-only edit detaches from the series.
	OriginalStart time.Time
	// MoveTo is the new slot of a this-only edit.
	MoveTo  *recurrence.Instance
	Changes []string
}

// DetectReschedule applies edit to stored and compares the scheduling
// fields. It returns the edited series and, when any scheduling field
// changed, the instruction the generator must carry out. It performs no
// writes; every invalid value is reported before the caller changes state.
func DetectReschedule(stored Series, edit SeriesEdit, scope EditScope, target *Occurrence, policy timeconv.Policy) (Series, *RegenerationInstruction, error) {
	proposed, err := applyEdit(stored, edit)
	if err != nil {
		return Series{}, nil, err
	}

	changes := schedulingChanges(stored, proposed)
	if len(changes) == 0 {
		return proposed, nil, nil
	}

	loc, err := timeconv.LoadZone(proposed.Timezone)
	if err != nil {
		return Series{}, nil, invalidTime("timezone", err)
	}
	anchor, err := timeconv.ResolveIn(proposed.StartDate, proposed.LocalStartTime, loc, policy)
	if err != nil {
		return Series{}, nil, invalidTime("start", err)
	}

	if scope == "" {
		scope = ScopeEntireSeries
	}
	instruction := &RegenerationInstruction{
		SeriesID: stored.ID,
		Scope:    scope,
		Anchor:   anchor,
		Changes:  changes,
	}

	switch scope {
	case ScopeEntireSeries:
		return proposed, instruction, nil

	case ScopeThisAndFuture:
		if err := requireTarget(stored, target); err != nil {
			return Series{}, nil, err
		}
		instruction.OccurrenceID = target.ID
		instruction.SplitAt = target.StartAt
		return proposed, instruction, nil

	case ScopeThisOnly:
		if err := requireTarget(stored, target); err != nil {
			return Series{}, nil, err
		}
		if target.Status != StatusScheduled {
			return Series{}, nil, ErrOccurrenceFinalized
		}
		// The occurrence keeps its own local date unless the edit moved the date.
		storedLoc, err := timeconv.LoadZone(stored.Timezone)
		if err != nil {
			return Series{}, nil, invalidTime("timezone", err)
		}
		day := timeconv.DateOf(target.StartAt.In(storedLoc))
		if proposed.StartDate != stored.StartDate {
			day = proposed.StartDate
		}
		start, err := timeconv.ResolveIn(day, proposed.LocalStartTime, loc, policy)
		if err != nil {
			return Series{}, nil, invalidTime("start", err)
		}
		instruction.OccurrenceID = target.ID
		instruction.OriginalStart = target.StartAt
		instruction.MoveTo = &recurrence.Instance{Start: start, End: start.Add(proposed.Duration())}
		// A this-only edit leaves the series definition as stored.
		return stored, instruction, nil
	}

	return Series{}, nil, fieldError("scope", fmt.Sprintf("unknown scope %q", scope))
}

func requireTarget(stored Series, target *Occurrence) error {
	if target == nil {
		return fieldError("occurrence_id", "occurrence is required for this scope")
	}
	if !target.BelongsTo(stored.ID) {
		return fieldError("occurrence_id", "occurrence does not belong to the series")
	}
	return nil
}

// applyEdit validates the edit and returns the series with it applied.
func applyEdit(stored Series, edit SeriesEdit) (Series, error) {
	next := stored

	if edit.StartDate != nil {
		d, err := timeconv.ParseDate(*edit.StartDate)
		if err != nil {
			return Series{}, invalidTime("start_date", err)
		}
		next.StartDate = d
	}
	if edit.LocalStartTime != nil {
		c, err := timeconv.ParseClock(*edit.LocalStartTime)
		if err != nil {
			return Series{}, invalidTime("local_start_time", err)
		}
		next.LocalStartTime = c
	}
	if edit.Timezone != nil {
		if _, err := timeconv.LoadZone(*edit.Timezone); err != nil {
			return Series{}, invalidTime("timezone", err)
		}
		next.Timezone = strings.TrimSpace(*edit.Timezone)
	}
	if edit.RRule != nil {
		if _, err := recurrence.ParseRule(*edit.RRule); err != nil {
			return Series{}, invalidRule(err)
		}
		next.RRule = strings.TrimSpace(*edit.RRule)
	}
	if edit.UntilDate != nil {
		if strings.TrimSpace(*edit.UntilDate) == "" {
			next.UntilDate = nil
		} else {
			d, err := timeconv.ParseDate(*edit.UntilDate)
			if err != nil {
				return Series{}, invalidTime("until_date", err)
			}
			next.UntilDate = &d
		}
	}

	vErr := &ValidationError{}
	if edit.DurationMinutes != nil {
		if *edit.DurationMinutes <= 0 {
			vErr.add("duration_minutes", "duration must be positive")
		}
		next.DurationMinutes = *edit.DurationMinutes
	}
	if edit.MaxOccurrences != nil {
		switch {
		case *edit.MaxOccurrences < 0:
			vErr.add("max_occurrences", "max occurrences cannot be negative")
		case *edit.MaxOccurrences == 0:
			next.MaxOccurrences = nil
		default:
			n := *edit.MaxOccurrences
			next.MaxOccurrences = &n
		}
	}
	if next.UntilDate != nil && next.UntilDate.Before(next.StartDate) {
		vErr.add("until_date", "until date must not be before start date")
	}
	if vErr.HasErrors() {
		return Series{}, vErr
	}
	return next, nil
}

func schedulingChanges(before, after Series) []string {
	var changes []string
	if before.StartDate != after.StartDate {
		changes = append(changes, "start_date")
	}
	if before.LocalStartTime != after.LocalStartTime {
		changes = append(changes, "local_start_time")
	}
	if before.DurationMinutes != after.DurationMinutes {
		changes = append(changes, "duration_minutes")
	}
	if before.Timezone != after.Timezone {
		changes = append(changes, "timezone")
	}
	if !strings.EqualFold(before.RRule, after.RRule) {
		changes = append(changes, "rrule")
	}
	if !sameDate(before.UntilDate, after.UntilDate) {
		changes = append(changes, "until_date")
	}
	return changes
}

func sameDate(a, b *timeconv.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
