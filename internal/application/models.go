package application

import (
	"strings"
	"time"

	"github.com/example/clinic-scheduler/internal/timeconv"
)

// OccurrenceStatus is the lifecycle state of an occurrence.
type OccurrenceStatus string

const (
	// StatusScheduled is the initial state of every generated occurrence.
	StatusScheduled OccurrenceStatus = "scheduled"
	// StatusDocumented marks an occurrence whose session notes were completed.
	StatusDocumented OccurrenceStatus = "documented"
	// StatusCancelled marks an occurrence cancelled in time or by deactivation.
	StatusCancelled OccurrenceStatus = "cancelled"
	// StatusLateCancel marks a cancellation inside the clinic's notice period.
	StatusLateCancel OccurrenceStatus = "late_cancel"
	// StatusNoShow marks an occurrence the client did not attend.
	StatusNoShow OccurrenceStatus = "noshow"
)

// ParseOccurrenceStatus validates a status string.
func ParseOccurrenceStatus(value string) (OccurrenceStatus, bool) {
	status := OccurrenceStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusScheduled, StatusDocumented, StatusCancelled, StatusLateCancel, StatusNoShow:
		return status, true
	}
	return "", false
}

// Terminal reports whether no further transitions are allowed from s.
func (s OccurrenceStatus) Terminal() bool {
	switch s {
	case StatusDocumented, StatusCancelled, StatusLateCancel, StatusNoShow:
		return true
	}
	return false
}

// Series is a recurring appointment definition anchored at a local start.
type Series struct {
	ID              string
	TenantID        string
	ClientID        string
	StaffID         string
	ServiceID       string
	StartDate       timeconv.Date
	LocalStartTime  timeconv.Clock
	Timezone        string
	DurationMinutes int
	RRule           string
	UntilDate       *timeconv.Date
	MaxOccurrences  *int
	Active          bool
	// LastGeneratedUntil is the UTC instant through which occurrences exist.
	LastGeneratedUntil *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Duration returns the appointment length.
func (s Series) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Occurrence is a concrete appointment, optionally linked to a series.
type Occurrence struct {
	ID          string
	TenantID    string
	SeriesID    *string
	ClientID    string
	StaffID     string
	ServiceID   string
	StartAt     time.Time
	EndAt       time.Time
	Status      OccurrenceStatus
	Title       *string
	Description *string
	CostCents   *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BelongsTo reports whether the occurrence is linked to seriesID.
func (o Occurrence) BelongsTo(seriesID string) bool {
	return o.SeriesID != nil && *o.SeriesID == seriesID
}

// SeriesInput captures caller provided fields for a new series.
type SeriesInput struct {
	TenantID        string
	ClientID        string
	StaffID         string
	ServiceID       string
	StartDate       string
	LocalStartTime  string
	Timezone        string
	DurationMinutes int
	RRule           string
	UntilDate       *string
	MaxOccurrences  *int
	// MonthsAhead overrides the configured horizon of the initial generation.
	MonthsAhead int
}

// CreateSeriesResult is the stored series plus its initial generation.
type CreateSeriesResult struct {
	Series     Series
	Generation GenerationResult
}

// EditScope selects which occurrences a series edit applies to.
type EditScope string

const (
	// ScopeThisOnly detaches and moves a single occurrence.
	ScopeThisOnly EditScope = "this_only"
	// ScopeThisAndFuture splits the series at an occurrence.
	ScopeThisAndFuture EditScope = "this_and_future"
	// ScopeEntireSeries regenerates every scheduled occurrence.
	ScopeEntireSeries EditScope = "entire_series"
)

// SeriesEdit carries the fields a caller wants to change. Nil fields keep
// their stored value. An empty UntilDate clears the until date and a zero
// MaxOccurrences clears the cap.
type SeriesEdit struct {
	StartDate       *string
	LocalStartTime  *string
	DurationMinutes *int
	Timezone        *string
	RRule           *string
	UntilDate       *string
	MaxOccurrences  *int
}

// UpdateSeriesParams wraps an edit with its scope.
type UpdateSeriesParams struct {
	SeriesID     string
	Scope        EditScope
	OccurrenceID string
	Edit         SeriesEdit
}

// UpdateSeriesResult describes what an edit changed.
type UpdateSeriesResult struct {
	Series Series
	// Occurrence is the detached occurrence of a this-only edit.
	Occurrence *Occurrence
	// Regenerated is set when the edit replaced scheduled occurrences.
	Regenerated *GenerationResult
	Removed     int
	Warnings    []ConflictWarning
}

// SetActiveResult describes the effect of activating or deactivating a series.
type SetActiveResult struct {
	Series     Series
	Cancelled  int
	Generation *GenerationResult
}

// ListOccurrencesParams narrows an occurrence listing. Nil bounds are open.
type ListOccurrencesParams struct {
	SeriesID string
	From     *time.Time
	To       *time.Time
}

// UpdateOccurrenceStatusParams requests a status transition.
type UpdateOccurrenceStatusParams struct {
	OccurrenceID string
	Status       string
}

// ConflictWarning describes a double-booking that callers should surface.
type ConflictWarning struct {
	OccurrenceID string
	Type         string
	StaffID      string
	ClientID     string
}
