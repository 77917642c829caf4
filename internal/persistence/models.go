package persistence

import "time"

// Occurrence status values as stored in the occurrences.status column.
const (
	StatusScheduled  = "scheduled"
	StatusDocumented = "documented"
	StatusCancelled  = "cancelled"
	StatusLateCancel = "late_cancel"
	StatusNoShow     = "noshow"
)

// Series is a recurring appointment definition.
type Series struct {
	ID              string
	TenantID        string
	ClientID        string
	StaffID         string
	ServiceID       string
	StartDate       string // YYYY-MM-DD
	LocalStartTime  string // HH:MM or HH:MM:SS
	Timezone        string
	DurationMinutes int
	RRule           string
	UntilDate       *string
	MaxOccurrences  *int
	Active          bool
	// LastGeneratedUntil is the generation watermark in UTC.
	LastGeneratedUntil *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
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
	Status      string
	Title       *string
	Description *string
	CostCents   *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SeriesExclusion records an instant of a series that must not be generated.
type SeriesExclusion struct {
	SeriesID  string
	StartAt   time.Time
	CreatedAt time.Time
}
