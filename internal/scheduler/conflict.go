package scheduler

import (
	"sort"
	"time"
)

// Appointment is the part of an occurrence that matters for double-booking.
type Appointment struct {
	ID       string
	StaffID  string
	ClientID string
	Start    time.Time
	End      time.Time
}

// ConflictType describes the type of conflict detected between appointments.
type ConflictType string

const (
	// ConflictTypeStaff indicates a staff member is double-booked.
	ConflictTypeStaff ConflictType = "staff"
	// ConflictTypeClient indicates a client is double-booked.
	ConflictTypeClient ConflictType = "client"
)

// Conflict details an overlapping appointment that callers can present to users.
type Conflict struct {
	WithAppointmentID string
	Type              ConflictType
	StaffID           string
	ClientID          string
}

// Overlaps reports whether the half-open intervals [a.Start, a.End) and
// [b.Start, b.End) intersect.
func Overlaps(a, b Appointment) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// DetectConflicts identifies conflicts for the candidate appointment against
// existing ones. The candidate itself is ignored when it appears in existing.
// Results are ordered by the start of the conflicting appointment.
func DetectConflicts(existing []Appointment, candidate Appointment) []Conflict {
	if !candidate.Start.Before(candidate.End) {
		return nil
	}

	ordered := make([]Appointment, 0, len(existing))
	for _, appointment := range existing {
		if appointment.ID != "" && appointment.ID == candidate.ID {
			continue
		}
		if Overlaps(appointment, candidate) {
			ordered = append(ordered, appointment)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Start.Equal(ordered[j].Start) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].Start.Before(ordered[j].Start)
	})

	var conflicts []Conflict
	for _, appointment := range ordered {
		if candidate.StaffID != "" && appointment.StaffID == candidate.StaffID {
			conflicts = append(conflicts, Conflict{
				WithAppointmentID: appointment.ID,
				Type:              ConflictTypeStaff,
				StaffID:           appointment.StaffID,
			})
		}
		if candidate.ClientID != "" && appointment.ClientID == candidate.ClientID {
			conflicts = append(conflicts, Conflict{
				WithAppointmentID: appointment.ID,
				Type:              ConflictTypeClient,
				ClientID:          appointment.ClientID,
			})
		}
	}
	return conflicts
}
