package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/clinic-scheduler/internal/persistence"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a resource with the same identity is already stored.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInvalidRecurrenceRule is returned for rule text that cannot be parsed or is unsupported.
	ErrInvalidRecurrenceRule = errors.New("application: invalid recurrence rule")
	// ErrInvalidTimeInput is returned for malformed dates, clock times, or timezone names.
	ErrInvalidTimeInput = errors.New("application: invalid time input")
	// ErrOccurrenceFinalized is returned when a terminal occurrence would be modified.
	ErrOccurrenceFinalized = errors.New("application: occurrence is finalized")
	// ErrStorage wraps unexpected persistence failures.
	ErrStorage = errors.New("application: storage failure")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func fieldError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}

func invalidTime(field string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrInvalidTimeInput, field, cause)
}

func invalidRule(cause error) error {
	return fmt.Errorf("%w: %v", ErrInvalidRecurrenceRule, cause)
}

// mapRepoError translates repository failures into application errors.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fieldError("series", "stored values violate a constraint")
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return fieldError("series_id", "related series is missing")
	case errors.Is(err, ErrStorage):
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidRecurrenceRule):
		return "invalid_recurrence_rule"
	case errors.Is(err, ErrInvalidTimeInput):
		return "invalid_time_input"
	case errors.Is(err, ErrOccurrenceFinalized):
		return "occurrence_finalized"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	return "unexpected"
}
