// Package core defines the fundamental types and errors for Dayflow.
package core

import (
	"errors"
	"fmt"
)

// Core errors that can occur across the system
var (
	// Storage errors
	ErrDatabaseNotFound = errors.New("database not found")
	ErrMigrationFailed  = errors.New("migration failed")
	ErrRecordNotFound   = errors.New("record not found")
	ErrDuplicateRecord  = errors.New("duplicate record")

	// Meeting errors
	ErrMeetingNotFound = errors.New("meeting request not found")
	ErrSlotNotFound    = errors.New("candidate slot not found")
	ErrNotOrganizer    = errors.New("meeting request not owned by caller")

	// ErrMeetingNotPending is the concurrency-conflict kind: a transition
	// was attempted on a request that is no longer pending. The losing
	// side of a confirm race sees this, never a corrupted state.
	ErrMeetingNotPending = errors.New("meeting request is not pending")

	// ErrSlotStale rejects confirmation of a slot whose snapshot no
	// longer fits the organizer's calendar.
	ErrSlotStale = errors.New("candidate slot conflicts with a newer calendar event")

	// Event errors
	ErrEventNotFound = errors.New("calendar event not found")

	// Connection errors
	ErrConnectionNotFound = errors.New("calendar connection not found")
	ErrProviderUnknown    = errors.New("unknown calendar provider")

	// ErrInvalidInput is the base of the validation kind; prefer
	// NewValidationError so the offending field travels with it.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError reports a rejected input together with the field that
// caused the rejection. It unwraps to ErrInvalidInput so callers can match
// the whole kind with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsNotFound reports whether err is any of the not-found kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrMeetingNotFound) ||
		errors.Is(err, ErrSlotNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrConnectionNotFound) ||
		errors.Is(err, ErrNotOrganizer)
}

// IsConflict reports whether err is the concurrency-conflict kind.
func IsConflict(err error) bool {
	return errors.Is(err, ErrMeetingNotPending) || errors.Is(err, ErrSlotStale)
}

// IsValidation reports whether err is the input-validation kind.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
