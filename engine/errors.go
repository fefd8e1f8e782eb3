/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Transport and storage layers wrap these with additional context.

ERROR CATEGORIES:
  1. Duplicate/conflict errors - idempotency and pointer races
  2. Validation errors - rejected before any state mutation
  3. Plan errors - seed-time integrity failures

USAGE:
  Callers classify with the helpers:

    if engine.IsRetryable(err) {
        // resubmit the whole event; safe under the idempotency guard
    }

SEE ALSO:
  - engine.go:   Maps ErrDuplicateCallback to OutcomeDuplicateCallback
  - progress.go: Returns ErrConcurrentModification on pointer CAS loss
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateCallback is returned when a callback id already has a
	// processed-callback record. This is expected behavior for retries.
	ErrDuplicateCallback = errors.New("duplicate callback id")

	// ErrAlreadyCompleted is returned when a completion row already
	// exists for a (user, coordinate). The unique index is the final
	// line of defense behind the idempotency guard.
	ErrAlreadyCompleted = errors.New("coordinate already completed")

	// ErrConcurrentModification is returned when the pointer
	// compare-and-swap lost a race with another writer.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrUserNotFound is returned when a referenced user doesn't exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when creating a user whose platform id
	// is already registered.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCoordinate is returned for a (month, day) outside the plan.
	ErrInvalidCoordinate = errors.New("invalid plan coordinate")

	// ErrInvalidEventKind is returned for a kind outside {read, break, nudge}.
	ErrInvalidEventKind = errors.New("invalid event kind")

	// ErrInvalidTimezone is returned for an unknown IANA timezone name.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrCoordinateRequired is returned when a read submission carries
	// no coordinate.
	ErrCoordinateRequired = errors.New("coordinate required")

	// ErrIncompletePlan is returned when a plan source does not yield
	// exactly 300 unique coordinates.
	ErrIncompletePlan = errors.New("plan must have exactly 300 unique entries")

	// ErrPlanEntryNotFound is returned when a coordinate has no plan row.
	ErrPlanEntryNotFound = errors.New("plan entry not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConflictError reports a lost pointer compare-and-swap, including the
// pointer value the writer expected to still hold.
type ConflictError struct {
	UserID   UserID
	Expected Coordinate
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("pointer moved for user %s (expected %s)", e.UserID, e.Expected)
}

func (e *ConflictError) Unwrap() error {
	return ErrConcurrentModification
}

// PlanValidationError reports why a plan source was rejected.
type PlanValidationError struct {
	Rows      int
	BadCoord  *Coordinate
	Duplicate *Coordinate
}

func (e *PlanValidationError) Error() string {
	switch {
	case e.BadCoord != nil:
		return fmt.Sprintf("plan entry out of range: %s", *e.BadCoord)
	case e.Duplicate != nil:
		return fmt.Sprintf("duplicate plan entry: %s", *e.Duplicate)
	default:
		return fmt.Sprintf("plan has %d entries, want %d", e.Rows, PlanSize)
	}
}

func (e *PlanValidationError) Unwrap() error {
	return ErrIncompletePlan
}

// TimezoneError reports a rejected timezone name.
type TimezoneError struct {
	Name string
}

func (e *TimezoneError) Error() string {
	return fmt.Sprintf("unknown timezone %q", e.Name)
}

func (e *TimezoneError) Unwrap() error {
	return ErrInvalidTimezone
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if resubmitting the same event might succeed.
// Safe precisely because of the idempotency guard.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidCoordinate) ||
		errors.Is(err, ErrInvalidEventKind) ||
		errors.Is(err, ErrInvalidTimezone) ||
		errors.Is(err, ErrCoordinateRequired) ||
		errors.Is(err, ErrUserExists)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPlanEntryNotFound)
}
