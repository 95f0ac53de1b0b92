/*
errors.go - Centralized error types for the allocation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is(); structured errors carry context and
  Unwrap() to the sentinels.

ERROR CATEGORIES:
  1. Input validation - malformed intervals, unknown records
  2. Topology errors - hierarchy cycles (fatal for the round)
  3. Concurrency errors - round lock contention, stale snapshots

NOT ERRORS:
  A detected conflict is control flow inside the allocator, never an
  error. A section left under its weekly target is a normal, reportable
  outcome carried in its derived status.

SEE ALSO:
  - hierarchy.go: returns HierarchyCycleError
  - timegrid.go: returns InvalidIntervalError
  - allocator.go: returns ErrConcurrentModification
*/
package allocation

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInterval is returned for zero-length, negative-length or
	// otherwise malformed time windows. Rejected at input validation;
	// never reaches the allocator.
	ErrInvalidInterval = errors.New("invalid interval")

	// ErrHierarchyCycle is returned when the space containment tree
	// contains a cycle. Fatal: cycles indicate a data-integrity bug
	// upstream, and all allocation for the affected round is blocked.
	ErrHierarchyCycle = errors.New("cycle in space hierarchy")

	// ErrConcurrentModification is returned when the round-scoped lock
	// could not be acquired or an optimistic check failed. Retried by the
	// caller, never silently swallowed.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrRoundNotFound is returned when a referenced round doesn't exist.
	ErrRoundNotFound = errors.New("application round not found")

	// ErrApplicationNotFound is returned when a referenced application doesn't exist.
	ErrApplicationNotFound = errors.New("application not found")

	// ErrSectionNotFound is returned when a referenced section doesn't exist.
	ErrSectionNotFound = errors.New("application section not found")

	// ErrOptionNotFound is returned when a referenced option doesn't exist.
	ErrOptionNotFound = errors.New("reservation unit option not found")

	// ErrUnitNotFound is returned when a referenced reservation unit doesn't exist.
	ErrUnitNotFound = errors.New("reservation unit not found")

	// ErrOptionRejected is returned on an attempt to attach a slot to a
	// rejected option. Enforced at the store boundary as a backstop; the
	// allocator never proposes such a slot.
	ErrOptionRejected = errors.New("option is rejected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidIntervalError describes a malformed time window.
type InvalidIntervalError struct {
	Weekday Weekday
	Begin   TimeOfDay
	End     TimeOfDay
	Reason  string
}

func (e *InvalidIntervalError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid interval: %s", e.Reason)
	}
	return fmt.Sprintf("invalid interval: %s %s-%s", e.Weekday, e.Begin, e.End)
}

func (e *InvalidIntervalError) Unwrap() error { return ErrInvalidInterval }

// HierarchyCycleError reports the space at which a containment cycle was
// detected while building the resource hierarchy index.
type HierarchyCycleError struct {
	SpaceID SpaceID
}

func (e *HierarchyCycleError) Error() string {
	return fmt.Sprintf("cycle in space hierarchy at space %d", e.SpaceID)
}

func (e *HierarchyCycleError) Unwrap() error { return ErrHierarchyCycle }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrOptionRejected)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoundNotFound) ||
		errors.Is(err, ErrApplicationNotFound) ||
		errors.Is(err, ErrSectionNotFound) ||
		errors.Is(err, ErrOptionNotFound) ||
		errors.Is(err, ErrUnitNotFound)
}
