/*
errors.go - Centralized error types for the rotation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (API handlers, scheduler) wrap these with transport context.

ERROR CATEGORIES:
  1. Policy rejections - Valid requests refused by configuration
  2. Invariant violations - Programming errors, abort the operation
  3. Environment errors - Store unreachable; degrade or surface depending
     on whether the operation is critical

USAGE:
  The API layer maps errors to HTTP status:

    if errors.Is(err, engine.ErrLocationRequired) {
        // 400, honest rejection — never a fallback assignment
    }

SEE ALSO:
  - assign.go: Returns ErrLocationRequired, ErrNoZoneAvailable
  - rotation.go: Degrades to no-op entries instead of returning ErrNoSafeZone
  - store.go: Implementations wrap failures with ErrStoreUnavailable
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
	// ErrLocationRequired is returned when policy mandates coordinates and
	// the request has none. The caller must surface this as a rejection;
	// waving through a default assignment instead is a correctness bug.
	ErrLocationRequired = errors.New("location required by policy")

	// ErrNoZoneAvailable is returned when no hostable zone exists to place
	// a participant at all (empty or fully avoided catalog).
	ErrNoZoneAvailable = errors.New("no zone available")

	// ErrNoSafeZone indicates rotation could not find any non-critical
	// target. The planner degrades to no-op entries rather than returning
	// this; it exists for callers that need to classify degraded cycles.
	ErrNoSafeZone = errors.New("no safe target zone")

	// ErrStoreUnavailable wraps any read/write failure against the external
	// store. Reads fail the operation; best-effort writes are swallowed
	// and logged.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidCrewID is a programming error: a crew id outside
	// 1..MaxCrews reached the engine.
	ErrInvalidCrewID = errors.New("crew id out of bounds")

	// ErrRotationAlreadyApplied is returned by stores when a rotation plan
	// id was already applied. Safe to ignore; applies are idempotent.
	ErrRotationAlreadyApplied = errors.New("rotation already applied")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidCrewIDError reports which id violated the bounds invariant.
type InvalidCrewIDError struct {
	CrewID   CrewID
	MaxCrews int
}

func (e *InvalidCrewIDError) Error() string {
	return fmt.Sprintf("crew id %d out of bounds [1, %d]", e.CrewID, e.MaxCrews)
}

func (e *InvalidCrewIDError) Unwrap() error {
	return ErrInvalidCrewID
}

// StoreError wraps a store failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return ErrStoreUnavailable
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is a policy rejection of the
// caller's input rather than a system failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrLocationRequired)
}

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
