/*
store.go - Persistence interfaces for the rotation engine's environment

PURPOSE:
  Defines the capability the engine's callers need from the external
  store: read the zone catalog, read/write crew assignments, read danger
  signals, and atomically apply rotations. The engine itself never touches
  these — they are consumed by the API layer and scheduler, which feed
  snapshots into the pure decision functions.

KEY INTERFACES:
  CatalogStore:    Zone catalog reads + geospatial nearby query
  AssignmentStore: Current crew state and append-only history
  SignalStore:     Danger signal ingestion and reads
  RotationStore:   Atomic rotation apply + boundary check-and-set

ASSIGNMENT HISTORY CONTRACT:
  Crew assignment records are append-only; the latest record per crew is
  current. UpsertCrewAssignment is idempotent by (crew_id, zone_id), which
  is what makes concurrent at-least-once crew creation convergent.

ROTATION GUARD CONTRACT:
  TryMarkRotation is the single mutual-exclusion point in the system: an
  atomic check-and-set against the last rotation timestamp. A second
  concurrent trigger inside the guard window gets false and must treat the
  cycle as already handled.

IMPLEMENTATIONS:
  - engine/store/memory.go: In-memory, for tests and dev mode
  - store/sqlite/sqlite.go: SQLite, for production single-node deployments

SEE ALSO:
  - api/scheduler.go: The only TryMarkRotation caller
*/
package engine

import (
	"context"
	"time"
)

// CatalogStore supplies the zone catalog. The engine treats zones as
// immutable reference data during a rotation cycle.
type CatalogStore interface {
	// Zones returns the full catalog, active and inactive.
	Zones(ctx context.Context) ([]Zone, error)

	// NearbyZones returns active zones within radiusKm of a coordinate,
	// ordered ascending by distance.
	NearbyZones(ctx context.Context, c Coordinate, radiusKm float64) ([]ZoneDistance, error)

	// ReplaceZones swaps the catalog wholesale (seeding, scenario loads).
	ReplaceZones(ctx context.Context, zones []Zone) error
}

// AssignmentStore persists crew assignment records.
type AssignmentStore interface {
	// CurrentAssignments returns the latest record per crew.
	CurrentAssignments(ctx context.Context) ([]CrewAssignment, error)

	// UpsertCrewAssignment appends a new current record for a crew.
	// Idempotent by (crew_id, zone_id): re-creating an existing crew in
	// the same zone converges instead of corrupting.
	UpsertCrewAssignment(ctx context.Context, rec CrewAssignment) error

	// AssignmentHistory returns a crew's past records, newest first.
	AssignmentHistory(ctx context.Context, id CrewID, limit int) ([]CrewAssignment, error)
}

// SignalStore persists danger signals.
type SignalStore interface {
	// DangerSignals returns the unexpired signals as of now.
	DangerSignals(ctx context.Context, now time.Time) ([]DangerSignal, error)

	// ReportSignal records a new severity report for a zone.
	ReportSignal(ctx context.Context, sig DangerSignal) error
}

// RotationStore persists rotation plans and the boundary guard.
type RotationStore interface {
	// ApplyRotation writes the plan's complete new crew→zone state
	// atomically. Applying the same plan id twice is a no-op.
	ApplyRotation(ctx context.Context, plan RotationPlan) error

	// LastRotationAt returns the most recent rotation timestamp, or nil
	// when none has ever run.
	LastRotationAt(ctx context.Context) (*time.Time, error)

	// TryMarkRotation atomically records `at` as the last rotation
	// timestamp iff no rotation is recorded within the trailing window.
	// Returns false when another trigger already claimed the boundary.
	TryMarkRotation(ctx context.Context, planID string, at time.Time, window time.Duration) (bool, error)

	// RotationHistory returns applied rotations, newest first.
	RotationHistory(ctx context.Context, limit int) ([]RotationRecord, error)
}

// Store is the full capability the service wires together.
type Store interface {
	CatalogStore
	AssignmentStore
	SignalStore
	RotationStore
}
