/*
Package engine provides the core crew assignment and rotation engine.

PURPOSE:
  This package contains the decision logic for distributing participant
  crews across city zones: routing new arrivals, designating the anchor
  crew, and computing periodic rotation plans. The engine is pure — it
  reads snapshots and returns decisions; persisting them is the caller's
  job.

KEY CONCEPTS IN THIS FILE (types.go):
  - Zone: A fixed geographic location eligible to host a crew
  - CrewAssignment: The current (zone, size) record for one crew
  - AnchorDesignation: The privileged crew/zone pair, re-derived, never stored
  - DangerSignal: Externally reported severity rating for a zone
  - RotationPlan: The full crew→zone mapping produced each rotation cycle
  - Policy: Tunable limits and thresholds

DESIGN PRINCIPLES:
  1. Purity: Decision functions take snapshots and return values, no I/O
  2. Determinism on demand: all randomness flows through an injected source
  3. Re-derivability: the anchor is computed from crew/zone state, never
     persisted as a flag
  4. Strong typing for identifiers (ZoneID, CrewID)

SEE ALSO:
  - assign.go: New-participant routing
  - rotation.go: Periodic rotation planning
  - anchor.go: Anchor crew selection
  - store.go: Persistence interfaces
*/
package engine

import (
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ZoneID identifies a zone in the catalog.
type ZoneID string

// CrewID identifies a crew. Valid ids are 1..Policy.MaxCrews.
type CrewID int

// =============================================================================
// GEOGRAPHY
// =============================================================================

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64
	Lng float64
}

// =============================================================================
// ZONE - Immutable reference data during a rotation cycle
// =============================================================================

type ZoneKind string

const (
	ZonePrimary   ZoneKind = "primary"   // Strategic locations eligible to host the anchor
	ZoneSecondary ZoneKind = "secondary" // Regular support locations
	ZoneAvoid     ZoneKind = "avoid"     // Never assigned (private property, restricted areas)
)

// Valid reports whether the kind is one of the known zone kinds.
func (k ZoneKind) Valid() bool {
	switch k {
	case ZonePrimary, ZoneSecondary, ZoneAvoid:
		return true
	}
	return false
}

// Zone is reference data owned by the external catalog. The engine only
// reads it.
type Zone struct {
	ID     ZoneID
	Name   string
	Kind   ZoneKind
	Center Coordinate
	Active bool
}

// Hostable reports whether the zone may receive a crew at all.
func (z Zone) Hostable() bool {
	return z.Active && z.Kind != ZoneAvoid
}

// ZoneDistance pairs a zone with its distance from a query point.
type ZoneDistance struct {
	Zone       Zone
	DistanceKm float64
}

// =============================================================================
// CREW ASSIGNMENT - Latest record per crew is "current"
// =============================================================================

// CrewAssignment records one crew's zone and estimated headcount. History is
// append-only; only the latest record per crew is current. A crew at size 0
// is idle, not deleted.
type CrewAssignment struct {
	CrewID        CrewID
	ZoneID        ZoneID
	EstimatedSize int
	AssignedAt    time.Time
}

// =============================================================================
// ANCHOR DESIGNATION - Derived, ephemeral, never persisted as a flag
// =============================================================================

// AnchorDesignation points at the currently privileged crew/zone pair.
// It must always be recomputable from scratch from crew sizes and zone
// kinds; holders must not treat it as durable state.
//
// Invariant: the anchor crew's current zone has kind ZonePrimary.
type AnchorDesignation struct {
	CrewID CrewID
	ZoneID ZoneID
}

// =============================================================================
// DANGER SIGNALS
// =============================================================================

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank orders severities: low < medium < high < critical.
// Unknown severities rank below low so malformed signals never escalate.
func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Valid reports whether the severity is one of the known levels.
func (s Severity) Valid() bool {
	return s.rank() > 0
}

// AtLeast reports whether s is at or above the given severity.
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank()
}

// MaxSeverity returns the higher of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// DangerSignal is an externally reported severity rating for a zone.
// Expired signals are inert and must be filtered at read time.
type DangerSignal struct {
	ZoneID    ZoneID
	Severity  Severity
	ExpiresAt time.Time
}

// Expired reports whether the signal is inert at the given time.
func (d DangerSignal) Expired(now time.Time) bool {
	return !d.ExpiresAt.After(now)
}

// =============================================================================
// ROTATION PLAN
// =============================================================================

// Move reasons recorded on rotation plan entries.
const (
	ReasonAnchorHold        = "anchor hold"
	ReasonAnchorEmergency   = "anchor emergency relocation"
	ReasonDangerEvacuation  = "danger evacuation"
	ReasonScheduledRotation = "scheduled rotation"
	ReasonHold              = "hold"
	ReasonNoSafeZone        = "no safe zone available"
	ReasonCriticalFallback  = "degraded: critical zone fallback"
)

// RotationMove is one crew's entry in a rotation plan. Crews that stay in
// place get a no-op entry (From == To) so the plan is a complete picture of
// the new state.
type RotationMove struct {
	CrewID     CrewID
	FromZoneID ZoneID
	ToZoneID   ZoneID
	Reason     string
}

// Moved reports whether the entry actually relocates the crew.
func (m RotationMove) Moved() bool {
	return m.FromZoneID != m.ToZoneID
}

// RotationPlan is the complete crew→zone mapping produced once per rotation
// boundary. Applying it is all-or-nothing from the caller's perspective.
type RotationPlan struct {
	ID        string
	PlannedAt time.Time
	Moves     []RotationMove

	// Degraded is set when the planner could not honor safety constraints
	// for at least one crew (no safe target zone existed). The plan is
	// still applicable; degraded cycles are logged, never fatal.
	Degraded bool
}

// MovedCount returns the number of entries that relocate a crew.
func (p RotationPlan) MovedCount() int {
	n := 0
	for _, m := range p.Moves {
		if m.Moved() {
			n++
		}
	}
	return n
}

// Move returns the plan entry for a crew, if present.
func (p RotationPlan) Move(id CrewID) (RotationMove, bool) {
	for _, m := range p.Moves {
		if m.CrewID == id {
			return m, true
		}
	}
	return RotationMove{}, false
}

// RotationRecord is a rotation plan as recorded by the store after apply.
type RotationRecord struct {
	ID         string
	AppliedAt  time.Time
	Degraded   bool
	MovedCount int
	Moves      []RotationMove
}

// =============================================================================
// POLICY - Tunable limits and thresholds
// =============================================================================

// Policy carries the recognized configuration options. Zero values are not
// meaningful; construct with DefaultPolicy and override.
type Policy struct {
	MaxCrews           int // Most distinct crew ids that may exist at once
	MaxCrewSize        int // Upper bound on a crew's estimated size
	SupportCrewSizeCap int // Support crews above this stop accepting new members

	AnchorSizeMin        int // Anchor below this is still building critical mass
	AnchorSizeTarget     int // Anchor at/above this is in sustain phase
	AnchorCandidateFloor int // Minimum size to be considered for anchor at all

	RotationIntervalMinutes   int
	AnchorReevaluationMinutes int

	LocationRequired bool // When true, Assign fails closed without coordinates

	WalkingRadiusKm float64 // How far a participant is expected to walk
	LocalRadiusKm   float64 // Within this of the preferred zone: forced local
	AnchorFarKm     float64 // Beyond this from the anchor: never funnel
	AnchorBoostKm   float64 // Within this of the anchor: always funnel

	SizeNoiseThreshold int // Size-estimate deltas at or below this are noise

	// StrategicZoneNames are landmark names that earn an anchor-selection
	// bonus. Matched case-insensitively.
	StrategicZoneNames []string
}

// DefaultPolicy returns the standard configuration.
func DefaultPolicy() Policy {
	return Policy{
		MaxCrews:                  20,
		MaxCrewSize:               200,
		SupportCrewSizeCap:        150,
		AnchorSizeMin:             500,
		AnchorSizeTarget:          1000,
		AnchorCandidateFloor:      100,
		RotationIntervalMinutes:   30,
		AnchorReevaluationMinutes: 10,
		LocationRequired:          false,
		WalkingRadiusKm:           4.8,
		LocalRadiusKm:             0.5,
		AnchorFarKm:               1.0,
		AnchorBoostKm:             0.2,
		SizeNoiseThreshold:        5,
	}
}

// ValidCrewID reports whether the id is within the configured bounds.
func (p Policy) ValidCrewID(id CrewID) bool {
	return id >= 1 && int(id) <= p.MaxCrews
}

// IsStrategicZone reports whether a zone name is on the strategic list.
func (p Policy) IsStrategicZone(name string) bool {
	for _, s := range p.StrategicZoneNames {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}
