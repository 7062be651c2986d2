/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes exchanged with clients, kept separate from engine types so
  the wire format can evolve without touching decision logic.

SEE ALSO:
  - handlers.go: Where these are populated
*/
package api

import (
	"time"

	"github.com/murmuration/rotation-engine/engine"
)

// =============================================================================
// REQUESTS
// =============================================================================

// AssignRequestDTO is the body of POST /api/assignments. Lat/Lng are
// pointers so "no location" is distinguishable from coordinate zero.
type AssignRequestDTO struct {
	Lat             *float64 `json:"lat,omitempty"`
	Lng             *float64 `json:"lng,omitempty"`
	PreferredZoneID string   `json:"preferred_zone_id,omitempty"`
}

// SignalRequestDTO is the body of POST /api/signals.
type SignalRequestDTO struct {
	ZoneID     string `json:"zone_id"`
	Severity   string `json:"severity"`
	TTLMinutes int    `json:"ttl_minutes,omitempty"` // Default 60
}

// =============================================================================
// RESPONSES
// =============================================================================

type AssignResponseDTO struct {
	CrewID        int    `json:"crew_id"`
	ZoneID        string `json:"zone_id"`
	ZoneName      string `json:"zone_name,omitempty"`
	EstimatedSize int    `json:"estimated_size"`
	Reason        string `json:"reason"`
	CreatedCrew   bool   `json:"created_crew,omitempty"`
}

type CrewDTO struct {
	CrewID        int    `json:"crew_id"`
	ZoneID        string `json:"zone_id"`
	ZoneName      string `json:"zone_name,omitempty"`
	EstimatedSize int    `json:"estimated_size"`
	AssignedAt    string `json:"assigned_at,omitempty"`
	IsAnchor      bool   `json:"is_anchor,omitempty"`
}

type ZoneDTO struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Active    bool    `json:"active"`
	Occupancy int     `json:"occupancy"`
	Crews     []int   `json:"crews,omitempty"`
	Danger    string  `json:"danger,omitempty"`
}

type AnchorDTO struct {
	CrewID        int    `json:"crew_id"`
	ZoneID        string `json:"zone_id"`
	ZoneName      string `json:"zone_name,omitempty"`
	EstimatedSize int    `json:"estimated_size"`
	Phase         string `json:"phase"`
}

type RotationMoveDTO struct {
	CrewID   int    `json:"crew_id"`
	FromZone string `json:"from_zone"`
	ToZone   string `json:"to_zone"`
	Reason   string `json:"reason"`
}

type RotationDTO struct {
	ID         string            `json:"id"`
	AppliedAt  string            `json:"applied_at"`
	Degraded   bool              `json:"degraded"`
	MovedCount int               `json:"moved_count"`
	Moves      []RotationMoveDTO `json:"moves,omitempty"`
}

type TriggerResponseDTO struct {
	Triggered bool         `json:"triggered"`
	Rotation  *RotationDTO `json:"rotation,omitempty"`
	Skipped   string       `json:"skipped,omitempty"` // Why nothing happened
}

type ErrorDTO struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func rotationDTO(rec engine.RotationRecord, includeMoves bool) RotationDTO {
	dto := RotationDTO{
		ID:         rec.ID,
		AppliedAt:  rec.AppliedAt.Format(time.RFC3339),
		Degraded:   rec.Degraded,
		MovedCount: rec.MovedCount,
	}
	if includeMoves {
		for _, m := range rec.Moves {
			dto.Moves = append(dto.Moves, RotationMoveDTO{
				CrewID:   int(m.CrewID),
				FromZone: string(m.FromZoneID),
				ToZone:   string(m.ToZoneID),
				Reason:   m.Reason,
			})
		}
	}
	return dto
}
