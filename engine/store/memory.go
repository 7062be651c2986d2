// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/murmuration/rotation-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	zones     map[engine.ZoneID]engine.Zone
	history   map[engine.CrewID][]engine.CrewAssignment // Append-only, oldest first
	signals   []engine.DangerSignal
	rotations []engine.RotationRecord
	applied   map[string]bool
	lastRot   *time.Time
}

func NewMemory() *Memory {
	return &Memory{
		zones:   make(map[engine.ZoneID]engine.Zone),
		history: make(map[engine.CrewID][]engine.CrewAssignment),
		applied: make(map[string]bool),
	}
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) Zones(_ context.Context) ([]engine.Zone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.Zone, 0, len(m.zones))
	for _, z := range m.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) NearbyZones(_ context.Context, c engine.Coordinate, radiusKm float64) ([]engine.ZoneDistance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.ZoneDistance
	for _, z := range m.zones {
		if !z.Active {
			continue
		}
		d := engine.DistanceKm(c, z.Center)
		if d <= radiusKm {
			out = append(out, engine.ZoneDistance{Zone: z, DistanceKm: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Zone.ID < out[j].Zone.ID
	})
	return out, nil
}

func (m *Memory) ReplaceZones(_ context.Context, zones []engine.Zone) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.zones = make(map[engine.ZoneID]engine.Zone, len(zones))
	for _, z := range zones {
		m.zones[z.ID] = z
	}
	return nil
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func (m *Memory) CurrentAssignments(_ context.Context) ([]engine.CrewAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.CrewAssignment
	for _, recs := range m.history {
		if len(recs) > 0 {
			out = append(out, recs[len(recs)-1])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CrewID < out[j].CrewID })
	return out, nil
}

func (m *Memory) UpsertCrewAssignment(_ context.Context, rec engine.CrewAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upsertLocked(rec)
	return nil
}

func (m *Memory) upsertLocked(rec engine.CrewAssignment) {
	recs := m.history[rec.CrewID]
	// Convergent at-least-once creation: a duplicate (crew, zone) record
	// with no size change collapses into the existing current record.
	if len(recs) > 0 {
		cur := recs[len(recs)-1]
		if cur.ZoneID == rec.ZoneID && cur.EstimatedSize == rec.EstimatedSize {
			return
		}
	}
	m.history[rec.CrewID] = append(recs, rec)
}

func (m *Memory) AssignmentHistory(_ context.Context, id engine.CrewID, limit int) ([]engine.CrewAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.history[id]
	out := make([]engine.CrewAssignment, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- { // Newest first
		out = append(out, recs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// =============================================================================
// SIGNALS
// =============================================================================

func (m *Memory) DangerSignals(_ context.Context, now time.Time) ([]engine.DangerSignal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.DangerSignal
	for _, sig := range m.signals {
		if !sig.Expired(now) {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (m *Memory) ReportSignal(_ context.Context, sig engine.DangerSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.signals = append(m.signals, sig)
	return nil
}

// =============================================================================
// ROTATIONS
// =============================================================================

func (m *Memory) ApplyRotation(_ context.Context, plan engine.RotationPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applied[plan.ID] {
		return nil // Idempotent re-apply
	}

	for _, move := range plan.Moves {
		if !move.Moved() {
			continue
		}
		recs := m.history[move.CrewID]
		size := 0
		if len(recs) > 0 {
			size = recs[len(recs)-1].EstimatedSize
		}
		m.upsertLocked(engine.CrewAssignment{
			CrewID:        move.CrewID,
			ZoneID:        move.ToZoneID,
			EstimatedSize: size,
			AssignedAt:    plan.PlannedAt,
		})
	}

	m.applied[plan.ID] = true
	m.rotations = append(m.rotations, engine.RotationRecord{
		ID:         plan.ID,
		AppliedAt:  plan.PlannedAt,
		Degraded:   plan.Degraded,
		MovedCount: plan.MovedCount(),
		Moves:      plan.Moves,
	})
	return nil
}

func (m *Memory) LastRotationAt(_ context.Context) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastRot == nil {
		return nil, nil
	}
	t := *m.lastRot
	return &t, nil
}

func (m *Memory) TryMarkRotation(_ context.Context, _ string, at time.Time, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastRot != nil && at.Sub(*m.lastRot) < window {
		return false, nil
	}
	t := at
	m.lastRot = &t
	return true, nil
}

func (m *Memory) RotationHistory(_ context.Context, limit int) ([]engine.RotationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.RotationRecord, 0, len(m.rotations))
	for i := len(m.rotations) - 1; i >= 0; i-- { // Newest first
		out = append(out, m.rotations[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

var _ engine.Store = (*Memory)(nil)
