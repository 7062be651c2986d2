/*
rotation.go - Compute the periodic crew→zone rotation plan

PURPOSE:
  Every rotation boundary the engine recomputes the crew→zone mapping:
  the anchor stays put (unless its zone went critical), danger-zone crews
  evacuate unconditionally, and a randomized 40–60% slice of the remaining
  support crews move to fresh zones. Randomness keeps future locations
  unpredictable; all of it flows through the injected source.

RULES:
  - Anchor: no-op entry unless its zone is critical, then it relocates to
    the nearest active, non-avoid, primary, non-critical zone
  - Danger (high/critical) crews always move; the quota only governs
    additional discretionary moves
  - Target pool per move: active, non-avoid zones, minus zones already
    targeted this cycle, minus critical zones (critical is the logged
    least-bad fallback), minus the crew's own zone; secondary zones are
    preferred over primary for support crews
  - Crews that stay get explicit no-op entries so applying the plan is a
    single idempotent write of the complete new state

FAILURE SEMANTICS:
  Rotation never fails outright. When no safe target exists the affected
  crews hold in place and the plan is flagged Degraded; the caller logs
  and applies it anyway.

SEE ALSO:
  - danger.go: Per-zone severity classification consumed here
  - schedule.go: When a rotation is due
  - store.go: RotationStore.ApplyRotation
*/
package engine

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Move fraction bounds for discretionary support-crew rotation.
const (
	moveFractionMin = 0.4
	moveFractionMax = 0.6
)

// PlanInput is the snapshot PlanRotation decides against.
type PlanInput struct {
	Assignments []CrewAssignment
	Zones       []Zone
	Danger      map[ZoneID]Severity
	Anchor      *AnchorDesignation
	Now         time.Time
}

// PlanRotation computes the next crew→zone mapping. The plan covers every
// present crew, including no-op entries for crews that stay. An empty
// snapshot yields an empty, non-degraded plan.
func PlanRotation(in PlanInput, policy Policy, rng *rand.Rand) RotationPlan {
	plan := RotationPlan{
		ID:        uuid.NewString(),
		PlannedAt: in.Now,
	}

	occ := BuildOccupancy(in.Assignments)
	crews := occ.Crews()
	if len(crews) == 0 {
		return plan
	}

	zones := make(map[ZoneID]Zone, len(in.Zones))
	for _, z := range in.Zones {
		zones[z.ID] = z
	}

	// Zones already chosen as a target this cycle; excluded from later
	// picks to spread crews out.
	used := make(map[ZoneID]bool)

	// Partition {anchor} and {others}.
	var anchorCrew *CrewAssignment
	var others []CrewAssignment
	for i := range crews {
		if in.Anchor != nil && crews[i].CrewID == in.Anchor.CrewID {
			anchorCrew = &crews[i]
			continue
		}
		others = append(others, crews[i])
	}

	if anchorCrew != nil {
		move := planAnchorMove(*anchorCrew, zones, in.Danger, used)
		if move.Reason == ReasonNoSafeZone {
			plan.Degraded = true
		}
		if move.Moved() {
			used[move.ToZoneID] = true
		}
		plan.Moves = append(plan.Moves, move)
	}

	// Discretionary quota over the non-anchor crews.
	fraction := moveFractionMin + rng.Float64()*(moveFractionMax-moveFractionMin)
	quota := int(math.Ceil(fraction * float64(len(others))))

	// Priority order: danger-zone crews first, then larger crews; crew id
	// ascending for determinism within ties.
	sort.Slice(others, func(i, j int) bool {
		di := IsDangerous(in.Danger, others[i].ZoneID)
		dj := IsDangerous(in.Danger, others[j].ZoneID)
		if di != dj {
			return di
		}
		if others[i].EstimatedSize != others[j].EstimatedSize {
			return others[i].EstimatedSize > others[j].EstimatedSize
		}
		return others[i].CrewID < others[j].CrewID
	})

	discretionary := 0
	for _, crew := range others {
		inDanger := IsDangerous(in.Danger, crew.ZoneID)
		mustMove := inDanger || discretionary < quota

		if !mustMove {
			plan.Moves = append(plan.Moves, RotationMove{
				CrewID:     crew.CrewID,
				FromZoneID: crew.ZoneID,
				ToZoneID:   crew.ZoneID,
				Reason:     ReasonHold,
			})
			continue
		}

		move, degraded := planSupportMove(crew, inDanger, zones, in.Danger, used, rng)
		if degraded {
			plan.Degraded = true
		}
		if move.Moved() {
			used[move.ToZoneID] = true
			if !inDanger {
				discretionary++
			}
		}
		plan.Moves = append(plan.Moves, move)
	}

	// Final order by crew id, anchor included, so the plan reads as the
	// complete new state.
	sort.Slice(plan.Moves, func(i, j int) bool { return plan.Moves[i].CrewID < plan.Moves[j].CrewID })

	return plan
}

// planAnchorMove pins the anchor unless its zone went critical, in which
// case it relocates to the nearest safe primary zone.
func planAnchorMove(anchor CrewAssignment, zones map[ZoneID]Zone, danger map[ZoneID]Severity, used map[ZoneID]bool) RotationMove {
	if !IsCritical(danger, anchor.ZoneID) {
		return RotationMove{
			CrewID:     anchor.CrewID,
			FromZoneID: anchor.ZoneID,
			ToZoneID:   anchor.ZoneID,
			Reason:     ReasonAnchorHold,
		}
	}

	from, haveFrom := zones[anchor.ZoneID]

	var best Zone
	bestDist := math.MaxFloat64
	found := false
	for _, z := range zones {
		if z.ID == anchor.ZoneID || !z.Active || z.Kind != ZonePrimary || used[z.ID] {
			continue
		}
		if IsCritical(danger, z.ID) {
			continue
		}
		d := 0.0
		if haveFrom {
			d = DistanceKm(from.Center, z.Center)
		}
		if !found || d < bestDist || (d == bestDist && z.ID < best.ID) {
			best = z
			bestDist = d
			found = true
		}
	}

	if !found {
		// Nowhere safe for the anchor. Hold and flag the cycle.
		return RotationMove{
			CrewID:     anchor.CrewID,
			FromZoneID: anchor.ZoneID,
			ToZoneID:   anchor.ZoneID,
			Reason:     ReasonNoSafeZone,
		}
	}
	return RotationMove{
		CrewID:     anchor.CrewID,
		FromZoneID: anchor.ZoneID,
		ToZoneID:   best.ID,
		Reason:     ReasonAnchorEmergency,
	}
}

// planSupportMove picks a fresh zone for one support crew. Returns the
// move and whether the pick was degraded (critical fallback or no target
// at all).
func planSupportMove(crew CrewAssignment, inDanger bool, zones map[ZoneID]Zone, danger map[ZoneID]Severity, used map[ZoneID]bool, rng *rand.Rand) (RotationMove, bool) {
	reason := ReasonScheduledRotation
	if inDanger {
		reason = ReasonDangerEvacuation
	}

	pool := targetPool(crew.ZoneID, zones, danger, used, false)
	if len(pool) > 0 {
		return RotationMove{
			CrewID:     crew.CrewID,
			FromZoneID: crew.ZoneID,
			ToZoneID:   pool[rng.Intn(len(pool))].ID,
			Reason:     reason,
		}, false
	}

	// No non-critical target left. A critical zone is the least-bad
	// fallback and marks the cycle degraded.
	pool = targetPool(crew.ZoneID, zones, danger, used, true)
	if len(pool) > 0 {
		return RotationMove{
			CrewID:     crew.CrewID,
			FromZoneID: crew.ZoneID,
			ToZoneID:   pool[rng.Intn(len(pool))].ID,
			Reason:     ReasonCriticalFallback,
		}, true
	}

	return RotationMove{
		CrewID:     crew.CrewID,
		FromZoneID: crew.ZoneID,
		ToZoneID:   crew.ZoneID,
		Reason:     ReasonNoSafeZone,
	}, true
}

// targetPool builds the candidate zones for a support move: active,
// non-avoid, not already targeted, not the crew's own zone. Critical zones
// are excluded unless allowCritical. Secondary zones are preferred over
// primary when any exist. Sorted by id so a seeded source picks
// reproducibly.
func targetPool(current ZoneID, zones map[ZoneID]Zone, danger map[ZoneID]Severity, used map[ZoneID]bool, allowCritical bool) []Zone {
	var primaries, secondaries []Zone
	for _, z := range zones {
		if z.ID == current || !z.Hostable() || used[z.ID] {
			continue
		}
		if !allowCritical && IsCritical(danger, z.ID) {
			continue
		}
		if allowCritical && !IsCritical(danger, z.ID) {
			// The fallback pool holds only the zones the first pass
			// rejected for being critical.
			continue
		}
		if z.Kind == ZoneSecondary {
			secondaries = append(secondaries, z)
		} else {
			primaries = append(primaries, z)
		}
	}

	pool := secondaries
	if len(pool) == 0 {
		pool = primaries
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	return pool
}
