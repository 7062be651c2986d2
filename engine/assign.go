/*
assign.go - Route a newly arriving participant to a crew and zone

PURPOSE:
  Given a participant's coordinates and optional zone preference plus a
  snapshot of system state, decide which crew/zone they join. The decision
  either funnels them to the anchor (per the load-dependent curve) or
  places them with a support crew, activating a new crew when a zone has
  none.

DECISION ORDER:
  1. Geographic gate
     - Within the local radius of the preferred zone: forced support
       assignment there, never overridden by the anchor. The local
       override is evaluated BEFORE the anchor-distance gate, so a
       participant close to both gets the local placement. Exception:
       when the local target IS the anchor's zone the override defers
       to the funnel, so someone standing at the anchor joins it.
     - Beyond the far radius from the anchor: never funnel to the anchor.
  2. Funnel: route to the anchor with the phase probability; within the
     boost radius of the anchor the probability is 1.
  3. Support: preferred-zone crew under the size cap → new crew there if a
     crew id is free → globally least-loaded non-anchor crew.

PURITY:
  Assign performs no I/O and has no side effects. Crew creation is an
  explicit intent on the returned Decision (CreateCrew) that the caller
  applies; randomness comes from the injected source. The estimated size
  in the decision is a display value (current+1), not a persisted
  increment.

FAIL-CLOSED:
  When policy requires coordinates and none are present, Assign returns
  ErrLocationRequired. It never substitutes a default assignment.

SEE ALSO:
  - funnel.go: Phase probabilities
  - occupancy.go: Crew lookups used for support placement
  - errors.go: ErrLocationRequired, ErrNoZoneAvailable
*/
package engine

import (
	"math/rand"
	"sort"
)

// Decision reasons reported to callers.
const (
	AssignReasonAnchorFunnel  = "anchor funnel"
	AssignReasonAnchorNearby  = "anchor proximity"
	AssignReasonLocalOverride = "local zone override"
	AssignReasonSupportCrew   = "support crew"
	AssignReasonNewCrew       = "new crew activation"
	AssignReasonLeastLoaded   = "least loaded crew"
)

// AssignRequest describes a newly arriving participant.
type AssignRequest struct {
	Coords          *Coordinate // nil when the device gave no location
	PreferredZoneID ZoneID      // empty when the participant declared none
}

// AssignState is the snapshot Assign decides against. All fields are
// read-only inputs; Anchor may be nil (no anchor is a valid steady state).
type AssignState struct {
	Zones     []Zone
	Occupancy *Occupancy
	Anchor    *AnchorDesignation
	Danger    map[ZoneID]Severity
}

// Decision is the outcome of one assignment. When CreateCrew is set the
// crew does not exist yet; the caller instantiates it by upserting the
// (crew, zone) record. Creating the same crew id twice under concurrency
// is benign: the upsert is idempotent by (crew_id, zone_id).
type Decision struct {
	CrewID        CrewID
	ZoneID        ZoneID
	CreateCrew    bool
	EstimatedSize int // Display estimate: current size + 1
	Reason        string
}

// Assign decides the target crew and zone for a new participant. rng is
// consumed only by the funnel roll; pass a seeded source for deterministic
// tests.
func Assign(req AssignRequest, state AssignState, policy Policy, rng *rand.Rand) (Decision, error) {
	if policy.LocationRequired && req.Coords == nil {
		return Decision{}, ErrLocationRequired
	}

	zones := make(map[ZoneID]Zone, len(state.Zones))
	for _, z := range state.Zones {
		zones[z.ID] = z
	}
	occ := state.Occupancy
	if occ == nil {
		occ = BuildOccupancy(nil)
	}

	// Resolve the zone the participant is effectively asking for: their
	// declared preference, else the nearest placeable zone within walking
	// range of their position.
	target, hasTarget := resolveTargetZone(req, zones, state.Danger, policy)

	// Step 1: geographic gate. Local override first (see file header).
	// When the local target is the anchor's own zone the override defers
	// to the funnel: a participant standing at the anchor joins the
	// anchor, not a support crew camped in the same zone.
	if hasTarget && req.Coords != nil && WithinKm(*req.Coords, target.Center, policy.LocalRadiusKm) {
		if state.Anchor == nil || state.Anchor.ZoneID != target.ID {
			return supportAssignment(target, true, occ, state, policy, AssignReasonLocalOverride)
		}
	}

	// Step 2: funnel toward the anchor.
	if anchor, anchorZone, ok := resolveAnchor(state, zones); ok {
		farFromAnchor := req.Coords != nil && !WithinKm(*req.Coords, anchorZone.Center, policy.AnchorFarKm)
		if !farFromAnchor {
			anchorCrew, _ := occ.Crew(anchor.CrewID)
			if req.Coords != nil && WithinKm(*req.Coords, anchorZone.Center, policy.AnchorBoostKm) {
				return anchorDecision(anchor, anchorCrew, AssignReasonAnchorNearby), nil
			}
			p := FunnelProbability(anchorCrew.EstimatedSize, policy)
			if rollPasses(rng.Float64(), p) {
				return anchorDecision(anchor, anchorCrew, AssignReasonAnchorFunnel), nil
			}
		}
	}

	// Step 3: support assignment.
	if hasTarget {
		return supportAssignment(target, true, occ, state, policy, AssignReasonSupportCrew)
	}
	return supportAssignment(Zone{}, false, occ, state, policy, AssignReasonSupportCrew)
}

func anchorDecision(anchor *AnchorDesignation, crew CrewAssignment, reason string) Decision {
	return Decision{
		CrewID:        anchor.CrewID,
		ZoneID:        anchor.ZoneID,
		EstimatedSize: crew.EstimatedSize + 1,
		Reason:        reason,
	}
}

// resolveAnchor returns the anchor designation and its zone when both
// exist and the zone is still placeable.
func resolveAnchor(state AssignState, zones map[ZoneID]Zone) (*AnchorDesignation, Zone, bool) {
	if state.Anchor == nil {
		return nil, Zone{}, false
	}
	zone, ok := zones[state.Anchor.ZoneID]
	if !ok || !zone.Hostable() {
		return nil, Zone{}, false
	}
	return state.Anchor, zone, true
}

// resolveTargetZone picks the zone a support placement should aim at: the
// declared preference when it is placeable, else the nearest placeable
// zone within walking range of the participant's position. Dangerous
// (high/critical) zones are never targeted for new placements.
func resolveTargetZone(req AssignRequest, zones map[ZoneID]Zone, danger map[ZoneID]Severity, policy Policy) (Zone, bool) {
	placeable := func(z Zone) bool {
		return z.Hostable() && !IsDangerous(danger, z.ID)
	}

	if req.PreferredZoneID != "" {
		if z, ok := zones[req.PreferredZoneID]; ok && placeable(z) {
			return z, true
		}
	}
	if req.Coords == nil {
		return Zone{}, false
	}

	var best Zone
	bestDist := policy.WalkingRadiusKm
	found := false
	for _, z := range sortedZones(zones) {
		if !placeable(z) {
			continue
		}
		d := DistanceKm(*req.Coords, z.Center)
		if d < bestDist || (!found && d <= bestDist) {
			best = z
			bestDist = d
			found = true
		}
	}
	return best, found
}

// supportAssignment places the participant with a non-anchor crew.
func supportAssignment(target Zone, hasTarget bool, occ *Occupancy, state AssignState, policy Policy, reason string) (Decision, error) {
	anchorID := CrewID(0)
	if state.Anchor != nil {
		anchorID = state.Anchor.CrewID
	}

	if hasTarget {
		// Existing crew in the target zone with room left. Lowest crew id
		// wins for determinism.
		for _, crew := range occ.CrewsInZone(target.ID) {
			if crew.CrewID == anchorID {
				continue
			}
			if crew.EstimatedSize < policy.SupportCrewSizeCap {
				return Decision{
					CrewID:        crew.CrewID,
					ZoneID:        target.ID,
					EstimatedSize: crew.EstimatedSize + 1,
					Reason:        reason,
				}, nil
			}
		}

		// No room: activate a new crew in the zone if an id is free. This
		// is how a zone organically comes alive.
		if id, ok := occ.FreeCrewID(policy.MaxCrews); ok {
			return Decision{
				CrewID:        id,
				ZoneID:        target.ID,
				CreateCrew:    true,
				EstimatedSize: 1,
				Reason:        AssignReasonNewCrew,
			}, nil
		}
	}

	// Fall back to the globally least-loaded non-anchor crew.
	if crew, ok := occ.LeastLoadedCrew(anchorID); ok {
		return Decision{
			CrewID:        crew.CrewID,
			ZoneID:        crew.ZoneID,
			EstimatedSize: crew.EstimatedSize + 1,
			Reason:        AssignReasonLeastLoaded,
		}, nil
	}

	// Zero crews anywhere. Bootstrap the first crew in the target zone,
	// or in the first placeable zone of the catalog.
	if hasTarget {
		return Decision{CrewID: 1, ZoneID: target.ID, CreateCrew: true, EstimatedSize: 1, Reason: AssignReasonNewCrew}, nil
	}
	for _, z := range sortedZonesSlice(state.Zones) {
		if z.Hostable() && !IsDangerous(state.Danger, z.ID) {
			return Decision{CrewID: 1, ZoneID: z.ID, CreateCrew: true, EstimatedSize: 1, Reason: AssignReasonNewCrew}, nil
		}
	}
	return Decision{}, ErrNoZoneAvailable
}

func sortedZones(zones map[ZoneID]Zone) []Zone {
	out := make([]Zone, 0, len(zones))
	for _, z := range zones {
		out = append(out, z)
	}
	return sortedZonesSlice(out)
}

func sortedZonesSlice(zones []Zone) []Zone {
	out := make([]Zone, len(zones))
	copy(out, zones)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
