/*
anchor.go - Anchor crew selection

PURPOSE:
  Periodically designates which existing crew is the anchor: the crew kept
  stationary at a strategic primary zone to sustain critical mass. The
  designation is derived state — recomputable from scratch at any time
  from crew sizes and zone kinds.

ALGORITHM:
  1. Candidates: crews in primary zones with size above the candidate floor
  2. No candidates → no anchor (a valid steady state, not an error)
  3. Score: size band (+50 target band / +40 oversize / +30 mid / +20 floor),
     +40 strategic landmark name, +20 incumbency
  4. Highest score wins; ties break on lowest crew id

THRASH GUARD:
  An incumbent anchor that has not yet reached ANCHOR_SIZE_MIN is kept
  without rescoring, as long as it is still a valid candidate. Replacing
  an anchor mid-build would throw away the funnel's work.

SEE ALSO:
  - funnel.go: How the anchor's size drives arrival routing
  - rotation.go: The anchor is pinned during routine rotation
*/
package engine

import "sort"

// anchorCandidate pairs a crew with its selection score.
type anchorCandidate struct {
	crew  CrewAssignment
	score int
}

// SelectAnchor chooses the anchor crew from current state. previousAnchor
// is the last designation (nil for none) and feeds the stability bonus and
// the thrash guard. Returns nil when no crew qualifies.
//
// Invariant: a returned designation always points at a crew whose current
// zone has kind ZonePrimary.
func SelectAnchor(crews []CrewAssignment, zones map[ZoneID]Zone, previousAnchor *AnchorDesignation, policy Policy) *AnchorDesignation {
	var candidates []anchorCandidate
	for _, crew := range crews {
		if crew.EstimatedSize <= policy.AnchorCandidateFloor {
			continue
		}
		zone, ok := zones[crew.ZoneID]
		if !ok || zone.Kind != ZonePrimary || !zone.Active {
			continue
		}
		candidates = append(candidates, anchorCandidate{
			crew:  crew,
			score: scoreAnchorCandidate(crew, zone, previousAnchor, policy),
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	// Thrash guard: keep an incumbent that is still building toward
	// critical mass, provided it remains a valid candidate at all.
	if previousAnchor != nil {
		for _, c := range candidates {
			if c.crew.CrewID == previousAnchor.CrewID && c.crew.EstimatedSize < policy.AnchorSizeMin {
				return &AnchorDesignation{CrewID: c.crew.CrewID, ZoneID: c.crew.ZoneID}
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].crew.CrewID < candidates[j].crew.CrewID
	})

	best := candidates[0].crew
	return &AnchorDesignation{CrewID: best.CrewID, ZoneID: best.ZoneID}
}

func scoreAnchorCandidate(crew CrewAssignment, zone Zone, previousAnchor *AnchorDesignation, policy Policy) int {
	score := 0

	size := crew.EstimatedSize
	switch {
	case size >= policy.AnchorSizeMin && size <= policy.AnchorSizeTarget:
		score += 50 // Target band: big enough to matter, small enough to feed
	case size > policy.AnchorSizeTarget:
		score += 40
	case size >= 200:
		score += 30
	default:
		score += 20
	}

	if policy.IsStrategicZone(zone.Name) {
		score += 40
	}

	if previousAnchor != nil && crew.CrewID == previousAnchor.CrewID {
		score += 20 // Stability bonus
	}

	return score
}
