/*
occupancy.go - Per-crew and per-zone headcount from an assignment snapshot

PURPOSE:
  Derives lookup structures from a snapshot of current crew assignments:
  crew_id → record and zone_id → total occupants + resident crews. Pure
  transformation; an empty snapshot is zero crews, not an error.

CONSERVATION:
  The per-zone totals always sum to the same total estimated size as the
  input snapshot. Tests assert this across randomized snapshots.

SEE ALSO:
  - assign.go: Least-loaded and preferred-zone crew lookups
  - rotation.go: Partitioning crews for the move quota
*/
package engine

import "sort"

// ZoneOccupancy aggregates the crews resident in one zone.
type ZoneOccupancy struct {
	ZoneID ZoneID
	Total  int
	Crews  []CrewID // Ascending by crew id
}

// Occupancy is a derived view over a snapshot of current crew assignments.
// Only crews with EstimatedSize > 0 are considered present.
type Occupancy struct {
	crews map[CrewID]CrewAssignment
	zones map[ZoneID]ZoneOccupancy
}

// BuildOccupancy derives crew and zone lookups from a snapshot. Records
// with EstimatedSize <= 0 are idle crews and are skipped.
func BuildOccupancy(snapshot []CrewAssignment) *Occupancy {
	occ := &Occupancy{
		crews: make(map[CrewID]CrewAssignment, len(snapshot)),
		zones: make(map[ZoneID]ZoneOccupancy),
	}
	for _, rec := range snapshot {
		if rec.EstimatedSize <= 0 {
			continue
		}
		occ.crews[rec.CrewID] = rec

		z := occ.zones[rec.ZoneID]
		z.ZoneID = rec.ZoneID
		z.Total += rec.EstimatedSize
		z.Crews = append(z.Crews, rec.CrewID)
		occ.zones[rec.ZoneID] = z
	}
	for id, z := range occ.zones {
		sort.Slice(z.Crews, func(i, j int) bool { return z.Crews[i] < z.Crews[j] })
		occ.zones[id] = z
	}
	return occ
}

// Crew returns the current record for a crew, if present.
func (o *Occupancy) Crew(id CrewID) (CrewAssignment, bool) {
	rec, ok := o.crews[id]
	return rec, ok
}

// Zone returns the aggregated occupancy for a zone. Unknown zones return a
// zero aggregate.
func (o *Occupancy) Zone(id ZoneID) ZoneOccupancy {
	z, ok := o.zones[id]
	if !ok {
		return ZoneOccupancy{ZoneID: id}
	}
	return z
}

// Crews returns all present crews, ascending by crew id.
func (o *Occupancy) Crews() []CrewAssignment {
	out := make([]CrewAssignment, 0, len(o.crews))
	for _, rec := range o.crews {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CrewID < out[j].CrewID })
	return out
}

// CrewCount returns the number of present crews.
func (o *Occupancy) CrewCount() int {
	return len(o.crews)
}

// TotalParticipants sums estimated sizes across all present crews.
func (o *Occupancy) TotalParticipants() int {
	total := 0
	for _, rec := range o.crews {
		total += rec.EstimatedSize
	}
	return total
}

// FreeCrewID returns the lowest unused crew id within [1, maxCrews], or
// false if every slot is taken.
func (o *Occupancy) FreeCrewID(maxCrews int) (CrewID, bool) {
	for id := CrewID(1); int(id) <= maxCrews; id++ {
		if _, taken := o.crews[id]; !taken {
			return id, true
		}
	}
	return 0, false
}

// LeastLoadedCrew returns the present crew with the smallest estimated
// size, skipping the excluded id (pass 0 to exclude none). Ties break on
// the lowest crew id.
func (o *Occupancy) LeastLoadedCrew(exclude CrewID) (CrewAssignment, bool) {
	var best CrewAssignment
	found := false
	for _, rec := range o.crews {
		if rec.CrewID == exclude {
			continue
		}
		if !found ||
			rec.EstimatedSize < best.EstimatedSize ||
			(rec.EstimatedSize == best.EstimatedSize && rec.CrewID < best.CrewID) {
			best = rec
			found = true
		}
	}
	return best, found
}

// CrewsInZone returns the present crews assigned to a zone, ascending by id.
func (o *Occupancy) CrewsInZone(zone ZoneID) []CrewAssignment {
	var out []CrewAssignment
	for _, id := range o.Zone(zone).Crews {
		out = append(out, o.crews[id])
	}
	return out
}
