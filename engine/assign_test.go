package engine_test

import (
	"errors"
	"testing"

	"github.com/murmuration/rotation-engine/engine"
)

// =============================================================================
// ASSIGNMENT FIXTURES
// =============================================================================

// downtown builds a small catalog around City Hall. Distances (haversine):
// grand-park is ~0.35 km from City Hall, westwood ~18.7 km.
func downtown() []engine.Zone {
	cityHall := testZone("city-hall", engine.ZonePrimary, 34.0537, -118.2428)
	cityHall.Name = "City Hall"
	grandPark := testZone("grand-park", engine.ZonePrimary, 34.0563, -118.2462)
	westwood := testZone("westwood", engine.ZoneSecondary, 34.0633, -118.4456)
	echoPark := testZone("echo-park", engine.ZoneSecondary, 34.0731, -118.2603)
	return []engine.Zone{cityHall, grandPark, westwood, echoPark}
}

func atCityHall() *engine.Coordinate {
	return &engine.Coordinate{Lat: 34.0537, Lng: -118.2428}
}

func stateWith(zones []engine.Zone, crews []engine.CrewAssignment, anchor *engine.AnchorDesignation) engine.AssignState {
	return engine.AssignState{
		Zones:     zones,
		Occupancy: engine.BuildOccupancy(crews),
		Anchor:    anchor,
	}
}

// =============================================================================
// FAIL-CLOSED AND GATE TESTS
// =============================================================================

func TestAssign_LocationRequired_FailsClosed(t *testing.T) {
	// GIVEN: Policy requires coordinates; the request has none
	// WHEN: Assigning
	// THEN: ErrLocationRequired, never a default placement

	policy := engine.DefaultPolicy()
	policy.LocationRequired = true

	_, err := engine.Assign(
		engine.AssignRequest{},
		stateWith(downtown(), nil, nil),
		policy, seededRand(1))

	if !errors.Is(err, engine.ErrLocationRequired) {
		t.Fatalf("expected ErrLocationRequired, got %v", err)
	}
	if !engine.IsClientError(err) {
		t.Error("ErrLocationRequired should classify as a client error")
	}
}

func TestAssign_LocalOverride_BeatsAnchorFunnel(t *testing.T) {
	// GIVEN: Build-phase anchor (p = 1.0) and a participant 0 km from
	//        their preferred zone
	// WHEN: Assigning
	// THEN: Forced local placement; the funnel never fires

	policy := engine.DefaultPolicy()
	crews := []engine.CrewAssignment{
		testCrew(1, "city-hall", 300), // Anchor, build phase
		testCrew(2, "westwood", 40),
	}
	anchor := &engine.AnchorDesignation{CrewID: 1, ZoneID: "city-hall"}

	dec, err := engine.Assign(
		engine.AssignRequest{
			Coords:          &engine.Coordinate{Lat: 34.0633, Lng: -118.4456},
			PreferredZoneID: "westwood",
		},
		stateWith(downtown(), crews, anchor),
		policy, seededRand(1))
	if err != nil {
		t.Fatal(err)
	}

	if dec.ZoneID != "westwood" || dec.CrewID != 2 {
		t.Fatalf("expected local placement with crew 2 at westwood, got %+v", dec)
	}
	if dec.Reason != engine.AssignReasonLocalOverride {
		t.Errorf("reason = %q, want %q", dec.Reason, engine.AssignReasonLocalOverride)
	}
}

func TestAssign_FarFromAnchor_NeverFunnels(t *testing.T) {
	// GIVEN: Build-phase anchor (p = 1.0) and a participant ~18.7 km away
	//        with no preferred zone
	// WHEN: Assigning repeatedly
	// THEN: Never routed to the anchor

	policy := engine.DefaultPolicy()
	policy.WalkingRadiusKm = 50 // Keep westwood reachable for support
	crews := []engine.CrewAssignment{
		testCrew(1, "city-hall", 300),
		testCrew(2, "westwood", 40),
	}
	anchor := &engine.AnchorDesignation{CrewID: 1, ZoneID: "city-hall"}

	// ~1 km east of westwood: outside every local radius, far from the
	// anchor.
	rng := seededRand(3)
	for i := 0; i < 50; i++ {
		dec, err := engine.Assign(
			engine.AssignRequest{Coords: &engine.Coordinate{Lat: 34.0633, Lng: -118.4346}},
			stateWith(downtown(), crews, anchor),
			policy, rng)
		if err != nil {
			t.Fatal(err)
		}
		if dec.CrewID == 1 {
			t.Fatalf("iteration %d: funneled to the anchor from 18.7 km out", i)
		}
	}
}

func TestAssign_AnchorBoostRadius_AlwaysFunnels(t *testing.T) {
	// GIVEN: Sustain-phase anchor at size 3000 (p = 0.1) and a participant
	//        standing at the anchor zone center
	// WHEN: Assigning repeatedly
	// THEN: Always routed to the anchor (boost radius overrides the curve)

	policy := engine.DefaultPolicy()
	crews := []engine.CrewAssignment{
		testCrew(1, "city-hall", 3000),
		testCrew(2, "westwood", 40),
	}
	anchor := &engine.AnchorDesignation{CrewID: 1, ZoneID: "city-hall"}

	rng := seededRand(4)
	for i := 0; i < 50; i++ {
		dec, err := engine.Assign(
			engine.AssignRequest{Coords: atCityHall()},
			stateWith(downtown(), crews, anchor),
			policy, rng)
		if err != nil {
			t.Fatal(err)
		}
		if dec.CrewID != 1 {
			t.Fatalf("iteration %d: expected anchor, got %+v", i, dec)
		}
		if dec.Reason != engine.AssignReasonAnchorNearby {
			t.Fatalf("reason = %q, want %q", dec.Reason, engine.AssignReasonAnchorNearby)
		}
	}
}

// =============================================================================
// FUNNEL ROLL TESTS
// =============================================================================

func TestAssign_BuildPhase_AlwaysFunnels(t *testing.T) {
	// GIVEN: Anchor below critical mass (p = 1.0), participant with no
	//        coordinates (no geographic gates apply)
	// WHEN: Assigning repeatedly
	// THEN: Every arrival goes to the anchor

	policy := engine.DefaultPolicy()
	crews := []engine.CrewAssignment{
		testCrew(1, "city-hall", 300),
		testCrew(2, "westwood", 40),
	}
	anchor := &engine.AnchorDesignation{CrewID: 1, ZoneID: "city-hall"}

	rng := seededRand(5)
	for i := 0; i < 100; i++ {
		dec, err := engine.Assign(
			engine.AssignRequest{},
			stateWith(downtown(), crews, anchor),
			policy, rng)
		if err != nil {
			t.Fatal(err)
		}
		if dec.CrewID != 1 || dec.Reason != engine.AssignReasonAnchorFunnel {
			t.Fatalf("iteration %d: expected anchor funnel, got %+v", i, dec)
		}
	}
}

func TestAssign_GrowthPhase_SplitsRoughlyInHalf(t *testing.T) {
	// GIVEN: Growth-phase anchor (p = 0.5)
	// WHEN: Assigning 1000 arrivals with a seeded source
	// THEN: Anchor share lands near 50% (generous tolerance)

	policy := engine.DefaultPolicy()
	crews := []engine.CrewAssignment{
		testCrew(1, "city-hall", 700),
		testCrew(2, "westwood", 40),
	}
	anchor := &engine.AnchorDesignation{CrewID: 1, ZoneID: "city-hall"}

	rng := seededRand(6)
	anchorHits := 0
	for i := 0; i < 1000; i++ {
		dec, err := engine.Assign(
			engine.AssignRequest{},
			stateWith(downtown(), crews, anchor),
			policy, rng)
		if err != nil {
			t.Fatal(err)
		}
		if dec.CrewID == 1 {
			anchorHits++
		}
	}

	if anchorHits < 400 || anchorHits > 600 {
		t.Errorf("growth phase anchor share = %d/1000, expected ~500", anchorHits)
	}
}

// =============================================================================
// SUPPORT PLACEMENT TESTS
// =============================================================================

func TestAssign_SupportCrew_SizeCapRespected(t *testing.T) {
	// GIVEN: Preferred zone holds one crew at the support cap and one with
	//        room
	// WHEN: Assigning (funnel loses)
	// THEN: The crew with room wins, not the capped one

	policy := engine.DefaultPolicy()
	crews := []engine.CrewAssignment{
		testCrew(1, "city-hall", 3000), // Sustain phase, p = 0.1
		testCrew(2, "westwood", 150),   // At cap: closed
		testCrew(3, "westwood", 80),
	}
	anchor := &engine.AnchorDesignation{CrewID: 1, ZoneID: "city-hall"}

	// Seed chosen so the first funnel roll fails at p = 0.1.
	rng := seededRand(7)
	if rng.Float64() < 0.1 {
		t.Skip("seed 7 no longer produces a failing first roll")
	}

	dec, err := engine.Assign(
		engine.AssignRequest{PreferredZoneID: "westwood"},
		stateWith(downtown(), crews, anchor),
		policy, seededRand(7))
	if err != nil {
		t.Fatal(err)
	}

	if dec.CrewID != 3 {
		t.Fatalf("expected crew 3 (under cap), got %+v", dec)
	}
	if dec.EstimatedSize != 81 {
		t.Errorf("estimated size = %d, want 81", dec.EstimatedSize)
	}
	if dec.CreateCrew {
		t.Error("existing crew placement should not request creation")
	}
}

func TestAssign_ZoneFull_ActivatesNewCrew(t *testing.T) {
	// GIVEN: Every crew in the preferred zone is at the cap
	// WHEN: Assigning
	// THEN: A new crew is activated there as an explicit intent

	policy := engine.DefaultPolicy()
	crews := []engine.CrewAssignment{
		testCrew(1, "westwood", 150),
		testCrew(2, "westwood", 150),
	}

	dec, err := engine.Assign(
		engine.AssignRequest{PreferredZoneID: "westwood"},
		stateWith(downtown(), crews, nil),
		policy, seededRand(1))
	if err != nil {
		t.Fatal(err)
	}

	if !dec.CreateCrew {
		t.Fatal("expected a CreateCrew intent")
	}
	if dec.CrewID != 3 || dec.ZoneID != "westwood" {
		t.Errorf("expected new crew 3 at westwood, got %+v", dec)
	}
	if dec.EstimatedSize != 1 {
		t.Errorf("new crew estimated size = %d, want 1", dec.EstimatedSize)
	}
	if dec.Reason != engine.AssignReasonNewCrew {
		t.Errorf("reason = %q, want %q", dec.Reason, engine.AssignReasonNewCrew)
	}
}

func TestAssign_CrewIDsExhausted_FallsBackToLeastLoaded(t *testing.T) {
	// GIVEN: All crew ids in use, preferred zone full
	// WHEN: Assigning
	// THEN: The globally least-loaded non-anchor crew takes the arrival

	policy := engine.DefaultPolicy()
	policy.MaxCrews = 3
	crews := []engine.CrewAssignment{
		testCrew(1, "westwood", 150),
		testCrew(2, "westwood", 150),
		testCrew(3, "echo-park", 30),
	}

	dec, err := engine.Assign(
		engine.AssignRequest{PreferredZoneID: "westwood"},
		stateWith(downtown(), crews, nil),
		policy, seededRand(1))
	if err != nil {
		t.Fatal(err)
	}

	if dec.CrewID != 3 || dec.ZoneID != "echo-park" {
		t.Fatalf("expected least-loaded crew 3 at echo-park, got %+v", dec)
	}
	if dec.Reason != engine.AssignReasonLeastLoaded {
		t.Errorf("reason = %q, want %q", dec.Reason, engine.AssignReasonLeastLoaded)
	}
}

func TestAssign_DangerousPreferredZone_NotTargeted(t *testing.T) {
	// GIVEN: The preferred zone is classified high
	// WHEN: Assigning
	// THEN: The placement lands elsewhere

	policy := engine.DefaultPolicy()
	crews := []engine.CrewAssignment{
		testCrew(1, "westwood", 40),
		testCrew(2, "echo-park", 30),
	}
	state := stateWith(downtown(), crews, nil)
	state.Danger = map[engine.ZoneID]engine.Severity{"westwood": engine.SeverityHigh}

	dec, err := engine.Assign(
		engine.AssignRequest{PreferredZoneID: "westwood"},
		state, policy, seededRand(1))
	if err != nil {
		t.Fatal(err)
	}
	if dec.ZoneID == "westwood" {
		t.Fatalf("placed into a dangerous zone: %+v", dec)
	}
}

func TestAssign_NoZonesAtAll_ReturnsErrNoZoneAvailable(t *testing.T) {
	// GIVEN: Empty catalog, no crews
	// WHEN: Assigning
	// THEN: ErrNoZoneAvailable

	_, err := engine.Assign(
		engine.AssignRequest{},
		engine.AssignState{},
		engine.DefaultPolicy(), seededRand(1))
	if !errors.Is(err, engine.ErrNoZoneAvailable) {
		t.Fatalf("expected ErrNoZoneAvailable, got %v", err)
	}
}

func TestAssign_EmptySystem_BootstrapsFirstCrew(t *testing.T) {
	// GIVEN: Zones exist but no crews anywhere, participant without
	//        coordinates or preference
	// WHEN: Assigning
	// THEN: Crew 1 is bootstrapped in the first placeable zone

	dec, err := engine.Assign(
		engine.AssignRequest{},
		stateWith(downtown(), nil, nil),
		engine.DefaultPolicy(), seededRand(1))
	if err != nil {
		t.Fatal(err)
	}
	if !dec.CreateCrew || dec.CrewID != 1 {
		t.Fatalf("expected bootstrap of crew 1, got %+v", dec)
	}
}
