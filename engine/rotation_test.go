package engine_test

import (
	"math"
	"testing"
	"time"

	"github.com/murmuration/rotation-engine/engine"
)

// =============================================================================
// ROTATION FIXTURES
// =============================================================================

func rotationZones() []engine.Zone {
	return []engine.Zone{
		testZone("p1", engine.ZonePrimary, 34.05, -118.24),
		testZone("p2", engine.ZonePrimary, 34.06, -118.25),
		testZone("s1", engine.ZoneSecondary, 34.07, -118.26),
		testZone("s2", engine.ZoneSecondary, 34.08, -118.27),
		testZone("s3", engine.ZoneSecondary, 34.09, -118.28),
		testZone("s4", engine.ZoneSecondary, 34.10, -118.29),
		testZone("s5", engine.ZoneSecondary, 34.11, -118.30),
		testZone("s6", engine.ZoneSecondary, 34.12, -118.31),
	}
}

func planAt() time.Time {
	return time.Date(2026, time.June, 1, 14, 30, 0, 0, time.UTC)
}

// =============================================================================
// PLAN SHAPE TESTS
// =============================================================================

func TestPlanRotation_EmptySnapshot_EmptyPlan(t *testing.T) {
	// GIVEN: Zero crews with estimated_size > 0
	// WHEN: Planning a rotation
	// THEN: Empty, non-degraded plan with an id — success, not an error

	plan := engine.PlanRotation(engine.PlanInput{
		Assignments: []engine.CrewAssignment{testCrew(1, "p1", 0)},
		Zones:       rotationZones(),
		Now:         planAt(),
	}, engine.DefaultPolicy(), seededRand(1))

	if len(plan.Moves) != 0 {
		t.Errorf("expected no moves, got %d", len(plan.Moves))
	}
	if plan.Degraded {
		t.Error("empty plan should not be degraded")
	}
	if plan.ID == "" {
		t.Error("plan should carry an id")
	}
}

func TestPlanRotation_CoversEveryCrew(t *testing.T) {
	// GIVEN: Five crews
	// WHEN: Planning
	// THEN: Exactly one entry per crew, stayers included, ordered by id

	crews := []engine.CrewAssignment{
		testCrew(1, "p1", 600),
		testCrew(2, "s1", 80),
		testCrew(3, "s2", 60),
		testCrew(4, "s3", 40),
		testCrew(5, "s4", 20),
	}
	plan := engine.PlanRotation(engine.PlanInput{
		Assignments: crews,
		Zones:       rotationZones(),
		Anchor:      &engine.AnchorDesignation{CrewID: 1, ZoneID: "p1"},
		Now:         planAt(),
	}, engine.DefaultPolicy(), seededRand(2))

	if len(plan.Moves) != len(crews) {
		t.Fatalf("plan has %d entries, want %d", len(plan.Moves), len(crews))
	}
	for i, m := range plan.Moves {
		if m.CrewID != engine.CrewID(i+1) {
			t.Errorf("entry %d is crew %d, expected ascending crew ids", i, m.CrewID)
		}
	}
}

// =============================================================================
// ANCHOR INVARIANT TESTS
// =============================================================================

func TestPlanRotation_AnchorNeverMoves_RandomizedInputs(t *testing.T) {
	// GIVEN: Randomized crew layouts with a non-critical anchor zone
	// WHEN: Planning many rotations
	// THEN: The anchor is never in the moved set

	zones := rotationZones()
	rng := seededRand(10)

	for trial := 0; trial < 100; trial++ {
		crews := []engine.CrewAssignment{testCrew(1, "p1", 400+rng.Intn(800))}
		zoneIDs := []string{"s1", "s2", "s3", "s4", "s5", "s6"}
		for id := 2; id <= 2+rng.Intn(6); id++ {
			crews = append(crews, testCrew(id, zoneIDs[rng.Intn(len(zoneIDs))], rng.Intn(150)+1))
		}

		// Random non-critical danger on a support zone now and then.
		var danger map[engine.ZoneID]engine.Severity
		if rng.Intn(2) == 0 {
			danger = map[engine.ZoneID]engine.Severity{"s3": engine.SeverityHigh}
		}

		plan := engine.PlanRotation(engine.PlanInput{
			Assignments: crews,
			Zones:       zones,
			Danger:      danger,
			Anchor:      &engine.AnchorDesignation{CrewID: 1, ZoneID: "p1"},
			Now:         planAt(),
		}, engine.DefaultPolicy(), rng)

		move, ok := plan.Move(1)
		if !ok {
			t.Fatalf("trial %d: anchor missing from plan", trial)
		}
		if move.Moved() {
			t.Fatalf("trial %d: anchor moved %s → %s without a critical zone", trial, move.FromZoneID, move.ToZoneID)
		}
		if move.Reason != engine.ReasonAnchorHold {
			t.Errorf("trial %d: anchor hold reason = %q", trial, move.Reason)
		}
	}
}

func TestPlanRotation_CriticalAnchorZone_EmergencyRelocation(t *testing.T) {
	// GIVEN: The anchor's zone classified critical
	// WHEN: Planning
	// THEN: The anchor relocates to the nearest non-critical primary zone
	//       with the emergency reason

	crews := []engine.CrewAssignment{
		testCrew(1, "p1", 600),
		testCrew(2, "s1", 80),
	}
	plan := engine.PlanRotation(engine.PlanInput{
		Assignments: crews,
		Zones:       rotationZones(),
		Danger:      map[engine.ZoneID]engine.Severity{"p1": engine.SeverityCritical},
		Anchor:      &engine.AnchorDesignation{CrewID: 1, ZoneID: "p1"},
		Now:         planAt(),
	}, engine.DefaultPolicy(), seededRand(3))

	move, ok := plan.Move(1)
	if !ok {
		t.Fatal("anchor missing from plan")
	}
	if move.ToZoneID != "p2" {
		t.Fatalf("anchor relocated to %q, want the only other primary p2", move.ToZoneID)
	}
	if move.Reason != engine.ReasonAnchorEmergency {
		t.Errorf("reason = %q, want %q", move.Reason, engine.ReasonAnchorEmergency)
	}
	if plan.Degraded {
		t.Error("successful emergency relocation should not degrade the plan")
	}
}

func TestPlanRotation_CriticalAnchorZone_NoPrimaryLeft_HoldsDegraded(t *testing.T) {
	// GIVEN: Anchor in a critical zone and every other primary also critical
	// WHEN: Planning
	// THEN: The anchor holds, plan is degraded but still applicable

	plan := engine.PlanRotation(engine.PlanInput{
		Assignments: []engine.CrewAssignment{testCrew(1, "p1", 600)},
		Zones:       rotationZones(),
		Danger: map[engine.ZoneID]engine.Severity{
			"p1": engine.SeverityCritical,
			"p2": engine.SeverityCritical,
		},
		Anchor: &engine.AnchorDesignation{CrewID: 1, ZoneID: "p1"},
		Now:    planAt(),
	}, engine.DefaultPolicy(), seededRand(4))

	move, _ := plan.Move(1)
	if move.Moved() {
		t.Fatalf("anchor should hold when no safe primary exists, moved to %q", move.ToZoneID)
	}
	if move.Reason != engine.ReasonNoSafeZone {
		t.Errorf("reason = %q, want %q", move.Reason, engine.ReasonNoSafeZone)
	}
	if !plan.Degraded {
		t.Error("plan should be degraded")
	}
}

// =============================================================================
// QUOTA AND DANGER TESTS
// =============================================================================

func TestPlanRotation_QuotaWithinBounds_ManyTrials(t *testing.T) {
	// GIVEN: Six non-anchor crews, no danger
	// WHEN: Planning across many seeded runs
	// THEN: Discretionary move count falls in [ceil(0.4n), ceil(0.6n)]

	crews := []engine.CrewAssignment{
		testCrew(1, "p1", 600),
		testCrew(2, "s1", 80),
		testCrew(3, "s2", 70),
		testCrew(4, "s3", 60),
		testCrew(5, "s4", 50),
		testCrew(6, "s5", 40),
		testCrew(7, "s6", 30),
	}
	n := 6 // Non-anchor crews
	lo := int(math.Ceil(0.4 * float64(n)))
	hi := int(math.Ceil(0.6 * float64(n)))

	sawLo, sawHi := false, false
	for seed := int64(0); seed < 200; seed++ {
		plan := engine.PlanRotation(engine.PlanInput{
			Assignments: crews,
			Zones:       rotationZones(),
			Anchor:      &engine.AnchorDesignation{CrewID: 1, ZoneID: "p1"},
			Now:         planAt(),
		}, engine.DefaultPolicy(), seededRand(seed))

		moved := plan.MovedCount()
		if moved < lo || moved > hi {
			t.Fatalf("seed %d: moved %d of %d, want within [%d, %d]", seed, moved, n, lo, hi)
		}
		if moved == lo {
			sawLo = true
		}
		if moved == hi {
			sawHi = true
		}
	}
	if !sawLo || !sawHi {
		t.Errorf("expected both quota extremes over 200 seeds (lo seen: %v, hi seen: %v)", sawLo, sawHi)
	}
}

func TestPlanRotation_DangerCrewsAlwaysMove(t *testing.T) {
	// GIVEN: A crew in a high-severity zone across many seeds
	// WHEN: Planning
	// THEN: That crew always moves with the evacuation reason, regardless
	//       of the discretionary quota

	crews := []engine.CrewAssignment{
		testCrew(1, "p1", 600),
		testCrew(2, "s1", 80),
		testCrew(3, "s2", 70),
		testCrew(4, "s3", 60),
	}
	danger := map[engine.ZoneID]engine.Severity{"s1": engine.SeverityHigh}

	for seed := int64(0); seed < 50; seed++ {
		plan := engine.PlanRotation(engine.PlanInput{
			Assignments: crews,
			Zones:       rotationZones(),
			Danger:      danger,
			Anchor:      &engine.AnchorDesignation{CrewID: 1, ZoneID: "p1"},
			Now:         planAt(),
		}, engine.DefaultPolicy(), seededRand(seed))

		move, ok := plan.Move(2)
		if !ok || !move.Moved() {
			t.Fatalf("seed %d: danger crew 2 did not move: %+v", seed, move)
		}
		if move.Reason != engine.ReasonDangerEvacuation {
			t.Fatalf("seed %d: reason = %q, want %q", seed, move.Reason, engine.ReasonDangerEvacuation)
		}
		if engine.IsDangerous(danger, move.ToZoneID) {
			t.Fatalf("seed %d: evacuation target %q is itself dangerous", seed, move.ToZoneID)
		}
	}
}

func TestPlanRotation_TargetsNeverAvoidInactiveOrReused(t *testing.T) {
	// GIVEN: A catalog with avoid and inactive zones
	// WHEN: Planning across seeds
	// THEN: No move targets an avoid zone, an inactive zone, a zone
	//       already targeted this cycle, or the crew's own zone

	inactive := testZone("s9", engine.ZoneSecondary, 34.13, -118.32)
	inactive.Active = false
	zones := append(rotationZones(),
		testZone("x1", engine.ZoneAvoid, 34.14, -118.33),
		inactive,
	)
	crews := []engine.CrewAssignment{
		testCrew(1, "s1", 80),
		testCrew(2, "s2", 70),
		testCrew(3, "s3", 60),
		testCrew(4, "s4", 50),
	}

	for seed := int64(0); seed < 50; seed++ {
		plan := engine.PlanRotation(engine.PlanInput{
			Assignments: crews,
			Zones:       zones,
			Now:         planAt(),
		}, engine.DefaultPolicy(), seededRand(seed))

		targeted := map[engine.ZoneID]int{}
		for _, m := range plan.Moves {
			if !m.Moved() {
				continue
			}
			if m.ToZoneID == "x1" || m.ToZoneID == "s9" {
				t.Fatalf("seed %d: move targets excluded zone %q", seed, m.ToZoneID)
			}
			if m.ToZoneID == m.FromZoneID {
				t.Fatalf("seed %d: moved entry with identical from/to", seed)
			}
			targeted[m.ToZoneID]++
		}
		for z, c := range targeted {
			if c > 1 {
				t.Fatalf("seed %d: zone %q targeted %d times in one cycle", seed, z, c)
			}
		}
	}
}

func TestPlanRotation_NoSafeTarget_CriticalFallbackDegrades(t *testing.T) {
	// GIVEN: A danger crew whose only available target zone is critical
	// WHEN: Planning
	// THEN: The crew takes the critical fallback and the plan degrades,
	//       but planning still succeeds

	zones := []engine.Zone{
		testZone("s1", engine.ZoneSecondary, 34.07, -118.26),
		testZone("s2", engine.ZoneSecondary, 34.08, -118.27),
	}
	danger := map[engine.ZoneID]engine.Severity{
		"s1": engine.SeverityHigh,
		"s2": engine.SeverityCritical,
	}
	plan := engine.PlanRotation(engine.PlanInput{
		Assignments: []engine.CrewAssignment{testCrew(1, "s1", 80)},
		Zones:       zones,
		Danger:      danger,
		Now:         planAt(),
	}, engine.DefaultPolicy(), seededRand(5))

	move, _ := plan.Move(1)
	if move.ToZoneID != "s2" {
		t.Fatalf("expected critical fallback to s2, got %+v", move)
	}
	if move.Reason != engine.ReasonCriticalFallback {
		t.Errorf("reason = %q, want %q", move.Reason, engine.ReasonCriticalFallback)
	}
	if !plan.Degraded {
		t.Error("critical fallback must degrade the plan")
	}
}

func TestPlanRotation_SecondaryZonesPreferredForSupportCrews(t *testing.T) {
	// GIVEN: Secondary zones available alongside free primaries
	// WHEN: Planning across seeds
	// THEN: Support crews land in secondary zones

	crews := []engine.CrewAssignment{
		testCrew(1, "p1", 600),
		testCrew(2, "s1", 80),
	}
	for seed := int64(0); seed < 30; seed++ {
		plan := engine.PlanRotation(engine.PlanInput{
			Assignments: crews,
			Zones:       rotationZones(),
			Anchor:      &engine.AnchorDesignation{CrewID: 1, ZoneID: "p1"},
			Now:         planAt(),
		}, engine.DefaultPolicy(), seededRand(seed))

		move, _ := plan.Move(2)
		if !move.Moved() {
			continue
		}
		if move.ToZoneID == "p1" || move.ToZoneID == "p2" {
			t.Fatalf("seed %d: support crew moved to primary %q with secondaries free", seed, move.ToZoneID)
		}
	}
}
