/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built city scenarios that populate the store with a zone
	catalog and seeded crews for testing and demos. Each scenario
	demonstrates a specific system behavior.

AVAILABLE SCENARIOS:

	downtown:        Civic-center catalog, anchor building at City Hall
	downtown-empty:  Same catalog with zero crews (cold start)
	waterfront:      Spread-out catalog with a danger signal pre-loaded

HOW SCENARIOS WORK:
 1. Replace the zone catalog (parsed from the embedded YAML)
 2. Seed crew assignments
 3. Optionally report danger signals

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "downtown"}

NOTE:

	Scenarios replace the zone catalog. Only use in development/demo
	environments.

SEE ALSO:
  - handlers.go: The rest of the HTTP surface
  - factory/catalog.go: The YAML catalog format used here
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/murmuration/rotation-engine/engine"
	"github.com/murmuration/rotation-engine/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "downtown",
		Name:        "Downtown",
		Description: "Civic-center catalog with an anchor crew building at City Hall",
	},
	{
		ID:          "downtown-empty",
		Name:        "Downtown (cold start)",
		Description: "Same catalog with zero crews; first arrivals activate zones",
	},
	{
		ID:          "waterfront",
		Name:        "Waterfront",
		Description: "Spread-out catalog with a high-severity signal pre-loaded",
	},
}

const downtownCatalogYAML = `
zones:
  - id: city-hall
    name: City Hall
    kind: primary
    lat: 34.0537
    lng: -118.2428
  - id: grand-park
    name: Grand Park
    kind: primary
    lat: 34.0562
    lng: -118.2468
  - id: westwood
    name: Westwood
    kind: secondary
    lat: 34.0633
    lng: -118.4456
  - id: echo-park
    name: Echo Park
    kind: secondary
    lat: 34.0782
    lng: -118.2606
  - id: union-station
    name: Union Station
    kind: secondary
    lat: 34.0562
    lng: -118.2365
  - id: precinct-block
    name: Precinct Block
    kind: avoid
    lat: 34.0441
    lng: -118.2401
`

const waterfrontCatalogYAML = `
zones:
  - id: harbor-plaza
    name: Harbor Plaza
    kind: primary
    lat: 33.7550
    lng: -118.2769
  - id: pier-gate
    name: Pier Gate
    kind: secondary
    lat: 33.7463
    lng: -118.2830
  - id: cannery-row
    name: Cannery Row
    kind: secondary
    lat: 33.7701
    lng: -118.2651
  - id: ferry-landing
    name: Ferry Landing
    kind: secondary
    lat: 33.7420
    lng: -118.2712
`

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"scenarios": scenarios,
		"current":   current,
	})
}

// LoadScenario seeds the store with a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	if err := LoadScenarioByID(r.Context(), h.Store, body.ScenarioID, h.Now()); err != nil {
		if err == errUnknownScenario {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown scenario %q", body.ScenarioID), "not_found")
			return
		}
		h.storeFailure(w, "load scenario", err)
		return
	}

	h.scenarioMu.Lock()
	h.currentScenario = body.ScenarioID
	h.scenarioMu.Unlock()
	h.Anchor.Invalidate()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": body.ScenarioID})
}

// =============================================================================
// LOADERS
// =============================================================================

var errUnknownScenario = fmt.Errorf("unknown scenario")

// LoadScenarioByID seeds the store with the named scenario. Shared with
// the CLI seed command.
func LoadScenarioByID(ctx context.Context, store engine.Store, id string, now time.Time) error {
	switch id {
	case "downtown":
		return loadDowntown(ctx, store, now, true)
	case "downtown-empty":
		return loadDowntown(ctx, store, now, false)
	case "waterfront":
		return loadWaterfront(ctx, store, now)
	default:
		return errUnknownScenario
	}
}

func loadDowntown(ctx context.Context, store engine.Store, now time.Time, seedCrews bool) error {
	zones, err := factory.ParseZoneCatalog([]byte(downtownCatalogYAML))
	if err != nil {
		return err
	}
	if err := store.ReplaceZones(ctx, zones); err != nil {
		return err
	}
	if !seedCrews {
		return nil
	}

	seeds := []engine.CrewAssignment{
		{CrewID: 1, ZoneID: "city-hall", EstimatedSize: 180, AssignedAt: now},
		{CrewID: 2, ZoneID: "echo-park", EstimatedSize: 60, AssignedAt: now},
		{CrewID: 3, ZoneID: "union-station", EstimatedSize: 45, AssignedAt: now},
	}
	for _, s := range seeds {
		if err := store.UpsertCrewAssignment(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func loadWaterfront(ctx context.Context, store engine.Store, now time.Time) error {
	zones, err := factory.ParseZoneCatalog([]byte(waterfrontCatalogYAML))
	if err != nil {
		return err
	}
	if err := store.ReplaceZones(ctx, zones); err != nil {
		return err
	}

	seeds := []engine.CrewAssignment{
		{CrewID: 1, ZoneID: "harbor-plaza", EstimatedSize: 320, AssignedAt: now},
		{CrewID: 2, ZoneID: "pier-gate", EstimatedSize: 90, AssignedAt: now},
		{CrewID: 3, ZoneID: "cannery-row", EstimatedSize: 75, AssignedAt: now},
	}
	for _, s := range seeds {
		if err := store.UpsertCrewAssignment(ctx, s); err != nil {
			return err
		}
	}

	return store.ReportSignal(ctx, engine.DangerSignal{
		ZoneID:    "pier-gate",
		Severity:  engine.SeverityHigh,
		ExpiresAt: now.Add(2 * time.Hour),
	})
}
