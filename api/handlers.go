/*
handlers.go - HTTP API handlers for the crew rotation engine

PURPOSE:
  Exposes the rotation engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine's decision logic.

ENDPOINTS:
  Assignments:
    POST   /api/assignments        Route a new participant to a crew/zone

  Crews:
    GET    /api/crews              Current crew assignments
    GET    /api/crews/{id}/history Append-only assignment history

  Zones:
    GET    /api/zones              Catalog + occupancy + danger classification

  Anchor:
    GET    /api/anchor             Current derived anchor (204 when none)

  Signals:
    POST   /api/signals            Report a danger signal for a zone

  Rotations:
    GET    /api/rotations          Applied rotation history
    POST   /api/rotations/trigger  Force a rotation cycle (keeps the guard)

  Scenarios:
    GET    /api/scenarios          List demo scenarios
    POST   /api/scenarios/load     Seed a demo scenario

REQUEST FLOW (assignment):
  1. Parse and validate the request body
  2. Read the zone catalog, current assignments, and danger signals
  3. Derive the anchor and call engine.Assign
  4. Fire-and-forget the persistence writes (crew creation, size bumps)
  5. Respond with the decision — persistence never blocks the response

ERROR HANDLING:
  - 400: Invalid body, location required by policy but absent
  - 404: Unknown crew/zone/scenario
  - 409: No zone available to host anyone
  - 503: Store unreachable on a critical read path
  A rejected assignment is reported honestly; there is no fallback
  assignment when strict location policy is on.

SEE ALSO:
  - dto.go: Request/response data structures
  - scheduler.go: The periodic rotation trigger
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/murmuration/rotation-engine/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  engine.Store
	Policy engine.Policy
	Logger *zap.Logger
	Anchor *AnchorTracker

	// NewRand builds the random source for one decision. Tests override
	// it with a seeded source for deterministic outcomes.
	NewRand func() *rand.Rand

	// Now is the clock; overridable in tests.
	Now func() time.Time

	// Pending size-estimate deltas per crew. Flushed to the store as a
	// best-effort write once a delta clears the noise threshold.
	pendingMu sync.Mutex
	pending   map[engine.CrewID]int

	// Track currently loaded scenario
	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store and policy.
func NewHandler(store engine.Store, policy engine.Policy, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:   store,
		Policy:  policy,
		Logger:  logger,
		Anchor:  NewAnchorTracker(),
		NewRand: func() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) },
		Now:     time.Now,
		pending: make(map[engine.CrewID]int),
	}
}

// =============================================================================
// ASSIGNMENT
// =============================================================================

// AssignParticipant routes a newly arriving participant to a crew/zone.
func (h *Handler) AssignParticipant(w http.ResponseWriter, r *http.Request) {
	var body AssignRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	if (body.Lat == nil) != (body.Lng == nil) {
		writeError(w, http.StatusBadRequest, "lat and lng must be provided together", "bad_request")
		return
	}

	ctx := r.Context()
	now := h.Now()

	zones, err := h.Store.Zones(ctx)
	if err != nil {
		h.storeFailure(w, "read zone catalog", err)
		return
	}
	assignments, err := h.Store.CurrentAssignments(ctx)
	if err != nil {
		h.storeFailure(w, "read assignments", err)
		return
	}
	signals, err := h.Store.DangerSignals(ctx, now)
	if err != nil {
		h.storeFailure(w, "read danger signals", err)
		return
	}

	req := engine.AssignRequest{PreferredZoneID: engine.ZoneID(body.PreferredZoneID)}
	if body.Lat != nil {
		req.Coords = &engine.Coordinate{Lat: *body.Lat, Lng: *body.Lng}
	}
	state := engine.AssignState{
		Zones:     zones,
		Occupancy: engine.BuildOccupancy(assignments),
		Anchor:    h.Anchor.Current(assignments, zones, h.Policy, now),
		Danger:    engine.Classify(signals, now),
	}

	decision, err := engine.Assign(req, state, h.Policy, h.NewRand())
	switch {
	case errors.Is(err, engine.ErrLocationRequired):
		writeError(w, http.StatusBadRequest, "location is required to join", "location_required")
		return
	case errors.Is(err, engine.ErrNoZoneAvailable):
		writeError(w, http.StatusConflict, "no zone available", "no_zone_available")
		return
	case err != nil:
		h.Logger.Error("assignment failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "assignment failed", "internal")
		return
	}

	h.persistDecision(decision, state, now)

	writeJSON(w, http.StatusOK, AssignResponseDTO{
		CrewID:        int(decision.CrewID),
		ZoneID:        string(decision.ZoneID),
		ZoneName:      zoneName(zones, decision.ZoneID),
		EstimatedSize: decision.EstimatedSize,
		Reason:        decision.Reason,
		CreatedCrew:   decision.CreateCrew,
	})
}

// persistDecision applies the assignment's side effects best-effort,
// off the request path. Failures are logged, never surfaced: the decision
// already went out and sizes are estimates anyway.
func (h *Handler) persistDecision(d engine.Decision, state engine.AssignState, now time.Time) {
	if d.CreateCrew {
		// New crews are written immediately so the zone shows up as
		// activated. Concurrent duplicate creation converges in the store.
		rec := engine.CrewAssignment{
			CrewID:        d.CrewID,
			ZoneID:        d.ZoneID,
			EstimatedSize: 1,
			AssignedAt:    now,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.Store.UpsertCrewAssignment(ctx, rec); err != nil {
				h.Logger.Warn("crew creation write failed",
					zap.Int("crew_id", int(rec.CrewID)), zap.Error(err))
			}
		}()
		return
	}

	// Existing crew: accumulate the +1 and only write once the pending
	// delta clears the noise threshold.
	h.pendingMu.Lock()
	h.pending[d.CrewID]++
	delta := h.pending[d.CrewID]
	flush := delta > h.Policy.SizeNoiseThreshold
	if flush {
		h.pending[d.CrewID] = 0
	}
	h.pendingMu.Unlock()
	if !flush {
		return
	}

	cur, ok := state.Occupancy.Crew(d.CrewID)
	if !ok {
		return
	}
	size := cur.EstimatedSize + delta
	if size > h.Policy.MaxCrewSize {
		size = h.Policy.MaxCrewSize
	}
	rec := engine.CrewAssignment{
		CrewID:        d.CrewID,
		ZoneID:        cur.ZoneID,
		EstimatedSize: size,
		AssignedAt:    now,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Store.UpsertCrewAssignment(ctx, rec); err != nil {
			h.Logger.Warn("size estimate write failed",
				zap.Int("crew_id", int(rec.CrewID)), zap.Error(err))
		}
	}()
}

// =============================================================================
// CREWS
// =============================================================================

// ListCrews returns the current crew assignments.
func (h *Handler) ListCrews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assignments, err := h.Store.CurrentAssignments(ctx)
	if err != nil {
		h.storeFailure(w, "read assignments", err)
		return
	}
	zones, err := h.Store.Zones(ctx)
	if err != nil {
		h.storeFailure(w, "read zone catalog", err)
		return
	}
	anchor := h.Anchor.Current(assignments, zones, h.Policy, h.Now())

	dtos := make([]CrewDTO, 0, len(assignments))
	for _, a := range assignments {
		dtos = append(dtos, CrewDTO{
			CrewID:        int(a.CrewID),
			ZoneID:        string(a.ZoneID),
			ZoneName:      zoneName(zones, a.ZoneID),
			EstimatedSize: a.EstimatedSize,
			AssignedAt:    a.AssignedAt.Format(time.RFC3339),
			IsAnchor:      anchor != nil && anchor.CrewID == a.CrewID,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CrewHistory returns a crew's append-only assignment history.
func (h *Handler) CrewHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || !h.Policy.ValidCrewID(engine.CrewID(id)) {
		writeError(w, http.StatusNotFound, "unknown crew", "not_found")
		return
	}
	history, err := h.Store.AssignmentHistory(r.Context(), engine.CrewID(id), 100)
	if err != nil {
		h.storeFailure(w, "read assignment history", err)
		return
	}

	dtos := make([]CrewDTO, 0, len(history))
	for _, a := range history {
		dtos = append(dtos, CrewDTO{
			CrewID:        int(a.CrewID),
			ZoneID:        string(a.ZoneID),
			EstimatedSize: a.EstimatedSize,
			AssignedAt:    a.AssignedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ZONES & ANCHOR
// =============================================================================

// ListZones returns the catalog with occupancy and danger classification.
func (h *Handler) ListZones(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.Now()

	zones, err := h.Store.Zones(ctx)
	if err != nil {
		h.storeFailure(w, "read zone catalog", err)
		return
	}
	assignments, err := h.Store.CurrentAssignments(ctx)
	if err != nil {
		h.storeFailure(w, "read assignments", err)
		return
	}
	signals, err := h.Store.DangerSignals(ctx, now)
	if err != nil {
		h.storeFailure(w, "read danger signals", err)
		return
	}

	occ := engine.BuildOccupancy(assignments)
	danger := engine.Classify(signals, now)

	dtos := make([]ZoneDTO, 0, len(zones))
	for _, z := range zones {
		zo := occ.Zone(z.ID)
		crews := make([]int, 0, len(zo.Crews))
		for _, c := range zo.Crews {
			crews = append(crews, int(c))
		}
		dtos = append(dtos, ZoneDTO{
			ID:        string(z.ID),
			Name:      z.Name,
			Kind:      string(z.Kind),
			Lat:       z.Center.Lat,
			Lng:       z.Center.Lng,
			Active:    z.Active,
			Occupancy: zo.Total,
			Crews:     crews,
			Danger:    string(danger[z.ID]),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAnchor returns the current derived anchor, or 204 when none is
// designated (a valid steady state).
func (h *Handler) GetAnchor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assignments, err := h.Store.CurrentAssignments(ctx)
	if err != nil {
		h.storeFailure(w, "read assignments", err)
		return
	}
	zones, err := h.Store.Zones(ctx)
	if err != nil {
		h.storeFailure(w, "read zone catalog", err)
		return
	}

	anchor := h.Anchor.Current(assignments, zones, h.Policy, h.Now())
	if anchor == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	size := 0
	if crew, ok := engine.BuildOccupancy(assignments).Crew(anchor.CrewID); ok {
		size = crew.EstimatedSize
	}
	writeJSON(w, http.StatusOK, AnchorDTO{
		CrewID:        int(anchor.CrewID),
		ZoneID:        string(anchor.ZoneID),
		ZoneName:      zoneName(zones, anchor.ZoneID),
		EstimatedSize: size,
		Phase:         string(h.Policy.Phase(size)),
	})
}

// =============================================================================
// SIGNALS
// =============================================================================

// ReportSignal ingests a danger signal for a zone.
func (h *Handler) ReportSignal(w http.ResponseWriter, r *http.Request) {
	var body SignalRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	sev := engine.Severity(body.Severity)
	if !sev.Valid() {
		writeError(w, http.StatusBadRequest, "unknown severity", "bad_request")
		return
	}
	if body.ZoneID == "" {
		writeError(w, http.StatusBadRequest, "zone_id is required", "bad_request")
		return
	}
	ttl := time.Duration(body.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}

	sig := engine.DangerSignal{
		ZoneID:    engine.ZoneID(body.ZoneID),
		Severity:  sev,
		ExpiresAt: h.Now().Add(ttl),
	}
	if err := h.Store.ReportSignal(r.Context(), sig); err != nil {
		h.storeFailure(w, "report signal", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

// =============================================================================
// ROTATIONS
// =============================================================================

// ListRotations returns applied rotation history, newest first.
func (h *Handler) ListRotations(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.RotationHistory(r.Context(), 50)
	if err != nil {
		h.storeFailure(w, "read rotation history", err)
		return
	}
	dtos := make([]RotationDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, rotationDTO(rec, true))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TriggerRotation forces a rotation cycle now, bypassing the clock
// boundary but keeping the idempotency guard.
func (h *Handler) TriggerRotation(w http.ResponseWriter, r *http.Request) {
	result, err := RunRotationCycle(r.Context(), CycleDeps{
		Store:  h.Store,
		Policy: h.Policy,
		Logger: h.Logger,
		Anchor: h.Anchor,
		Rand:   h.NewRand(),
	}, h.Now(), true)
	if err != nil {
		h.storeFailure(w, "rotation", err)
		return
	}
	if !result.Triggered {
		writeJSON(w, http.StatusOK, TriggerResponseDTO{Triggered: false, Skipped: result.Skipped})
		return
	}
	dto := rotationDTO(result.Record, true)
	writeJSON(w, http.StatusOK, TriggerResponseDTO{Triggered: true, Rotation: &dto})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) storeFailure(w http.ResponseWriter, op string, err error) {
	h.Logger.Error("store operation failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusServiceUnavailable, "store unavailable", "store_unavailable")
}

func zoneName(zones []engine.Zone, id engine.ZoneID) string {
	for _, z := range zones {
		if z.ID == id {
			return z.Name
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, ErrorDTO{Error: msg, Code: code})
}
