/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the full engine.Store capability (catalog, assignments,
  signals, rotations) using SQLite. In production the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ASSIGNMENTS:
  crew_assignments is an append-only history; the current state of a crew
  is its newest row. Corrections arrive as new rows, never as updates.

ROTATION ATOMICITY:
  ApplyRotation writes the rotation record, its moves, and the new
  assignment rows in one transaction. A plan id that already exists is a
  silent no-op, which is what makes retried applies safe.

BOUNDARY GUARD:
  rotation_guard is a single-row table updated by TryMarkRotation inside a
  transaction: read the last timestamp, refuse if it is inside the guard
  window, otherwise set it. This is the system's one check-and-set.

KEY TABLES:
  zones:            Zone catalog (replaced wholesale on seed)
  crew_assignments: Append-only crew→zone history
  danger_signals:   Severity reports with expiry
  rotations:        Applied rotation plans
  rotation_moves:   Per-crew entries of each plan
  rotation_guard:   Single row holding the last rotation timestamp

CONCURRENCY:
  Uses sync.Mutex around write transactions. SQLite is opened in WAL mode
  so readers don't block.

USAGE:
  store, err := sqlite.New("./data/rotation.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/store.go: Interface definitions and contracts
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/murmuration/rotation-engine/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS zones (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	-- Append-only crew assignment history. The newest row per crew is
	-- that crew's current assignment.
	CREATE TABLE IF NOT EXISTS crew_assignments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		crew_id INTEGER NOT NULL,
		zone_id TEXT NOT NULL,
		estimated_size INTEGER NOT NULL,
		assigned_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assignments_crew_seq
		ON crew_assignments(crew_id, seq DESC);

	CREATE TABLE IF NOT EXISTS danger_signals (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		zone_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		reported_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_signals_expiry ON danger_signals(expires_at);

	CREATE TABLE IF NOT EXISTS rotations (
		id TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL,
		degraded INTEGER NOT NULL DEFAULT 0,
		moved_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS rotation_moves (
		rotation_id TEXT NOT NULL REFERENCES rotations(id),
		crew_id INTEGER NOT NULL,
		from_zone TEXT NOT NULL,
		to_zone TEXT NOT NULL,
		reason TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_moves_rotation ON rotation_moves(rotation_id);

	-- Single-row boundary guard. id is fixed at 1.
	CREATE TABLE IF NOT EXISTS rotation_guard (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_rotation_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CATALOG
// =============================================================================

func (s *Store) Zones(ctx context.Context) ([]engine.Zone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, lat, lng, active FROM zones ORDER BY id`)
	if err != nil {
		return nil, &engine.StoreError{Op: "list zones", Err: err}
	}
	defer rows.Close()

	var out []engine.Zone
	for rows.Next() {
		var z engine.Zone
		var kind string
		var active int
		if err := rows.Scan(&z.ID, &z.Name, &kind, &z.Center.Lat, &z.Center.Lng, &active); err != nil {
			return nil, &engine.StoreError{Op: "scan zone", Err: err}
		}
		z.Kind = engine.ZoneKind(kind)
		z.Active = active != 0
		out = append(out, z)
	}
	return out, rows.Err()
}

// NearbyZones reads the catalog and ranks it by haversine distance in Go.
// Zone catalogs are small (tens of rows per city), so there is no need
// for a spatial index.
func (s *Store) NearbyZones(ctx context.Context, c engine.Coordinate, radiusKm float64) ([]engine.ZoneDistance, error) {
	zones, err := s.Zones(ctx)
	if err != nil {
		return nil, err
	}

	var out []engine.ZoneDistance
	for _, z := range zones {
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

func (s *Store) ReplaceZones(ctx context.Context, zones []engine.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &engine.StoreError{Op: "replace zones", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM zones`); err != nil {
		return &engine.StoreError{Op: "replace zones", Err: err}
	}
	for _, z := range zones {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO zones (id, name, kind, lat, lng, active) VALUES (?, ?, ?, ?, ?, ?)`,
			string(z.ID), z.Name, string(z.Kind), z.Center.Lat, z.Center.Lng, boolToInt(z.Active))
		if err != nil {
			return &engine.StoreError{Op: "insert zone", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &engine.StoreError{Op: "replace zones", Err: err}
	}
	return nil
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func (s *Store) CurrentAssignments(ctx context.Context) ([]engine.CrewAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.crew_id, a.zone_id, a.estimated_size, a.assigned_at
		FROM crew_assignments a
		JOIN (
			SELECT crew_id, MAX(seq) AS max_seq
			FROM crew_assignments
			GROUP BY crew_id
		) latest ON a.crew_id = latest.crew_id AND a.seq = latest.max_seq
		ORDER BY a.crew_id`)
	if err != nil {
		return nil, &engine.StoreError{Op: "current assignments", Err: err}
	}
	defer rows.Close()

	return scanAssignments(rows)
}

func (s *Store) UpsertCrewAssignment(ctx context.Context, rec engine.CrewAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertAssignment(ctx, s.db, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// upsertAssignment appends a new current record unless it is an exact
// duplicate of the crew's current (zone, size). Duplicate creation under
// concurrency converges instead of growing the history.
func upsertAssignment(ctx context.Context, db execer, rec engine.CrewAssignment) error {
	var curZone string
	var curSize int
	err := db.QueryRowContext(ctx, `
		SELECT zone_id, estimated_size FROM crew_assignments
		WHERE crew_id = ? ORDER BY seq DESC LIMIT 1`, int(rec.CrewID)).Scan(&curZone, &curSize)
	switch {
	case err == sql.ErrNoRows:
		// First record for this crew.
	case err != nil:
		return &engine.StoreError{Op: "read current assignment", Err: err}
	case curZone == string(rec.ZoneID) && curSize == rec.EstimatedSize:
		return nil
	}

	at := rec.AssignedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO crew_assignments (crew_id, zone_id, estimated_size, assigned_at)
		VALUES (?, ?, ?, ?)`,
		int(rec.CrewID), string(rec.ZoneID), rec.EstimatedSize, at.Format(time.RFC3339Nano))
	if err != nil {
		return &engine.StoreError{Op: "upsert assignment", Err: err}
	}
	return nil
}

func (s *Store) AssignmentHistory(ctx context.Context, id engine.CrewID, limit int) ([]engine.CrewAssignment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT crew_id, zone_id, estimated_size, assigned_at
		FROM crew_assignments WHERE crew_id = ?
		ORDER BY seq DESC LIMIT ?`, int(id), limit)
	if err != nil {
		return nil, &engine.StoreError{Op: "assignment history", Err: err}
	}
	defer rows.Close()

	return scanAssignments(rows)
}

func scanAssignments(rows *sql.Rows) ([]engine.CrewAssignment, error) {
	var out []engine.CrewAssignment
	for rows.Next() {
		var rec engine.CrewAssignment
		var crewID int
		var zoneID, assignedAt string
		if err := rows.Scan(&crewID, &zoneID, &rec.EstimatedSize, &assignedAt); err != nil {
			return nil, &engine.StoreError{Op: "scan assignment", Err: err}
		}
		rec.CrewID = engine.CrewID(crewID)
		rec.ZoneID = engine.ZoneID(zoneID)
		if t, err := time.Parse(time.RFC3339Nano, assignedAt); err == nil {
			rec.AssignedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// SIGNALS
// =============================================================================

func (s *Store) DangerSignals(ctx context.Context, now time.Time) ([]engine.DangerSignal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT zone_id, severity, expires_at FROM danger_signals
		WHERE expires_at > ?`, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, &engine.StoreError{Op: "danger signals", Err: err}
	}
	defer rows.Close()

	var out []engine.DangerSignal
	for rows.Next() {
		var sig engine.DangerSignal
		var zoneID, severity, expiresAt string
		if err := rows.Scan(&zoneID, &severity, &expiresAt); err != nil {
			return nil, &engine.StoreError{Op: "scan signal", Err: err}
		}
		sig.ZoneID = engine.ZoneID(zoneID)
		sig.Severity = engine.Severity(severity)
		if t, err := time.Parse(time.RFC3339Nano, expiresAt); err == nil {
			sig.ExpiresAt = t
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *Store) ReportSignal(ctx context.Context, sig engine.DangerSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO danger_signals (zone_id, severity, expires_at, reported_at)
		VALUES (?, ?, ?, ?)`,
		string(sig.ZoneID), string(sig.Severity),
		sig.ExpiresAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &engine.StoreError{Op: "report signal", Err: err}
	}
	return nil
}

// =============================================================================
// ROTATIONS
// =============================================================================

func (s *Store) ApplyRotation(ctx context.Context, plan engine.RotationPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &engine.StoreError{Op: "apply rotation", Err: err}
	}
	defer tx.Rollback()

	// Idempotent re-apply: a plan id that already exists is done.
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO rotations (id, applied_at, degraded, moved_count)
		VALUES (?, ?, ?, ?)`,
		plan.ID, plan.PlannedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(plan.Degraded), plan.MovedCount())
	if err != nil {
		return &engine.StoreError{Op: "apply rotation", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	for _, move := range plan.Moves {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rotation_moves (rotation_id, crew_id, from_zone, to_zone, reason)
			VALUES (?, ?, ?, ?, ?)`,
			plan.ID, int(move.CrewID), string(move.FromZoneID), string(move.ToZoneID), move.Reason)
		if err != nil {
			return &engine.StoreError{Op: "insert rotation move", Err: err}
		}
		if !move.Moved() {
			continue
		}

		var size int
		err = tx.QueryRowContext(ctx, `
			SELECT estimated_size FROM crew_assignments
			WHERE crew_id = ? ORDER BY seq DESC LIMIT 1`, int(move.CrewID)).Scan(&size)
		if err != nil && err != sql.ErrNoRows {
			return &engine.StoreError{Op: "read crew size", Err: err}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO crew_assignments (crew_id, zone_id, estimated_size, assigned_at)
			VALUES (?, ?, ?, ?)`,
			int(move.CrewID), string(move.ToZoneID), size,
			plan.PlannedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return &engine.StoreError{Op: "write rotated assignment", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &engine.StoreError{Op: "apply rotation", Err: err}
	}
	return nil
}

func (s *Store) LastRotationAt(ctx context.Context) (*time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_rotation_at FROM rotation_guard WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &engine.StoreError{Op: "last rotation", Err: err}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, &engine.StoreError{Op: "parse last rotation", Err: err}
	}
	return &t, nil
}

// TryMarkRotation is the atomic check-and-set protecting rotation
// boundaries. The read and write happen in one transaction under the
// store mutex, so concurrent triggers serialize here.
func (s *Store) TryMarkRotation(ctx context.Context, _ string, at time.Time, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, &engine.StoreError{Op: "mark rotation", Err: err}
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT last_rotation_at FROM rotation_guard WHERE id = 1`).Scan(&raw)
	if err != nil && err != sql.ErrNoRows {
		return false, &engine.StoreError{Op: "mark rotation", Err: err}
	}
	if err == nil {
		last, perr := time.Parse(time.RFC3339Nano, raw)
		if perr == nil && at.Sub(last) < window {
			return false, nil
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rotation_guard (id, last_rotation_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_rotation_at = excluded.last_rotation_at`,
		at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, &engine.StoreError{Op: "mark rotation", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return false, &engine.StoreError{Op: "mark rotation", Err: err}
	}
	return true, nil
}

func (s *Store) RotationHistory(ctx context.Context, limit int) ([]engine.RotationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, applied_at, degraded, moved_count FROM rotations
		ORDER BY applied_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &engine.StoreError{Op: "rotation history", Err: err}
	}
	defer rows.Close()

	var out []engine.RotationRecord
	for rows.Next() {
		var rec engine.RotationRecord
		var appliedAt string
		var degraded int
		if err := rows.Scan(&rec.ID, &appliedAt, &degraded, &rec.MovedCount); err != nil {
			return nil, &engine.StoreError{Op: "scan rotation", Err: err}
		}
		rec.Degraded = degraded != 0
		if t, err := time.Parse(time.RFC3339Nano, appliedAt); err == nil {
			rec.AppliedAt = t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		moves, err := s.rotationMoves(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Moves = moves
	}
	return out, nil
}

func (s *Store) rotationMoves(ctx context.Context, rotationID string) ([]engine.RotationMove, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT crew_id, from_zone, to_zone, reason FROM rotation_moves
		WHERE rotation_id = ? ORDER BY crew_id`, rotationID)
	if err != nil {
		return nil, &engine.StoreError{Op: "rotation moves", Err: err}
	}
	defer rows.Close()

	var out []engine.RotationMove
	for rows.Next() {
		var m engine.RotationMove
		var crewID int
		var from, to string
		if err := rows.Scan(&crewID, &from, &to, &m.Reason); err != nil {
			return nil, &engine.StoreError{Op: "scan rotation move", Err: err}
		}
		m.CrewID = engine.CrewID(crewID)
		m.FromZoneID = engine.ZoneID(from)
		m.ToZoneID = engine.ZoneID(to)
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ engine.Store = (*Store)(nil)
