/*
scheduler.go - Periodic rotation trigger

PURPOSE:
  Ticks once a minute, asks the engine whether "now" is a rotation
  boundary, and if so runs one rotation cycle: claim the boundary with
  the store's check-and-set, read the snapshot, plan, apply.

EXACTLY-ONCE PER BOUNDARY:
  IsRotationDue is advisory — concurrent triggers (retried cron, a second
  process) can both see "due". The durable guard is TryMarkRotation: the
  loser of the check-and-set logs and skips. Losing is normal operation,
  not an error.

DEGRADED CYCLES:
  A plan flagged Degraded (no safe target for some crew) is still
  applied; the affected crews hold in place and the cycle is logged at
  warn level.

USAGE:
  scheduler := NewRotationScheduler(store, policy, logger, anchors)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - engine/schedule.go: Boundary detection
  - engine/rotation.go: Plan computation
  - handlers.go: Manual trigger endpoint sharing RunRotationCycle
*/
package api

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/murmuration/rotation-engine/engine"
)

// =============================================================================
// ONE ROTATION CYCLE
// =============================================================================

// CycleDeps carries what one rotation cycle needs.
type CycleDeps struct {
	Store  engine.Store
	Policy engine.Policy
	Logger *zap.Logger
	Anchor *AnchorTracker
	Rand   *rand.Rand
}

// CycleResult reports what a cycle did.
type CycleResult struct {
	Triggered bool
	Skipped   string // Populated when Triggered is false
	Record    engine.RotationRecord
}

// RunRotationCycle executes one rotation attempt. When force is false the
// clock boundary is honored; force bypasses the boundary but never the
// store's check-and-set guard.
func RunRotationCycle(ctx context.Context, deps CycleDeps, now time.Time, force bool) (CycleResult, error) {
	last, err := deps.Store.LastRotationAt(ctx)
	if err != nil {
		return CycleResult{}, err
	}

	if !force {
		var stamps []time.Time
		if last != nil {
			stamps = append(stamps, *last)
		}
		if !engine.IsRotationDue(now, stamps...) {
			return CycleResult{Skipped: "not a rotation boundary"}, nil
		}
	}

	// Claim the boundary before doing any work. The claim id is only for
	// the store's audit trail; the plan gets its own id below.
	claimed, err := deps.Store.TryMarkRotation(ctx, uuid.NewString(), now, engine.RotationGuardWindow)
	if err != nil {
		return CycleResult{}, err
	}
	if !claimed {
		return CycleResult{Skipped: "boundary already claimed"}, nil
	}

	assignments, err := deps.Store.CurrentAssignments(ctx)
	if err != nil {
		return CycleResult{}, err
	}
	zones, err := deps.Store.Zones(ctx)
	if err != nil {
		return CycleResult{}, err
	}
	signals, err := deps.Store.DangerSignals(ctx, now)
	if err != nil {
		return CycleResult{}, err
	}

	var anchor *engine.AnchorDesignation
	if deps.Anchor != nil {
		anchor = deps.Anchor.Current(assignments, zones, deps.Policy, now)
	}

	plan := engine.PlanRotation(engine.PlanInput{
		Assignments: assignments,
		Zones:       zones,
		Danger:      engine.Classify(signals, now),
		Anchor:      anchor,
		Now:         now,
	}, deps.Policy, deps.Rand)

	if err := deps.Store.ApplyRotation(ctx, plan); err != nil {
		return CycleResult{}, err
	}
	if deps.Anchor != nil {
		deps.Anchor.Invalidate()
	}

	if plan.Degraded {
		deps.Logger.Warn("rotation cycle degraded",
			zap.String("plan_id", plan.ID),
			zap.Int("moved", plan.MovedCount()))
	} else {
		deps.Logger.Info("rotation applied",
			zap.String("plan_id", plan.ID),
			zap.Int("crews", len(plan.Moves)),
			zap.Int("moved", plan.MovedCount()))
	}

	return CycleResult{
		Triggered: true,
		Record: engine.RotationRecord{
			ID:         plan.ID,
			AppliedAt:  plan.PlannedAt,
			Degraded:   plan.Degraded,
			MovedCount: plan.MovedCount(),
			Moves:      plan.Moves,
		},
	}, nil
}

// =============================================================================
// SCHEDULER
// =============================================================================

// RotationScheduler runs rotation cycles on a fixed check interval.
type RotationScheduler struct {
	Store         engine.Store
	Policy        engine.Policy
	Logger        *zap.Logger
	Anchor        *AnchorTracker
	CheckInterval time.Duration
	Enabled       bool

	// NewRand builds the random source per cycle; overridable in tests.
	NewRand func() *rand.Rand

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRotationScheduler creates a scheduler checking every minute.
func NewRotationScheduler(store engine.Store, policy engine.Policy, logger *zap.Logger, anchor *AnchorTracker) *RotationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RotationScheduler{
		Store:         store,
		Policy:        policy,
		Logger:        logger,
		Anchor:        anchor,
		CheckInterval: time.Minute,
		Enabled:       true,
		NewRand:       func() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) },
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *RotationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("rotation scheduler disabled")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)
	go rs.run()

	rs.Logger.Info("rotation scheduler started",
		zap.Duration("check_interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for the loop to exit.
func (rs *RotationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Logger.Info("rotation scheduler stopped")
	}
}

func (rs *RotationScheduler) run() {
	defer rs.wg.Done()

	for {
		select {
		case <-rs.ticker.C:
			rs.check(false)
		case <-rs.stop:
			return
		}
	}
}

func (rs *RotationScheduler) check(force bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := RunRotationCycle(ctx, CycleDeps{
		Store:  rs.Store,
		Policy: rs.Policy,
		Logger: rs.Logger,
		Anchor: rs.Anchor,
		Rand:   rs.NewRand(),
	}, time.Now(), force)
	if err != nil {
		rs.Logger.Error("rotation cycle failed", zap.Error(err))
		return
	}
	if !result.Triggered && result.Skipped != "not a rotation boundary" {
		rs.Logger.Info("rotation skipped", zap.String("reason", result.Skipped))
	}
}

// RunNow triggers an immediate forced cycle (admin/testing).
func (rs *RotationScheduler) RunNow() {
	rs.check(true)
}
