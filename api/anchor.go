/*
anchor.go - Memoized anchor derivation shared by handlers and scheduler

PURPOSE:
  The anchor designation is derived state: recomputed from crew sizes and
  zone kinds, never persisted. This tracker memoizes the last derivation
  for the configured re-evaluation interval so every assignment request
  doesn't rescore candidates, while remaining correct from a cold start —
  an empty tracker simply derives from scratch.

  The previous designation is fed back into SelectAnchor for the
  stability bonus and the build-phase thrash guard.

SEE ALSO:
  - engine/anchor.go: The selection algorithm
*/
package api

import (
	"sync"
	"time"

	"github.com/murmuration/rotation-engine/engine"
)

// AnchorTracker re-derives the anchor designation on demand, at most once
// per re-evaluation interval. Safe for concurrent use.
type AnchorTracker struct {
	mu        sync.Mutex
	current   *engine.AnchorDesignation
	derivedAt time.Time
}

func NewAnchorTracker() *AnchorTracker {
	return &AnchorTracker{}
}

// Current returns the anchor designation for the given snapshot,
// re-deriving it when the memoized value is stale. May return nil: "no
// anchor" is a valid steady state.
func (t *AnchorTracker) Current(assignments []engine.CrewAssignment, zones []engine.Zone, policy engine.Policy, now time.Time) *engine.AnchorDesignation {
	t.mu.Lock()
	defer t.mu.Unlock()

	interval := time.Duration(policy.AnchorReevaluationMinutes) * time.Minute
	if t.current != nil || !t.derivedAt.IsZero() {
		if now.Sub(t.derivedAt) < interval {
			return t.current
		}
	}

	zoneMap := make(map[engine.ZoneID]engine.Zone, len(zones))
	for _, z := range zones {
		zoneMap[z.ID] = z
	}
	t.current = engine.SelectAnchor(assignments, zoneMap, t.current, policy)
	t.derivedAt = now
	return t.current
}

// Invalidate drops the memoized designation so the next Current call
// re-derives. Used after rotations move crews around.
func (t *AnchorTracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.derivedAt = time.Time{}
}
