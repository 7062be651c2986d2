/*
schedule.go - Rotation boundary detection with an idempotency window

PURPOSE:
  Decides whether "now" is a rotation boundary. Stateless time check plus
  a guard against duplicate triggers (retried cron invocations firing in
  the same window).

RULES:
  - Boundaries are minute 0 and minute 30 of every hour
  - A rotation recorded within the trailing 5 minutes suppresses the boundary

NOTE:
  This check is advisory. The durable guard is the store's atomic
  check-and-set (TryMarkRotation); the scheduler re-verifies there at the
  point of write because concurrent trigger firings can race the read here.

SEE ALSO:
  - store.go: RotationStore.TryMarkRotation
  - api/scheduler.go: The periodic trigger loop
*/
package engine

import "time"

// RotationGuardWindow is how long after a recorded rotation further
// triggers in the same boundary are suppressed.
const RotationGuardWindow = 5 * time.Minute

// IsRotationDue reports whether a rotation should run at the given time.
// True iff the minute is 0 or 30 and none of the recorded rotation
// timestamps falls within the trailing guard window.
func IsRotationDue(now time.Time, lastRotations ...time.Time) bool {
	m := now.Minute()
	if m != 0 && m != 30 {
		return false
	}
	for _, ts := range lastRotations {
		if ts.IsZero() {
			continue
		}
		if !ts.After(now) && now.Sub(ts) < RotationGuardWindow {
			return false
		}
	}
	return true
}
