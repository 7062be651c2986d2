/*
danger.go - Convert severity reports into a per-zone danger classification

PURPOSE:
  External feeds report zone incidents as severity-tagged signals with an
  expiry. The engine collapses them into a single severity per zone for
  the rotation planner and assignment engine to consume.

RULES:
  - Expired signals are inert (filtered against the caller's clock)
  - Multiple signals per zone collapse to the maximum severity
  - Ordering: low < medium < high < critical

SEE ALSO:
  - rotation.go: Evacuates high/critical zones, relocates the anchor on critical
  - assign.go: Skips dangerous zones when placing support crews
*/
package engine

import "time"

// Classify collapses raw danger signals into a per-zone severity map.
// Expired signals are dropped; duplicates per zone keep the maximum. Pure
// function.
func Classify(signals []DangerSignal, now time.Time) map[ZoneID]Severity {
	out := make(map[ZoneID]Severity)
	for _, sig := range signals {
		if sig.Expired(now) || !sig.Severity.Valid() {
			continue
		}
		if cur, ok := out[sig.ZoneID]; ok {
			out[sig.ZoneID] = MaxSeverity(cur, sig.Severity)
		} else {
			out[sig.ZoneID] = sig.Severity
		}
	}
	return out
}

// IsDangerous reports whether a zone is classified high or critical — the
// levels that force evacuation and block new placements.
func IsDangerous(danger map[ZoneID]Severity, zone ZoneID) bool {
	return danger[zone].AtLeast(SeverityHigh)
}

// IsCritical reports whether a zone is classified critical — the only
// level that moves the anchor.
func IsCritical(danger map[ZoneID]Severity, zone ZoneID) bool {
	return danger[zone] == SeverityCritical
}
