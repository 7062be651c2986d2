/*
funnel.go - Load-dependent probability curve steering arrivals to the anchor

PURPOSE:
  New participants are routed to the anchor crew with a probability that
  depends on the anchor's current size. The curve front-loads growth and
  then tapers so support zones still fill once the anchor has critical
  mass.

PHASES:
  build    S < ANCHOR_SIZE_MIN      p = 1.0
  growth   MIN <= S < TARGET        p = 0.5
  sustain  S >= TARGET              p = max(0.1, 300/S), monotonically decreasing

PRECISION:
  Probabilities are decimal.Decimal so phase thresholds compare exactly;
  the roll from the injected random source is converted once at the
  comparison site.

SEE ALSO:
  - assign.go: Applies the curve after the geographic gates
*/
package engine

import "github.com/shopspring/decimal"

var (
	funnelCertain = decimal.NewFromInt(1)
	funnelGrowth  = decimal.NewFromFloat(0.5)
	funnelFloor   = decimal.NewFromFloat(0.1)

	// sustainNumerator sets the taper: at anchor size S the sustain
	// probability is sustainNumerator/S until it hits the floor.
	sustainNumerator = decimal.NewFromInt(300)
)

// FunnelPhase names the anchor growth phase for a given size.
type FunnelPhase string

const (
	PhaseBuild   FunnelPhase = "build"
	PhaseGrowth  FunnelPhase = "growth"
	PhaseSustain FunnelPhase = "sustain"
)

// Phase returns the funnel phase for an anchor of the given size.
func (p Policy) Phase(anchorSize int) FunnelPhase {
	switch {
	case anchorSize < p.AnchorSizeMin:
		return PhaseBuild
	case anchorSize < p.AnchorSizeTarget:
		return PhaseGrowth
	default:
		return PhaseSustain
	}
}

// FunnelProbability returns the probability of routing a new participant to
// an anchor of the given size, absent geographic overrides.
func FunnelProbability(anchorSize int, policy Policy) decimal.Decimal {
	switch policy.Phase(anchorSize) {
	case PhaseBuild:
		return funnelCertain
	case PhaseGrowth:
		return funnelGrowth
	default:
		p := sustainNumerator.Div(decimal.NewFromInt(int64(anchorSize)))
		if p.LessThan(funnelFloor) {
			return funnelFloor
		}
		return p
	}
}

// rollPasses compares a [0,1) roll from the random source against a
// probability.
func rollPasses(roll float64, p decimal.Decimal) bool {
	return decimal.NewFromFloat(roll).LessThan(p)
}
