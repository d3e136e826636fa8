package sim

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Spacing selects how temperatures are distributed between TMin and TMax.
type Spacing string

const (
	// SpacingGeometric places T_i = TMin * r^i; it yields near-uniform swap
	// acceptance across the ladder (Kofke, 2002) and is the default.
	SpacingGeometric Spacing = "geometric"
	// SpacingLinear places uniform steps in T (not in beta).
	SpacingLinear Spacing = "linear"
)

// ValidSpacings is the set of recognized spacing names. Empty means geometric.
var ValidSpacings = map[Spacing]bool{"": true, SpacingGeometric: true, SpacingLinear: true}

// Ladder is an ordered set of temperatures and the matching inverse temperatures.
// Temperatures ascend strictly, so Betas descend strictly; slot 0 is the coldest.
type Ladder struct {
	Temperatures []float64
	Betas        []float64
}

// Len returns the number of ladder slots.
func (l Ladder) Len() int { return len(l.Betas) }

// GenerateLadder builds M temperatures between tMin and tMax (both inclusive)
// and converts them to beta_i = 1/(kB*T_i). kB <= 0 is rejected; pass 1 for
// reduced units.
func GenerateLadder(tMin, tMax float64, m int, spacing Spacing, kB float64) (Ladder, error) {
	if m < 2 {
		return Ladder{}, configErrorf("replicas", "need at least 2 replicas, got %d", m)
	}
	if math.IsNaN(tMin) || math.IsInf(tMin, 0) || math.IsNaN(tMax) || math.IsInf(tMax, 0) {
		return Ladder{}, configErrorf("t_min/t_max", "temperatures must be finite, got [%v, %v]", tMin, tMax)
	}
	if tMin <= 0 {
		return Ladder{}, configErrorf("t_min", "must be positive, got %v", tMin)
	}
	if tMax <= tMin {
		return Ladder{}, configErrorf("t_max", "must exceed t_min (%v), got %v", tMin, tMax)
	}

	temps := make([]float64, m)
	switch spacing {
	case "", SpacingGeometric:
		r := math.Pow(tMax/tMin, 1.0/float64(m-1))
		for i := range temps {
			temps[i] = tMin * math.Pow(r, float64(i))
		}
		// r^(M-1) may round a few ulps away from tMax.
		temps[0], temps[m-1] = tMin, tMax
	case SpacingLinear:
		floats.Span(temps, tMin, tMax)
	default:
		return Ladder{}, configErrorf("spacing", "unknown spacing %q (want geometric or linear)", spacing)
	}
	return ladderFromSorted(temps, kB)
}

// LadderFromTemperatures builds a ladder from an explicit temperature list.
// The list is copied and sorted ascending; duplicates are rejected because two
// slots at the same temperature would make the ladder non-monotonic.
func LadderFromTemperatures(temps []float64, kB float64) (Ladder, error) {
	if len(temps) < 2 {
		return Ladder{}, configErrorf("temperatures", "need at least 2 temperatures, got %d", len(temps))
	}
	sorted := make([]float64, len(temps))
	copy(sorted, temps)
	sort.Float64s(sorted)
	for i, t := range sorted {
		if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 {
			return Ladder{}, configErrorf("temperatures", "must be positive and finite, got %v", t)
		}
		if i > 0 && t == sorted[i-1] {
			return Ladder{}, configErrorf("temperatures", "duplicate temperature %v", t)
		}
	}
	return ladderFromSorted(sorted, kB)
}

func ladderFromSorted(temps []float64, kB float64) (Ladder, error) {
	if math.IsNaN(kB) || math.IsInf(kB, 0) || kB <= 0 {
		return Ladder{}, configErrorf("k_b", "must be positive and finite, got %v", kB)
	}
	betas := make([]float64, len(temps))
	for i, t := range temps {
		betas[i] = 1.0 / (kB * t)
	}
	return Ladder{Temperatures: temps, Betas: betas}, nil
}
