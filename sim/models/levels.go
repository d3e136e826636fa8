package models

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/inference-sim/paratemp/sim"
)

// Levels is a discrete system whose state is a level index with a fixed energy.
// Its stationary distribution can be computed exactly for any AcceptanceRule.
type Levels struct {
	Energies []float64
}

// Energy implements sim.EnergyFunction.
func (l Levels) Energy(level int) (float64, error) {
	if level < 0 || level >= len(l.Energies) {
		return 0, fmt.Errorf("level %d out of range [0,%d)", level, len(l.Energies))
	}
	return l.Energies[level], nil
}

// Step proposes a uniformly random level, a symmetric proposal suitable for
// sim.LocalMovesProposal.
func (l Levels) Step(_ int, _ float64, rng *rand.Rand) (int, float64, error) {
	next := rng.Intn(len(l.Energies))
	return next, l.Energies[next], nil
}

// Weights returns the normalized stationary probabilities of every level
// under rule at beta. Levels outside the rule's support get weight 0.
func (l Levels) Weights(rule sim.AcceptanceRule, beta float64) []float64 {
	logs := make([]float64, len(l.Energies))
	maxLog := math.Inf(-1)
	for i, e := range l.Energies {
		logs[i] = rule.LogWeight(e, beta)
		maxLog = math.Max(maxLog, logs[i])
	}
	weights := make([]float64, len(logs))
	total := 0.0
	for i, lw := range logs {
		weights[i] = math.Exp(lw - maxLog)
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}
