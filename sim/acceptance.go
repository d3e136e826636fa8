package sim

import (
	"math"
)

// Distribution names the stationary density each replica samples.
type Distribution string

const (
	DistributionBoltzmann Distribution = "boltzmann"
	DistributionTsallis   Distribution = "tsallis"
)

// ValidDistributions is the set of recognized distribution names. Empty means boltzmann.
var ValidDistributions = map[Distribution]bool{"": true, DistributionBoltzmann: true, DistributionTsallis: true}

// minLogAcceptance is the smallest exponent math.Exp maps to a nonzero float64.
const minLogAcceptance = -745.0

// AcceptanceRule computes Metropolis acceptance probabilities for a target density.
// Implementations must return values in [0, 1] for every input, including NaN and
// infinite energies.
type AcceptanceRule interface {
	// LogWeight returns log pi(E) at inverse temperature beta, up to an additive
	// constant. -Inf means the energy lies outside the density's support.
	LogWeight(energy, beta float64) float64
	// LocalAcceptance is min(1, pi_beta(eNew) / pi_beta(eOld)). A non-finite
	// eNew is rejected; a non-finite eOld accepts any eNew inside the support,
	// so a slot holding an unusable energy recovers on its next move.
	LocalAcceptance(beta, eOld, eNew float64) float64
	// SwapAcceptance is min(1, [pi_i(Ej) pi_j(Ei)] / [pi_i(Ei) pi_j(Ej)]) for
	// exchanging configurations between slots at betaI and betaJ.
	SwapAcceptance(betaI, betaJ, eI, eJ float64) float64
}

// NewAcceptanceRule returns the rule for dist. q is only read for Tsallis.
func NewAcceptanceRule(dist Distribution, q float64) (AcceptanceRule, error) {
	switch dist {
	case "", DistributionBoltzmann:
		return Boltzmann{}, nil
	case DistributionTsallis:
		t, err := NewTsallis(q)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, configErrorf("distribution", "unknown distribution %q (want boltzmann or tsallis)", dist)
	}
}

// Boltzmann is the canonical density pi(E) ∝ exp(-beta*E).
type Boltzmann struct{}

func (Boltzmann) LogWeight(energy, beta float64) float64 {
	return -beta * energy
}

func (b Boltzmann) LocalAcceptance(beta, eOld, eNew float64) float64 {
	if !finite(eNew) {
		return 0
	}
	if !finite(eOld) {
		return 1
	}
	return acceptanceFromLog(-beta * (eNew - eOld))
}

// SwapAcceptance reduces to min(1, exp((betaI-betaJ)*(eI-eJ))).
func (b Boltzmann) SwapAcceptance(betaI, betaJ, eI, eJ float64) float64 {
	if !finite(eI) || !finite(eJ) {
		return 0
	}
	return acceptanceFromLog((betaI - betaJ) * (eI - eJ))
}

// Tsallis is the generalized density pi(E) ∝ [1 - (1-q)*beta*E]^(1/(1-q)).
// It approaches Boltzmann as q -> 1; q == 1 itself is rejected.
type Tsallis struct {
	q float64
}

// NewTsallis validates q and returns the rule.
func NewTsallis(q float64) (Tsallis, error) {
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return Tsallis{}, configErrorf("q", "must be finite, got %v", q)
	}
	if q == 1 {
		return Tsallis{}, configErrorf("q", "q = 1 divides by zero in the Tsallis exponent; use distribution boltzmann")
	}
	return Tsallis{q: q}, nil
}

// Q returns the Tsallis parameter.
func (t Tsallis) Q() float64 { return t.q }

func (t Tsallis) LogWeight(energy, beta float64) float64 {
	base := 1.0 - (1.0-t.q)*beta*energy
	if base <= 0 {
		return math.Inf(-1)
	}
	return math.Log(base) / (1.0 - t.q)
}

func (t Tsallis) LocalAcceptance(beta, eOld, eNew float64) float64 {
	if !finite(eNew) {
		return 0
	}
	if !finite(eOld) {
		if math.IsInf(t.LogWeight(eNew, beta), -1) {
			return 0
		}
		return 1
	}
	return acceptanceFromLog(t.LogWeight(eNew, beta) - t.LogWeight(eOld, beta))
}

func (t Tsallis) SwapAcceptance(betaI, betaJ, eI, eJ float64) float64 {
	if !finite(eI) || !finite(eJ) {
		return 0
	}
	num := t.LogWeight(eJ, betaI) + t.LogWeight(eI, betaJ)
	den := t.LogWeight(eI, betaI) + t.LogWeight(eJ, betaJ)
	return acceptanceFromLog(num - den)
}

// acceptanceFromLog maps a log acceptance ratio to a probability in [0, 1].
// NaN (e.g. -Inf - -Inf) rejects; anything >= 0, +Inf included, accepts.
func acceptanceFromLog(logA float64) float64 {
	switch {
	case math.IsNaN(logA):
		return 0
	case logA >= 0:
		return 1
	case logA < minLogAcceptance:
		return 0
	}
	return math.Exp(logA)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
