// Package models provides small energy landscapes and proposal kernels for
// exercising the tempering engine: a tilted one-dimensional double well with
// analytic well occupancies, and a discrete level system with exact weights.
package models

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/integrate/quad"

	"github.com/inference-sim/paratemp/sim"
)

// DoubleWell is E(x) = Height*(x^2 - 1)^2 + Tilt*x. Minima sit near x = ±1 and
// the barrier at x = 0 has height Height. A positive Tilt favours the left well.
type DoubleWell struct {
	Height float64
	Tilt   float64
}

// Energy implements sim.EnergyFunction.
func (w DoubleWell) Energy(x float64) (float64, error) {
	d := x*x - 1
	return w.Height*d*d + w.Tilt*x, nil
}

// quadPoints is the Gauss-Legendre order per half-line.
const quadPoints = 400

// LeftOccupancy returns the exact Boltzmann probability that x < 0 at beta,
// integrating exp(-beta*E) over each half-line with Gauss-Legendre quadrature.
func (w DoubleWell) LeftOccupancy(beta float64) float64 {
	weight := func(x float64) float64 {
		e, _ := w.Energy(x)
		return math.Exp(-beta * e)
	}
	bound := w.integrationBound(beta)
	left := quad.Fixed(weight, -bound, 0, quadPoints, nil, 0)
	right := quad.Fixed(weight, 0, bound, quadPoints, nil, 0)
	return left / (left + right)
}

// integrationBound widens [-b, b] until the weight at both ends is below e^-60.
func (w DoubleWell) integrationBound(beta float64) float64 {
	bound := 2.0
	for i := 0; i < 64; i++ {
		lo, _ := w.Energy(-bound)
		hi, _ := w.Energy(bound)
		if beta*math.Min(lo, hi) > 60 {
			break
		}
		bound *= 1.5
	}
	return bound
}

// GaussianWalk proposes x' = x + N(0, StepSize^2). With Metropolis set it also
// applies Boltzmann acceptance itself, which is the contract for
// sim.LocalMovesAccepted; otherwise it returns the raw proposal.
type GaussianWalk struct {
	Energy     sim.EnergyFunction[float64]
	StepSize   float64
	Metropolis bool
}

// Step implements sim.LocalStepper.
func (g GaussianWalk) Step(x, beta float64, rng *rand.Rand) (float64, float64, error) {
	if g.StepSize <= 0 {
		return x, 0, fmt.Errorf("gaussian walk: step size must be positive, got %v", g.StepSize)
	}
	proposal := x + rng.NormFloat64()*g.StepSize
	eProp, err := g.Energy.Energy(proposal)
	if err != nil {
		return x, 0, err
	}
	if !g.Metropolis {
		return proposal, eProp, nil
	}
	eCur, err := g.Energy.Energy(x)
	if err != nil {
		return x, 0, err
	}
	if rng.Float64() < (sim.Boltzmann{}).LocalAcceptance(beta, eCur, eProp) {
		return proposal, eProp, nil
	}
	return x, eCur, nil
}
