package sim

import (
	"errors"
	"math/rand"
)

// testConfig returns a valid m-replica Boltzmann config on T in [1, 4].
func testConfig(m int) Config {
	return Config{TMin: 1, TMax: 4, Replicas: m, Seed: 42}
}

// quadratic is E(x) = x^2.
var quadratic = EnergyFunc[float64](func(x float64) (float64, error) { return x * x, nil })

// gaussianProposal returns a raw Gaussian random-walk proposal on quadratic.
func gaussianProposal(step float64) StepFunc[float64] {
	return func(x, _ float64, rng *rand.Rand) (float64, float64, error) {
		y := x + rng.NormFloat64()*step
		return y, y * y, nil
	}
}

// levelEnergy maps an integer state to its own value as energy.
var levelEnergy = EnergyFunc[int](func(s int) (float64, error) { return float64(s), nil })

// frozen never moves, so only swaps change the configuration of a slot.
var frozen = StepFunc[int](func(s int, _ float64, _ *rand.Rand) (int, float64, error) {
	return s, float64(s), nil
})

var errBoom = errors.New("boom")
