package sim

import "math/rand"

// EnergyFunction evaluates a configuration. It must be free of side effects.
// A returned error aborts the run; a NaN or infinite energy is a legal value
// that every acceptance test rejects.
type EnergyFunction[S any] interface {
	Energy(state S) (float64, error)
}

// EnergyFunc adapts an ordinary function to EnergyFunction.
type EnergyFunc[S any] func(state S) (float64, error)

func (f EnergyFunc[S]) Energy(state S) (float64, error) { return f(state) }

// LocalStepper performs one single-temperature move from state at beta and
// returns the next state with its energy. Whether the returned pair is a raw
// proposal or an already-accepted state is fixed by Config.LocalMoves.
//
// Steppers must not mutate the input state; return a fresh value instead.
// rng belongs to the replica slot and must not be retained.
type LocalStepper[S any] interface {
	Step(state S, beta float64, rng *rand.Rand) (S, float64, error)
}

// StepFunc adapts an ordinary function to LocalStepper.
type StepFunc[S any] func(state S, beta float64, rng *rand.Rand) (S, float64, error)

func (f StepFunc[S]) Step(state S, beta float64, rng *rand.Rand) (S, float64, error) {
	return f(state, beta, rng)
}

// Replica is one ladder slot. Index and Beta never change after creation;
// the configuration (state + cached energy) moves between slots on swaps.
type Replica[S any] struct {
	state  S
	energy float64
	beta   float64
	index  int
}

func newReplica[S any](index int, beta float64, state S, energy float64) *Replica[S] {
	return &Replica[S]{state: state, energy: energy, beta: beta, index: index}
}

// Index returns the ladder slot, 0 being the coldest.
func (r Replica[S]) Index() int { return r.index }

// Beta returns the slot's inverse temperature.
func (r Replica[S]) Beta() float64 { return r.beta }

// State returns the configuration currently held by the slot.
func (r Replica[S]) State() S { return r.state }

// Energy returns the cached energy of State.
func (r Replica[S]) Energy() float64 { return r.energy }

// setConfiguration is the only writer of state and energy, which keeps them in sync.
func (r *Replica[S]) setConfiguration(state S, energy float64) {
	r.state = state
	r.energy = energy
}

// exchange swaps configurations between a and b; index and beta stay put.
func exchange[S any](a, b *Replica[S]) {
	aState, aEnergy := a.state, a.energy
	a.setConfiguration(b.state, b.energy)
	b.setConfiguration(aState, aEnergy)
}

func snapshot[S any](replicas []*Replica[S]) []Replica[S] {
	out := make([]Replica[S], len(replicas))
	for i, r := range replicas {
		out[i] = *r
	}
	return out
}
