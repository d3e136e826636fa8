package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/paratemp/sim/trace"
)

// EngineState tracks the single-use lifecycle of an Engine.
type EngineState int

const (
	StateInitialized EngineState = iota
	StateRunning
	StateCompleted
	StateAborted // stopped by an error or by context cancellation
)

func (s EngineState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("EngineState(%d)", int(s))
}

// Callback observes the replicas after every completed iteration. The slice is
// a copy; returning an error aborts the run with a CallbackError.
type Callback[S any] func(iteration int, replicas []Replica[S]) error

// Engine runs parallel tempering over a fixed ladder of replicas.
//
// Each iteration performs a local phase (every slot advances independently,
// optionally on several goroutines) followed by one sequential swap sweep over
// adjacent pairs (0,1), (1,2), ..., (M-2,M-1). An Engine runs once; build a new
// one (or restore a checkpoint) to continue sampling.
//
// Engine methods are not safe for concurrent use.
type Engine[S any] struct {
	cfg     Config
	ladder  Ladder
	rule    AcceptanceRule
	energy  EnergyFunction[S]
	stepper LocalStepper[S]
	moves   LocalMoveMode

	replicas    []*Replica[S]
	rng         *PartitionedRNG
	replicaRNG  []*rand.Rand
	swapRNG     *rand.Rand
	diagnostics *SwapDiagnostics[S]
	metrics     *ExchangeMetrics
	trace       *trace.ExchangeTrace

	// per-slot local move counters for the current iteration; slot i is only
	// written by the goroutine updating slot i.
	localAccepted []int
	localRejected []int

	state     EngineState
	iteration int
	runID     string
	log       *logrus.Entry
}

// NewEngine validates cfg, builds the ladder and acceptance rule, and places
// the initial configurations. Pass one state to copy it into every slot, or
// exactly one state per slot (coldest first). Initial energies are evaluated
// with energy.
func NewEngine[S any](cfg Config, energy EnergyFunction[S], stepper LocalStepper[S], initial ...S) (*Engine[S], error) {
	e, err := newEngine(cfg, energy, stepper)
	if err != nil {
		return nil, err
	}
	m := e.ladder.Len()
	var states []S
	switch len(initial) {
	case 1:
		states = make([]S, m)
		for i := range states {
			states[i] = initial[0]
		}
	case m:
		states = initial
	default:
		return nil, configErrorf("initial_states", "got %d initial states for %d replicas (want 1 or %d)", len(initial), m, m)
	}

	e.replicas = make([]*Replica[S], m)
	for i, state := range states {
		en, err := energy.Energy(state)
		if err != nil {
			return nil, &EnergyEvaluationError{Phase: PhaseInit, Iteration: -1, Replica: i, Err: err}
		}
		e.replicas[i] = newReplica(i, e.ladder.Betas[i], state, en)
	}
	e.runID = uuid.NewString()
	e.log = logrus.WithField("run", e.runID)
	return e, nil
}

func newEngine[S any](cfg Config, energy EnergyFunction[S], stepper LocalStepper[S]) (*Engine[S], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if energy == nil {
		return nil, configErrorf("energy", "energy function is required")
	}
	if stepper == nil {
		return nil, configErrorf("stepper", "local stepper is required")
	}
	ladder, err := cfg.Ladder()
	if err != nil {
		return nil, err
	}
	rule, err := cfg.Rule()
	if err != nil {
		return nil, err
	}
	m := ladder.Len()
	slots, err := cfg.trajectorySlots(m)
	if err != nil {
		return nil, err
	}

	e := &Engine[S]{
		cfg:           cfg,
		ladder:        ladder,
		rule:          rule,
		energy:        energy,
		stepper:       stepper,
		moves:         cfg.localMoves(),
		diagnostics:   newSwapDiagnostics[S](m, slots, cfg.HistoryLimit),
		localAccepted: make([]int, m),
		localRejected: make([]int, m),
		state:         StateInitialized,
	}
	e.seedStreams(NewSimulationKey(cfg.Seed))
	return e, nil
}

// seedStreams derives one local-move stream per slot and the swap stream from key.
func (e *Engine[S]) seedStreams(key SimulationKey) {
	e.rng = NewPartitionedRNG(key)
	e.replicaRNG = make([]*rand.Rand, e.ladder.Len())
	for i := range e.replicaRNG {
		e.replicaRNG[i] = e.rng.ForSubsystem(SubsystemReplica(i))
	}
	e.swapRNG = e.rng.ForSubsystem(SubsystemSwap)
}

// SetMetrics attaches Prometheus collectors. Call before Run.
func (e *Engine[S]) SetMetrics(m *ExchangeMetrics) { e.metrics = m }

// SetTrace attaches a decision trace. Call before Run.
func (e *Engine[S]) SetTrace(t *trace.ExchangeTrace) { e.trace = t }

// RunID identifies this run in logs and checkpoints.
func (e *Engine[S]) RunID() string { return e.runID }

// State returns the lifecycle state.
func (e *Engine[S]) State() EngineState { return e.state }

// Iteration returns the number of completed iterations, including those
// completed before a checkpoint this engine was restored from.
func (e *Engine[S]) Iteration() int { return e.iteration }

// Ladder returns the temperature ladder.
func (e *Engine[S]) Ladder() Ladder { return e.ladder }

// Rule returns the acceptance rule.
func (e *Engine[S]) Rule() AcceptanceRule { return e.rule }

// Replicas returns a copy of the current replicas, coldest slot first.
func (e *Engine[S]) Replicas() []Replica[S] { return snapshot(e.replicas) }

// Diagnostics returns the swap diagnostics accumulated so far.
func (e *Engine[S]) Diagnostics() *SwapDiagnostics[S] { return e.diagnostics }

// Run performs iterations rounds of localSteps local moves per replica
// followed by one swap sweep, calling callback after each round.
//
// ctx is checked only between iterations; a sweep in progress always
// completes. On cancellation Run returns the replicas as of the last completed
// iteration together with an error wrapping ctx.Err().
func (e *Engine[S]) Run(ctx context.Context, iterations, localSteps int, callback Callback[S]) ([]Replica[S], error) {
	if e.state != StateInitialized {
		return nil, fmt.Errorf("run %s is %s: %w", e.runID, e.state, ErrEngineReused)
	}
	if iterations < 0 {
		return nil, configErrorf("iterations", "must be non-negative, got %d", iterations)
	}
	if localSteps < 0 {
		return nil, configErrorf("local_steps", "must be non-negative, got %d", localSteps)
	}

	e.state = StateRunning
	e.log.Infof("Starting tempering run: %d replicas, %d iterations x %d local steps (%s)",
		len(e.replicas), iterations, localSteps, e.moves)

	for n := 0; n < iterations; n++ {
		it := e.iteration
		if err := ctx.Err(); err != nil {
			e.state = StateAborted
			e.log.Warnf("Run stopped before iteration %d: %v", it, err)
			return snapshot(e.replicas), fmt.Errorf("run %s stopped before iteration %d: %w", e.runID, it, err)
		}

		start := time.Now()
		if err := e.localPhase(it, localSteps); err != nil {
			e.state = StateAborted
			return snapshot(e.replicas), err
		}
		e.swapPhase(it)
		e.diagnostics.recordIteration(e.replicas)
		e.iteration++
		e.metrics.observeIteration(time.Since(start))

		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			e.log.WithField("iteration", it).Debugf("cold E=%.6g swap acceptance=%s",
				e.replicas[0].energy, formatRate(e.diagnostics.GlobalAcceptanceRate()))
		}

		if callback != nil {
			if err := callback(it, snapshot(e.replicas)); err != nil {
				e.state = StateAborted
				return snapshot(e.replicas), &CallbackError{Iteration: it, Err: err}
			}
		}
	}

	e.state = StateCompleted
	e.log.Infof("Tempering run complete after %d iterations, swap acceptance=%s",
		e.iteration, formatRate(e.diagnostics.GlobalAcceptanceRate()))
	return snapshot(e.replicas), nil
}

// localPhase advances every slot by steps moves. Slots share no mutable state,
// so with Workers > 1 they run concurrently and join before the swap sweep.
func (e *Engine[S]) localPhase(iteration, steps int) error {
	if steps == 0 {
		return nil
	}
	if e.cfg.Workers <= 1 {
		for i := range e.replicas {
			if err := e.localUpdate(iteration, i, steps); err != nil {
				return err
			}
		}
	} else {
		var g errgroup.Group
		g.SetLimit(e.cfg.Workers)
		for i := range e.replicas {
			g.Go(func() error {
				return e.localUpdate(iteration, i, steps)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	if e.moves == LocalMovesProposal {
		for i := range e.replicas {
			e.metrics.observeLocal(i, e.localAccepted[i], e.localRejected[i])
			e.trace.RecordLocal(trace.LocalRecord{
				Iteration: iteration, Slot: i,
				Accepted: e.localAccepted[i], Rejected: e.localRejected[i],
			})
		}
	}
	return nil
}

func (e *Engine[S]) localUpdate(iteration, i, steps int) error {
	r := e.replicas[i]
	rng := e.replicaRNG[i]
	accepted, rejected := 0, 0
	for s := 0; s < steps; s++ {
		next, eNext, err := e.stepper.Step(r.state, r.beta, rng)
		if err != nil {
			return &EnergyEvaluationError{Phase: PhaseLocal, Iteration: iteration, Replica: i, Err: fmt.Errorf("local step failed: %w", err)}
		}
		if e.moves == LocalMovesAccepted {
			r.setConfiguration(next, eNext)
			continue
		}
		if rng.Float64() < e.rule.LocalAcceptance(r.beta, r.energy, eNext) {
			r.setConfiguration(next, eNext)
			accepted++
		} else {
			rejected++
		}
	}
	e.localAccepted[i], e.localRejected[i] = accepted, rejected
	return nil
}

// swapPhase sweeps adjacent pairs in ladder order. Each pair uses one shared
// draw, and a configuration swapped into slot i+1 takes part in pair (i+1, i+2).
func (e *Engine[S]) swapPhase(iteration int) {
	for i := 0; i+1 < len(e.replicas); i++ {
		lo, hi := e.replicas[i], e.replicas[i+1]
		p := e.rule.SwapAcceptance(lo.beta, hi.beta, lo.energy, hi.energy)
		accepted := e.swapRNG.Float64() < p
		e.trace.RecordSwap(trace.SwapRecord{
			Iteration: iteration, Lower: i,
			EnergyLower: lo.energy, EnergyUpper: hi.energy,
			Probability: p, Accepted: accepted,
		})
		if accepted {
			exchange(lo, hi)
		}
		e.diagnostics.recordSwap(i, accepted)
		e.metrics.observeSwap(Pair{I: i, J: i + 1}, accepted)
	}
}
