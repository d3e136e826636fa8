package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// ReplicaCheckpoint is the persisted form of one ladder slot.
type ReplicaCheckpoint[S any] struct {
	Index  int     `json:"index"`
	Beta   float64 `json:"beta"`
	Energy float64 `json:"energy"`
	State  S       `json:"state"`
}

// Checkpoint captures everything needed to continue a run: the full replica
// array, the swap counters and the iteration count. RNG positions are not
// captured; a restored engine derives fresh streams from (Seed, Iteration), so
// resuming the same checkpoint with the same seed is deterministic.
type Checkpoint[S any] struct {
	RunID     string                 `json:"run_id"`
	Iteration int                    `json:"iteration"`
	Seed      int64                  `json:"seed"`
	Replicas  []ReplicaCheckpoint[S] `json:"replicas"`
	Pairs     []PairStats            `json:"pairs"`
}

// Checkpoint snapshots the engine between iterations.
func (e *Engine[S]) Checkpoint() Checkpoint[S] {
	cp := Checkpoint[S]{
		RunID:     e.runID,
		Iteration: e.iteration,
		Seed:      e.cfg.Seed,
		Replicas:  make([]ReplicaCheckpoint[S], len(e.replicas)),
		Pairs:     e.diagnostics.PairStats(),
	}
	for i, r := range e.replicas {
		cp.Replicas[i] = ReplicaCheckpoint[S]{Index: r.index, Beta: r.beta, Energy: r.energy, State: r.state}
	}
	return cp
}

// betaTolerance absorbs float formatting differences between ladder rebuilds.
const betaTolerance = 1e-12

// RestoreEngine rebuilds a fresh engine from cfg and loads the checkpointed
// replicas and swap counters into it. The checkpoint's betas must match the
// ladder cfg produces. Cached energies are taken from the checkpoint as-is.
func RestoreEngine[S any](cfg Config, energy EnergyFunction[S], stepper LocalStepper[S], cp Checkpoint[S]) (*Engine[S], error) {
	e, err := newEngine(cfg, energy, stepper)
	if err != nil {
		return nil, err
	}
	m := e.ladder.Len()
	if len(cp.Replicas) != m {
		return nil, configErrorf("checkpoint", "has %d replicas, ladder has %d", len(cp.Replicas), m)
	}
	e.replicas = make([]*Replica[S], m)
	for i, rc := range cp.Replicas {
		beta := e.ladder.Betas[i]
		if rc.Index != i {
			return nil, configErrorf("checkpoint", "replica %d stored at slot %d", rc.Index, i)
		}
		if math.Abs(rc.Beta-beta) > betaTolerance*math.Max(1, math.Abs(beta)) {
			return nil, configErrorf("checkpoint", "slot %d beta %v does not match ladder beta %v", i, rc.Beta, beta)
		}
		e.replicas[i] = newReplica(i, beta, rc.State, rc.Energy)
	}
	if err := e.diagnostics.restorePairs(cp.Pairs); err != nil {
		return nil, err
	}
	if cp.Iteration < 0 {
		return nil, configErrorf("checkpoint", "negative iteration %d", cp.Iteration)
	}
	e.iteration = cp.Iteration
	if cp.Iteration > 0 {
		e.seedStreams(ResumeKey(cfg.Seed, cp.Iteration))
	}
	e.runID = cp.RunID
	if e.runID == "" {
		return nil, configErrorf("checkpoint", "missing run id")
	}
	e.log = logrus.WithField("run", e.runID)
	e.log.Infof("Restored %d replicas at iteration %d", m, cp.Iteration)
	return e, nil
}

// ResumeKey derives the SimulationKey for streams resumed at iteration.
func ResumeKey(seed int64, iteration int) SimulationKey {
	return NewSimulationKey(seed ^ fnv1a64(fmt.Sprintf("resume_%d", iteration)))
}

func (cp Checkpoint[S]) String() string {
	return fmt.Sprintf("checkpoint run=%s iteration=%d replicas=%d", cp.RunID, cp.Iteration, len(cp.Replicas))
}
