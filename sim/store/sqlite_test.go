package store

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/paratemp/sim"
	"github.com/inference-sim/paratemp/sim/calibration"
)

var quadratic = sim.EnergyFunc[float64](func(x float64) (float64, error) { return x * x, nil })

var walk = sim.StepFunc[float64](func(x, _ float64, rng *rand.Rand) (float64, float64, error) {
	y := x + rng.NormFloat64()*0.5
	return y, y * y, nil
})

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "paratemp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCheckpoint(runID string, iteration int) sim.Checkpoint[float64] {
	return sim.Checkpoint[float64]{
		RunID:     runID,
		Iteration: iteration,
		Seed:      42,
		Replicas: []sim.ReplicaCheckpoint[float64]{
			{Index: 0, Beta: 1, Energy: 0.25, State: 0.5},
			{Index: 1, Beta: 0.5, Energy: 4, State: -2},
		},
		Pairs: []sim.PairStats{{Pair: sim.Pair{I: 0, J: 1}, Attempted: 10, Accepted: 3}},
	}
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	// GIVEN a stored checkpoint
	s := openTestStore(t)
	cp := testCheckpoint("run-a", 10)
	id, err := SaveCheckpoint(context.Background(), s, cp)
	require.NoError(t, err)
	assert.Positive(t, id)

	// WHEN loading it back
	got, err := LoadLatestCheckpoint[float64](context.Background(), s, "run-a")

	// THEN every field survives
	require.NoError(t, err)
	assert.Equal(t, cp, got)
}

func TestCheckpoint_NonFiniteEnergyLoadsAsNaN(t *testing.T) {
	s := openTestStore(t)
	cp := testCheckpoint("run-nan", 1)
	cp.Replicas[1].Energy = math.Inf(1)

	_, err := SaveCheckpoint(context.Background(), s, cp)
	require.NoError(t, err)
	got, err := LoadLatestCheckpoint[float64](context.Background(), s, "run-nan")
	require.NoError(t, err)

	assert.Equal(t, 0.25, got.Replicas[0].Energy)
	assert.True(t, math.IsNaN(got.Replicas[1].Energy))
}

func TestCheckpoint_StructuredState(t *testing.T) {
	type point struct {
		X, Y float64
		Tag  string
	}
	s := openTestStore(t)
	cp := sim.Checkpoint[point]{
		RunID: "run-struct",
		Replicas: []sim.ReplicaCheckpoint[point]{
			{Index: 0, Beta: 1, Energy: 1, State: point{X: 1, Y: -1, Tag: "a"}},
		},
	}
	_, err := SaveCheckpoint(context.Background(), s, cp)
	require.NoError(t, err)

	got, err := LoadLatestCheckpoint[point](context.Background(), s, "run-struct")
	require.NoError(t, err)
	assert.Equal(t, point{X: 1, Y: -1, Tag: "a"}, got.Replicas[0].State)
	assert.Empty(t, got.Pairs)
}

func TestLoadLatestCheckpoint_SelectsByRun(t *testing.T) {
	// GIVEN two runs, the first with two checkpoints saved out of order
	s := openTestStore(t)
	ctx := context.Background()
	for _, cp := range []sim.Checkpoint[float64]{
		testCheckpoint("run-a", 20),
		testCheckpoint("run-a", 10),
		testCheckpoint("run-b", 5),
	} {
		_, err := SaveCheckpoint(ctx, s, cp)
		require.NoError(t, err)
	}

	// THEN a named run resolves to its highest iteration
	got, err := LoadLatestCheckpoint[float64](ctx, s, "run-a")
	require.NoError(t, err)
	assert.Equal(t, 20, got.Iteration)

	// THEN an empty run ID resolves to the most recently saved checkpoint
	got, err = LoadLatestCheckpoint[float64](ctx, s, "")
	require.NoError(t, err)
	assert.Equal(t, "run-b", got.RunID)

	// THEN an unknown run is not found
	_, err = LoadLatestCheckpoint[float64](ctx, s, "run-zzz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadLatestCheckpoint_EmptyStore(t *testing.T) {
	s := openTestStore(t)
	_, err := LoadLatestCheckpoint[float64](context.Background(), s, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = SaveCheckpoint(ctx, s, testCheckpoint("run-a", 3))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
	got, err := LoadLatestCheckpoint[float64](ctx, s, "run-a")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Iteration)
}

func TestInitSchema_RejectsNewerVersion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.db.ExecContext(ctx, `INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, SchemaVersion+1)
	require.NoError(t, err)

	err = InitSchema(ctx, s.db)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestCheckpoint_RestoresEngine(t *testing.T) {
	// GIVEN an engine run for 50 iterations and checkpointed
	ctx := context.Background()
	s := openTestStore(t)
	cfg := sim.Config{TMin: 1, TMax: 4, Replicas: 3, Seed: 9}
	e, err := sim.NewEngine(cfg, quadratic, walk, 0.0)
	require.NoError(t, err)
	_, err = e.Run(ctx, 50, 2, nil)
	require.NoError(t, err)
	_, err = SaveCheckpoint(ctx, s, e.Checkpoint())
	require.NoError(t, err)

	// WHEN restoring from the stored copy
	cp, err := LoadLatestCheckpoint[float64](ctx, s, e.RunID())
	require.NoError(t, err)
	restored, err := sim.RestoreEngine(cfg, quadratic, walk, cp)
	require.NoError(t, err)

	// THEN slots, energies and counters carry over and the run continues
	assert.Equal(t, 50, restored.Iteration())
	for i, r := range restored.Replicas() {
		orig := e.Replicas()[i]
		assert.Equal(t, orig.State(), r.State())
		assert.Equal(t, orig.Energy(), r.Energy())
		assert.Equal(t, orig.Beta(), r.Beta())
	}
	assert.Equal(t, e.Diagnostics().PairStats(), restored.Diagnostics().PairStats())

	_, err = restored.Run(ctx, 10, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 60, restored.Iteration())
	assert.Equal(t, 60*2, restored.Diagnostics().Attempted())
}

func TestTrials_RoundTrip(t *testing.T) {
	// GIVEN a usable and an unusable trial recorded under one run
	ctx := context.Background()
	s := openTestStore(t)
	usable := calibration.Trial{
		Position: 0, Replicas: 4, Seed: 11, Attempted: 30, Accepted: 9,
		Rate: 0.3, Deviation: 0.05, Usable: true,
	}
	unusable := calibration.Trial{
		Position: 1, Replicas: 1, Seed: 12,
		Rate: math.NaN(), Deviation: math.Inf(1), Reason: "M=1 has no adjacent pairs",
	}
	require.NoError(t, s.RecordTrial(ctx, "cal-1", unusable))
	require.NoError(t, s.RecordTrial(ctx, "cal-1", usable))
	require.NoError(t, s.RecordTrial(ctx, "cal-2", usable))

	// WHEN reading the run back
	got, err := s.Trials(ctx, "cal-1")
	require.NoError(t, err)

	// THEN trials come back in position order with non-finite fields restored
	require.Len(t, got, 2)
	assert.Equal(t, usable, got[0])
	assert.Equal(t, 1, got[1].Replicas)
	assert.False(t, got[1].Usable)
	assert.True(t, math.IsNaN(got[1].Rate))
	assert.True(t, math.IsInf(got[1].Deviation, 1))
	assert.Equal(t, unusable.Reason, got[1].Reason)
}

func TestRecordTrial_ReplacesSamePosition(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	first := calibration.Trial{Position: 0, Replicas: 2, Attempted: 5, Accepted: 1, Rate: 0.2, Deviation: 0.05, Usable: true}
	second := first
	second.Accepted = 4
	second.Rate = 0.8

	require.NoError(t, s.RecordTrial(ctx, "cal", first))
	require.NoError(t, s.RecordTrial(ctx, "cal", second))

	got, err := s.Trials(ctx, "cal")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].Accepted)
}

func TestStore_ImplementsTrialSink(t *testing.T) {
	// GIVEN a calibration search that records into the store
	ctx := context.Background()
	s := openTestStore(t)
	opts := calibration.Options[float64]{
		Candidates:      []int{1, 2, 3},
		TrialIterations: 40,
		Base:            sim.Config{TMin: 1, TMax: 3},
		Energy:          quadratic,
		Stepper:         walk,
		Seed:            5,
		Sink:            s,
		RunID:           "cal-sink",
	}

	result, err := calibration.SelectReplicaCount(ctx, opts)
	require.NoError(t, err)

	// THEN the store holds one row per candidate
	got, err := s.Trials(ctx, "cal-sink")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, tr := range got {
		assert.Equal(t, result.Trials[i].Replicas, tr.Replicas)
		assert.Equal(t, result.Trials[i].Usable, tr.Usable)
	}
}
