package calibration

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/paratemp/sim"
)

var quadratic = sim.EnergyFunc[float64](func(x float64) (float64, error) { return x * x, nil })

func gaussianProposal(step float64) sim.StepFunc[float64] {
	return func(x, _ float64, rng *rand.Rand) (float64, float64, error) {
		y := x + rng.NormFloat64()*step
		return y, y * y, nil
	}
}

// flat has the same energy everywhere, so every swap is accepted.
var flat = sim.EnergyFunc[int](func(int) (float64, error) { return 0, nil })

var frozen = sim.StepFunc[int](func(s int, _ float64, _ *rand.Rand) (int, float64, error) {
	return s, 0, nil
})

func quadraticOptions(candidates ...int) Options[float64] {
	return Options[float64]{
		Candidates:      candidates,
		TrialIterations: 300,
		LocalSteps:      2,
		Base:            sim.Config{TMin: 1, TMax: 8},
		Energy:          quadratic,
		Stepper:         gaussianProposal(0.7),
		Initial:         0.0,
		Seed:            7,
	}
}

type recordingSink struct {
	runIDs []string
	trials []Trial
	err    error
}

func (s *recordingSink) RecordTrial(_ context.Context, runID string, t Trial) error {
	s.runIDs = append(s.runIDs, runID)
	s.trials = append(s.trials, t)
	return s.err
}

func TestSelectReplicaCount_ChoosesClosestToTarget(t *testing.T) {
	// GIVEN three usable candidates on a quadratic well
	opts := quadraticOptions(2, 4, 8)
	opts.TargetAcceptance = 0.5

	// WHEN calibrating
	result, err := SelectReplicaCount(context.Background(), opts)
	require.NoError(t, err)

	// THEN every trial is usable and the chosen one has the smallest deviation
	require.Len(t, result.Trials, 3)
	assert.Equal(t, 0.5, result.Target)
	best := result.Trials[0]
	for i, tr := range result.Trials {
		assert.Equal(t, i, tr.Position)
		assert.Equal(t, opts.Candidates[i], tr.Replicas)
		require.True(t, tr.Usable, "M=%d", tr.Replicas)
		assert.Equal(t, 300*(tr.Replicas-1), tr.Attempted)
		assert.InDelta(t, math.Abs(tr.Rate-0.5), tr.Deviation, 1e-12)
		if tr.Deviation < best.Deviation {
			best = tr
		}
	}
	assert.Equal(t, best.Replicas, result.Chosen)
}

func TestSelectReplicaCount_MoreReplicasRaiseAcceptance(t *testing.T) {
	result, err := SelectReplicaCount(context.Background(), quadraticOptions(2, 12))
	require.NoError(t, err)
	assert.Less(t, result.Trials[0].Rate, result.Trials[1].Rate,
		"a denser ladder on the same range overlaps more")
}

func TestSelectReplicaCount_TieGoesToSmallerReplicaCount(t *testing.T) {
	// GIVEN a flat energy, where every candidate accepts every swap
	opts := Options[int]{
		Candidates:      []int{6, 3, 4},
		TrialIterations: 20,
		Base:            sim.Config{TMin: 1, TMax: 5},
		Energy:          flat,
		Stepper:         frozen,
		Seed:            1,
	}

	// WHEN calibrating
	result, err := SelectReplicaCount(context.Background(), opts)
	require.NoError(t, err)

	// THEN all deviations tie and the smallest M wins
	for _, tr := range result.Trials {
		assert.Equal(t, 1.0, tr.Rate)
		assert.InDelta(t, 1-DefaultTargetAcceptance, tr.Deviation, 1e-12)
	}
	assert.Equal(t, 3, result.Chosen)
}

func TestSelectReplicaCount_UnusableCandidates(t *testing.T) {
	tests := []struct {
		name       string
		candidates []int
		iterations int
	}{
		{"single replica has no pairs", []int{1}, 50},
		{"zero and negative counts", []int{0, -2}, 50},
		{"no iterations means no attempts", []int{2, 4}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := quadraticOptions(tc.candidates...)
			opts.TrialIterations = tc.iterations

			result, err := SelectReplicaCount(context.Background(), opts)

			assert.ErrorIs(t, err, sim.ErrCalibration)
			var calErr *sim.CalibrationError
			require.True(t, errors.As(err, &calErr))
			assert.Equal(t, tc.candidates, calErr.Candidates)
			require.Len(t, result.Trials, len(tc.candidates))
			for _, tr := range result.Trials {
				assert.False(t, tr.Usable)
				assert.NotEmpty(t, tr.Reason)
				assert.True(t, math.IsNaN(tr.Rate))
				assert.True(t, math.IsInf(tr.Deviation, 1))
			}
		})
	}
}

func TestSelectReplicaCount_SkipsUnusableAmongUsable(t *testing.T) {
	result, err := SelectReplicaCount(context.Background(), quadraticOptions(1, 4))
	require.NoError(t, err)
	assert.False(t, result.Trials[0].Usable)
	assert.True(t, result.Trials[1].Usable)
	assert.Equal(t, 4, result.Chosen)
}

func TestSelectReplicaCount_ParallelMatchesSequential(t *testing.T) {
	// GIVEN the same options run sequentially and with three workers
	seq := quadraticOptions(2, 3, 5, 8)
	par := quadraticOptions(2, 3, 5, 8)
	par.Parallel = 3

	a, err := SelectReplicaCount(context.Background(), seq)
	require.NoError(t, err)
	b, err := SelectReplicaCount(context.Background(), par)
	require.NoError(t, err)

	// THEN trial seeds depend only on position, so the results are identical
	assert.Equal(t, a, b)
}

func TestSelectReplicaCount_TrialSeedsDependOnPosition(t *testing.T) {
	result, err := SelectReplicaCount(context.Background(), quadraticOptions(4, 4))
	require.NoError(t, err)
	assert.NotEqual(t, result.Trials[0].Seed, result.Trials[1].Seed)
}

func TestSelectReplicaCount_SinkReceivesTrialsInOrder(t *testing.T) {
	sink := &recordingSink{}
	opts := quadraticOptions(5, 1, 3)
	opts.Parallel = 2
	opts.Sink = sink
	opts.RunID = "cal-1"

	result, err := SelectReplicaCount(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, sink.trials, 3)
	for i, tr := range sink.trials {
		assert.Equal(t, "cal-1", sink.runIDs[i])
		assert.Equal(t, i, tr.Position)
		assert.Equal(t, result.Trials[i].Replicas, tr.Replicas)
	}
}

func TestSelectReplicaCount_SinkErrorAborts(t *testing.T) {
	opts := quadraticOptions(2)
	opts.Sink = &recordingSink{err: errors.New("disk full")}

	_, err := SelectReplicaCount(context.Background(), opts)
	assert.ErrorContains(t, err, "disk full")
}

func TestSelectReplicaCount_InvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options[float64])
	}{
		{"no candidates", func(o *Options[float64]) { o.Candidates = nil }},
		{"negative iterations", func(o *Options[float64]) { o.TrialIterations = -1 }},
		{"negative local steps", func(o *Options[float64]) { o.LocalSteps = -1 }},
		{"target above one", func(o *Options[float64]) { o.TargetAcceptance = 1.5 }},
		{"negative parallelism", func(o *Options[float64]) { o.Parallel = -1 }},
		{"missing energy", func(o *Options[float64]) { o.Energy = nil }},
		{"missing stepper", func(o *Options[float64]) { o.Stepper = nil }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := quadraticOptions(2, 4)
			tc.mutate(&opts)
			_, err := SelectReplicaCount(context.Background(), opts)
			assert.ErrorIs(t, err, sim.ErrConfig)
		})
	}
}

func TestSelectReplicaCount_BadBaseConfigAborts(t *testing.T) {
	opts := quadraticOptions(2, 4)
	opts.Base = sim.Config{TMin: 5, TMax: 1}

	_, err := SelectReplicaCount(context.Background(), opts)
	assert.ErrorIs(t, err, sim.ErrConfig)
	assert.NotErrorIs(t, err, sim.ErrCalibration)
}

func TestSelectReplicaCount_StepperErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	opts := quadraticOptions(2, 4)
	opts.Stepper = sim.StepFunc[float64](func(float64, float64, *rand.Rand) (float64, float64, error) {
		return 0, 0, boom
	})

	_, err := SelectReplicaCount(context.Background(), opts)
	assert.ErrorIs(t, err, sim.ErrEnergyEvaluation)
	assert.ErrorIs(t, err, boom)
}

func TestSelectReplicaCount_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := SelectReplicaCount(ctx, quadraticOptions(2, 4))
	assert.ErrorIs(t, err, context.Canceled)
}
