// Package calibration picks a replica count for a tempering run by running
// short, independent trial engines over a list of candidate ladder sizes and
// keeping the one whose swap acceptance lands closest to a target.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/paratemp/sim"
)

// DefaultTargetAcceptance is the swap acceptance the calibrator aims for when
// Options.TargetAcceptance is zero.
const DefaultTargetAcceptance = 0.25

// Trial reports one candidate's trial run.
type Trial struct {
	Position  int // index into Options.Candidates
	Replicas  int
	Seed      int64
	Attempted int
	Accepted  int
	Rate      float64 // NaN when unusable
	Deviation float64 // |Rate - target|, +Inf when unusable
	Usable    bool
	Reason    string
}

// Result is the outcome of SelectReplicaCount.
type Result struct {
	Chosen int
	Target float64
	Trials []Trial // in candidate order
}

// TrialSink receives every finished trial, in candidate order. sim/store
// implements it to persist calibration history.
type TrialSink interface {
	RecordTrial(ctx context.Context, runID string, trial Trial) error
}

// Options configures a calibration search.
type Options[S any] struct {
	Candidates       []int   `validate:"min=1"`
	TrialIterations  int     `validate:"gte=0"`
	LocalSteps       int     `validate:"gte=0"`
	TargetAcceptance float64 `validate:"gte=0,lte=1"` // 0 selects DefaultTargetAcceptance
	Parallel         int     `validate:"gte=0"`       // concurrent trials, 0/1 = sequential

	// Base supplies TMin, TMax, Spacing, Distribution, Q, KB and LocalMoves.
	// Replicas, Temperatures, Seed and the history settings are overridden per trial.
	Base    sim.Config
	Energy  sim.EnergyFunction[S] `validate:"-"`
	Stepper sim.LocalStepper[S]   `validate:"-"`
	Initial S                     `validate:"-"`
	Seed    int64

	Sink  TrialSink `validate:"-"`
	RunID string    // passed to Sink
}

var optionsValidate = validator.New()

func (o *Options[S]) target() float64 {
	if o.TargetAcceptance == 0 {
		return DefaultTargetAcceptance
	}
	return o.TargetAcceptance
}

func (o *Options[S]) validate() error {
	if err := optionsValidate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &sim.ConfigError{Field: fe.StructField(), Reason: fmt.Sprintf("failed %q check (param %q), got %v", fe.Tag(), fe.Param(), fe.Value())}
		}
		return &sim.ConfigError{Reason: err.Error()}
	}
	if o.Energy == nil || o.Stepper == nil {
		return &sim.ConfigError{Field: "Energy/Stepper", Reason: "energy function and local stepper are required"}
	}
	return nil
}

// SelectReplicaCount runs one trial engine per candidate and returns the
// candidate whose global swap acceptance is closest to the target; ties go to
// the smaller replica count. Candidates below 2, or whose trial attempted no
// swaps, are reported as unusable. If none is usable the error matches
// sim.ErrCalibration. Energy, stepper and context errors abort the search.
//
// Every trial gets its own seed derived from Options.Seed and the candidate's
// position, so results do not depend on Parallel.
func SelectReplicaCount[S any](ctx context.Context, opts Options[S]) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	target := opts.target()
	root := sim.NewPartitionedRNG(sim.NewSimulationKey(opts.Seed))
	seeds := sim.NewPartitionedRNG(sim.NewSimulationKey(root.SeedFor(sim.SubsystemCalibration)))

	trials := make([]Trial, len(opts.Candidates))
	for pos, m := range opts.Candidates {
		trials[pos] = Trial{Position: pos, Replicas: m, Seed: seeds.SeedFor(sim.SubsystemTrial(m, pos))}
	}

	if opts.Parallel <= 1 {
		for pos := range trials {
			if err := runTrial(ctx, &opts, &trials[pos], target); err != nil {
				return Result{}, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Parallel)
		for pos := range trials {
			g.Go(func() error {
				return runTrial(gctx, &opts, &trials[pos], target)
			})
		}
		if err := g.Wait(); err != nil {
			return Result{}, err
		}
	}

	if opts.Sink != nil {
		for _, t := range trials {
			if err := opts.Sink.RecordTrial(ctx, opts.RunID, t); err != nil {
				return Result{}, fmt.Errorf("record trial %d (M=%d): %w", t.Position, t.Replicas, err)
			}
		}
	}

	best := -1
	for i, t := range trials {
		if !t.Usable {
			continue
		}
		if best < 0 || t.Deviation < trials[best].Deviation ||
			(t.Deviation == trials[best].Deviation && t.Replicas < trials[best].Replicas) {
			best = i
		}
	}
	if best < 0 {
		return Result{Target: target, Trials: trials}, &sim.CalibrationError{
			Candidates: opts.Candidates,
			Reason:     "no candidate produced any swap attempts",
		}
	}

	chosen := trials[best]
	logrus.Infof("Calibration chose M=%d (acceptance %.4f, target %.2f) from %d candidates",
		chosen.Replicas, chosen.Rate, target, len(trials))
	return Result{Chosen: chosen.Replicas, Target: target, Trials: trials}, nil
}

// runTrial fills in t. Each call owns its engine, so concurrent calls share nothing.
func runTrial[S any](ctx context.Context, opts *Options[S], t *Trial, target float64) error {
	t.Rate, t.Deviation = math.NaN(), math.Inf(1)
	if t.Replicas < 2 {
		t.Reason = fmt.Sprintf("M=%d has no adjacent pairs", t.Replicas)
		logrus.Debugf("Calibration trial %d unusable: %s", t.Position, t.Reason)
		return nil
	}

	cfg := opts.Base
	cfg.Replicas = t.Replicas
	cfg.Temperatures = nil
	cfg.Seed = t.Seed
	cfg.HistoryLimit = 1
	cfg.TrajectoryReplicas = []int{}

	engine, err := sim.NewEngine(cfg, opts.Energy, opts.Stepper, opts.Initial)
	if err != nil {
		return fmt.Errorf("calibration trial M=%d: %w", t.Replicas, err)
	}
	if _, err := engine.Run(ctx, opts.TrialIterations, opts.LocalSteps, nil); err != nil {
		return fmt.Errorf("calibration trial M=%d: %w", t.Replicas, err)
	}

	diag := engine.Diagnostics()
	t.Attempted, t.Accepted = diag.Attempted(), diag.Accepted()
	if t.Attempted == 0 {
		t.Reason = "no swap attempts"
		return nil
	}
	t.Rate = diag.GlobalAcceptanceRate()
	t.Deviation = math.Abs(t.Rate - target)
	t.Usable = true
	logrus.Debugf("Calibration trial M=%d: acceptance %.4f (deviation %.4f)", t.Replicas, t.Rate, t.Deviation)
	return nil
}
