package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/paratemp/sim"
	"github.com/inference-sim/paratemp/sim/trace"
)

// Model kinds understood by the CLI.
const (
	ModelDoubleWell = "double-well"
	ModelLevels     = "levels"
)

// ModelConfig selects and parameterizes the demo model.
type ModelConfig struct {
	Kind string `yaml:"kind" validate:"oneof=double-well levels"`

	// Double well: barrier height, asymmetry and Gaussian proposal width.
	// SelfAccept makes the stepper apply Metropolis itself; pair it with
	// local_moves: accepted.
	Height     float64 `yaml:"height" validate:"gt=0"`
	Tilt       float64 `yaml:"tilt"`
	StepSize   float64 `yaml:"step_size" validate:"gt=0"`
	SelfAccept bool    `yaml:"self_accept"`

	// Levels lists the level energies of the discrete model.
	Levels []float64 `yaml:"levels,omitempty" validate:"omitempty,min=2"`

	// Initial is the starting x, or the starting level index.
	Initial float64 `yaml:"initial"`
}

// RunSettings controls one tempering run.
type RunSettings struct {
	Iterations      int    `yaml:"iterations" validate:"gte=0"`
	LocalSteps      int    `yaml:"local_steps" validate:"gte=0"`
	CheckpointDB    string `yaml:"checkpoint_db,omitempty"`
	CheckpointEvery int    `yaml:"checkpoint_every" validate:"gte=0"` // 0 = only at the end
	TraceLevel      string `yaml:"trace_level" validate:"omitempty,oneof=none swaps all"`
	MetricsAddr     string `yaml:"metrics_addr,omitempty"`
	HistogramBins   int    `yaml:"histogram_bins" validate:"gte=1"`
}

// CalibrationSettings controls the replica-count search.
type CalibrationSettings struct {
	Candidates       []int   `yaml:"candidates" validate:"min=1"`
	TrialIterations  int     `yaml:"trial_iterations" validate:"gte=0"`
	TargetAcceptance float64 `yaml:"target_acceptance" validate:"gte=0,lte=1"`
	Parallel         int     `yaml:"parallel" validate:"gte=0"`
}

// RunConfig is the YAML run file accepted by --config.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type RunConfig struct {
	Engine      sim.Config          `yaml:"engine"`
	Model       ModelConfig         `yaml:"model"`
	Run         RunSettings         `yaml:"run"`
	Calibration CalibrationSettings `yaml:"calibration"`
}

// defaultRunConfig mirrors the flag defaults.
func defaultRunConfig() RunConfig {
	return RunConfig{
		Engine: sim.Config{
			TMin:         1,
			TMax:         10,
			Replicas:     8,
			Spacing:      sim.SpacingGeometric,
			Distribution: sim.DistributionBoltzmann,
			LocalMoves:   sim.LocalMovesProposal,
			Seed:         42,
		},
		Model: ModelConfig{
			Kind:     ModelDoubleWell,
			Height:   1,
			Tilt:     0.1,
			StepSize: 0.5,
			Levels:   []float64{0, 1, 2, 3},
			Initial:  -1,
		},
		Run: RunSettings{
			Iterations:    10000,
			LocalSteps:    10,
			TraceLevel:    string(trace.TraceLevelNone),
			HistogramBins: 20,
		},
		Calibration: CalibrationSettings{
			Candidates:       []int{2, 4, 6, 8, 12, 16},
			TrialIterations:  2000,
			TargetAcceptance: 0.25,
		},
	}
}

// loadRunConfig reads path over the defaults. Unknown keys are errors so that
// typos cannot silently fall back to defaults.
func loadRunConfig(path string) (RunConfig, error) {
	rc := defaultRunConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return rc, fmt.Errorf("read run config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&rc); err != nil {
		return rc, fmt.Errorf("parse run config %s: %w", path, err)
	}
	return rc, nil
}

var runConfigValidate = validator.New()

// validate checks the CLI sections; the engine section is checked by sim.Config.Validate.
func (rc *RunConfig) validate() error {
	for _, section := range []any{&rc.Model, &rc.Run, &rc.Calibration} {
		if err := runConfigValidate.Struct(section); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				fe := verrs[0]
				return fmt.Errorf("invalid run config: %s failed %q check (param %q), got %v",
					fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
			}
			return fmt.Errorf("invalid run config: %w", err)
		}
	}
	if rc.Model.Kind == ModelLevels {
		if n := len(rc.Model.Levels); int(rc.Model.Initial) < 0 || int(rc.Model.Initial) >= n {
			return fmt.Errorf("invalid run config: initial level %v out of range [0,%d)", rc.Model.Initial, n)
		}
	}
	return rc.Engine.Validate()
}

// applyFlagOverrides copies every flag the user set explicitly into rc, so
// flags win over the config file and untouched flags leave it alone.
func applyFlagOverrides(flags *pflag.FlagSet, rc *RunConfig) {
	set := func(name string, apply func()) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			apply()
		}
	}
	set("seed", func() { rc.Engine.Seed = seed })
	set("tmin", func() { rc.Engine.TMin = tMin })
	set("tmax", func() { rc.Engine.TMax = tMax })
	set("replicas", func() { rc.Engine.Replicas = replicas })
	set("temperatures", func() { rc.Engine.Temperatures = temperatures })
	set("spacing", func() { rc.Engine.Spacing = sim.Spacing(spacing) })
	set("distribution", func() { rc.Engine.Distribution = sim.Distribution(distribution) })
	set("q", func() { q := tsallisQ; rc.Engine.Q = &q })
	set("kb", func() { rc.Engine.KB = kB })
	set("local-moves", func() { rc.Engine.LocalMoves = sim.LocalMoveMode(localMoves) })
	set("workers", func() { rc.Engine.Workers = workers })
	set("history-limit", func() { rc.Engine.HistoryLimit = historyLimit })

	set("model", func() { rc.Model.Kind = modelKind })
	set("height", func() { rc.Model.Height = wellHeight })
	set("tilt", func() { rc.Model.Tilt = wellTilt })
	set("step-size", func() { rc.Model.StepSize = stepSize })
	set("self-accept", func() { rc.Model.SelfAccept = selfAccept })
	set("levels", func() { rc.Model.Levels = levelEnergies })
	set("initial", func() { rc.Model.Initial = initialState })

	set("iterations", func() { rc.Run.Iterations = iterations })
	set("local-steps", func() { rc.Run.LocalSteps = localSteps })
	set("checkpoint-db", func() { rc.Run.CheckpointDB = checkpointDB })
	set("checkpoint-every", func() { rc.Run.CheckpointEvery = checkpointEvery })
	set("trace-level", func() { rc.Run.TraceLevel = traceLevel })
	set("metrics-addr", func() { rc.Run.MetricsAddr = metricsAddr })
	set("histogram-bins", func() { rc.Run.HistogramBins = histogramBins })

	set("candidates", func() { rc.Calibration.Candidates = candidates })
	set("trial-iterations", func() { rc.Calibration.TrialIterations = trialIterations })
	set("target-acceptance", func() { rc.Calibration.TargetAcceptance = targetAcceptance })
	set("parallel", func() { rc.Calibration.Parallel = parallelTrials })
}

// resolveRunConfig loads --config when given, then applies explicit flags.
func resolveRunConfig(flags *pflag.FlagSet) (RunConfig, error) {
	rc := defaultRunConfig()
	if configPath != "" {
		var err error
		if rc, err = loadRunConfig(configPath); err != nil {
			return rc, err
		}
	}
	applyFlagOverrides(flags, &rc)
	return rc, rc.validate()
}
