package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/paratemp/sim"
)

var (
	configPath string // YAML run config; explicit flags override it
	logLevel   string // Log verbosity level

	// CLI flags for the engine
	seed         int64     // Master seed for every RNG stream
	tMin         float64   // Coldest temperature
	tMax         float64   // Hottest temperature
	replicas     int       // Ladder size
	temperatures []float64 // Explicit ladder, overrides tmin/tmax/replicas
	spacing      string    // geometric or linear
	distribution string    // boltzmann or tsallis
	tsallisQ     float64   // Tsallis q
	kB           float64   // Boltzmann constant
	localMoves   string    // proposal or accepted
	workers      int       // Goroutines for the local phase
	historyLimit int       // Rolling window for recorded energies/states

	// CLI flags for the demo model
	modelKind     string    // double-well or levels
	wellHeight    float64   // Double-well barrier height
	wellTilt      float64   // Double-well asymmetry
	stepSize      float64   // Gaussian proposal width
	selfAccept    bool      // Stepper applies Metropolis itself
	levelEnergies []float64 // Energies of the discrete levels
	initialState  float64   // Starting x or level index

	// CLI flags for a run
	iterations      int    // Local-phase + swap-sweep rounds
	localSteps      int    // Local moves per replica per round
	checkpointDB    string // SQLite checkpoint database
	checkpointEvery int    // Iterations between checkpoints
	resume          bool   // Resume from the latest checkpoint
	resumeRun       string // Run ID to resume (default: most recent)
	traceLevel      string // none, swaps or all
	metricsAddr     string // host:port for Prometheus exposition
	histogramBins   int    // Bins of the cold-slot energy histogram

	// CLI flags for calibration
	candidates       []int   // Replica counts to try
	trialIterations  int     // Iterations per trial
	targetAcceptance float64 // Swap acceptance to aim for
	parallelTrials   int     // Concurrent trials
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "paratemp",
	Short: "Replica-exchange (parallel tempering) Monte Carlo sampler",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// runCmd samples the configured model with parallel tempering
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run parallel tempering on a demo model",
	Run: func(cmd *cobra.Command, args []string) {
		rc, err := resolveRunConfig(cmd.Flags())
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Infof("Engine config: %s", rc.Engine)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		rule, err := rc.Engine.Rule()
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		switch rc.Model.Kind {
		case ModelLevels:
			err = runTempering(ctx, cmd.OutOrStdout(), rc, levelsModel(rc.Model, rule), resumeRun, resume)
		default:
			err = runTempering(ctx, cmd.OutOrStdout(), rc, doubleWellModel(rc.Model), resumeRun, resume)
		}
		if err != nil {
			logrus.Fatalf("Run failed: %v", err)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaults := defaultRunConfig()

	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML run config (flags override its values)")

	// Engine
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", defaults.Engine.Seed, "Master seed for all random streams")
	rootCmd.PersistentFlags().Float64Var(&tMin, "tmin", defaults.Engine.TMin, "Coldest temperature")
	rootCmd.PersistentFlags().Float64Var(&tMax, "tmax", defaults.Engine.TMax, "Hottest temperature")
	rootCmd.PersistentFlags().IntVar(&replicas, "replicas", defaults.Engine.Replicas, "Number of replicas (ladder size)")
	rootCmd.PersistentFlags().Float64SliceVar(&temperatures, "temperatures", nil, "Comma-separated explicit ladder (overrides tmin/tmax/replicas)")
	rootCmd.PersistentFlags().StringVar(&spacing, "spacing", string(sim.SpacingGeometric), "Ladder spacing (geometric, linear)")
	rootCmd.PersistentFlags().StringVar(&distribution, "distribution", string(sim.DistributionBoltzmann), "Target density (boltzmann, tsallis)")
	rootCmd.PersistentFlags().Float64Var(&tsallisQ, "q", 1.5, "Tsallis q (required with --distribution tsallis, must not be 1)")
	rootCmd.PersistentFlags().Float64Var(&kB, "kb", 1, "Boltzmann constant")
	rootCmd.PersistentFlags().StringVar(&localMoves, "local-moves", string(sim.LocalMovesProposal), "Who applies local acceptance (proposal: engine, accepted: stepper)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Goroutines for the local phase (0 or 1: sequential)")
	rootCmd.PersistentFlags().IntVar(&historyLimit, "history-limit", 0, "Keep only the newest N recorded energies/states per slot (0: all)")

	// Model
	rootCmd.PersistentFlags().StringVar(&modelKind, "model", defaults.Model.Kind, "Demo model (double-well, levels)")
	rootCmd.PersistentFlags().Float64Var(&wellHeight, "height", defaults.Model.Height, "Double-well barrier height")
	rootCmd.PersistentFlags().Float64Var(&wellTilt, "tilt", defaults.Model.Tilt, "Double-well tilt")
	rootCmd.PersistentFlags().Float64Var(&stepSize, "step-size", defaults.Model.StepSize, "Gaussian proposal width")
	rootCmd.PersistentFlags().BoolVar(&selfAccept, "self-accept", false, "Stepper applies Metropolis itself (use with --local-moves accepted)")
	rootCmd.PersistentFlags().Float64SliceVar(&levelEnergies, "levels", defaults.Model.Levels, "Comma-separated level energies for --model levels")
	rootCmd.PersistentFlags().Float64Var(&initialState, "initial", defaults.Model.Initial, "Initial x (double-well) or level index (levels)")

	// Run
	runCmd.Flags().IntVar(&iterations, "iterations", defaults.Run.Iterations, "Number of local-phase + swap-sweep iterations")
	runCmd.Flags().IntVar(&localSteps, "local-steps", defaults.Run.LocalSteps, "Local moves per replica per iteration")
	runCmd.Flags().StringVar(&checkpointDB, "checkpoint-db", "", "SQLite database for checkpoints")
	runCmd.Flags().IntVar(&checkpointEvery, "checkpoint-every", 0, "Save a checkpoint every N iterations (0: only at the end)")
	runCmd.Flags().BoolVar(&resume, "resume", false, "Resume from the latest checkpoint in --checkpoint-db")
	runCmd.Flags().StringVar(&resumeRun, "resume-run", "", "Run ID to resume (default: most recent checkpoint)")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", defaults.Run.TraceLevel, "Decision trace level (none, swaps, all)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this host:port")
	runCmd.Flags().IntVar(&histogramBins, "histogram-bins", defaults.Run.HistogramBins, "Bins of the cold-slot energy histogram")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(ladderCmd)
}
