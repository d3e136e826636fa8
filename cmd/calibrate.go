package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/paratemp/sim/calibration"
	"github.com/inference-sim/paratemp/sim/store"
)

// calibrateCmd searches for the replica count whose swap acceptance is closest to a target
var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Pick a replica count by running short trial simulations",
	Run: func(cmd *cobra.Command, args []string) {
		rc, err := resolveRunConfig(cmd.Flags())
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var db *store.Store
		if rc.Run.CheckpointDB != "" {
			if db, err = store.Open(ctx, rc.Run.CheckpointDB); err != nil {
				logrus.Fatalf("%v", err)
			}
			defer db.Close()
		}

		rule, err := rc.Engine.Rule()
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		switch rc.Model.Kind {
		case ModelLevels:
			err = calibrateModel(ctx, cmd.OutOrStdout(), rc, levelsModel(rc.Model, rule), db)
		default:
			err = calibrateModel(ctx, cmd.OutOrStdout(), rc, doubleWellModel(rc.Model), db)
		}
		if err != nil {
			logrus.Fatalf("Calibration failed: %v", err)
		}
	},
}

// calibrateModel runs the search for spec and prints one line per trial. When
// db is set every trial is also recorded under a fresh calibration run ID.
func calibrateModel[S any](ctx context.Context, w io.Writer, rc RunConfig, spec modelSpec[S], db *store.Store) error {
	opts := calibration.Options[S]{
		Candidates:       rc.Calibration.Candidates,
		TrialIterations:  rc.Calibration.TrialIterations,
		LocalSteps:       rc.Run.LocalSteps,
		TargetAcceptance: rc.Calibration.TargetAcceptance,
		Parallel:         rc.Calibration.Parallel,
		Base:             rc.Engine,
		Energy:           spec.energy,
		Stepper:          spec.stepper,
		Initial:          spec.initial,
		Seed:             rc.Engine.Seed,
		RunID:            uuid.NewString(),
	}
	if db != nil {
		opts.Sink = db
	}

	result, err := calibration.SelectReplicaCount(ctx, opts)
	printCalibration(w, spec.name, opts.RunID, result)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Chosen Replicas      : %d\n", result.Chosen)
	return nil
}

func printCalibration(w io.Writer, model, runID string, result calibration.Result) {
	fmt.Fprintln(w, "=== Replica Count Calibration ===")
	fmt.Fprintf(w, "Calibration ID       : %s\n", runID)
	fmt.Fprintf(w, "Model                : %s\n", model)
	fmt.Fprintf(w, "Target Acceptance    : %.4f\n", result.Target)
	for _, t := range result.Trials {
		if !t.Usable {
			fmt.Fprintf(w, "  M=%-4d unusable: %s\n", t.Replicas, t.Reason)
			continue
		}
		fmt.Fprintf(w, "  M=%-4d acceptance %.4f  deviation %.4f  (%d/%d)\n",
			t.Replicas, t.Rate, t.Deviation, t.Accepted, t.Attempted)
	}
}

func init() {
	defaults := defaultRunConfig()
	calibrateCmd.Flags().IntSliceVar(&candidates, "candidates", defaults.Calibration.Candidates, "Comma-separated replica counts to try")
	calibrateCmd.Flags().IntVar(&trialIterations, "trial-iterations", defaults.Calibration.TrialIterations, "Iterations per trial")
	calibrateCmd.Flags().Float64Var(&targetAcceptance, "target-acceptance", defaults.Calibration.TargetAcceptance, "Global swap acceptance to aim for")
	calibrateCmd.Flags().IntVar(&parallelTrials, "parallel", 0, "Trials to run concurrently (0 or 1: sequential)")
	calibrateCmd.Flags().IntVar(&localSteps, "local-steps", defaults.Run.LocalSteps, "Local moves per replica per iteration")
	calibrateCmd.Flags().StringVar(&checkpointDB, "checkpoint-db", "", "SQLite database to record trials in")
}
