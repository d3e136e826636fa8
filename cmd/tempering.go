package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/paratemp/sim"
	"github.com/inference-sim/paratemp/sim/store"
	"github.com/inference-sim/paratemp/sim/trace"
)

// runTempering builds (or restores) an engine for spec, runs it and writes the
// report to w. With a checkpoint database, a checkpoint is saved every
// CheckpointEvery iterations and once more when the run stops, including when
// it stops on cancellation.
func runTempering[S any](ctx context.Context, w io.Writer, rc RunConfig, spec modelSpec[S], resumeRunID string, resume bool) error {
	var db *store.Store
	if rc.Run.CheckpointDB != "" {
		var err error
		if db, err = store.Open(ctx, rc.Run.CheckpointDB); err != nil {
			return err
		}
		defer db.Close()
	}

	engine, err := buildEngine(ctx, db, rc, spec, resumeRunID, resume)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	engine.SetMetrics(sim.NewExchangeMetrics(reg))
	if rc.Run.MetricsAddr != "" {
		srv := serveMetrics(rc.Run.MetricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var et *trace.ExchangeTrace
	if level := trace.TraceLevel(rc.Run.TraceLevel); level != "" && level != trace.TraceLevelNone {
		et = trace.NewExchangeTrace(level)
		engine.SetTrace(et)
	}

	var callback sim.Callback[S]
	if db != nil && rc.Run.CheckpointEvery > 0 {
		callback = func(iteration int, _ []sim.Replica[S]) error {
			if (iteration+1)%rc.Run.CheckpointEvery != 0 {
				return nil
			}
			return saveCheckpoint(ctx, db, engine)
		}
	}

	startTime := time.Now()
	_, runErr := engine.Run(ctx, rc.Run.Iterations, rc.Run.LocalSteps, callback)
	if db != nil && !errors.Is(runErr, sim.ErrEnergyEvaluation) && !errors.Is(runErr, sim.ErrCallback) {
		// the engine holds a consistent between-iteration state after a cancellation
		if err := saveCheckpoint(context.WithoutCancel(ctx), db, engine); err != nil {
			return errors.Join(runErr, err)
		}
	}

	printReport(w, engine, spec, et, rc.Run.HistogramBins, time.Since(startTime))
	return runErr
}

func buildEngine[S any](ctx context.Context, db *store.Store, rc RunConfig, spec modelSpec[S], resumeRunID string, resume bool) (*sim.Engine[S], error) {
	if !resume {
		return sim.NewEngine(rc.Engine, spec.energy, spec.stepper, spec.initial)
	}
	if db == nil {
		return nil, fmt.Errorf("--resume requires --checkpoint-db")
	}
	cp, err := store.LoadLatestCheckpoint[S](ctx, db, resumeRunID)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Resuming %s", cp)
	return sim.RestoreEngine(rc.Engine, spec.energy, spec.stepper, cp)
}

func saveCheckpoint[S any](ctx context.Context, db *store.Store, engine *sim.Engine[S]) error {
	cp := engine.Checkpoint()
	id, err := store.SaveCheckpoint(ctx, db, cp)
	if err != nil {
		return fmt.Errorf("save checkpoint at iteration %d: %w", cp.Iteration, err)
	}
	logrus.Debugf("Saved %s as #%d in %s", cp, id, db.Path())
	return nil
}

func printReport[S any](w io.Writer, engine *sim.Engine[S], spec modelSpec[S], et *trace.ExchangeTrace, bins int, elapsed time.Duration) {
	fmt.Fprintln(w, "=== Tempering Run ===")
	fmt.Fprintf(w, "Run ID               : %s\n", engine.RunID())
	fmt.Fprintf(w, "Model                : %s\n", spec.name)
	fmt.Fprintf(w, "State                : %s\n", engine.State())
	fmt.Fprintf(w, "Iterations           : %d\n", engine.Iteration())
	fmt.Fprintf(w, "Wall Time            : %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintln(w, "Ladder:")
	for i, r := range engine.Replicas() {
		fmt.Fprintf(w, "  slot %-3d T=%-10.4g beta=%-10.4g E=%.6g\n",
			i, engine.Ladder().Temperatures[i], r.Beta(), r.Energy())
	}
	engine.Diagnostics().Print(w)
	spec.report(w, engine)

	if hist, err := engine.Diagnostics().EnergyHistogram(0, bins); err == nil {
		fmt.Fprintln(w, "Cold-slot energy histogram:")
		for k, c := range hist.Counts {
			fmt.Fprintf(w, "  [%10.4g, %10.4g) %8.0f\n", hist.Edges[k], hist.Edges[k+1], c)
		}
	}

	if et != nil {
		s := trace.Summarize(et)
		fmt.Fprintln(w, "=== Trace Summary ===")
		fmt.Fprintf(w, "Swap Decisions       : %d (%d accepted)\n", s.TotalSwaps, s.AcceptedSwaps)
		fmt.Fprintf(w, "Mean / Min Swap P    : %.4f / %.4f\n", s.MeanProbability, s.MinProbability)
		if et.Level == trace.TraceLevelAll {
			fmt.Fprintf(w, "Local Moves          : %d accepted, %d rejected\n", s.LocalAccepted, s.LocalRejected)
		}
	}
}
