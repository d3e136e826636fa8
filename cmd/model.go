package cmd

import (
	"fmt"
	"io"
	"math"

	"github.com/inference-sim/paratemp/sim"
	"github.com/inference-sim/paratemp/sim/models"
)

// modelSpec bundles the collaborators for one demo model with its report.
type modelSpec[S any] struct {
	name    string
	energy  sim.EnergyFunction[S]
	stepper sim.LocalStepper[S]
	initial S
	// report prints model-specific observables of the cold slot.
	report func(w io.Writer, e *sim.Engine[S])
}

func doubleWellModel(mc ModelConfig) modelSpec[float64] {
	well := models.DoubleWell{Height: mc.Height, Tilt: mc.Tilt}
	return modelSpec[float64]{
		name:    fmt.Sprintf("double-well(height=%g, tilt=%g)", mc.Height, mc.Tilt),
		energy:  well,
		stepper: models.GaussianWalk{Energy: well, StepSize: mc.StepSize, Metropolis: mc.SelfAccept},
		initial: mc.Initial,
		report: func(w io.Writer, e *sim.Engine[float64]) {
			cold := e.Ladder().Betas[0]
			traj, err := e.Diagnostics().Trajectory(0)
			if err != nil || len(traj) == 0 {
				fmt.Fprintf(w, "Left-well occupancy  : no data (analytic %.4f)\n", well.LeftOccupancy(cold))
				return
			}
			left := 0
			for _, x := range traj {
				if x < 0 {
					left++
				}
			}
			fmt.Fprintf(w, "Left-well occupancy  : %.4f (analytic %.4f, %d samples)\n",
				float64(left)/float64(len(traj)), well.LeftOccupancy(cold), len(traj))
		},
	}
}

func levelsModel(mc ModelConfig, rule sim.AcceptanceRule) modelSpec[int] {
	levels := models.Levels{Energies: mc.Levels}
	return modelSpec[int]{
		name:    fmt.Sprintf("levels(%v)", mc.Levels),
		energy:  levels,
		stepper: levels,
		initial: int(mc.Initial),
		report: func(w io.Writer, e *sim.Engine[int]) {
			want := levels.Weights(rule, e.Ladder().Betas[0])
			traj, err := e.Diagnostics().Trajectory(0)
			if err != nil || len(traj) == 0 {
				fmt.Fprintln(w, "Level occupancy      : no data")
				return
			}
			counts := make([]int, len(mc.Levels))
			for _, l := range traj {
				counts[l]++
			}
			fmt.Fprintln(w, "Level occupancy (cold slot, sampled vs exact):")
			for i, c := range counts {
				got := float64(c) / float64(len(traj))
				fmt.Fprintf(w, "  level %d (E=%g)       : %.4f vs %.4f (diff %.4f)\n",
					i, mc.Levels[i], got, want[i], math.Abs(got-want[i]))
			}
		},
	}
}
