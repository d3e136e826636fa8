package cmd

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/paratemp/sim"
)

// ladderCmd prints the temperature ladder the engine flags would build
var ladderCmd = &cobra.Command{
	Use:   "ladder",
	Short: "Print the temperature ladder for the given settings",
	Run: func(cmd *cobra.Command, args []string) {
		rc, err := resolveRunConfig(cmd.Flags())
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		ladder, err := rc.Engine.Ladder()
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		printLadder(cmd.OutOrStdout(), ladder)
	},
}

func printLadder(w io.Writer, ladder sim.Ladder) {
	fmt.Fprintf(w, "%-6s %-14s %-14s\n", "slot", "T", "beta")
	for i := range ladder.Betas {
		fmt.Fprintf(w, "%-6d %-14.6g %-14.6g\n", i, ladder.Temperatures[i], ladder.Betas[i])
	}
}
