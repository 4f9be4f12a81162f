package cmd

import (
	"fmt"

	"github.com/encodeous/lsr/core"
	"github.com/encodeous/lsr/sim"
	"github.com/encodeous/lsr/state"
	"github.com/spf13/cobra"
)

var (
	simUntil int64
	simNodes []string
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Simulates a scenario on a virtual clock",
	Long: `Runs the scenario as a discrete event simulation. Runs are deterministic for a given seed.
Once the simulation ends, the state of every router and the outcome of every trace is printed.`,
	Run: func(cmd *cobra.Command, args []string) {
		sc := readScenario()
		file := logFile()
		if file != nil {
			defer file.Close()
		}
		logger := core.NewLogger("sim", level(), file)

		n, err := sim.FromScenario(sc, logger)
		if err != nil {
			panic(err)
		}
		until := defaultEnd(sc)
		if simUntil > 0 {
			until = state.Millis(simUntil)
		}
		n.RunUntil(until)
		logger.Info("simulation complete", "at", n.Now())

		ids := n.Nodes()
		if len(simNodes) != 0 {
			ids = make([]state.NodeId, 0, len(simNodes))
			for _, id := range simNodes {
				ids = append(ids, state.NodeId(id))
			}
		}
		for _, id := range ids {
			out := n.DebugString(id)
			if out == "" {
				panic(fmt.Sprintf("unknown node %s", id))
			}
			fmt.Println(out)
			fmt.Println()
		}
		if len(n.Traces()) != 0 {
			fmt.Println("traces:")
			for _, t := range n.Traces() {
				fmt.Println(t)
			}
		}
	},
	GroupID: "lsr",
}

func init() {
	rootCmd.AddCommand(simCmd)

	simCmd.Flags().Int64VarP(&simUntil, "until", "u", 0, "virtual time to stop at in ms, defaults to duration_ms")
	simCmd.Flags().StringSliceVarP(&simNodes, "node", "n", nil, "only print these nodes")
}
