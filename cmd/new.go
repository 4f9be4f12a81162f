package cmd

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/encodeous/lsr/state"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var overwrite bool

func sampleScenario() state.Scenario {
	return state.Scenario{
		Heartbeat: state.ToMillis(state.DefaultHeartbeat),
		Tick:      state.ToMillis(state.TickDelay),
		Duration:  10000,
		Seed:      1,
		Nodes: []state.NodeSpec{
			{Id: "a", Prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/24")}},
			{Id: "b", Prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.1.0/24")}},
			{Id: "c", Prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.2.0/24")}},
			{Id: "d", Prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.3.0/24")}},
		},
		Links: []state.LinkSpec{
			{A: "a", B: "d", Cost: 10, Latency: 5},
		},
		Mesh: []string{
			"core = a, b, c",
			"core, core",
			"c, d",
		},
		MeshCost: 1,
		Events: []state.EventSpec{
			{At: 3000, Kind: state.EventTrace, From: "a", To: "10.0.3.1"},
			{At: 4000, Kind: state.EventLinkDown, A: "c", B: "d"},
			{At: 6000, Kind: state.EventTrace, From: "a", To: "10.0.3.1"},
			{At: 7000, Kind: state.EventLinkUp, A: "b", B: "d", Cost: 2},
			{At: 9000, Kind: state.EventTrace, From: "a", To: "d"},
		},
	}
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Writes a sample scenario",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(scenarioPath); err == nil && !overwrite {
			panic(fmt.Sprintf("%s already exists, pass --force to overwrite it", scenarioPath))
		}
		sc := sampleScenario()
		out, err := yaml.Marshal(&sc)
		if err != nil {
			panic(err)
		}
		err = os.WriteFile(scenarioPath, out, 0600)
		if err != nil {
			panic(err)
		}
		fmt.Printf("Wrote a sample scenario to %s\n", scenarioPath)
	},
	GroupID: "init",
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validates a scenario",
	Run: func(cmd *cobra.Command, args []string) {
		sc := readScenario()
		fmt.Printf("Scenario is valid: %d nodes, %d links, %d events\n", len(sc.Nodes), len(sc.Links), len(sc.Events))
		if verbose {
			out, err := yaml.Marshal(sc)
			if err != nil {
				panic(err)
			}
			fmt.Print(string(out))
		}
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(checkCmd)

	newCmd.Flags().BoolVarP(&overwrite, "force", "f", false, "overwrite an existing file")
}
