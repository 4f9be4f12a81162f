package cmd

import (
	"os"

	"github.com/encodeous/lsr/state"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lsr",
	Short: "Link-state routing simulator",
	Long: `lsr runs a flooding link-state routing protocol over simulated networks.
Routers advertise their links, keep a database of every advertisement and forward traces along shortest paths.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var (
	scenarioPath = "scenario.yaml"
	logPath      = ""
	verbose      = false
)

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Scenario Files",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "lsr",
		Title: "Simulation Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&scenarioPath, "config", "c", scenarioPath, "scenario file, YAML or TOML (.toml)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", logPath, "also write logs to this file, rotated by size")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", verbose, "Verbose output")

	rootCmd.PersistentFlags().BoolVarP(&state.DBG_log_router, "lroute", "r", false, "Write router events to console")
	rootCmd.PersistentFlags().BoolVarP(&state.DBG_log_route_table, "ltable", "t", false, "Outputs route table to the console")
	rootCmd.PersistentFlags().BoolVarP(&state.DBG_log_route_changes, "lrchange", "g", false, "Outputs route changes to the console")
	rootCmd.PersistentFlags().BoolVarP(&state.DBG_log_packets, "lpacket", "p", false, "Outputs every packet sent and received")
}
