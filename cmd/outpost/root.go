package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "outpost",
	Short: "Outpost - offline-first clinical decision assurance edge node",
	Long: `Outpost runs at the clinic edge and evaluates clinical actions against
a locally cached rule set, answering with a traffic-light verdict even
when the clinic's connection to the control plane is down.

It provides:
  - A local HTTP API for point-of-care system integration
  - Versioned rule distribution with checksum verification
  - Durable store-and-forward delivery of assurance events
  - Connectivity monitoring with operator-facing urgency levels`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
