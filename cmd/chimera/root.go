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
	Use:   "chimera",
	Short: "Chimera - WebSocket gateway for a local generative model",
	Long: `Chimera is a WebSocket gateway in front of a local generative model server.

It provides:
  - Token-based handshake authentication for every connection
  - Per-address request quotas with a fixed rolling window
  - Streaming relay of model output, fragment by fragment
  - A local conversation log with age-based retention`,
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
