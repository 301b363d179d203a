package main

import (
	"fmt"
	"os"

	"personakit/gate/pkg/cli"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gate",
	Short: "Gate - admission-controlled content generation service",
	Long: `Gate serves persona-driven content generation behind a per-user
sliding-window quota.

Every generation request is checked against the caller's recent history
before any work is done. Admission state lives in memory, SQLite or Redis,
and an operator-chosen failure policy decides what happens when that
storage is unreachable.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
