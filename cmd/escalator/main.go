// Package main provides the entry point for the escalator daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via ldflags.
var (
	Commit    = "unknown"
	BuildTime = "unknown"
)

func version() string {
	commit := Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("escalator dev (commit: %s, built: %s)", commit, BuildTime)
}

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:     "escalator",
		Short:   "Escalation engine for monitoring actions",
		Version: version(),
		Long: `escalator walks active escalations step by step, sending notifications and
running remote commands for each action operation, and finishes them with
recovery messages or cancellation notices.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(runCmd(&configFile))
	rootCmd.AddCommand(checkConfigCmd(&configFile))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
