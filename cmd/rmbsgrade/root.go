package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rmbsgrade",
		Short: "rmbsgrade - grading harness for RMBS credit-rating submissions",
		Long: `rmbsgrade grades candidate credit-rating implementations.

Each candidate is a directory of Python source. rmbsgrade finds the rating
entry point, runs it against fixture portfolios with known ratings, times it
on synthetic pools of increasing size and reports algorithm and performance
scores out of 5.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newResolveCommand())
	cmd.AddCommand(newFixturesCommand())
	cmd.AddCommand(newHistoryCommand())
	cmd.AddCommand(newCacheCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
