package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spboyer/rmbsgrade/internal/cache"
	"github.com/spboyer/rmbsgrade/internal/projectconfig"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the score record cache",
		Long: `Manage the score record cache.

Cached score records are keyed by candidate name, the content of every file in
the submission and a fingerprint of the harness configuration. A cached record
is reused only when none of those changed.`,
	}

	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheClearCommand() *cobra.Command {
	var cacheDir string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the score record cache",
		Long: `Clear all cached score records.

The next run grades every candidate from scratch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cacheClearE(cmd, cacheDir)
		},
	}

	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Cache directory to clear (default: cache.dir from .rmbsgrade.yaml)")

	return cmd
}

func cacheClearE(cmd *cobra.Command, cacheDir string) error {
	if cacheDir == "" {
		pc, err := projectconfig.Load(".")
		if err != nil {
			return err
		}
		cacheDir = pc.Cache.Dir
	}

	absDir, err := filepath.Abs(cacheDir)
	if err != nil {
		return fmt.Errorf("resolving cache directory: %w", err)
	}

	c := cache.New(absDir)
	n := c.Len()
	if err := c.Clear(); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared: %s (%d entries)\n", absDir, n) //nolint:errcheck
	return nil
}
