package main

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/spboyer/rmbsgrade/internal/fixtures"
	"github.com/spboyer/rmbsgrade/internal/validation"
)

func newFixturesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Inspect and validate fixture sets",
	}
	cmd.AddCommand(newFixturesListCommand())
	cmd.AddCommand(newFixturesValidateCommand())
	return cmd
}

func newFixturesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list [fixtures.yaml]",
		Short: "List the fixtures and tiers of a fixture set",
		Long: `List the fixtures and performance tiers of a fixture set.

Without an argument the built-in set is listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set := fixtures.Default()
			if len(args) == 1 {
				loaded, err := fixtures.Load(args[0])
				if err != nil {
					return err
				}
				set = loaded
			}
			return printFixtureSet(cmd.OutOrStdout(), set)
		},
	}
}

func newFixturesValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <fixtures.yaml> [more.yaml ...]",
		Short: "Validate fixture files against the schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			invalid := 0
			for _, path := range args {
				msgs, err := validation.ValidateFixtureFile(path)
				if err == nil && len(msgs) == 0 {
					// Semantic checks: duplicate names, weights, ratings.
					_, err = fixtures.Load(path)
				}
				switch {
				case err != nil:
					invalid++
					fmt.Fprintf(out, "✗ %s\n    %v\n", path, err) //nolint:errcheck
				case len(msgs) > 0:
					invalid++
					fmt.Fprintf(out, "✗ %s\n", path) //nolint:errcheck
					for _, msg := range msgs {
						fmt.Fprintf(out, "    %s\n", msg) //nolint:errcheck
					}
				default:
					fmt.Fprintf(out, "✓ %s\n", path) //nolint:errcheck
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d fixture file(s) invalid", invalid, len(args))
			}
			return nil
		},
	}
}

func printFixtureSet(w io.Writer, set *fixtures.Set) error {
	if _, err := fmt.Fprintf(w, "Fixture set: %s (distance scale %g)\n\n", set.Name(), set.DistanceScale()); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("Fixture", "Expected", "Weight", "Mortgages")
	for _, f := range set.Fixtures() {
		if err := table.Append(f.Name, string(f.Expected), fmt.Sprintf("%g", f.Weight), fmt.Sprintf("%d", f.Portfolio.Len())); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	tiers := tablewriter.NewWriter(w)
	tiers.Header("Tier", "Size", "Reference")
	for _, t := range set.Tiers() {
		if err := tiers.Append(t.Name, fmt.Sprintf("%d", t.Size), formatDuration(t.Reference)); err != nil {
			return err
		}
	}
	return tiers.Render()
}
