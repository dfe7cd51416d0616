package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/spboyer/rmbsgrade/internal/config"
	"github.com/spboyer/rmbsgrade/internal/harness"
	"github.com/spboyer/rmbsgrade/internal/loader"
	"github.com/spboyer/rmbsgrade/internal/models"
	"github.com/spboyer/rmbsgrade/internal/sandbox"
)

type resolveOptions struct {
	probe    bool
	python   string
	timeout  time.Duration
	format   string
	minScore int
}

func newResolveCommand() *cobra.Command {
	opts := &resolveOptions{}
	cmd := &cobra.Command{
		Use:   "resolve <candidate-dir>",
		Short: "Show the ranked entry point candidates of one submission",
		Long: `Show how the loader ranks the callables of one submission.

Every public function or method taking exactly one positional argument is
ranked by name, signature and return type. The highest-ranked callable is the
one a run would invoke. With --probe, each candidate module is imported in a
Python subprocess and the first one that imports cleanly is selected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolveCommandE(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.probe, "probe", false, "Import candidate modules to confirm the selection (needs Python)")
	cmd.Flags().StringVar(&opts.python, "python", "", "Python interpreter used by --probe")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", config.DefaultTimeout, "Import probe timeout")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatTable, "Output format: table or json")
	cmd.Flags().IntVar(&opts.minScore, "min-score", loader.DefaultRules().MinScore, "Lowest rank an entry point candidate needs")

	return cmd
}

// resolution is the json form of the resolve report.
type resolution struct {
	Root       string                   `json:"root"`
	Candidates []models.EntryPoint      `json:"candidates"`
	Selected   *models.CandidateBinding `json:"selected,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

func resolveCommandE(cmd *cobra.Command, root string, opts *resolveOptions) error {
	if opts.format != formatTable && opts.format != formatJSON {
		return fmt.Errorf("unsupported format %q: must be table or json", opts.format)
	}

	rules := loader.DefaultRules()
	rules.MinScore = opts.minScore
	loaderOpts := []loader.Option{loader.WithRules(rules)}
	if opts.probe {
		exec, err := sandbox.New(sandbox.WithPythonBin(opts.python))
		if err != nil {
			return err
		}
		defer exec.Close() //nolint:errcheck
		loaderOpts = append(loaderOpts, loader.WithImportProbe(harness.NewProber(exec, opts.timeout)))
	}
	l := loader.New(loaderOpts...)

	ctx := cmd.Context()
	eps, err := l.Candidates(ctx, root)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", root, err)
	}
	res := resolution{Root: root, Candidates: eps}
	binding, resolveErr := l.Resolve(ctx, root)
	if resolveErr != nil {
		res.Error = resolveErr.Error()
	}
	res.Selected = binding

	out := cmd.OutOrStdout()
	if opts.format == formatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return printResolution(out, res)
}

func printResolution(w io.Writer, res resolution) error {
	if len(res.Candidates) == 0 {
		_, err := fmt.Fprintf(w, "No entry point candidates found in %s\n", res.Root)
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("#", "Entry point", "Location", "Strategy", "Rank", "Shape")
	for i, ep := range res.Candidates {
		if err := table.Append(
			fmt.Sprintf("%d", i+1),
			truncateCell(ep.Qualified(), maxEntryWidth),
			fmt.Sprintf("%s:%d", ep.File, ep.Line),
			string(ep.Strategy),
			fmt.Sprintf("%d", ep.RankScore),
			string(ep.Shape),
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if res.Selected != nil {
		_, err := fmt.Fprintf(w, "\nSelected: %s (%s)\n", res.Selected.Qualified(), res.Selected.Strategy)
		return err
	}
	_, err := fmt.Fprintf(w, "\nNo entry point selected: %s\n", res.Error)
	return err
}
