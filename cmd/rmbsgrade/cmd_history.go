package main

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/spboyer/rmbsgrade/internal/models"
	"github.com/spboyer/rmbsgrade/internal/projectconfig"
	"github.com/spboyer/rmbsgrade/internal/store"
)

const historyTimeFormat = "2006-01-02 15:04:05"

func newHistoryCommand() *cobra.Command {
	var dbPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `Show runs recorded in the history database, newest first.

Use "history show <run-id>" for the candidate results of one run (a unique
run ID prefix is enough) and "history candidate <name>" for one candidate's
results across runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, dbPath, func(st *store.Store) error {
				runs, err := st.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printRuns(cmd.OutOrStdout(), runs)
			})
		},
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite run history database (default: history.db from .rmbsgrade.yaml)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the candidate results of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, dbPath, func(st *store.Store) error {
				id, err := st.ResolveRunID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				records, err := st.RunRecords(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printRunRecords(cmd.OutOrStdout(), id, records)
			})
		},
	}

	var candidateLimit int
	candidate := &cobra.Command{
		Use:   "candidate <name>",
		Short: "Show one candidate's results across runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, dbPath, func(st *store.Store) error {
				entries, err := st.CandidateHistory(cmd.Context(), args[0], candidateLimit)
				if err != nil {
					return err
				}
				return printCandidateHistory(cmd.OutOrStdout(), args[0], entries)
			})
		},
	}
	candidate.Flags().IntVarP(&candidateLimit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")

	cmd.AddCommand(show, candidate)
	return cmd
}

// withStore opens the history database named by --db, or by the project
// configuration when the flag is empty.
func withStore(cmd *cobra.Command, dbPath string, fn func(*store.Store) error) error {
	if dbPath == "" {
		pc, err := projectconfig.Load(".")
		if err != nil {
			return err
		}
		dbPath = pc.History.DB
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer st.Close() //nolint:errcheck
	return fn(st)
}

func printRuns(w io.Writer, runs []store.RunSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	table := tablewriter.NewWriter(w)
	table.Header("Run", "Started", "Fixture set", "Candidates", "Resolved", "Algorithm", "Perf", "Overall", "Duration")
	for _, r := range runs {
		if err := table.Append(
			shortID(r.ID),
			r.StartedAt.Local().Format(historyTimeFormat),
			r.FixtureSet,
			fmt.Sprintf("%d", r.Candidates),
			fmt.Sprintf("%d", r.Resolved),
			fmt.Sprintf("%.2f", r.AvgAlgorithm),
			fmt.Sprintf("%.2f", r.AvgPerformance),
			fmt.Sprintf("%.2f", r.AvgOverall),
			formatDuration(time.Duration(r.DurationMs)*time.Millisecond),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func printRunRecords(w io.Writer, runID string, records []models.ScoreRecord) error {
	if _, err := fmt.Fprintf(w, "Run %s\n\n", runID); err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	table.Header("Candidate", "Entry point", "Algorithm", "Perf", "Overall", "Grade", "Status")
	for _, rec := range ranked(records) {
		if err := table.Append(
			rec.Candidate,
			truncateCell(entryPoint(rec), maxEntryWidth),
			fmt.Sprintf("%.2f", rec.AlgorithmScore),
			fmt.Sprintf("%.2f", rec.PerformanceScore),
			fmt.Sprintf("%.2f", rec.Overall),
			rec.Grade,
			status(rec),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func printCandidateHistory(w io.Writer, name string, entries []store.HistoryEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintf(w, "No results recorded for %s.\n", name)
		return err
	}
	table := tablewriter.NewWriter(w)
	table.Header("Run", "Started", "Algorithm", "Perf", "Overall", "Grade", "Resolved")
	for _, e := range entries {
		resolved := "yes"
		if !e.Resolved {
			resolved = "no"
		}
		if err := table.Append(
			shortID(e.RunID),
			e.StartedAt.Local().Format(historyTimeFormat),
			fmt.Sprintf("%.2f", e.Algorithm),
			fmt.Sprintf("%.2f", e.Performance),
			fmt.Sprintf("%.2f", e.Overall),
			e.Grade,
			resolved,
		); err != nil {
			return err
		}
	}
	return table.Render()
}

// shortID abbreviates a run ID for display; ResolveRunID accepts the prefix.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
