package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"

	"github.com/spboyer/rmbsgrade/internal/models"
	"github.com/spboyer/rmbsgrade/internal/scoring"
)

// Output formats accepted by --format.
const (
	formatTable    = "table"
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

const (
	maxEntryWidth   = 40
	maxMessageWidth = 80
)

// formatDuration formats a duration in a consistent, human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(time.Millisecond).String()
}

func truncateCell(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "…")
}

// ranked returns the records ordered best first, ties by candidate name.
func ranked(records []models.ScoreRecord) []models.ScoreRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b models.ScoreRecord) int {
		if c := cmp.Compare(b.Overall, a.Overall); c != 0 {
			return c
		}
		return cmp.Compare(a.Candidate, b.Candidate)
	})
	return out
}

func entryPoint(rec models.ScoreRecord) string {
	if rec.Binding == nil {
		return "-"
	}
	return rec.Binding.Qualified()
}

func status(rec models.ScoreRecord) string {
	switch {
	case !rec.Resolved():
		return string(rec.LoadErrorKind)
	case rec.Cached:
		return "cached"
	default:
		return "ok"
	}
}

// failures lists "name: kind: message" for every failed fixture and tier of
// a resolved candidate, in name order.
func failures(rec models.ScoreRecord) []string {
	if !rec.Resolved() {
		return nil
	}
	var out []string
	for _, name := range slices.Sorted(maps.Keys(rec.Fixtures)) {
		if d := rec.Fixtures[name]; d.ErrorKind != models.ErrorKindNone {
			out = append(out, fmt.Sprintf("fixture %s: %s: %s", name, d.ErrorKind, d.Message))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(rec.Tiers)) {
		if d := rec.Tiers[name]; d.ErrorKind != models.ErrorKindNone {
			out = append(out, fmt.Sprintf("tier %s: %s: %s", name, d.ErrorKind, d.Message))
		}
	}
	return out
}

// printTable renders the console report.
func printTable(w io.Writer, outcome *models.RunOutcome) error {
	digest := outcome.Digest
	percentiles := scoring.PercentileRanks(outcome.Records)

	var b strings.Builder
	b.WriteString("=" + strings.Repeat("=", 50) + "\n")
	b.WriteString(" RMBS GRADING RESULTS\n")
	b.WriteString("=" + strings.Repeat("=", 50) + "\n")
	b.WriteString(fmt.Sprintf("Run:            %s\n", outcome.RunID))
	b.WriteString(fmt.Sprintf("Fixture set:    %s\n", outcome.Setup.FixtureSet))
	b.WriteString(fmt.Sprintf("Candidates:     %d (%d resolved, %d unresolved)\n", digest.Candidates, digest.Resolved, digest.Unresolved))
	b.WriteString(fmt.Sprintf("Avg algorithm:  %.2f / 5\n", digest.AvgAlgorithm))
	b.WriteString(fmt.Sprintf("Avg perf:       %.2f / 5\n", digest.AvgPerformance))
	b.WriteString(fmt.Sprintf("Avg overall:    %.2f / 5\n", digest.AvgOverall))
	b.WriteString(fmt.Sprintf("Duration:       %s\n\n", formatDuration(time.Duration(digest.DurationMs)*time.Millisecond)))
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("#", "Candidate", "Entry point", "Algorithm", "Perf", "Overall", "Grade", "Pctl", "Status")
	for i, rec := range ranked(outcome.Records) {
		if err := table.Append(
			fmt.Sprintf("%d", i+1),
			rec.Candidate,
			truncateCell(entryPoint(rec), maxEntryWidth),
			fmt.Sprintf("%.2f", rec.AlgorithmScore),
			fmt.Sprintf("%.2f", rec.PerformanceScore),
			fmt.Sprintf("%.2f", rec.Overall),
			rec.Grade,
			fmt.Sprintf("%.0f", percentiles[rec.Candidate]),
			status(rec),
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	var notes []string
	for _, rec := range outcome.Records {
		if !rec.Resolved() {
			notes = append(notes, fmt.Sprintf("  - %s: %s", rec.Candidate, truncateCell(rec.LoadError, maxMessageWidth)))
			continue
		}
		for _, f := range failures(rec) {
			notes = append(notes, fmt.Sprintf("  - %s: %s", rec.Candidate, truncateCell(f, maxMessageWidth)))
		}
	}
	if len(notes) == 0 {
		return nil
	}
	_, err := fmt.Fprintf(w, "\nFailures:\n%s\n", strings.Join(notes, "\n"))
	return err
}

// FormatMarkdown formats a RunOutcome as a markdown report, suitable for a
// pull request comment.
func FormatMarkdown(outcome *models.RunOutcome) string {
	var b strings.Builder

	digest := outcome.Digest
	duration := time.Duration(digest.DurationMs) * time.Millisecond
	percentiles := scoring.PercentileRanks(outcome.Records)

	b.WriteString("## RMBS Grading Results\n\n")

	statusIcon := "✅ All resolved"
	if digest.Unresolved > 0 {
		statusIcon = fmt.Sprintf("❌ %d unresolved", digest.Unresolved)
	}
	b.WriteString(fmt.Sprintf("**Status:** %s | **Avg overall:** %.2f | **Duration:** %s\n\n",
		statusIcon, digest.AvgOverall, formatDuration(duration)))

	b.WriteString(fmt.Sprintf("- **Candidates:** %d total, %d resolved, %d unresolved\n",
		digest.Candidates, digest.Resolved, digest.Unresolved))
	b.WriteString(fmt.Sprintf("- **Averages:** algorithm %.2f, performance %.2f\n",
		digest.AvgAlgorithm, digest.AvgPerformance))
	b.WriteString(fmt.Sprintf("- **Best overall:** %.2f\n\n", digest.MaxOverall))

	b.WriteString("### Candidates\n\n")
	b.WriteString("| Candidate | Algorithm | Performance | Overall | Grade | Percentile | Status |\n")
	b.WriteString("|-----------|-----------|-------------|---------|-------|------------|--------|\n")
	for _, rec := range ranked(outcome.Records) {
		icon := "✅"
		if !rec.Resolved() || rec.AlgorithmScore == 0 {
			icon = "❌"
		}
		b.WriteString(fmt.Sprintf("| %s | %.2f | %.2f | %.2f | %s | %.0f | %s %s |\n",
			rec.Candidate, rec.AlgorithmScore, rec.PerformanceScore, rec.Overall,
			rec.Grade, percentiles[rec.Candidate], icon, status(rec)))
	}
	b.WriteString("\n")

	var detailed []models.ScoreRecord
	for _, rec := range outcome.Records {
		if !rec.Resolved() || len(failures(rec)) > 0 {
			detailed = append(detailed, rec)
		}
	}
	if len(detailed) > 0 {
		b.WriteString("### Failure Details\n\n")
		for _, rec := range detailed {
			b.WriteString(fmt.Sprintf("#### %s\n\n", rec.Candidate))
			if !rec.Resolved() {
				b.WriteString(fmt.Sprintf("- ❌ **%s**: %s\n\n", rec.LoadErrorKind, truncateCell(rec.LoadError, maxMessageWidth)))
				continue
			}
			for _, f := range failures(rec) {
				b.WriteString(fmt.Sprintf("- ❌ %s\n", truncateCell(f, maxMessageWidth)))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("---\n\n")
	b.WriteString(fmt.Sprintf("**Run:** %s | **Fixture set:** %s | **Timeout:** %dms | **Samples:** %d (%s)\n",
		outcome.RunID, outcome.Setup.FixtureSet, outcome.Setup.TimeoutMs,
		outcome.Setup.Samples, outcome.Setup.SampleStrategy))

	return b.String()
}

// jsonReport is the --format json and --output document.
type jsonReport struct {
	*models.RunOutcome
	Percentiles map[string]float64 `json:"percentiles"`
}

func writeJSON(w io.Writer, outcome *models.RunOutcome) error {
	data, err := json.MarshalIndent(jsonReport{
		RunOutcome:  outcome,
		Percentiles: scoring.PercentileRanks(outcome.Records),
	}, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func saveOutcome(outcome *models.RunOutcome, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeJSON(f, outcome); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}

func render(w io.Writer, outcome *models.RunOutcome, format string) error {
	switch format {
	case formatTable:
		return printTable(w, outcome)
	case formatJSON:
		return writeJSON(w, outcome)
	case formatMarkdown:
		_, err := io.WriteString(w, FormatMarkdown(outcome))
		return err
	}
	return fmt.Errorf("unknown output format: %s (supported: table, json, markdown)", format)
}
