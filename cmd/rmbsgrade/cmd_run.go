package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/spboyer/rmbsgrade/internal/cache"
	"github.com/spboyer/rmbsgrade/internal/config"
	"github.com/spboyer/rmbsgrade/internal/discovery"
	"github.com/spboyer/rmbsgrade/internal/fixtures"
	"github.com/spboyer/rmbsgrade/internal/harness"
	"github.com/spboyer/rmbsgrade/internal/loader"
	"github.com/spboyer/rmbsgrade/internal/models"
	"github.com/spboyer/rmbsgrade/internal/projectconfig"
	"github.com/spboyer/rmbsgrade/internal/sandbox"
	"github.com/spboyer/rmbsgrade/internal/scoring"
	"github.com/spboyer/rmbsgrade/internal/spinner"
	"github.com/spboyer/rmbsgrade/internal/store"
	"github.com/spboyer/rmbsgrade/internal/telemetry"
)

type runOptions struct {
	fixturesPath       string
	outputPath         string
	format             string
	workers            int
	fixtureParallelism int
	timeout            time.Duration
	samples            int
	strategy           string
	warmup             int
	decay              float64
	distanceScale      float64
	python             string
	dbPath             string
	noHistory          bool
	enableCache        bool
	disableCache       bool
	cacheDir           string
	metricsFile        string
	externalScores     string
	minScore           int
	failOnZero         bool
	verbose            bool
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [submissions-dir]",
		Short: "Grade every candidate in a submissions directory",
		Long: `Grade every candidate in a submissions directory.

Each immediate subdirectory of the submissions directory is one candidate
(hidden directories are skipped). The directory defaults to paths.submissions
from .rmbsgrade.yaml. Flags override the project file, which overrides the
built-in defaults.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommandE(cmd, args, opts)
		},
	}

	bindRunFlags(cmd.Flags(), opts)
	return cmd
}

func bindRunFlags(f *pflag.FlagSet, opts *runOptions) {
	f.StringVar(&opts.fixturesPath, "fixtures", "", "Fixture set YAML file (default: built-in set)")
	f.StringVarP(&opts.outputPath, "output", "o", "", "Output JSON file for results")
	f.StringVar(&opts.format, "format", formatTable, "Output format: table, json, markdown")
	f.IntVarP(&opts.workers, "workers", "j", projectconfig.DefaultWorkers, "Number of candidates evaluated concurrently")
	f.IntVar(&opts.fixtureParallelism, "fixture-parallelism", projectconfig.DefaultFixtureParallelism, "Fixtures of one candidate run concurrently")
	f.DurationVar(&opts.timeout, "timeout", config.DefaultTimeout, "Wall-clock bound of one candidate invocation")
	f.IntVar(&opts.samples, "samples", projectconfig.DefaultSamples, "Timed invocations per performance tier")
	f.StringVar(&opts.strategy, "strategy", projectconfig.DefaultSampleStrategy, "Sample reduction: best or median")
	f.IntVar(&opts.warmup, "warmup", projectconfig.DefaultWarmup, "Untimed invocations before each tier")
	f.Float64Var(&opts.decay, "decay", projectconfig.DefaultDecay, "Reference-time multiples past the reference until a tier scores 0")
	f.Float64Var(&opts.distanceScale, "distance-scale", 0, "Ordinal tolerance width (default: from the fixture set)")
	f.StringVar(&opts.python, "python", "", "Python interpreter for candidate code (default: python3 on PATH)")
	f.StringVar(&opts.dbPath, "db", projectconfig.DefaultDBPath, "SQLite run history database")
	f.BoolVar(&opts.noHistory, "no-history", false, "Do not record the run in the history database")
	f.BoolVar(&opts.enableCache, "cache", false, "Enable result caching")
	f.BoolVar(&opts.disableCache, "no-cache", false, "Disable result caching")
	f.StringVar(&opts.cacheDir, "cache-dir", projectconfig.DefaultCacheDir, "Cache directory for storing results")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file")
	f.StringVar(&opts.externalScores, "external-scores", "", "YAML/JSON file of externally computed sub-scores per candidate")
	f.IntVar(&opts.minScore, "min-score", loader.DefaultRules().MinScore, "Lowest rank an entry point candidate needs")
	f.BoolVar(&opts.failOnZero, "fail-on-zero", false, "Exit 1 when any candidate scores 0 on the algorithm")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output with per-fixture progress")
}

func runCommandE(cmd *cobra.Command, args []string, opts *runOptions) error {
	switch opts.format {
	case formatTable, formatJSON, formatMarkdown:
	default:
		return fmt.Errorf("unknown output format: %s (supported: table, json, markdown)", opts.format)
	}

	pc, err := projectconfig.Load(".")
	if err != nil {
		return err
	}

	dir := pc.Paths.Submissions
	if len(args) == 1 {
		dir = args[0]
	}

	cfg, err := buildHarnessConfig(cmd.Flags(), opts, pc)
	if err != nil {
		return err
	}

	subs, err := discovery.Submissions(dir)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return fmt.Errorf("no candidate submissions found in %s", dir)
	}

	var external scoring.ExternalScores
	if opts.externalScores != "" {
		if external, err = scoring.LoadExternalScores(opts.externalScores); err != nil {
			return err
		}
	}

	exec, err := sandbox.New(sandbox.WithPythonBin(cfg.PythonBin()))
	if err != nil {
		return err
	}
	defer exec.Close() //nolint:errcheck

	evalOpts := []harness.Option{harness.WithExternalScores(external)}
	if cfg.CacheDir() != "" {
		absCacheDir, err := filepath.Abs(cfg.CacheDir())
		if err != nil {
			return fmt.Errorf("resolving cache directory: %w", err)
		}
		evalOpts = append(evalOpts, harness.WithCache(cache.New(absCacheDir)))
		slog.Debug("cache enabled", "dir", absCacheDir)
	}
	var metrics *telemetry.Metrics
	if opts.metricsFile != "" {
		metrics = telemetry.New()
		evalOpts = append(evalOpts, harness.WithMetrics(metrics))
	}

	evaluator, err := harness.New(cfg, exec, evalOpts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := cmd.ErrOrStderr()
	fmt.Fprintf(status, "Grading %d candidate(s) from %s\nFixture set: %s | Timeout: %s | Workers: %d\n\n", //nolint:errcheck
		len(subs), dir, cfg.Fixtures().Name(), cfg.Timeout(), cfg.Workers())

	progress := newProgressPrinter(status, cfg.Verbose(), isTerminal(status))
	evaluator.OnProgress(progress.listen)
	outcome := evaluator.Run(ctx, subs)
	progress.stop()

	if err := render(cmd.OutOrStdout(), outcome, opts.format); err != nil {
		return err
	}

	if opts.outputPath != "" {
		if err := saveOutcome(outcome, opts.outputPath); err != nil {
			return fmt.Errorf("failed to save output: %w", err)
		}
		fmt.Fprintf(status, "\nResults saved to: %s\n", opts.outputPath) //nolint:errcheck
	}

	if cfg.DBPath() != "" {
		if err := recordRun(context.WithoutCancel(ctx), cfg.DBPath(), outcome); err != nil {
			return err
		}
	}

	if metrics != nil {
		if err := metrics.WriteTextfile(opts.metricsFile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	if ctx.Err() != nil {
		return errors.New("run interrupted: results are partial")
	}

	if opts.failOnZero {
		return zeroScoreFailure(outcome)
	}
	return nil
}

// buildHarnessConfig merges the project file with flags; flags win when set.
func buildHarnessConfig(flags *pflag.FlagSet, opts *runOptions, pc *projectconfig.ProjectConfig) (*config.HarnessConfig, error) {
	set := fixtures.Default()
	fixturesPath := pc.Paths.Fixtures
	if flags.Changed("fixtures") {
		fixturesPath = opts.fixturesPath
	}
	if fixturesPath != "" {
		loaded, err := fixtures.Load(fixturesPath)
		if err != nil {
			return nil, err
		}
		set = loaded
	}

	d := pc.Defaults
	timeout := time.Duration(d.TimeoutMs) * time.Millisecond
	if flags.Changed("timeout") {
		timeout = opts.timeout
	}
	workers := pick(flags, "workers", opts.workers, d.Workers)
	fixtureParallelism := pick(flags, "fixture-parallelism", opts.fixtureParallelism, d.FixtureParallelism)
	samples := pick(flags, "samples", opts.samples, d.Samples)
	decay := pick(flags, "decay", opts.decay, d.Decay)
	distanceScale := pick(flags, "distance-scale", opts.distanceScale, d.DistanceScale)
	python := pick(flags, "python", opts.python, d.Python)
	warmup := projectconfig.DefaultWarmup
	if d.Warmup != nil {
		warmup = *d.Warmup
	}
	warmup = pick(flags, "warmup", opts.warmup, warmup)

	strategy, err := config.ParseSampleStrategy(pick(flags, "strategy", opts.strategy, d.SampleStrategy))
	if err != nil {
		return nil, err
	}

	cfgOpts := []config.Option{
		config.WithTimeout(timeout),
		config.WithWorkers(workers),
		config.WithFixtureParallelism(fixtureParallelism),
		config.WithSamples(samples),
		config.WithSampleStrategy(strategy),
		config.WithWarmup(warmup),
		config.WithDecay(decay),
		config.WithDistanceScale(distanceScale),
		config.WithPythonBin(python),
		config.WithVerbose(opts.verbose),
	}
	if flags.Changed("min-score") {
		rules := loader.DefaultRules()
		rules.MinScore = opts.minScore
		cfgOpts = append(cfgOpts, config.WithLoaderRules(rules))
	}
	if len(pc.Weights) > 0 {
		cfgOpts = append(cfgOpts, config.WithOverallWeights(pc.Weights))
	}

	useCache := (pc.CacheEnabled() || opts.enableCache) && !opts.disableCache
	if useCache {
		cfgOpts = append(cfgOpts, config.WithCacheDir(pick(flags, "cache-dir", opts.cacheDir, pc.Cache.Dir)))
	}
	if !opts.noHistory {
		cfgOpts = append(cfgOpts, config.WithDBPath(pick(flags, "db", opts.dbPath, pc.History.DB)))
	}

	return config.NewHarnessConfig(set, cfgOpts...), nil
}

// pick returns the flag value when the flag was given, else the project value.
func pick[T comparable](flags *pflag.FlagSet, name string, flagValue, projectValue T) T {
	if flags.Changed(name) {
		return flagValue
	}
	return projectValue
}

func recordRun(ctx context.Context, dbPath string, outcome *models.RunOutcome) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer st.Close() //nolint:errcheck
	if err := st.SaveRun(ctx, outcome); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	slog.Debug("run recorded", "run_id", outcome.RunID, "db", dbPath)
	return nil
}

func zeroScoreFailure(outcome *models.RunOutcome) error {
	var zero []string
	for _, rec := range outcome.Records {
		if rec.AlgorithmScore == 0 {
			zero = append(zero, rec.Candidate)
		}
	}
	if len(zero) == 0 {
		return nil
	}
	return &CandidateFailureError{
		Message: fmt.Sprintf("%d candidate(s) scored 0 on the algorithm: %s", len(zero), strings.Join(zero, ", ")),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// progressPrinter turns evaluator events into console output. Events from
// concurrent candidates arrive on different goroutines.
type progressPrinter struct {
	w       io.Writer
	verbose bool

	mu   sync.Mutex
	spin *spinner.Spinner
	done int
}

func newProgressPrinter(w io.Writer, verbose, tty bool) *progressPrinter {
	p := &progressPrinter{w: w, verbose: verbose}
	if tty && !verbose {
		p.spin = spinner.Start(w, "Grading...")
	}
	return p
}

func (p *progressPrinter) stop() {
	if p.spin != nil {
		p.spin.Stop()
	}
}

func (p *progressPrinter) listen(event harness.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch event.EventType {
	case harness.EventCandidateComplete, harness.EventCandidateCached:
		p.done++
		if p.spin != nil {
			p.spin.Set(fmt.Sprintf("Grading... %d/%d done (last: %s)", p.done, event.TotalCandidates, event.Candidate))
			return
		}
		p.printCandidate(event)
	}

	if !p.verbose {
		return
	}
	switch event.EventType {
	case harness.EventCandidateStart:
		fmt.Fprintf(p.w, "[%d/%d] Grading %s\n", event.CandidateNum, event.TotalCandidates, event.Candidate) //nolint:errcheck
	case harness.EventCandidateResolved:
		fmt.Fprintf(p.w, "  %s: entry point %v (%v)\n", event.Candidate, event.Details["entry_point"], event.Details["strategy"]) //nolint:errcheck
	case harness.EventFixtureComplete:
		fmt.Fprintf(p.w, "  %s: fixture %s %s (%s)\n", event.Candidate, event.Name, outcomeLabel(event.ErrorKind), //nolint:errcheck
			formatDuration(time.Duration(event.DurationMs)*time.Millisecond))
	case harness.EventTierComplete:
		fmt.Fprintf(p.w, "  %s: tier %s %s score=%.2f (%s)\n", event.Candidate, event.Name, outcomeLabel(event.ErrorKind), //nolint:errcheck
			event.Details["score"], formatDuration(time.Duration(event.DurationMs)*time.Millisecond))
	case harness.EventRunComplete:
		fmt.Fprintf(p.w, "Run completed in %s\n\n", formatDuration(time.Duration(event.DurationMs)*time.Millisecond)) //nolint:errcheck
	}
}

func (p *progressPrinter) printCandidate(event harness.ProgressEvent) {
	alg, _ := event.Details["algorithm"].(float64)
	perf, _ := event.Details["performance"].(float64)
	icon := "✓"
	if event.ErrorKind != models.ErrorKindNone || alg == 0 {
		icon = "✗"
	}
	suffix := ""
	switch {
	case event.EventType == harness.EventCandidateCached:
		suffix = " [cached]"
	case event.ErrorKind != models.ErrorKindNone:
		suffix = " [" + string(event.ErrorKind) + "]"
	}
	fmt.Fprintf(p.w, "%s [%d/%d] %s algorithm=%.2f performance=%.2f%s\n", //nolint:errcheck
		icon, event.CandidateNum, event.TotalCandidates, event.Candidate, alg, perf, suffix)
}

func outcomeLabel(kind models.ErrorKind) string {
	if kind == models.ErrorKindNone {
		return "ok"
	}
	return string(kind)
}
