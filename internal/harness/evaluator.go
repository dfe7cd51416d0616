// Package harness grades a batch of candidate submissions: it resolves each
// candidate's entry point, runs the correctness fixtures, profiles the
// performance tiers and produces one ScoreRecord per candidate.
package harness

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/spboyer/rmbsgrade/internal/cache"
	"github.com/spboyer/rmbsgrade/internal/config"
	"github.com/spboyer/rmbsgrade/internal/discovery"
	"github.com/spboyer/rmbsgrade/internal/fixtures"
	"github.com/spboyer/rmbsgrade/internal/loader"
	"github.com/spboyer/rmbsgrade/internal/models"
	"github.com/spboyer/rmbsgrade/internal/profile"
	"github.com/spboyer/rmbsgrade/internal/scoring"
	"github.com/spboyer/rmbsgrade/internal/telemetry"
)

// Evaluator orchestrates candidate evaluations. Candidates share nothing but
// the read-only configuration, the cache and the metrics collectors.
type Evaluator struct {
	cfg      *config.HarnessConfig
	invoker  Invoker
	loader   *loader.Loader
	profiler *profile.Profiler

	cache    *cache.Cache
	metrics  *telemetry.Metrics
	external scoring.ExternalScores

	// Progress tracking
	progressMu sync.Mutex
	listeners  []ProgressListener
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCache enables result caching
func WithCache(c *cache.Cache) Option {
	return func(e *Evaluator) { e.cache = c }
}

// WithMetrics records invocations and candidate results.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithExternalScores supplies the non-measured components of the overall score.
func WithExternalScores(s scoring.ExternalScores) Option {
	return func(e *Evaluator) { e.external = s }
}

// New creates an Evaluator. The configuration is validated here so that a
// bad configuration aborts the run before any candidate is touched.
func New(cfg *config.HarnessConfig, inv Invoker, opts ...Option) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Evaluator{cfg: cfg, invoker: inv}
	for _, opt := range opts {
		opt(e)
	}

	e.loader = loader.New(
		loader.WithImportProbe(NewProber(inv, cfg.Timeout())),
		loader.WithRules(cfg.LoaderRules()),
	)
	e.profiler = profile.FromConfig(instrumented{next: inv, metrics: e.metrics, phase: telemetry.PhaseProfile}, cfg)
	return e, nil
}

// OnProgress registers a progress listener
func (e *Evaluator) OnProgress(listener ProgressListener) {
	e.progressMu.Lock()
	defer e.progressMu.Unlock()
	e.listeners = append(e.listeners, listener)
}

func (e *Evaluator) notifyProgress(event ProgressEvent) {
	e.progressMu.Lock()
	listeners := make([]ProgressListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// Run evaluates every submission and assembles the run outcome, including
// overall scores and grades.
func (e *Evaluator) Run(ctx context.Context, subs []discovery.Submission) *models.RunOutcome {
	start := time.Now()
	out := &models.RunOutcome{
		RunID:     uuid.NewString(),
		Timestamp: start.UTC(),
		Setup:     e.setup(),
	}

	e.notifyProgress(ProgressEvent{EventType: EventRunStart, TotalCandidates: len(subs)})

	out.Records = e.EvaluateAll(ctx, subs)
	weights := e.cfg.OverallWeights()
	for i := range out.Records {
		rec := &out.Records[i]
		scoring.Finalize(rec, e.external.For(rec.Candidate), weights)
		e.metrics.ObserveOverall(rec.Candidate, rec.Overall)
	}
	out.Digest = Digest(out.Records, time.Since(start))

	e.notifyProgress(ProgressEvent{
		EventType:       EventRunComplete,
		TotalCandidates: len(subs),
		DurationMs:      out.Digest.DurationMs,
	})
	return out
}

// EvaluateAll evaluates subs on a bounded worker pool. One candidate's
// failure never affects another. Records are returned sorted by candidate.
func (e *Evaluator) EvaluateAll(ctx context.Context, subs []discovery.Submission) []models.ScoreRecord {
	records := make([]models.ScoreRecord, len(subs))

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers())
	for i, sub := range subs {
		g.Go(func() error {
			records[i] = e.evaluate(ctx, sub, i+1, len(subs))
			return nil
		})
	}
	_ = g.Wait()

	slices.SortStableFunc(records, func(a, b models.ScoreRecord) int {
		return cmp.Compare(a.Candidate, b.Candidate)
	})
	return records
}

// Evaluate grades one submission.
func (e *Evaluator) Evaluate(ctx context.Context, sub discovery.Submission) models.ScoreRecord {
	return e.evaluate(ctx, sub, 1, 1)
}

func (e *Evaluator) evaluate(ctx context.Context, sub discovery.Submission, num, total int) models.ScoreRecord {
	start := time.Now()
	base := ProgressEvent{Candidate: sub.Name, CandidateNum: num, TotalCandidates: total}

	ev := base
	ev.EventType = EventCandidateStart
	e.notifyProgress(ev)

	cacheKey := e.cacheKey(sub)
	if cacheKey != "" {
		if rec, ok := e.cache.Get(cacheKey); ok {
			rec.Cached = true
			slog.Debug("cache hit", "candidate", sub.Name)
			e.metrics.ObserveCandidate(*rec, 0)
			ev := base
			ev.EventType = EventCandidateCached
			ev.Details = recordDetails(rec)
			e.notifyProgress(ev)
			return *rec
		}
	}

	rec := e.grade(ctx, sub, base)
	rec.DurationMs = time.Since(start).Milliseconds()

	// A cancelled evaluation is incomplete; never reuse it.
	if cacheKey != "" && ctx.Err() == nil {
		if err := e.cache.Put(cacheKey, &rec); err != nil {
			slog.Warn("failed to cache result", "candidate", sub.Name, "error", err)
		}
	}

	e.metrics.ObserveCandidate(rec, time.Since(start))
	ev = base
	ev.EventType = EventCandidateComplete
	ev.ErrorKind = rec.LoadErrorKind
	ev.DurationMs = rec.DurationMs
	ev.Details = recordDetails(&rec)
	e.notifyProgress(ev)
	return rec
}

func (e *Evaluator) grade(ctx context.Context, sub discovery.Submission, base ProgressEvent) models.ScoreRecord {
	binding, err := e.loader.Resolve(ctx, sub.Dir)
	if err != nil {
		slog.Info("candidate not resolved", "candidate", sub.Name, "error", err)
		return scoring.Score(sub.Name, nil, err, nil, profile.Report{}, e.cfg)
	}

	ev := base
	ev.EventType = EventCandidateResolved
	ev.Details = map[string]any{"entry_point": binding.Qualified(), "strategy": string(binding.Strategy)}
	e.notifyProgress(ev)
	slog.Debug("candidate resolved", "candidate", sub.Name, "entry_point", binding.Qualified(), "shape", binding.Shape)

	results := e.runFixtures(ctx, binding, base)

	report := e.profiler.Profile(ctx, binding, profile.TiersFromSet(e.cfg.Fixtures()))
	for _, tr := range report.Tiers {
		ev := base
		ev.EventType = EventTierComplete
		ev.Name = tr.Name
		ev.ErrorKind = tr.ErrorKind
		ev.DurationMs = tr.Elapsed.Milliseconds()
		ev.Details = map[string]any{"score": tr.Score}
		e.notifyProgress(ev)
	}

	return scoring.Score(sub.Name, binding, nil, results, report, e.cfg)
}

// runFixtures invokes the candidate once per fixture, up to the configured
// fixture parallelism at a time.
func (e *Evaluator) runFixtures(ctx context.Context, b *models.CandidateBinding, base ProgressEvent) map[string]models.ExecutionResult {
	set := e.cfg.Fixtures()
	inv := instrumented{next: e.invoker, metrics: e.metrics, phase: telemetry.PhaseFixture}
	sem := semaphore.NewWeighted(int64(e.cfg.FixtureParallelism()))

	var mu sync.Mutex
	results := make(map[string]models.ExecutionResult, len(set.Fixtures()))
	var wg sync.WaitGroup
	for _, f := range set.Fixtures() {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled; fixtures that never ran are scored as missing.
			break
		}
		wg.Add(1)
		go func(f fixtures.Fixture) {
			defer wg.Done()
			defer sem.Release(1)

			res := inv.Execute(ctx, b, f.Portfolio, e.cfg.Timeout())

			mu.Lock()
			results[f.Name] = res
			mu.Unlock()

			ev := base
			ev.EventType = EventFixtureComplete
			ev.Name = f.Name
			ev.ErrorKind = res.ErrorKind
			ev.DurationMs = res.Elapsed.Milliseconds()
			e.notifyProgress(ev)
		}(f)
	}
	wg.Wait()
	return results
}

func (e *Evaluator) cacheKey(sub discovery.Submission) string {
	if e.cache == nil {
		return ""
	}
	key, err := cache.CacheKey(sub.Name, sub.Dir, e.cfg.Fingerprint())
	if err != nil {
		slog.Warn("cache disabled for candidate", "candidate", sub.Name, "error", err)
		return ""
	}
	return key
}

func (e *Evaluator) setup() models.RunSetup {
	return models.RunSetup{
		FixtureSet:     e.cfg.Fixtures().Name(),
		TimeoutMs:      e.cfg.Timeout().Milliseconds(),
		DistanceScale:  e.cfg.DistanceScale(),
		Samples:        e.cfg.Samples(),
		SampleStrategy: string(e.cfg.SampleStrategy()),
		Workers:        e.cfg.Workers(),
		Weights:        e.cfg.OverallWeights(),
	}
}

func recordDetails(rec *models.ScoreRecord) map[string]any {
	return map[string]any{
		"algorithm":   rec.AlgorithmScore,
		"performance": rec.PerformanceScore,
		"duration_ms": rec.DurationMs,
	}
}

// Digest summarises a batch of records.
func Digest(records []models.ScoreRecord, took time.Duration) models.RunDigest {
	d := models.RunDigest{Candidates: len(records), DurationMs: took.Milliseconds()}
	if len(records) == 0 {
		return d
	}
	var alg, perf, overall float64
	for i, r := range records {
		if r.Resolved() {
			d.Resolved++
		}
		alg += r.AlgorithmScore
		perf += r.PerformanceScore
		overall += r.Overall
		if i == 0 || r.Overall > d.MaxOverall {
			d.MaxOverall = r.Overall
		}
	}
	n := float64(len(records))
	d.Unresolved = d.Candidates - d.Resolved
	d.AvgAlgorithm = alg / n
	d.AvgPerformance = perf / n
	d.AvgOverall = overall / n
	return d
}

