// Package profile times a candidate entry point on synthetic portfolios of
// increasing size and converts the timings into a performance sub-score.
package profile

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/spboyer/rmbsgrade/internal/config"
	"github.com/spboyer/rmbsgrade/internal/fixtures"
	"github.com/spboyer/rmbsgrade/internal/models"
	"github.com/spboyer/rmbsgrade/internal/portfolio"
	"github.com/spboyer/rmbsgrade/internal/statistics"
)

// ConfidenceLevel is used for the bootstrap interval over tier samples.
const ConfidenceLevel = 0.95

// Invoker runs a bound entry point once on a portfolio.
type Invoker interface {
	Execute(ctx context.Context, b *models.CandidateBinding, p portfolio.Portfolio, timeout time.Duration) models.ExecutionResult
}

// Tier is one profiling workload. Portfolio is shared read-only by every
// invocation of the tier.
type Tier struct {
	Name      string
	Reference time.Duration
	Portfolio portfolio.Portfolio
}

// TiersFromSet returns the tiers of set with their pre-generated portfolios.
func TiersFromSet(set *fixtures.Set) []Tier {
	var out []Tier
	for _, t := range set.Tiers() {
		p, _ := set.TierPortfolio(t.Name)
		out = append(out, Tier{Name: t.Name, Reference: t.Reference, Portfolio: p})
	}
	return out
}

// TierResult is the measured outcome of one tier.
type TierResult struct {
	Name      string
	Size      int
	Reference time.Duration
	// Elapsed is the reduced sample (best or median).
	Elapsed   time.Duration
	Samples   []time.Duration
	Score     float64
	ErrorKind models.ErrorKind
	Message   string
	CI        *statistics.ConfidenceInterval
}

// Failed reports whether the tier was abandoned on a timeout or failure.
func (t TierResult) Failed() bool { return t.ErrorKind != models.ErrorKindNone }

// Report is the profiling outcome of one candidate.
type Report struct {
	Tiers []TierResult
	// Score is the mean tier score, 0 when there are no tiers.
	Score float64
}

// Tier returns the named tier result.
func (r Report) Tier(name string) (TierResult, bool) {
	for _, t := range r.Tiers {
		if t.Name == name {
			return t, true
		}
	}
	return TierResult{}, false
}

// Profiler measures candidates. It holds no per-candidate state and is safe
// for concurrent use when its Invoker is.
type Profiler struct {
	invoker  Invoker
	timeout  time.Duration
	samples  int
	warmup   int
	strategy config.SampleStrategy
	decay    float64
}

// Option configures a Profiler.
type Option func(*Profiler)

func WithTimeout(d time.Duration) Option {
	return func(p *Profiler) { p.timeout = d }
}

func WithSamples(n int) Option {
	return func(p *Profiler) { p.samples = n }
}

func WithWarmup(n int) Option {
	return func(p *Profiler) { p.warmup = n }
}

func WithStrategy(s config.SampleStrategy) Option {
	return func(p *Profiler) { p.strategy = s }
}

func WithDecay(d float64) Option {
	return func(p *Profiler) { p.decay = d }
}

// New creates a Profiler with the harness defaults.
func New(inv Invoker, opts ...Option) *Profiler {
	p := &Profiler{
		invoker:  inv,
		timeout:  config.DefaultTimeout,
		samples:  config.DefaultSamples,
		warmup:   config.DefaultWarmup,
		strategy: config.DefaultSampleStrategy,
		decay:    config.DefaultDecay,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.samples < 1 {
		p.samples = 1
	}
	if p.warmup < 0 {
		p.warmup = 0
	}
	return p
}

// FromConfig creates a Profiler configured from cfg.
func FromConfig(inv Invoker, cfg *config.HarnessConfig) *Profiler {
	return New(inv,
		WithTimeout(cfg.Timeout()),
		WithSamples(cfg.Samples()),
		WithWarmup(cfg.Warmup()),
		WithStrategy(cfg.SampleStrategy()),
		WithDecay(cfg.Decay()),
	)
}

// Profile runs every tier in order, one invocation at a time. The ratings
// produced while profiling are discarded.
func (p *Profiler) Profile(ctx context.Context, b *models.CandidateBinding, tiers []Tier) Report {
	report := Report{Tiers: make([]TierResult, 0, len(tiers))}
	var sum float64
	for _, tier := range tiers {
		res := p.profileTier(ctx, b, tier)
		slog.Debug("tier profiled",
			"entry_point", b.Qualified(),
			"tier", tier.Name,
			"elapsed", res.Elapsed,
			"score", res.Score,
			"error_kind", res.ErrorKind)
		report.Tiers = append(report.Tiers, res)
		sum += res.Score
	}
	if len(tiers) > 0 {
		report.Score = sum / float64(len(tiers))
	}
	return report
}

func (p *Profiler) profileTier(ctx context.Context, b *models.CandidateBinding, tier Tier) TierResult {
	res := TierResult{
		Name:      tier.Name,
		Size:      tier.Portfolio.Len(),
		Reference: tier.Reference,
	}

	for range p.warmup {
		if r := p.invoker.Execute(ctx, b, tier.Portfolio, p.timeout); !r.Succeeded() {
			return failTier(res, r)
		}
	}

	ms := make([]float64, 0, p.samples)
	for range p.samples {
		r := p.invoker.Execute(ctx, b, tier.Portfolio, p.timeout)
		if !r.Succeeded() {
			return failTier(res, r)
		}
		res.Samples = append(res.Samples, r.Elapsed)
		ms = append(ms, durationMs(r.Elapsed))
	}

	est := p.estimator()
	res.Elapsed = time.Duration(math.Round(est(ms) * float64(time.Millisecond)))
	res.Score = TierScore(res.Elapsed, tier.Reference, p.decay)
	if len(ms) >= 2 {
		ci := statistics.BootstrapCI(ms, ConfidenceLevel, est)
		res.CI = &ci
	}
	return res
}

func (p *Profiler) estimator() statistics.Estimator {
	if p.strategy == config.SampleBest {
		return statistics.Min
	}
	return statistics.Median
}

func failTier(res TierResult, r models.ExecutionResult) TierResult {
	res.Score = 0
	res.ErrorKind = r.ErrorKind
	res.Message = r.Message
	if r.TimedOut() {
		res.Elapsed = r.Elapsed
	}
	return res
}

// TierScore maps a reduced timing to [0, MaxScore]: full marks at or below
// the reference, then a linear decline reaching zero at (1+decay)x the
// reference.
func TierScore(elapsed, reference time.Duration, decay float64) float64 {
	if elapsed <= reference {
		return models.MaxScore
	}
	if reference <= 0 || decay <= 0 {
		return 0
	}
	over := float64(elapsed)/float64(reference) - 1
	return models.MaxScore * math.Max(0, 1-over/decay)
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
