// Package config holds the immutable harness configuration passed to the
// executor, profiler and scorer at construction.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"time"

	"github.com/spboyer/rmbsgrade/internal/fixtures"
	"github.com/spboyer/rmbsgrade/internal/loader"
)

// SampleStrategy selects how repeated timing samples of one tier are reduced.
type SampleStrategy string

const (
	SampleBest   SampleStrategy = "best"
	SampleMedian SampleStrategy = "median"
)

// ParseSampleStrategy validates a strategy name.
func ParseSampleStrategy(s string) (SampleStrategy, error) {
	switch SampleStrategy(s) {
	case SampleBest, SampleMedian:
		return SampleStrategy(s), nil
	}
	return "", fmt.Errorf("unknown sample strategy %q (want %q or %q)", s, SampleBest, SampleMedian)
}

const (
	DefaultTimeout            = 10 * time.Second
	DefaultSamples            = 3
	DefaultSampleStrategy     = SampleMedian
	DefaultWarmup             = 1
	DefaultDecay              = 4.0
	DefaultWorkers            = 4
	DefaultFixtureParallelism = 1
)

// DefaultOverallWeights are the component weights of the overall score.
func DefaultOverallWeights() map[string]float64 {
	return map[string]float64{
		"structure":     0.1,
		"tests":         0.2,
		"code_quality":  0.2,
		"algorithm":     0.3,
		"performance":   0.1,
		"documentation": 0.1,
	}
}

// ErrInvalidConfig is wrapped by every error returned from Validate.
var ErrInvalidConfig = errors.New("invalid harness configuration")

// HarnessConfig is built once per run and read by every candidate evaluation.
// Use NewHarnessConfig with functional options; there are no setters.
type HarnessConfig struct {
	fixtures           *fixtures.Set
	timeout            time.Duration
	distanceScale      float64
	samples            int
	sampleStrategy     SampleStrategy
	warmup             int
	decay              float64
	workers            int
	fixtureParallelism int
	pythonBin          string
	overallWeights     map[string]float64
	loaderRules        loader.Rules
	cacheDir           string
	dbPath             string
	verbose            bool
}

// Option is a functional option for HarnessConfig.
type Option func(*HarnessConfig)

// NewHarnessConfig creates a HarnessConfig over set with the given options applied.
func NewHarnessConfig(set *fixtures.Set, opts ...Option) *HarnessConfig {
	cfg := &HarnessConfig{
		fixtures:           set,
		timeout:            DefaultTimeout,
		samples:            DefaultSamples,
		sampleStrategy:     DefaultSampleStrategy,
		warmup:             DefaultWarmup,
		decay:              DefaultDecay,
		workers:            DefaultWorkers,
		fixtureParallelism: DefaultFixtureParallelism,
		overallWeights:     DefaultOverallWeights(),
		loaderRules:        loader.DefaultRules(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithTimeout sets the wall-clock bound of one candidate invocation.
func WithTimeout(d time.Duration) Option {
	return func(c *HarnessConfig) { c.timeout = d }
}

// WithLoaderRules replaces the entry point ranking rules.
func WithLoaderRules(r loader.Rules) Option {
	return func(c *HarnessConfig) { c.loaderRules = r }
}

// WithDistanceScale overrides the fixture set's ordinal tolerance width.
// Zero keeps the fixture set's value.
func WithDistanceScale(scale float64) Option {
	return func(c *HarnessConfig) { c.distanceScale = scale }
}

// WithSamples sets the number of measured invocations per tier.
func WithSamples(n int) Option {
	return func(c *HarnessConfig) { c.samples = n }
}

// WithSampleStrategy sets how tier samples are reduced.
func WithSampleStrategy(s SampleStrategy) Option {
	return func(c *HarnessConfig) { c.sampleStrategy = s }
}

// WithWarmup sets the number of discarded invocations before tier timing.
func WithWarmup(n int) Option {
	return func(c *HarnessConfig) { c.warmup = n }
}

// WithDecay sets how many multiples of the reference time past the
// reference it takes a tier score to reach zero.
func WithDecay(d float64) Option {
	return func(c *HarnessConfig) { c.decay = d }
}

// WithWorkers sets how many candidates are evaluated concurrently.
func WithWorkers(n int) Option {
	return func(c *HarnessConfig) { c.workers = n }
}

// WithFixtureParallelism sets how many fixtures of one candidate may run at once.
func WithFixtureParallelism(n int) Option {
	return func(c *HarnessConfig) { c.fixtureParallelism = n }
}

// WithPythonBin sets the interpreter used for candidate code.
func WithPythonBin(bin string) Option {
	return func(c *HarnessConfig) { c.pythonBin = bin }
}

// WithOverallWeights replaces the overall-score component weights.
func WithOverallWeights(w map[string]float64) Option {
	return func(c *HarnessConfig) { c.overallWeights = maps.Clone(w) }
}

// WithCacheDir enables result caching under dir.
func WithCacheDir(dir string) Option {
	return func(c *HarnessConfig) { c.cacheDir = dir }
}

// WithDBPath enables run history in the given SQLite file.
func WithDBPath(path string) Option {
	return func(c *HarnessConfig) { c.dbPath = path }
}

// WithVerbose enables verbose output.
func WithVerbose(v bool) Option {
	return func(c *HarnessConfig) { c.verbose = v }
}

func (c *HarnessConfig) Fixtures() *fixtures.Set        { return c.fixtures }
func (c *HarnessConfig) Timeout() time.Duration         { return c.timeout }
func (c *HarnessConfig) Samples() int                   { return c.samples }
func (c *HarnessConfig) SampleStrategy() SampleStrategy { return c.sampleStrategy }
func (c *HarnessConfig) Warmup() int                    { return c.warmup }
func (c *HarnessConfig) Decay() float64                 { return c.decay }
func (c *HarnessConfig) Workers() int                   { return c.workers }
func (c *HarnessConfig) FixtureParallelism() int        { return c.fixtureParallelism }
func (c *HarnessConfig) PythonBin() string              { return c.pythonBin }
func (c *HarnessConfig) CacheDir() string               { return c.cacheDir }
func (c *HarnessConfig) DBPath() string                 { return c.dbPath }
func (c *HarnessConfig) Verbose() bool                  { return c.verbose }

// OverallWeights returns a copy of the component weights.
func (c *HarnessConfig) OverallWeights() map[string]float64 { return maps.Clone(c.overallWeights) }

// LoaderRules returns the entry point ranking rules.
func (c *HarnessConfig) LoaderRules() loader.Rules { return c.loaderRules }

// DistanceScale returns the effective ordinal tolerance width.
func (c *HarnessConfig) DistanceScale() float64 {
	if c.distanceScale > 0 {
		return c.distanceScale
	}
	if c.fixtures != nil {
		return c.fixtures.DistanceScale()
	}
	return fixtures.DefaultDistanceScale
}

// Validate reports configuration errors. They invalidate the whole run.
func (c *HarnessConfig) Validate() error {
	if c.fixtures == nil {
		return fmt.Errorf("%w: no fixture set", ErrInvalidConfig)
	}
	if c.timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidConfig, c.timeout)
	}
	if c.distanceScale < 0 || math.IsNaN(c.distanceScale) {
		return fmt.Errorf("%w: distance scale must be positive, got %v", ErrInvalidConfig, c.distanceScale)
	}
	if c.samples < 1 {
		return fmt.Errorf("%w: samples must be at least 1, got %d", ErrInvalidConfig, c.samples)
	}
	if _, err := ParseSampleStrategy(string(c.sampleStrategy)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.warmup < 0 {
		return fmt.Errorf("%w: warmup must not be negative, got %d", ErrInvalidConfig, c.warmup)
	}
	if c.decay <= 0 || math.IsNaN(c.decay) {
		return fmt.Errorf("%w: decay must be positive, got %v", ErrInvalidConfig, c.decay)
	}
	if c.workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.workers)
	}
	if c.fixtureParallelism < 1 {
		return fmt.Errorf("%w: fixture parallelism must be at least 1, got %d", ErrInvalidConfig, c.fixtureParallelism)
	}
	total := 0.0
	for name, w := range c.overallWeights {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("%w: weight %q must not be negative", ErrInvalidConfig, name)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("%w: overall weights sum to zero", ErrInvalidConfig)
	}
	return nil
}

// Fingerprint hashes every setting that can change a ScoreRecord. Cache
// entries are only reused when the fingerprint matches.
func (c *HarnessConfig) Fingerprint() string {
	type tierKey struct {
		Name string
		Size int
		Ref  time.Duration
	}
	type fixtureKey struct {
		Name      string
		Expected  string
		Weight    float64
		Portfolio json.RawMessage
	}
	key := struct {
		Timeout  time.Duration
		Scale    float64
		Samples  int
		Strategy SampleStrategy
		Warmup   int
		Decay    float64
		Python   string
		Rules    loader.Rules
		Fixtures []fixtureKey
		Tiers    []tierKey
	}{
		Timeout:  c.timeout,
		Scale:    c.DistanceScale(),
		Samples:  c.samples,
		Strategy: c.sampleStrategy,
		Warmup:   c.warmup,
		Decay:    c.decay,
		Python:   c.pythonBin,
		Rules:    c.loaderRules,
	}
	if c.fixtures != nil {
		for _, f := range c.fixtures.Fixtures() {
			raw, _ := json.Marshal(f.Portfolio)
			key.Fixtures = append(key.Fixtures, fixtureKey{f.Name, string(f.Expected), f.Weight, raw})
		}
		for _, t := range c.fixtures.Tiers() {
			key.Tiers = append(key.Tiers, tierKey{t.Name, t.Size, t.Reference})
		}
	}
	data, _ := json.Marshal(key)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
