// Package projectconfig provides the ProjectConfig struct and loader for
// .rmbsgrade.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".rmbsgrade.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultSubmissionsDir = "submissions/"
	DefaultResultsDir     = "results/"

	DefaultTimeoutMs          = 10000
	DefaultWorkers            = 4
	DefaultFixtureParallelism = 1
	DefaultSamples            = 3
	DefaultSampleStrategy     = "median"
	DefaultWarmup             = 1
	DefaultDecay              = 4.0

	DefaultCacheDir = ".rmbsgrade-cache"
	DefaultDBPath   = "rmbsgrade.db"
)

// PathsConfig holds directory paths.
type PathsConfig struct {
	Submissions string `yaml:"submissions,omitempty"`
	Results     string `yaml:"results,omitempty"`
	Fixtures    string `yaml:"fixtures,omitempty"`
}

// DefaultsConfig holds default execution parameters.
type DefaultsConfig struct {
	TimeoutMs          int     `yaml:"timeout_ms,omitempty"`
	Workers            int     `yaml:"workers,omitempty"`
	FixtureParallelism int     `yaml:"fixture_parallelism,omitempty"`
	Samples            int     `yaml:"samples,omitempty"`
	SampleStrategy     string  `yaml:"sample_strategy,omitempty"`
	Warmup             *int    `yaml:"warmup,omitempty"`
	Decay              float64 `yaml:"decay,omitempty"`
	DistanceScale      float64 `yaml:"distance_scale,omitempty"`
	Python             string  `yaml:"python,omitempty"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// HistoryConfig holds run history settings.
type HistoryConfig struct {
	DB string `yaml:"db,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .rmbsgrade.yaml.
type ProjectConfig struct {
	Paths    PathsConfig        `yaml:"paths,omitempty"`
	Defaults DefaultsConfig     `yaml:"defaults,omitempty"`
	Cache    CacheConfig        `yaml:"cache,omitempty"`
	History  HistoryConfig      `yaml:"history,omitempty"`
	Weights  map[string]float64 `yaml:"weights,omitempty"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Paths: PathsConfig{
			Submissions: DefaultSubmissionsDir,
			Results:     DefaultResultsDir,
		},
		Defaults: DefaultsConfig{
			TimeoutMs:          DefaultTimeoutMs,
			Workers:            DefaultWorkers,
			FixtureParallelism: DefaultFixtureParallelism,
			Samples:            DefaultSamples,
			SampleStrategy:     DefaultSampleStrategy,
			Warmup:             intPtr(DefaultWarmup),
			Decay:              DefaultDecay,
		},
		Cache: CacheConfig{
			Enabled: boolPtr(false),
			Dir:     DefaultCacheDir,
		},
		History: HistoryConfig{
			DB: DefaultDBPath,
		},
	}
}

// Load finds .rmbsgrade.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults. A .env file in the
// working directory is loaded first, and RMBSGRADE_* environment variables
// override file values. If no config file is found, defaults (plus
// environment overrides) are returned with a nil error.
func Load(startDir string) (*ProjectConfig, error) {
	_ = godotenv.Load()

	cfg := New()

	data, err := findConfigFile(startDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	default:
		var fileCfg ProjectConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", FileName, err)
		}
		mergeConfig(cfg, &fileCfg)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile walks up from dir looking for .rmbsgrade.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) ([]byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for range 10 {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Paths
	if src.Paths.Submissions != "" {
		dst.Paths.Submissions = src.Paths.Submissions
	}
	if src.Paths.Results != "" {
		dst.Paths.Results = src.Paths.Results
	}
	if src.Paths.Fixtures != "" {
		dst.Paths.Fixtures = src.Paths.Fixtures
	}

	// Defaults
	if src.Defaults.TimeoutMs != 0 {
		dst.Defaults.TimeoutMs = src.Defaults.TimeoutMs
	}
	if src.Defaults.Workers != 0 {
		dst.Defaults.Workers = src.Defaults.Workers
	}
	if src.Defaults.FixtureParallelism != 0 {
		dst.Defaults.FixtureParallelism = src.Defaults.FixtureParallelism
	}
	if src.Defaults.Samples != 0 {
		dst.Defaults.Samples = src.Defaults.Samples
	}
	if src.Defaults.SampleStrategy != "" {
		dst.Defaults.SampleStrategy = src.Defaults.SampleStrategy
	}
	if src.Defaults.Warmup != nil {
		dst.Defaults.Warmup = src.Defaults.Warmup
	}
	if src.Defaults.Decay != 0 {
		dst.Defaults.Decay = src.Defaults.Decay
	}
	if src.Defaults.DistanceScale != 0 {
		dst.Defaults.DistanceScale = src.Defaults.DistanceScale
	}
	if src.Defaults.Python != "" {
		dst.Defaults.Python = src.Defaults.Python
	}

	// Cache
	if src.Cache.Enabled != nil {
		dst.Cache.Enabled = src.Cache.Enabled
	}
	if src.Cache.Dir != "" {
		dst.Cache.Dir = src.Cache.Dir
	}

	// History
	if src.History.DB != "" {
		dst.History.DB = src.History.DB
	}

	if len(src.Weights) > 0 {
		dst.Weights = src.Weights
	}
}

// applyEnvOverrides overwrites values with RMBSGRADE_* environment variables
// when they are set.
func applyEnvOverrides(cfg *ProjectConfig) error {
	if v := os.Getenv("RMBSGRADE_PYTHON"); v != "" {
		cfg.Defaults.Python = v
	}
	if v := os.Getenv("RMBSGRADE_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("RMBSGRADE_DB"); v != "" {
		cfg.History.DB = v
	}
	if v := os.Getenv("RMBSGRADE_SAMPLE_STRATEGY"); v != "" {
		cfg.Defaults.SampleStrategy = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"RMBSGRADE_TIMEOUT_MS", &cfg.Defaults.TimeoutMs},
		{"RMBSGRADE_WORKERS", &cfg.Defaults.Workers},
		{"RMBSGRADE_SAMPLES", &cfg.Defaults.Samples},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}
	return nil
}

// CacheEnabled reports whether result caching is switched on.
func (c *ProjectConfig) CacheEnabled() bool {
	return c.Cache.Enabled != nil && *c.Cache.Enabled
}

func boolPtr(b bool) *bool {
	return &b
}

func intPtr(n int) *int {
	return &n
}
