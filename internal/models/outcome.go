package models

import (
	"time"

	"github.com/spboyer/rmbsgrade/internal/rating"
	"github.com/spboyer/rmbsgrade/internal/statistics"
)

// MaxScore is the upper bound of every sub-score.
const MaxScore = 5.0

// FixtureDetail is the retained per-fixture diagnostic of a ScoreRecord.
type FixtureDetail struct {
	Expected    rating.Rating `json:"expected"`
	Actual      rating.Rating `json:"actual,omitempty"`
	Correctness float64       `json:"correctness"`
	Weight      float64       `json:"weight"`
	Distance    *int          `json:"distance,omitempty"`
	ErrorKind   ErrorKind     `json:"error_kind,omitempty"`
	Message     string        `json:"message,omitempty"`
	ElapsedMs   float64       `json:"elapsed_ms,omitempty"`
}

// TierDetail is the retained per-tier diagnostic of a ScoreRecord.
type TierDetail struct {
	Size        int       `json:"size"`
	ReferenceMs float64   `json:"reference_ms"`
	ElapsedMs   float64   `json:"elapsed_ms"`
	SamplesMs   []float64 `json:"samples_ms,omitempty"`
	Score       float64   `json:"score"`
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	Message     string    `json:"message,omitempty"`

	// Bootstrap confidence interval over the timing samples (populated when
	// more than one sample was taken)
	BootstrapCI *statistics.ConfidenceInterval `json:"bootstrap_ci,omitempty"`
}

// ScoreRecord is the algorithm/performance evaluation of one candidate. It is
// immutable once handed to the aggregator.
type ScoreRecord struct {
	Candidate        string                   `json:"candidate"`
	AlgorithmScore   float64                  `json:"algorithm_score"`
	PerformanceScore float64                  `json:"performance_score"`
	Binding          *CandidateBinding        `json:"binding,omitempty"`
	LoadErrorKind    ErrorKind                `json:"load_error_kind,omitempty"`
	LoadError        string                   `json:"load_error,omitempty"`
	Fixtures         map[string]FixtureDetail `json:"fixtures"`
	Tiers            map[string]TierDetail    `json:"tiers"`

	// Overall and Grade are filled by the weighted aggregator.
	Overall float64 `json:"overall"`
	Grade   string  `json:"grade,omitempty"`

	DurationMs int64 `json:"duration_ms"`
	Cached     bool  `json:"cached,omitempty"`
}

// Resolved reports whether the candidate's entry point was found and imported.
func (s *ScoreRecord) Resolved() bool {
	return s.LoadErrorKind == ErrorKindNone
}

// RunOutcome is the complete result of grading a batch of submissions.
type RunOutcome struct {
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"timestamp"`
	Setup     RunSetup      `json:"config"`
	Digest    RunDigest     `json:"summary"`
	Records   []ScoreRecord `json:"candidates"`
}

type RunSetup struct {
	FixtureSet     string             `json:"fixture_set"`
	TimeoutMs      int64              `json:"timeout_ms"`
	DistanceScale  float64            `json:"distance_scale"`
	Samples        int                `json:"samples"`
	SampleStrategy string             `json:"sample_strategy"`
	Workers        int                `json:"workers"`
	Weights        map[string]float64 `json:"weights"`
}

type RunDigest struct {
	Candidates     int     `json:"candidates"`
	Resolved       int     `json:"resolved"`
	Unresolved     int     `json:"unresolved"`
	AvgAlgorithm   float64 `json:"avg_algorithm"`
	AvgPerformance float64 `json:"avg_performance"`
	AvgOverall     float64 `json:"avg_overall"`
	MaxOverall     float64 `json:"max_overall"`
	DurationMs     int64   `json:"duration_ms"`
}
