// Package telemetry collects Prometheus metrics for one grading run. The
// collectors live on a private registry and are exported as a node-exporter
// textfile when the run finishes.
package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spboyer/rmbsgrade/internal/models"
)

const namespace = "rmbsgrade"

// Invocation phases.
const (
	PhaseFixture = "fixture"
	PhaseProfile = "profile"
)

// Metrics holds the run collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	reg *prometheus.Registry

	// CandidatesTotal counts evaluated candidates.
	// Labels: status (resolved, unresolved, cached)
	CandidatesTotal *prometheus.CounterVec

	// InvocationsTotal counts candidate invocations.
	// Labels: phase (fixture, profile), result (success, failure, timeout), error_kind
	InvocationsTotal *prometheus.CounterVec

	// InvocationSeconds measures the in-interpreter duration of successful calls.
	// Labels: phase
	InvocationSeconds *prometheus.HistogramVec

	// CandidateSeconds measures the wall-clock time of one candidate evaluation.
	CandidateSeconds prometheus.Histogram

	// Scores holds the latest sub-scores per candidate.
	// Labels: candidate, component (algorithm, performance, overall)
	Scores *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}
	m.CandidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Total candidates evaluated by status",
		},
		[]string{"status"},
	)
	m.InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Total candidate invocations by phase and result",
		},
		[]string{"phase", "result", "error_kind"},
	)
	m.InvocationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Duration of successful candidate invocations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"phase"},
	)
	m.CandidateSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_duration_seconds",
			Help:      "Wall-clock time to evaluate one candidate in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
	)
	m.Scores = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "candidate_score",
			Help:      "Latest candidate sub-scores on a 0-5 scale",
		},
		[]string{"candidate", "component"},
	)
	m.reg.MustRegister(
		m.CandidatesTotal,
		m.InvocationsTotal,
		m.InvocationSeconds,
		m.CandidateSeconds,
		m.Scores,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// ObserveInvocation records one call of candidate code.
func (m *Metrics) ObserveInvocation(phase string, r models.ExecutionResult) {
	if m == nil {
		return
	}
	m.InvocationsTotal.WithLabelValues(phase, string(r.Kind), string(r.ErrorKind)).Inc()
	if r.Succeeded() {
		m.InvocationSeconds.WithLabelValues(phase).Observe(r.Elapsed.Seconds())
	}
}

// ObserveCandidate records a finished ScoreRecord.
func (m *Metrics) ObserveCandidate(rec models.ScoreRecord, took time.Duration) {
	if m == nil {
		return
	}
	status := "resolved"
	switch {
	case rec.Cached:
		status = "cached"
	case !rec.Resolved():
		status = "unresolved"
	}
	m.CandidatesTotal.WithLabelValues(status).Inc()
	if !rec.Cached {
		m.CandidateSeconds.Observe(took.Seconds())
	}
	m.Scores.WithLabelValues(rec.Candidate, "algorithm").Set(rec.AlgorithmScore)
	m.Scores.WithLabelValues(rec.Candidate, "performance").Set(rec.PerformanceScore)
}

// ObserveOverall records the aggregated score of a candidate.
func (m *Metrics) ObserveOverall(candidate string, overall float64) {
	if m == nil {
		return
	}
	m.Scores.WithLabelValues(candidate, "overall").Set(overall)
}

// WriteTextfile writes every collector in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
