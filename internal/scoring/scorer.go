// Package scoring turns per-fixture execution results and a profiling report
// into a candidate's ScoreRecord, and combines sub-scores into an overall
// weighted score.
package scoring

import (
	"errors"
	"time"

	"github.com/spboyer/rmbsgrade/internal/compare"
	"github.com/spboyer/rmbsgrade/internal/config"
	"github.com/spboyer/rmbsgrade/internal/loader"
	"github.com/spboyer/rmbsgrade/internal/models"
	"github.com/spboyer/rmbsgrade/internal/profile"
)

// Score builds the ScoreRecord of one candidate. It is a pure function of its
// inputs: fixtures and tiers are taken from cfg, not from results or report,
// so execution order never matters and anything not recorded is scored as a
// worst-case failure. A non-nil loadErr zeroes both sub-scores.
func Score(
	candidate string,
	binding *models.CandidateBinding,
	loadErr error,
	results map[string]models.ExecutionResult,
	report profile.Report,
	cfg *config.HarnessConfig,
) models.ScoreRecord {
	set := cfg.Fixtures()
	rec := models.ScoreRecord{
		Candidate: candidate,
		Binding:   binding,
		Fixtures:  make(map[string]models.FixtureDetail, len(set.Fixtures())),
		Tiers:     make(map[string]models.TierDetail, len(set.Tiers())),
	}

	if loadErr != nil {
		kind := LoadErrorKind(loadErr)
		rec.Binding = nil
		rec.LoadErrorKind = kind
		rec.LoadError = loadErr.Error()
		for _, f := range set.Fixtures() {
			rec.Fixtures[f.Name] = models.FixtureDetail{
				Expected:  f.Expected,
				Weight:    f.Weight,
				ErrorKind: kind,
				Message:   rec.LoadError,
			}
		}
		for _, t := range set.Tiers() {
			rec.Tiers[t.Name] = models.TierDetail{
				Size:        t.Size,
				ReferenceMs: ms(t.Reference),
				ErrorKind:   kind,
				Message:     rec.LoadError,
			}
		}
		return rec
	}

	scale := cfg.DistanceScale()
	weighted := make([]compare.Weighted, 0, len(set.Fixtures()))
	for _, f := range set.Fixtures() {
		res, ok := results[f.Name]
		if !ok {
			res = models.MissingResult()
		}
		v := compare.Score(f.Expected, res, scale)
		weighted = append(weighted, compare.Weighted{Verdict: v, Weight: f.Weight})
		rec.Fixtures[f.Name] = models.FixtureDetail{
			Expected:    f.Expected,
			Actual:      v.Actual,
			Correctness: v.Correctness,
			Weight:      f.Weight,
			Distance:    v.Distance,
			ErrorKind:   v.ErrorKind,
			Message:     v.Message,
			ElapsedMs:   v.ElapsedMs,
		}
	}
	rec.AlgorithmScore = compare.AlgorithmScore(weighted)

	var perf float64
	for _, t := range set.Tiers() {
		tr, ok := report.Tier(t.Name)
		if !ok {
			missing := models.MissingResult()
			rec.Tiers[t.Name] = models.TierDetail{
				Size:        t.Size,
				ReferenceMs: ms(t.Reference),
				ErrorKind:   missing.ErrorKind,
				Message:     missing.Message,
			}
			continue
		}
		rec.Tiers[t.Name] = tierDetail(tr)
		perf += tr.Score
	}
	if n := len(set.Tiers()); n > 0 {
		rec.PerformanceScore = perf / float64(n)
	}
	return rec
}

// LoadErrorKind classifies a loader failure. Anything that is not a typed
// loader error counts as an import failure.
func LoadErrorKind(err error) models.ErrorKind {
	var le *loader.Error
	switch {
	case errors.As(err, &le):
		return le.Kind
	case errors.Is(err, loader.ErrNoEntryPoint):
		return models.ErrorKindNoEntryPoint
	default:
		return models.ErrorKindImportFailure
	}
}

func tierDetail(tr profile.TierResult) models.TierDetail {
	d := models.TierDetail{
		Size:        tr.Size,
		ReferenceMs: ms(tr.Reference),
		ElapsedMs:   ms(tr.Elapsed),
		Score:       tr.Score,
		ErrorKind:   tr.ErrorKind,
		Message:     tr.Message,
		BootstrapCI: tr.CI,
	}
	for _, s := range tr.Samples {
		d.SamplesMs = append(d.SamplesMs, ms(s))
	}
	return d
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
