// Package compare grades a produced rating against the expected one, giving
// partial credit for near misses on the ordinal scale.
package compare

import (
	"math"

	"github.com/spboyer/rmbsgrade/internal/models"
	"github.com/spboyer/rmbsgrade/internal/rating"
)

// Verdict is the graded outcome of one fixture.
type Verdict struct {
	Correctness float64
	Actual      rating.Rating
	// Distance is the ordinal distance, nil when it does not apply (failures,
	// the None sentinel).
	Distance  *int
	ErrorKind models.ErrorKind
	Message   string
	ElapsedMs float64
}

// Score grades result against expected. scale is the ordinal distance at
// which credit reaches zero and must be positive.
func Score(expected rating.Rating, result models.ExecutionResult, scale float64) Verdict {
	if !result.Succeeded() {
		return Verdict{
			ErrorKind: result.ErrorKind,
			Message:   result.Message,
		}
	}

	v := Verdict{
		Actual:    result.Rating,
		ElapsedMs: float64(result.Elapsed.Microseconds()) / 1000,
	}

	// The "no ratable output" sentinel is all-or-nothing.
	if expected == rating.None {
		if result.Rating == rating.None {
			v.Correctness = 1
		} else {
			v.Message = "expected no rating, got " + result.Rating.String()
		}
		return v
	}
	if result.Rating == rating.None {
		v.ErrorKind = models.ErrorKindMalformedOutput
		v.Message = "expected " + expected.String() + ", got no rating"
		return v
	}

	d, err := rating.Distance(expected, result.Rating)
	if err != nil {
		v.ErrorKind = models.ErrorKindMalformedOutput
		v.Message = err.Error()
		return v
	}
	v.Distance = &d
	v.Correctness = Credit(d, scale)
	return v
}

// Credit is max(0, 1 - distance/scale).
func Credit(distance int, scale float64) float64 {
	if distance == 0 {
		return 1
	}
	if scale <= 0 {
		return 0
	}
	return math.Max(0, 1-float64(distance)/scale)
}

// Weighted pairs a verdict with its fixture weight.
type Weighted struct {
	Verdict Verdict
	Weight  float64
}

// AlgorithmScore is the weighted mean correctness scaled to [0, MaxScore].
// Zero total weight yields 0; fixture sets with zero total weight are
// rejected when they are loaded.
func AlgorithmScore(items []Weighted) float64 {
	var sum, total float64
	for _, it := range items {
		sum += it.Verdict.Correctness * it.Weight
		total += it.Weight
	}
	if total <= 0 {
		return 0
	}
	return math.Min(models.MaxScore, sum/total*models.MaxScore)
}
