package statistics

import (
	"math"
	"math/rand"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// ConfidenceInterval holds the result of a bootstrap confidence interval computation.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Estimate        float64 `json:"estimate"`
	ConfidenceLevel float64 `json:"confidence_level"`
	NumBootstraps   int     `json:"num_bootstraps"`
}

// Width is Upper - Lower.
func (ci ConfidenceInterval) Width() float64 {
	return ci.Upper - ci.Lower
}

// DefaultBootstrapIterations is the number of bootstrap resamples.
const DefaultBootstrapIterations = 2000

// DefaultSeed keeps timing intervals reproducible between runs of the same data.
const DefaultSeed int64 = 7

// Estimator reduces a sample to one number.
type Estimator func(values []float64) float64

// BootstrapCI computes a percentile-method bootstrap confidence interval for
// est over samples. confidenceLevel should be in (0, 1), e.g. 0.95. The
// resampling source is seeded so the same input always gives the same
// interval. Fewer than 2 samples yield a degenerate interval.
func BootstrapCI(samples []float64, confidenceLevel float64, est Estimator) ConfidenceInterval {
	return BootstrapCIWithSeed(samples, confidenceLevel, est, DefaultSeed)
}

// BootstrapCIWithSeed is like BootstrapCI with an explicit seed.
func BootstrapCIWithSeed(samples []float64, confidenceLevel float64, est Estimator, seed int64) ConfidenceInterval {
	n := len(samples)
	if n < 2 {
		e := 0.0
		if n == 1 {
			e = samples[0]
		}
		return ConfidenceInterval{
			Lower:           e,
			Upper:           e,
			Estimate:        e,
			ConfidenceLevel: confidenceLevel,
		}
	}

	rng := rand.New(rand.NewSource(seed))
	iters := DefaultBootstrapIterations

	boot := make([]float64, iters)
	resample := make([]float64, n)
	for i := range iters {
		for j := range n {
			resample[j] = samples[rng.Intn(n)]
		}
		boot[i] = est(resample)
	}
	slices.Sort(boot)

	alpha := 1.0 - confidenceLevel
	loIdx := int(math.Floor(alpha / 2.0 * float64(iters)))
	hiIdx := int(math.Floor((1.0 - alpha/2.0) * float64(iters)))
	if hiIdx >= iters {
		hiIdx = iters - 1
	}

	return ConfidenceInterval{
		Lower:           boot[loIdx],
		Upper:           boot[hiIdx],
		Estimate:        est(samples),
		ConfidenceLevel: confidenceLevel,
		NumBootstraps:   iters,
	}
}

// Mean is the arithmetic mean. Empty input gives 0.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Median is the empirical 0.5 quantile. Empty input gives 0.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// Min is the smallest value. Empty input gives 0.
func Min(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return slices.Min(values)
}
