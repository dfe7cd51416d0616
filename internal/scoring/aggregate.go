package scoring

import (
	"cmp"
	"maps"
	"math"
	"slices"

	"github.com/spboyer/rmbsgrade/internal/models"
)

// Component names of the overall score. Only algorithm and performance are
// measured by the harness; the others come from external scores.
const (
	ComponentStructure     = "structure"
	ComponentTests         = "tests"
	ComponentCodeQuality   = "code_quality"
	ComponentAlgorithm     = "algorithm"
	ComponentPerformance   = "performance"
	ComponentDocumentation = "documentation"
)

// Overall is the weighted mean of the components present in subscores.
// Components without a sub-score are dropped and the remaining weights
// renormalised. It returns 0 when no weighted component is present.
func Overall(subscores, weights map[string]float64) float64 {
	var total, weight float64
	for _, component := range slices.Sorted(maps.Keys(weights)) {
		w := weights[component]
		s, ok := subscores[component]
		if !ok {
			continue
		}
		total += s * w
		weight += w
	}
	if weight <= 0 {
		return 0
	}
	return Clamp(total / weight)
}

// Clamp bounds a score to [0, MaxScore]. NaN becomes 0.
func Clamp(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(models.MaxScore, score))
}

var gradeCutoffs = []struct {
	percent float64
	grade   string
}{
	{97, "A+"}, {93, "A"}, {90, "A-"},
	{87, "B+"}, {83, "B"}, {80, "B-"},
	{77, "C+"}, {73, "C"}, {70, "C-"},
	{67, "D+"}, {63, "D"}, {60, "D-"},
}

// LetterGrade converts score out of maxScore to a letter grade, A+ to F.
func LetterGrade(score, maxScore float64) string {
	if maxScore <= 0 {
		return "F"
	}
	percent := score / maxScore * 100
	for _, c := range gradeCutoffs {
		if percent >= c.percent {
			return c.grade
		}
	}
	return "F"
}

// Finalize fills the Overall and Grade fields of rec from its measured
// sub-scores and any external component scores.
func Finalize(rec *models.ScoreRecord, external map[string]float64, weights map[string]float64) {
	subscores := maps.Clone(external)
	if subscores == nil {
		subscores = map[string]float64{}
	}
	subscores[ComponentAlgorithm] = rec.AlgorithmScore
	subscores[ComponentPerformance] = rec.PerformanceScore
	rec.Overall = Overall(subscores, weights)
	rec.Grade = LetterGrade(rec.Overall, models.MaxScore)
}

// PercentileRanks ranks candidates by overall score on a 0-100 scale. Ties
// share the rank of the lowest position; a single candidate gets 50. Ranks
// are for reporting only.
func PercentileRanks(records []models.ScoreRecord) map[string]float64 {
	if len(records) == 0 {
		return map[string]float64{}
	}
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b models.ScoreRecord) int {
		if c := cmp.Compare(a.Overall, b.Overall); c != 0 {
			return c
		}
		return cmp.Compare(a.Candidate, b.Candidate)
	})

	ranks := make(map[string]float64, len(sorted))
	if len(sorted) == 1 {
		ranks[sorted[0].Candidate] = 50
		return ranks
	}
	pos := 0
	for i, r := range sorted {
		if i > 0 && r.Overall != sorted[i-1].Overall {
			pos = i
		}
		ranks[r.Candidate] = float64(pos) / float64(len(sorted)-1) * 100
	}
	return ranks
}
