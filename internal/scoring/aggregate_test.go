package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spboyer/rmbsgrade/internal/config"
	"github.com/spboyer/rmbsgrade/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverall(t *testing.T) {
	weights := config.DefaultOverallWeights()

	t.Run("all components", func(t *testing.T) {
		sub := map[string]float64{
			"structure": 5, "tests": 5, "code_quality": 5,
			"algorithm": 5, "performance": 5, "documentation": 5,
		}
		assert.InDelta(t, 5.0, Overall(sub, weights), 1e-9)
	})

	t.Run("missing components are renormalised", func(t *testing.T) {
		// algorithm .3 and performance .1 remain.
		sub := map[string]float64{"algorithm": 4, "performance": 2}
		assert.InDelta(t, (4*0.3+2*0.1)/0.4, Overall(sub, weights), 1e-9)
	})

	t.Run("unweighted components are ignored", func(t *testing.T) {
		sub := map[string]float64{"algorithm": 5, "style": 0}
		assert.InDelta(t, 5.0, Overall(sub, weights), 1e-9)
	})

	t.Run("nothing to weigh", func(t *testing.T) {
		assert.Equal(t, 0.0, Overall(map[string]float64{}, weights))
		assert.Equal(t, 0.0, Overall(map[string]float64{"algorithm": 5}, map[string]float64{"algorithm": 0}))
	})
}

func TestLetterGrade(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{5, "A+"},
		{4.9, "A+"},
		{4.7, "A"},
		{4.55, "A-"},
		{4.2, "B"},
		{3.9, "C+"},
		{3.55, "C-"},
		{3.1, "D-"},
		{2.9, "F"},
		{0, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LetterGrade(tt.score, 5), "score %v", tt.score)
	}
	assert.Equal(t, "F", LetterGrade(5, 0))
}

func TestFinalize(t *testing.T) {
	rec := models.ScoreRecord{Candidate: "alice", AlgorithmScore: 5, PerformanceScore: 5}
	Finalize(&rec, nil, config.DefaultOverallWeights())
	assert.InDelta(t, 5.0, rec.Overall, 1e-9)
	assert.Equal(t, "A+", rec.Grade)

	rec = models.ScoreRecord{Candidate: "bob"}
	Finalize(&rec, map[string]float64{"documentation": 5}, config.DefaultOverallWeights())
	assert.InDelta(t, 5*0.1/0.5, rec.Overall, 1e-9)
	assert.Equal(t, "F", rec.Grade)
}

func TestFinalize_DoesNotMutateExternal(t *testing.T) {
	external := map[string]float64{"tests": 3}
	rec := models.ScoreRecord{AlgorithmScore: 1}
	Finalize(&rec, external, config.DefaultOverallWeights())
	assert.Equal(t, map[string]float64{"tests": 3}, external)
}

func TestPercentileRanks(t *testing.T) {
	require.Empty(t, PercentileRanks(nil))
	require.Equal(t, map[string]float64{"solo": 50}, PercentileRanks([]models.ScoreRecord{{Candidate: "solo", Overall: 1}}))

	ranks := PercentileRanks([]models.ScoreRecord{
		{Candidate: "c", Overall: 4},
		{Candidate: "a", Overall: 1},
		{Candidate: "d", Overall: 4},
		{Candidate: "b", Overall: 2},
		{Candidate: "e", Overall: 5},
	})
	assert.Equal(t, map[string]float64{"a": 0, "b": 25, "c": 50, "d": 50, "e": 100}, ranks)
}

func TestParseExternalScores(t *testing.T) {
	scores, err := ParseExternalScores([]byte(`
alice:
  structure: 4
  tests: "3.5"
bob:
  documentation: 7
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"structure": 4, "tests": 3.5}, scores.For("alice"))
	assert.Equal(t, 5.0, scores.For("bob")["documentation"])
	assert.Nil(t, scores.For("carol"))

	_, err = ParseExternalScores([]byte("alice:\n  algorithm: 5\n"))
	require.ErrorContains(t, err, "measured by the harness")

	_, err = ParseExternalScores([]byte("alice: [1, 2]\n"))
	require.Error(t, err)

	_, err = ParseExternalScores([]byte("alice: {tests: [\n"))
	require.Error(t, err)
}

func TestLoadExternalScores_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"alice": {"code_quality": 2.5}}`), 0o644))

	scores, err := LoadExternalScores(path)
	require.NoError(t, err)
	assert.Equal(t, 2.5, scores.For("alice")["code_quality"])

	_, err = LoadExternalScores(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
