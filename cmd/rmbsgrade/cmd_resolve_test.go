package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spboyer/rmbsgrade/internal/models"
)

func writeCandidate(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestResolve_Table(t *testing.T) {
	root := writeCandidate(t, map[string]string{
		"credit_rating.py": "def calculate_credit_rating(portfolio):\n    return 'AA'\n",
		"helpers.py":       "def rate_pool(mortgages):\n    return 'B'\n",
	})

	out, err := runRoot(t, "resolve", root)
	require.NoError(t, err)
	assert.Contains(t, out, "credit_rating.calculate_credit_rating")
	assert.Contains(t, out, "helpers.rate_pool")
	assert.Contains(t, out, "Selected: credit_rating.calculate_credit_rating (exact-name)")
}

func TestResolve_JSON(t *testing.T) {
	root := writeCandidate(t, map[string]string{
		"pkg/model.py": "class Rater:\n    def rate_portfolio(self, portfolio):\n        return 'A'\n",
	})

	out, err := runRoot(t, "resolve", root, "--format", "json")
	require.NoError(t, err)

	var res resolution
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Candidates, 1)
	require.NotNil(t, res.Selected)
	assert.Equal(t, "rate_portfolio", res.Selected.Function)
	assert.Equal(t, "Rater", res.Selected.Class)
	assert.Equal(t, models.ShapeDict, res.Selected.Shape)
	assert.Empty(t, res.Error)
}

func TestResolve_NoEntryPoint(t *testing.T) {
	root := writeCandidate(t, map[string]string{"util.py": "def _private(x):\n    return x\n"})

	out, err := runRoot(t, "resolve", root)
	require.NoError(t, err)
	assert.Contains(t, out, "No entry point candidates found")
}

func TestResolve_MinScore(t *testing.T) {
	root := writeCandidate(t, map[string]string{"model.py": "def evaluate(records):\n    return len(records)\n"})

	out, err := runRoot(t, "resolve", root)
	require.NoError(t, err)
	assert.Contains(t, out, "No entry point candidates found")

	out, err = runRoot(t, "resolve", root, "--min-score", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "Selected: model.evaluate (signature)")
}

func TestResolve_BadFormat(t *testing.T) {
	_, err := runRoot(t, "resolve", t.TempDir(), "--format", "xml")
	require.ErrorContains(t, err, "unsupported format")
}
