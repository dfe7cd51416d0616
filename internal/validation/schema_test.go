package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const validFixtureYAML = `name: custom
distance_scale: 3
fixtures:
  - name: high_risk
    weight: 2
    expected: C
    mortgages:
      - principal: 180000
        property_value: 190000
        credit_score: 600
        delinquency_flag: true
  - name: empty
    expected: none
    mortgages: []
tiers:
  - name: large_1000
    size: 1000
    reference_ms: 100
`

const invalidFixtureYAML = `distance_scale: 0
fixtures:
  - name: Bad Name
    expected: E
    mortgages:
      - principal: -5
        credit_score: 50
tiers:
  - name: tiny
    size: 0
    reference_ms: 10
`

func TestValidateFixtureBytes_Valid(t *testing.T) {
	errs := ValidateFixtureBytes([]byte(validFixtureYAML))
	require.Empty(t, errs, "valid fixture set should have no errors")
}

func TestValidateFixtureBytes_Invalid(t *testing.T) {
	errs := ValidateFixtureBytes([]byte(invalidFixtureYAML))
	require.NotEmpty(t, errs)

	joined := strings.Join(errs, "\n")
	require.Contains(t, joined, "/distance_scale")
	require.Contains(t, joined, "/fixtures/0/name")
	require.Contains(t, joined, "/fixtures/0/expected")
	require.Contains(t, joined, "/fixtures/0/mortgages/0/principal")
	require.Contains(t, joined, "/fixtures/0/mortgages/0/credit_score")
	require.Contains(t, joined, "/tiers/0/size")
}

func TestValidateFixtureBytes_UnknownField(t *testing.T) {
	errs := ValidateFixtureBytes([]byte("fixtures:\n  - name: a\n    expected: A\n    mortgages: []\n    surprise: 1\n"))
	require.NotEmpty(t, errs)
}

func TestValidateFixtureBytes_Malformed(t *testing.T) {
	errs := ValidateFixtureBytes([]byte("fixtures: [\n"))
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "YAML parse error")

	errs = ValidateFixtureBytes([]byte(""))
	require.Equal(t, []string{"/: document is empty"}, errs)
}

func TestValidateFixtureFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validFixtureYAML), 0o644))

	errs, err := ValidateFixtureFile(path)
	require.NoError(t, err)
	require.Empty(t, errs)

	_, err = ValidateFixtureFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
