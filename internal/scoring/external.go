package scoring

import (
	"fmt"
	"math"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// ExternalScores maps candidate name to component sub-scores produced outside
// the harness (structure, tests, code quality, documentation).
type ExternalScores map[string]map[string]float64

// For returns the external sub-scores of candidate, or nil.
func (e ExternalScores) For(candidate string) map[string]float64 {
	if e == nil {
		return nil
	}
	return e[candidate]
}

// LoadExternalScores reads a YAML or JSON document of the form
//
//	alice:
//	  structure: 4
//	  tests: 3.5
//
// Scores are clamped to [0, 5]. The measured components (algorithm,
// performance) cannot be supplied externally.
func LoadExternalScores(path string) (ExternalScores, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading external scores: %w", err)
	}
	return ParseExternalScores(data)
}

// ParseExternalScores decodes the document read by LoadExternalScores.
func ParseExternalScores(data []byte) (ExternalScores, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing external scores: %w", err)
	}

	var out ExternalScores
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &out,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decoding external scores: %w", err)
	}

	for candidate, components := range out {
		for name, v := range components {
			if name == ComponentAlgorithm || name == ComponentPerformance {
				return nil, fmt.Errorf("external scores for %s: %q is measured by the harness", candidate, name)
			}
			if math.IsNaN(v) {
				return nil, fmt.Errorf("external scores for %s: %q is not a number", candidate, name)
			}
			components[name] = Clamp(v)
		}
	}
	return out, nil
}
