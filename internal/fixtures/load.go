package fixtures

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spboyer/rmbsgrade/internal/portfolio"
	"github.com/spboyer/rmbsgrade/internal/rating"
	"github.com/spboyer/rmbsgrade/internal/validation"
	"gopkg.in/yaml.v3"
)

type fileSet struct {
	Name          string        `yaml:"name"`
	DistanceScale *float64      `yaml:"distance_scale"`
	Fixtures      []fileFixture `yaml:"fixtures"`
	Tiers         []fileTier    `yaml:"tiers"`
}

type fileFixture struct {
	Name        string                     `yaml:"name"`
	Description string                     `yaml:"description"`
	Weight      *float64                   `yaml:"weight"`
	Expected    string                     `yaml:"expected"`
	Mortgages   []portfolio.MortgageRecord `yaml:"mortgages"`
}

type fileTier struct {
	Name        string  `yaml:"name"`
	Size        int     `yaml:"size"`
	ReferenceMs float64 `yaml:"reference_ms"`
}

// SchemaError reports every schema violation found in a fixture file.
type SchemaError struct {
	Path   string
	Errors []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %d schema violation(s):\n  %s", e.Path, len(e.Errors), strings.Join(e.Errors, "\n  "))
}

func (e *SchemaError) Unwrap() error { return ErrInvalidSet }

// Load reads a fixture set from a YAML file. Omitted weights default to 1,
// an omitted distance scale to DefaultDistanceScale and omitted tiers to
// DefaultTiers.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture file: %w", err)
	}
	if errs := validation.ValidateFixtureBytes(data); len(errs) > 0 {
		return nil, &SchemaError{Path: path, Errors: errs}
	}

	var fs fileSet
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parsing fixture file %s: %w", path, err)
	}

	name := fs.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	scale := DefaultDistanceScale
	if fs.DistanceScale != nil {
		scale = *fs.DistanceScale
	}

	fixtures := make([]Fixture, 0, len(fs.Fixtures))
	for _, ff := range fs.Fixtures {
		expected, err := rating.Parse(ff.Expected)
		if err != nil {
			return nil, fmt.Errorf("%w: fixture %q: %v", ErrInvalidSet, ff.Name, err)
		}
		weight := 1.0
		if ff.Weight != nil {
			weight = *ff.Weight
		}
		fixtures = append(fixtures, Fixture{
			Name:      ff.Name,
			Portfolio: portfolio.New(ff.Name, ff.Mortgages),
			Expected:  expected,
			Weight:    weight,
		})
	}

	tiers := DefaultTiers()
	if fs.Tiers != nil {
		tiers = make([]Tier, 0, len(fs.Tiers))
		for _, ft := range fs.Tiers {
			tiers = append(tiers, Tier{
				Name:      ft.Name,
				Size:      ft.Size,
				Reference: time.Duration(ft.ReferenceMs * float64(time.Millisecond)),
			})
		}
	}

	return NewSet(name, scale, fixtures, tiers)
}
