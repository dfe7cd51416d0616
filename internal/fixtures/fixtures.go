// Package fixtures defines the named portfolios with expected ratings that
// candidates are graded on, and the size tiers used for profiling.
//
// A Set is built once at harness start and is read-only afterwards; it is
// shared by every concurrent candidate evaluation.
package fixtures

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/spboyer/rmbsgrade/internal/portfolio"
	"github.com/spboyer/rmbsgrade/internal/rating"
)

// DefaultDistanceScale is the ordinal distance at which partial credit
// reaches zero.
const DefaultDistanceScale = 3.0

// ErrInvalidSet is wrapped by every configuration error reported by NewSet.
var ErrInvalidSet = errors.New("invalid fixture set")

// Fixture is a named portfolio with its expected rating.
type Fixture struct {
	Name      string
	Portfolio portfolio.Portfolio
	Expected  rating.Rating
	Weight    float64
}

// Tier is a named portfolio size used for performance measurement.
type Tier struct {
	Name      string
	Size      int
	Reference time.Duration
}

// Set is an immutable collection of fixtures and tiers.
type Set struct {
	name          string
	distanceScale float64
	fixtures      []Fixture
	tiers         []Tier
	tierData      map[string]portfolio.Portfolio
}

// NewSet validates and freezes a fixture set. Errors here are harness
// configuration bugs: they affect every candidate identically, so callers
// should abort the run.
func NewSet(name string, distanceScale float64, fixtures []Fixture, tiers []Tier) (*Set, error) {
	if distanceScale <= 0 || math.IsNaN(distanceScale) || math.IsInf(distanceScale, 0) {
		return nil, fmt.Errorf("%w: distance scale must be positive, got %v", ErrInvalidSet, distanceScale)
	}
	if len(fixtures) == 0 {
		return nil, fmt.Errorf("%w: at least one fixture is required", ErrInvalidSet)
	}

	seen := map[string]bool{}
	totalWeight := 0.0
	for _, f := range fixtures {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: fixture name is empty", ErrInvalidSet)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidSet, f.Name)
		}
		seen[f.Name] = true
		if !f.Expected.Valid() {
			return nil, fmt.Errorf("%w: fixture %q has invalid expected rating %q", ErrInvalidSet, f.Name, f.Expected)
		}
		if f.Weight < 0 || math.IsNaN(f.Weight) {
			return nil, fmt.Errorf("%w: fixture %q has negative weight", ErrInvalidSet, f.Name)
		}
		totalWeight += f.Weight
	}
	if totalWeight <= 0 {
		return nil, fmt.Errorf("%w: fixture weights sum to zero", ErrInvalidSet)
	}

	tierData := make(map[string]portfolio.Portfolio, len(tiers))
	for _, t := range tiers {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: tier name is empty", ErrInvalidSet)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidSet, t.Name)
		}
		seen[t.Name] = true
		if t.Size < 1 {
			return nil, fmt.Errorf("%w: tier %q must have a positive size", ErrInvalidSet, t.Name)
		}
		if t.Reference <= 0 {
			return nil, fmt.Errorf("%w: tier %q must have a positive reference time", ErrInvalidSet, t.Name)
		}
		tierData[t.Name] = portfolio.Generate(portfolio.GeneratedName(t.Size), t.Size)
	}

	return &Set{
		name:          name,
		distanceScale: distanceScale,
		fixtures:      append([]Fixture(nil), fixtures...),
		tiers:         append([]Tier(nil), tiers...),
		tierData:      tierData,
	}, nil
}

func (s *Set) Name() string           { return s.name }
func (s *Set) DistanceScale() float64 { return s.distanceScale }
func (s *Set) Fixtures() []Fixture    { return append([]Fixture(nil), s.fixtures...) }
func (s *Set) Tiers() []Tier          { return append([]Tier(nil), s.tiers...) }

// TierPortfolio returns the synthetic portfolio generated for a tier.
func (s *Set) TierPortfolio(tierName string) (portfolio.Portfolio, bool) {
	p, ok := s.tierData[tierName]
	return p, ok
}

// Weights returns fixture name → weight.
func (s *Set) Weights() map[string]float64 {
	w := make(map[string]float64, len(s.fixtures))
	for _, f := range s.fixtures {
		w[f.Name] = f.Weight
	}
	return w
}
