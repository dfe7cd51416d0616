package loader

import (
	"path"
	"slices"
	"strings"

	"github.com/spboyer/rmbsgrade/internal/models"
)

// Rules are the weights and patterns used to rank discovered callables.
// Name matches dominate signature matches, which dominate return-type
// plausibility.
type Rules struct {
	ExactName      string
	ExactNameScore int

	// Patterns are path.Match globs over the lower-cased function name.
	PrimaryPatterns   []string
	PrimaryScore      int
	SecondaryPatterns []string
	SecondaryScore    int

	// SignatureScore is added for exactly one required positional parameter.
	SignatureScore int
	// ParamHintScore is added when that parameter's name is in ListParams or DictParams.
	ParamHintScore int
	// ReturnScore is added for a str return annotation or a returned rating literal.
	ReturnScore int

	// MinScore is the lowest total a callable needs to be considered.
	MinScore int

	ListParams []string
	DictParams []string
}

// DefaultRules returns the standard ranking rules.
func DefaultRules() Rules {
	return Rules{
		ExactName:         "calculate_credit_rating",
		ExactNameScore:    100,
		PrimaryPatterns:   []string{"rate_portfolio", "calculate_rating", "*credit*rating*", "rate_pool", "rate_rmbs*"},
		PrimaryScore:      60,
		SecondaryPatterns: []string{"rate*", "*rating*", "*grade*"},
		SecondaryScore:    40,
		SignatureScore:    20,
		ParamHintScore:    10,
		ReturnScore:       10,
		MinScore:          40,
		ListParams:        []string{"mortgages", "loans", "records", "mortgage_list", "loan_list"},
		DictParams:        []string{"portfolio", "data", "input_data", "pool", "portfolio_data", "rmbs_data"},
	}
}

// rank scores one definition. ok is false when the callable cannot be an
// entry point: private, or not callable with exactly one positional argument.
func (r Rules) rank(def definition) (score int, strategy models.Strategy, shape models.Shape, ok bool) {
	if def.function == "" || strings.HasPrefix(def.function, "_") {
		return 0, "", "", false
	}
	if len(def.positional) != 1 || def.requiredKeywordOnly > 0 {
		return 0, "", "", false
	}

	name := strings.ToLower(def.function)
	switch {
	case name == r.ExactName:
		score, strategy = r.ExactNameScore, models.StrategyExactName
	case matchAny(r.PrimaryPatterns, name):
		score, strategy = r.PrimaryScore, models.StrategyNamePattern
	case matchAny(r.SecondaryPatterns, name):
		score, strategy = r.SecondaryScore, models.StrategyNamePattern
	}

	score += r.SignatureScore

	param := strings.ToLower(def.positional[0])
	shape = models.ShapeAuto
	switch {
	case slices.Contains(r.ListParams, param):
		shape = models.ShapeList
	case slices.Contains(r.DictParams, param):
		shape = models.ShapeDict
	}
	if shape != models.ShapeAuto {
		score += r.ParamHintScore
		if strategy == "" {
			strategy = models.StrategySignature
		}
	}

	if plausibleReturnType(def.returnType) || def.returnsRatingLiteral {
		score += r.ReturnScore
		if strategy == "" {
			strategy = models.StrategyReturnPlausible
		}
	}

	if strategy == "" || score < r.MinScore {
		return 0, "", "", false
	}
	return score, strategy, shape, true
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

func plausibleReturnType(t string) bool {
	switch strings.ReplaceAll(t, " ", "") {
	case "str", "Optional[str]", "str|None", "typing.Optional[str]":
		return true
	}
	return false
}
