package models

// Shape describes how a portfolio is passed to a candidate entry point.
type Shape string

const (
	// ShapeDict passes {"mortgages": [...]}.
	ShapeDict Shape = "dict"
	// ShapeList passes the bare list of mortgage records.
	ShapeList Shape = "list"
	// ShapeAuto tries ShapeDict first and falls back to ShapeList when the
	// call fails with a type/key/attribute error before returning.
	ShapeAuto Shape = "auto"
)

// Strategy names the ranking rule that selected an entry point.
type Strategy string

const (
	StrategyExactName       Strategy = "exact-name"
	StrategyNamePattern     Strategy = "name-pattern"
	StrategySignature       Strategy = "signature"
	StrategyReturnPlausible Strategy = "return-plausible"
)

// EntryPoint is one callable found in a submission.
type EntryPoint struct {
	File      string   `json:"file"`
	Module    string   `json:"module"`
	Function  string   `json:"function"`
	Class     string   `json:"class,omitempty"`
	Line      int      `json:"line"`
	Param     string   `json:"param"`
	Shape     Shape    `json:"shape"`
	Strategy  Strategy `json:"strategy"`
	RankScore int      `json:"rank_score"`
}

// Qualified returns "module.Class.function" or "module.function".
func (e EntryPoint) Qualified() string {
	if e.Class != "" {
		return e.Module + "." + e.Class + "." + e.Function
	}
	return e.Module + "." + e.Function
}

// CandidateBinding is the resolved entry point for one submission. It is built
// once by the loader and read concurrently by the executor and profiler.
type CandidateBinding struct {
	EntryPoint

	// Root is the absolute submission directory.
	Root string `json:"root"`

	// Alternatives are the lower-ranked entry points, best first.
	Alternatives []EntryPoint `json:"alternatives,omitempty"`
}
