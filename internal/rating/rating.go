// Package rating defines the ordered credit-rating scale that candidate
// algorithms produce and the ordinal distance used to grade near misses.
package rating

import (
	"fmt"
	"strings"
)

// Rating is a letter credit rating.
type Rating string

const (
	AAA Rating = "AAA"
	AA  Rating = "AA"
	A   Rating = "A"
	BBB Rating = "BBB"
	BB  Rating = "BB"
	B   Rating = "B"
	CCC Rating = "CCC"
	CC  Rating = "CC"
	C   Rating = "C"
	D   Rating = "D"

	// None is the "no ratable output" sentinel. It is not part of the ordinal
	// scale, so it has no index and no distance to any rating.
	None Rating = "none"
)

// Scale lists the ratings from best to worst. The order is fixed.
var Scale = []Rating{AAA, AA, A, BBB, BB, B, CCC, CC, C, D}

var rank = func() map[Rating]int {
	m := make(map[Rating]int, len(Scale))
	for i, r := range Scale {
		m[r] = i
	}
	return m
}()

func (r Rating) String() string {
	return string(r)
}

// Index returns the position of r on the scale, 0 being AAA.
// ok is false for None and anything not on the scale.
func (r Rating) Index() (int, bool) {
	i, ok := rank[r]
	return i, ok
}

// Valid reports whether r is on the scale or is the None sentinel.
func (r Rating) Valid() bool {
	if r == None {
		return true
	}
	_, ok := rank[r]
	return ok
}

// Better returns true if r ranks strictly above other.
func (r Rating) Better(other Rating) bool {
	ri, ok1 := rank[r]
	oi, ok2 := rank[other]
	return ok1 && ok2 && ri < oi
}

// Distance returns the absolute index difference between a and b.
// It returns an error if either rating is not on the scale.
func Distance(a, b Rating) (int, error) {
	ai, ok := rank[a]
	if !ok {
		return 0, fmt.Errorf("rating %q is not on the scale", a)
	}
	bi, ok := rank[b]
	if !ok {
		return 0, fmt.Errorf("rating %q is not on the scale", b)
	}
	if ai > bi {
		return ai - bi, nil
	}
	return bi - ai, nil
}

// Parse converts a label to a Rating. Matching ignores case and surrounding
// whitespace, and strips agency modifiers ("AA+", "BBB-"). The words "none",
// "null", "n/a" and the empty string map to None.
func Parse(s string) (Rating, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	switch norm {
	case "", "NONE", "NULL", "N/A", "NR":
		return None, nil
	}

	norm = strings.TrimRight(norm, "+-")
	if r := Rating(norm); r.Valid() && r != None {
		return r, nil
	}
	return None, fmt.Errorf("invalid rating %q: must be one of %s", s, joinScale())
}

func joinScale() string {
	parts := make([]string, len(Scale))
	for i, r := range Scale {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}
