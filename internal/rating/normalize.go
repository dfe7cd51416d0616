package rating

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnrecognized is returned by Normalize when a value cannot be read as a rating.
var ErrUnrecognized = errors.New("unrecognized rating value")

// resultKeys are the object keys searched, in order, when a candidate returns
// a mapping instead of a bare label.
var resultKeys = []string{"rating", "credit_rating", "grade", "overall_rating"}

// Normalize reads a rating out of a decoded JSON value returned by candidate
// code. Accepted shapes: a label string, null, an object holding the label
// under one of a few well-known keys, or an array whose first element is a
// label.
func Normalize(v any) (Rating, error) {
	switch val := v.(type) {
	case nil:
		return None, nil
	case string:
		r, err := Parse(val)
		if err != nil {
			return None, fmt.Errorf("%w: %v", ErrUnrecognized, err)
		}
		return r, nil
	case map[string]any:
		lower := make(map[string]any, len(val))
		for k, x := range val {
			lower[strings.ToLower(k)] = x
		}
		for _, k := range resultKeys {
			if x, ok := lower[k]; ok {
				if _, nested := x.(map[string]any); nested {
					break
				}
				return Normalize(x)
			}
		}
		return None, fmt.Errorf("%w: object without a rating key", ErrUnrecognized)
	case []any:
		if len(val) == 0 {
			return None, fmt.Errorf("%w: empty array", ErrUnrecognized)
		}
		if _, ok := val[0].(string); !ok {
			return None, fmt.Errorf("%w: array does not start with a label", ErrUnrecognized)
		}
		return Normalize(val[0])
	default:
		return None, fmt.Errorf("%w: value of type %T", ErrUnrecognized, v)
	}
}
