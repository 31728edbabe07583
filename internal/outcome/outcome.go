// Package outcome handles outcome-label normalization and the mapping of
// externally reported winner names onto an event's outcome labels.
//
// Matching is deliberately conservative: a normalized exact match first,
// then a substring fallback. When neither matches, the caller must skip
// the event rather than guess.
package outcome

import "strings"

// Normalize lowercases a label and collapses surrounding and internal
// whitespace, so "  Red Sox " and "red  sox" compare equal.
func Normalize(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}

// Equal reports whether two labels are the same outcome after
// normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Contains reports whether label names one of the outcomes.
func Contains(outcomes []string, label string) bool {
	for _, o := range outcomes {
		if Equal(o, label) {
			return true
		}
	}
	return false
}

// Match maps a reported winner name to one of the event's outcome labels.
// It returns the matched label, whether the substring fallback was used
// (callers should log that), and whether any match was found at all.
func Match(winner string, outcomes []string) (label string, fuzzy bool, ok bool) {
	w := Normalize(winner)
	if w == "" {
		return "", false, false
	}

	for _, o := range outcomes {
		if Normalize(o) == w {
			return o, false, true
		}
	}

	// Fallback: substring containment in either direction, e.g. a reported
	// "Manchester United FC" against an outcome "Manchester United".
	for _, o := range outcomes {
		n := Normalize(o)
		if strings.Contains(n, w) || strings.Contains(w, n) {
			return o, true, true
		}
	}

	return "", false, false
}
