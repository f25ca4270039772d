// Package filter implements the composable step-filter predicate algebra
// from spec §4.4: name, index, range, exclusion and job filters, combined
// under a fixed precedence.
package filter

import (
	"golang.org/x/text/cases"
)

// DefaultFuzzyThreshold is the default Levenshtein distance ceiling for
// fuzzy name matching (spec §4.4, §9).
const DefaultFuzzyThreshold = 2

var foldCaser = cases.Fold()

// fold applies Unicode-aware case folding so "Build" and "BUILD" and
// "build" compare equal regardless of script, not just ASCII lowering.
func fold(s string) string {
	return foldCaser.String(s)
}

// matchKind reports how (if at all) candidate matched one of patterns.
type matchKind int

const (
	matchNone matchKind = iota
	matchExact
	matchSubstring
	matchFuzzy
)

// matchName applies the exact -> substring -> fuzzy matching order from
// spec §4.4/§9 and returns the first pattern that matched along with how.
func matchName(candidate string, patterns []string, fuzzyThreshold int) (matched string, kind matchKind) {
	folded := fold(candidate)

	for _, p := range patterns {
		if fold(p) == folded {
			return p, matchExact
		}
	}
	for _, p := range patterns {
		if containsFold(folded, fold(p)) {
			return p, matchSubstring
		}
	}
	for _, p := range patterns {
		if levenshtein(folded, fold(p)) <= fuzzyThreshold {
			return p, matchFuzzy
		}
	}
	return "", matchNone
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	if len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func (k matchKind) reason(pattern, candidate string) string {
	switch k {
	case matchExact:
		return "matched name pattern \"" + pattern + "\" (exact)"
	case matchSubstring:
		return "matched name pattern \"" + pattern + "\" (substring)"
	case matchFuzzy:
		return "matched name pattern \"" + pattern + "\" (fuzzy, within distance " + itoa(levenshtein(fold(candidate), fold(pattern))) + ")"
	default:
		return "did not match any name patterns"
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
