package domain

import (
	"strings"
	"unicode"
)

// NormalizeKey lowercases s, trims it and collapses internal whitespace to a
// single space. Two strings that differ only in case or spacing share a key.
func NormalizeKey(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), unicode.IsSpace), " ")
}

// Clamp01 bounds v to the closed interval [0,1].
func Clamp01(v float64) float64 {
	if v != v || v < 0 { // NaN or negative
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// InUnitInterval reports whether v lies in [0,1].
func InUnitInterval(v float64) bool {
	return v >= 0 && v <= 1
}
