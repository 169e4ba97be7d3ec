package domain

import "golang.org/x/text/cases"

// Fold returns the Unicode case-folded form of s. Searchable columns are
// stored folded and queries are folded the same way before matching.
func Fold(s string) string {
	return cases.Fold().String(s)
}
