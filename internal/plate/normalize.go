// Package plate holds the text level primitives used to compare plate
// readings: normalization, confusable-aware edit distance and the adaptive
// match threshold.
package plate

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// Normalize upper-cases s and removes whitespace and the separators
// - _ . , / \ so that differently formatted readings compare equal.
// Full-width forms are folded to their ASCII equivalents first.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = width.Narrow.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		switch r {
		case '-', '_', '.', ',', '/', '\\':
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
