package reconcile

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"invoicerecon/internal/invoice"
)

// Similarity scores two names on a 0-100 scale after lower-casing and
// collapsing whitespace. The score is symmetric and is 100 only for names that
// are identical after normalization.
func Similarity(a, b string) float64 {
	a, b = invoice.CollapseSpace(a), invoice.CollapseSpace(b)
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return float64(total-dist) / float64(total) * 100
}
