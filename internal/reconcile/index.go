package reconcile

import (
	"unicode"

	"invoicerecon/internal/invoice"
)

// Index is an immutable view over the reference dataset. Candidates are always
// returned in dataset row order.
type Index struct {
	records   []invoice.ReferenceRecord
	prefilter bool
	byInitial map[rune][]int
}

// NewIndex copies records into a new index. With prefilter set, Candidates only
// returns rows whose supplier name starts with the same letter as the invoice's.
func NewIndex(records []invoice.ReferenceRecord, prefilter bool) *Index {
	idx := &Index{
		records:   append([]invoice.ReferenceRecord(nil), records...),
		prefilter: prefilter,
	}
	if prefilter {
		idx.byInitial = make(map[rune][]int)
		for i := range idx.records {
			name, ok := idx.records[i].SupplierName.Get()
			if !ok {
				continue
			}
			r := initial(name)
			idx.byInitial[r] = append(idx.byInitial[r], i)
		}
	}
	return idx
}

// Len returns the number of reference rows.
func (idx *Index) Len() int {
	return len(idx.records)
}

// Records returns a copy of every reference row.
func (idx *Index) Records() []invoice.ReferenceRecord {
	return append([]invoice.ReferenceRecord(nil), idx.records...)
}

// Candidates returns the rows the matcher should score for inv.
func (idx *Index) Candidates(inv invoice.InvoiceRecord) []invoice.ReferenceRecord {
	if !idx.prefilter {
		return idx.Records()
	}
	name, ok := inv.SupplierName.Get()
	if !ok {
		return nil
	}
	rows := idx.byInitial[initial(name)]
	out := make([]invoice.ReferenceRecord, 0, len(rows))
	for _, i := range rows {
		out = append(out, idx.records[i])
	}
	return out
}

func initial(name string) rune {
	for _, r := range invoice.NormalizeKey(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
	}
	return 0
}
