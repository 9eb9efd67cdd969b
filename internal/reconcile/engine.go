package reconcile

import (
	"invoicerecon/internal/invoice"
)

// Engine ties normalization, matching and diffing together. It is immutable
// and safe to share between goroutines reconciling against the same index.
type Engine struct {
	normalizer  *invoice.Normalizer
	matcher     *Matcher
	comparators *Comparators
	tolerance   ToleranceConfig
}

// NewEngine builds an engine from its three configuration parts with the
// built-in comparators.
func NewEngine(ncfg invoice.NormalizerConfig, mcfg MatcherConfig, tcfg ToleranceConfig) *Engine {
	return NewEngineWithComparators(ncfg, mcfg, tcfg, NewComparators())
}

// NewEngineWithComparators is NewEngine with a caller-built comparator
// registry. The registry must not be modified once the engine is in use.
func NewEngineWithComparators(ncfg invoice.NormalizerConfig, mcfg MatcherConfig, tcfg ToleranceConfig, cmps *Comparators) *Engine {
	return &Engine{
		normalizer:  invoice.NewNormalizer(ncfg),
		matcher:     NewMatcher(mcfg),
		comparators: cmps,
		tolerance:   tcfg,
	}
}

// Normalizer returns the engine's normalizer, used to read reference rows with
// the same synonym table.
func (e *Engine) Normalizer() *invoice.Normalizer {
	return e.normalizer
}

// Reconcile matches inv against idx and diffs it against the matched row.
// Unmatched invoices get an empty discrepancy list.
func (e *Engine) Reconcile(inv invoice.InvoiceRecord, idx *Index) Report {
	match := e.matcher.Match(inv, idx)
	discrepancies := []Discrepancy{}
	if match.Reference != nil {
		discrepancies = e.comparators.Diff(inv, *match.Reference, e.tolerance)
	}
	return Report{
		Match:         match,
		Discrepancies: discrepancies,
		Verdict:       verdictFor(match, discrepancies),
	}
}

// ReconcileFields normalizes raw extraction output first. The only error is an
// *invoice.NormalizationError.
func (e *Engine) ReconcileFields(raw map[string]any, idx *Index) (Report, error) {
	inv, err := e.normalizer.Invoice(raw)
	if err != nil {
		return Report{}, err
	}
	return e.Reconcile(inv, idx), nil
}

// NewIndexFromRows normalizes raw dataset rows into an index. firstRow is the
// worksheet row number of rows[0].
func (e *Engine) NewIndexFromRows(rows []map[string]any, firstRow int, prefilter bool) *Index {
	records := make([]invoice.ReferenceRecord, 0, len(rows))
	for i, raw := range rows {
		records = append(records, e.normalizer.Reference(raw, firstRow+i))
	}
	return NewIndex(records, prefilter)
}
