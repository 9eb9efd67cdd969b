package reconcile

import (
	"github.com/shopspring/decimal"

	"invoicerecon/internal/domain"
	"invoicerecon/internal/invoice"
)

// MatcherConfig controls how candidates are short-listed and tie-broken.
type MatcherConfig struct {
	// SimilarityThreshold is the minimum supplier-name score (0-100) for a
	// reference row to be short-listed.
	SimilarityThreshold float64
	// AmountTieTolerance is how far a normalized amount distance may be from
	// the best one and still count as a tie.
	AmountTieTolerance decimal.Decimal
}

// DefaultMatcherConfig returns the default matching policy.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		SimilarityThreshold: 90,
		AmountTieTolerance:  decimal.RequireFromString("0.0001"),
	}
}

// Candidate is one short-listed reference row.
type Candidate struct {
	Reference invoice.ReferenceRecord `json:"reference"`
	Score     float64                 `json:"score"`
	// AmountDistance is absent when either side lacks a gross total.
	AmountDistance invoice.Optional[decimal.Decimal] `json:"amount_distance"`
}

// MatchResult is the outcome of matching one invoice. Reference and Score are
// only set when Status is matched; Candidates only when ambiguous.
type MatchResult struct {
	Status     domain.MatchStatus       `json:"status"`
	Reference  *invoice.ReferenceRecord `json:"reference,omitempty"`
	Score      float64                  `json:"score"`
	Candidates []Candidate              `json:"candidates,omitempty"`
	// BestScore is the highest similarity seen, reported for diagnostics.
	BestScore float64 `json:"best_score"`
}

// Matcher locates the reference row an invoice refers to. It holds no state
// between calls.
type Matcher struct {
	cfg MatcherConfig
}

// NewMatcher creates a matcher with cfg.
func NewMatcher(cfg MatcherConfig) *Matcher {
	return &Matcher{cfg: cfg}
}

// Match scores every candidate from idx and applies the ambiguity policy.
func (m *Matcher) Match(inv invoice.InvoiceRecord, idx *Index) MatchResult {
	name, _ := inv.SupplierName.Get()
	gross := inv.GrossTotal

	var (
		shortlist []Candidate
		best      float64
	)
	for _, ref := range idx.Candidates(inv) {
		refName, ok := ref.SupplierName.Get()
		if !ok {
			continue
		}
		score := Similarity(name, refName)
		if score > best {
			best = score
		}
		if score < m.cfg.SimilarityThreshold {
			continue
		}
		shortlist = append(shortlist, Candidate{
			Reference:      ref,
			Score:          score,
			AmountDistance: amountDistance(gross, ref.GrossTotal),
		})
	}

	switch len(shortlist) {
	case 0:
		return MatchResult{Status: domain.MatchStatusNotFound, BestScore: best}
	case 1:
		return matched(shortlist[0], best)
	}

	tied := m.tieBreak(shortlist)
	if len(tied) == 1 {
		return matched(tied[0], best)
	}
	return MatchResult{Status: domain.MatchStatusAmbiguous, Candidates: tied, BestScore: best}
}

// tieBreak keeps the candidates whose amount distance ties with the smallest
// one. Unknown distances rank last and only tie with each other. Input order
// is preserved.
func (m *Matcher) tieBreak(cands []Candidate) []Candidate {
	var (
		bestDist decimal.Decimal
		haveDist bool
	)
	for _, c := range cands {
		d, ok := c.AmountDistance.Get()
		if !ok {
			continue
		}
		if !haveDist || d.LessThan(bestDist) {
			bestDist, haveDist = d, true
		}
	}

	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		d, ok := c.AmountDistance.Get()
		switch {
		case !haveDist:
			out = append(out, c)
		case ok && d.Sub(bestDist).LessThanOrEqual(m.cfg.AmountTieTolerance):
			out = append(out, c)
		}
	}
	return out
}

func matched(c Candidate, best float64) MatchResult {
	ref := c.Reference
	return MatchResult{
		Status:    domain.MatchStatusMatched,
		Reference: &ref,
		Score:     c.Score,
		BestScore: best,
	}
}

// amountDistance is |a-b| / max(|a|,|b|), 0 when both are zero.
func amountDistance(a, b invoice.Optional[decimal.Decimal]) invoice.Optional[decimal.Decimal] {
	av, aok := a.Get()
	bv, bok := b.Get()
	if !aok || !bok {
		return invoice.Optional[decimal.Decimal]{}
	}
	scale := decimal.Max(av.Abs(), bv.Abs())
	if scale.IsZero() {
		return invoice.Some(decimal.Zero)
	}
	return invoice.Some(av.Sub(bv).Abs().Div(scale))
}
