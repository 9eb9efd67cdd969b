package reconcile_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicerecon/internal/domain"
	"invoicerecon/internal/invoice"
	"invoicerecon/internal/reconcile"
)

func ref(row int, name, gross string) invoice.ReferenceRecord {
	r := invoice.ReferenceRecord{Row: row}
	r.SupplierName = invoice.Some(name)
	if gross != "" {
		r.GrossTotal = invoice.Some(decimal.RequireFromString(gross))
	}
	return r
}

func inv(name, gross string) invoice.InvoiceRecord {
	var r invoice.InvoiceRecord
	r.SupplierName = invoice.Some(name)
	if gross != "" {
		r.GrossTotal = invoice.Some(decimal.RequireFromString(gross))
	}
	return r
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 100.0, reconcile.Similarity("Beta Ltd", "Beta Ltd"), 1e-9)
	assert.InDelta(t, 100.0, reconcile.Similarity("  BETA   ltd ", "beta ltd"), 1e-9)
	assert.InDelta(t, 94.1, reconcile.Similarity("Beta Ltdd", "Beta Ltd"), 0.1)
	assert.Less(t, reconcile.Similarity("Unknown Co", "Beta Ltd"), 90.0)
	assert.Less(t, reconcile.Similarity("Beta Ltd", "Beta Ltf"), 100.0)

	pairs := [][2]string{{"Beta Ltdd", "Beta Ltd"}, {"Alpha", "Alfa SA"}, {"Société Générale", "Societe Generale"}}
	for _, p := range pairs {
		assert.Equal(t, reconcile.Similarity(p[0], p[1]), reconcile.Similarity(p[1], p[0]), p)
	}
}

func TestMatcher_TieBreakOnAmount(t *testing.T) {
	m := reconcile.NewMatcher(reconcile.DefaultMatcherConfig())
	idx := reconcile.NewIndex([]invoice.ReferenceRecord{
		ref(2, "Beta Ltd", "999.00"),
		ref(3, "Beta Ltd", "250.75"),
	}, false)

	res := m.Match(inv("Beta Ltd", "250.75"), idx)
	assert.Equal(t, domain.MatchStatusMatched, res.Status)
	require.NotNil(t, res.Reference)
	assert.Equal(t, 3, res.Reference.Row)
	assert.InDelta(t, 100.0, res.Score, 1e-9)
}

func TestMatcher_UnknownAmountsRankLast(t *testing.T) {
	m := reconcile.NewMatcher(reconcile.DefaultMatcherConfig())
	idx := reconcile.NewIndex([]invoice.ReferenceRecord{
		ref(2, "Beta Ltd", ""),
		ref(3, "Beta Ltd", "260.00"),
	}, false)

	res := m.Match(inv("Beta Ltd", "250.75"), idx)
	assert.Equal(t, domain.MatchStatusMatched, res.Status)
	assert.Equal(t, 3, res.Reference.Row)
}

func TestMatcher_AllUnknownAmountsAreAmbiguous(t *testing.T) {
	m := reconcile.NewMatcher(reconcile.DefaultMatcherConfig())
	idx := reconcile.NewIndex([]invoice.ReferenceRecord{
		ref(2, "Beta Ltd", "250.75"),
		ref(3, "Beta Ltd", "100.00"),
	}, false)

	res := m.Match(inv("Beta Ltd", ""), idx)
	assert.Equal(t, domain.MatchStatusAmbiguous, res.Status)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, 2, res.Candidates[0].Reference.Row)
	assert.False(t, res.Candidates[0].AmountDistance.Present)
}

func TestMatcher_ZeroAmounts(t *testing.T) {
	m := reconcile.NewMatcher(reconcile.DefaultMatcherConfig())
	idx := reconcile.NewIndex([]invoice.ReferenceRecord{
		ref(2, "Beta Ltd", "0"),
		ref(3, "Beta Ltd", "5.00"),
	}, false)

	res := m.Match(inv("Beta Ltd", "0"), idx)
	assert.Equal(t, domain.MatchStatusMatched, res.Status)
	assert.Equal(t, 2, res.Reference.Row)
}

func TestMatcher_Threshold(t *testing.T) {
	cfg := reconcile.DefaultMatcherConfig()
	cfg.SimilarityThreshold = 99
	m := reconcile.NewMatcher(cfg)
	idx := reconcile.NewIndex([]invoice.ReferenceRecord{ref(2, "Beta Ltd", "250.75")}, false)

	res := m.Match(inv("Beta Ltdd", "250.75"), idx)
	assert.Equal(t, domain.MatchStatusNotFound, res.Status)
	assert.InDelta(t, 94.1, res.BestScore, 0.1)
}

func TestMatcher_SkipsRowsWithoutSupplier(t *testing.T) {
	m := reconcile.NewMatcher(reconcile.DefaultMatcherConfig())
	idx := reconcile.NewIndex([]invoice.ReferenceRecord{{Row: 2}}, false)

	res := m.Match(inv("Beta Ltd", "1"), idx)
	assert.Equal(t, domain.MatchStatusNotFound, res.Status)
	assert.Zero(t, res.BestScore)
}

func TestMatcher_Idempotent(t *testing.T) {
	m := reconcile.NewMatcher(reconcile.DefaultMatcherConfig())
	idx := reconcile.NewIndex([]invoice.ReferenceRecord{
		ref(2, "Beta Ltd", "250.75"),
		ref(3, "Beta Ltd", "250.75"),
		ref(4, "Beta Ltda", "250.75"),
	}, false)

	first := m.Match(inv("Beta Ltd", "250.75"), idx)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Match(inv("Beta Ltd", "250.75"), idx))
	}
	assert.Equal(t, domain.MatchStatusAmbiguous, first.Status)
	assert.Len(t, first.Candidates, 3)
}

func TestIndex_Prefilter(t *testing.T) {
	records := []invoice.ReferenceRecord{
		ref(2, "Alpha SA", "1"),
		ref(3, "Beta Ltd", "2"),
		ref(4, "beta services", "3"),
		{Row: 5},
	}

	all := reconcile.NewIndex(records, false)
	assert.Equal(t, 4, all.Len())
	assert.Len(t, all.Candidates(inv("Beta Ltd", "")), 4)

	filtered := reconcile.NewIndex(records, true)
	got := filtered.Candidates(inv("Beta Ltd", ""))
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Row)
	assert.Equal(t, 4, got[1].Row)

	records[1].Row = 99
	assert.Equal(t, 3, filtered.Candidates(inv("Beta", ""))[0].Row)
}
