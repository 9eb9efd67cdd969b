package reconcile

import (
	"invoicerecon/internal/domain"
)

// Report is the outcome of reconciling one invoice.
type Report struct {
	Match         MatchResult    `json:"match"`
	Discrepancies []Discrepancy  `json:"discrepancies"`
	Verdict       domain.Verdict `json:"verdict"`
}

// ExportHeader names the columns returned by Rows.
var ExportHeader = []string{"field", "invoice_value", "reference_value", "kind"}

// Rows flattens the discrepancies into export rows in report order.
func (r Report) Rows() [][]string {
	rows := make([][]string, 0, len(r.Discrepancies))
	for _, d := range r.Discrepancies {
		rows = append(rows, []string{d.Field, d.InvoiceValue, d.ReferenceValue, string(d.Kind)})
	}
	return rows
}

func verdictFor(match MatchResult, discrepancies []Discrepancy) domain.Verdict {
	if match.Status != domain.MatchStatusMatched {
		return domain.VerdictUnmatched
	}
	if len(discrepancies) == 0 {
		return domain.VerdictConforming
	}
	return domain.VerdictDiscrepant
}
