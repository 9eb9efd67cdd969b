package reconcile

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"invoicerecon/internal/domain"
	"invoicerecon/internal/invoice"
)

// ToleranceConfig holds the numeric tolerances used by comparators.
type ToleranceConfig struct {
	// Amount is the largest absolute difference two amounts may have.
	Amount decimal.Decimal
	// PercentPoints is the largest difference two rates may have, in
	// percentage points.
	PercentPoints decimal.Decimal
	// ConsistencyCheck enables the gross = net + tax check on the invoice.
	ConsistencyCheck bool
}

// DefaultToleranceConfig returns the default tolerances.
func DefaultToleranceConfig() ToleranceConfig {
	return ToleranceConfig{
		Amount:           decimal.RequireFromString("0.01"),
		PercentPoints:    decimal.RequireFromString("0.1"),
		ConsistencyCheck: true,
	}
}

// Discrepancy is one field on which the invoice and its reference disagree.
type Discrepancy struct {
	Field          string                 `json:"field"`
	InvoiceValue   string                 `json:"invoice_value"`
	ReferenceValue string                 `json:"reference_value"`
	Kind           domain.DiscrepancyKind `json:"kind"`
	// Delta is invoice minus reference, set for out_of_tolerance only.
	Delta decimal.NullDecimal `json:"delta"`
	Note  string              `json:"note,omitempty"`
}

// ConsistencyField is the field name of the gross = net + tax check.
const ConsistencyField = "gross_total_consistency"

// Comparator diffs two present values of one kind. Field is the name to
// report discrepancies under.
type Comparator func(field string, inv, ref invoice.Value, tol ToleranceConfig) []Discrepancy

// Comparators maps field kinds to their comparator.
type Comparators struct {
	byKind map[invoice.Kind]Comparator
}

// NewComparators returns a registry holding the built-in comparators.
func NewComparators() *Comparators {
	c := &Comparators{byKind: make(map[invoice.Kind]Comparator)}
	c.Register(invoice.KindIdentifier, compareIdentifier)
	c.Register(invoice.KindText, compareText)
	c.Register(invoice.KindDate, compareDate)
	c.Register(invoice.KindAmount, compareAmount)
	c.Register(invoice.KindPercent, comparePercent)
	c.Register(invoice.KindLineItems, compareLineItems)
	return c
}

// Register sets the comparator for kind, replacing any previous one.
func (c *Comparators) Register(kind invoice.Kind, cmp Comparator) {
	c.byKind[kind] = cmp
}

// Get returns the comparator for kind, or nil.
func (c *Comparators) Get(kind invoice.Kind) Comparator {
	return c.byKind[kind]
}

// Diff walks the schema in declaration order and returns every discrepancy
// between inv and ref.
func (c *Comparators) Diff(inv invoice.InvoiceRecord, ref invoice.ReferenceRecord, tol ToleranceConfig) []Discrepancy {
	out := []Discrepancy{}
	for _, spec := range invoice.Schema {
		if spec.Field == invoice.FieldSupplierName {
			continue
		}
		found := c.diffField(spec, &inv.Record, &ref.Record, tol)
		out = append(out, found...)
		// A gross total already reported against the reference is not reported
		// a second time against net + tax.
		if spec.Field == invoice.FieldGrossTotal && tol.ConsistencyCheck && len(found) == 0 {
			if d, ok := checkConsistency(&inv.Record, tol); ok {
				out = append(out, d)
			}
		}
	}
	return out
}

func (c *Comparators) diffField(spec invoice.FieldSpec, inv, ref *invoice.Record, tol ToleranceConfig) []Discrepancy {
	iv, rv := inv.Value(spec.Field), ref.Value(spec.Field)
	name := string(spec.Field)

	switch {
	case iv.Present && rv.Present:
		cmp := c.Get(spec.Kind)
		if cmp == nil {
			return nil
		}
		return cmp(name, iv, rv, tol)
	case iv.Present:
		if fl, ok := ref.Failure(spec.Field); ok {
			return []Discrepancy{{
				Field: name, InvoiceValue: iv.String(), ReferenceValue: fl.Raw,
				Kind: domain.DiscrepancyMissingInReference, Note: fl.Reason,
			}}
		}
	case rv.Present:
		if fl, ok := inv.Failure(spec.Field); ok {
			return []Discrepancy{{
				Field: name, InvoiceValue: fl.Raw, ReferenceValue: rv.String(),
				Kind: domain.DiscrepancyMissingInInvoice, Note: fl.Reason,
			}}
		}
	}
	return nil
}

func checkConsistency(inv *invoice.Record, tol ToleranceConfig) (Discrepancy, bool) {
	net, nok := inv.NetTotal.Get()
	tax, tok := inv.TaxAmount.Get()
	gross, gok := inv.GrossTotal.Get()
	if !nok || !tok || !gok {
		return Discrepancy{}, false
	}
	expected := net.Add(tax)
	delta := gross.Sub(expected)
	if delta.Abs().LessThanOrEqual(tol.Amount) {
		return Discrepancy{}, false
	}
	return Discrepancy{
		Field:          ConsistencyField,
		InvoiceValue:   gross.StringFixed(2),
		ReferenceValue: expected.StringFixed(2),
		Kind:           domain.DiscrepancyOutOfTolerance,
		Delta:          decimal.NewNullDecimal(delta),
		Note:           "invoice gross total does not equal net total plus tax amount",
	}, true
}

func mismatch(field string, inv, ref invoice.Value) []Discrepancy {
	return []Discrepancy{{
		Field: field, InvoiceValue: inv.String(), ReferenceValue: ref.String(),
		Kind: domain.DiscrepancyValueMismatch,
	}}
}

func compareIdentifier(field string, inv, ref invoice.Value, _ ToleranceConfig) []Discrepancy {
	if canonicalIdentifier(inv.Text) == canonicalIdentifier(ref.Text) {
		return nil
	}
	return mismatch(field, inv, ref)
}

func canonicalIdentifier(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

func compareText(field string, inv, ref invoice.Value, _ ToleranceConfig) []Discrepancy {
	if invoice.CollapseSpace(inv.Text) == invoice.CollapseSpace(ref.Text) {
		return nil
	}
	return mismatch(field, inv, ref)
}

func compareDate(field string, inv, ref invoice.Value, _ ToleranceConfig) []Discrepancy {
	iy, im, id := inv.Date.Date()
	ry, rm, rd := ref.Date.Date()
	if iy == ry && im == rm && id == rd {
		return nil
	}
	return mismatch(field, inv, ref)
}

func compareAmount(field string, inv, ref invoice.Value, tol ToleranceConfig) []Discrepancy {
	delta := inv.Number.Sub(ref.Number)
	if delta.Abs().LessThanOrEqual(tol.Amount) {
		return nil
	}
	return []Discrepancy{{
		Field: field, InvoiceValue: inv.String(), ReferenceValue: ref.String(),
		Kind:  domain.DiscrepancyOutOfTolerance,
		Delta: decimal.NewNullDecimal(delta),
	}}
}

func comparePercent(field string, inv, ref invoice.Value, tol ToleranceConfig) []Discrepancy {
	points := inv.Number.Sub(ref.Number).Mul(decimal.NewFromInt(100))
	if points.Abs().LessThanOrEqual(tol.PercentPoints) {
		return nil
	}
	return []Discrepancy{{
		Field: field, InvoiceValue: inv.String(), ReferenceValue: ref.String(),
		Kind:  domain.DiscrepancyOutOfTolerance,
		Delta: decimal.NewNullDecimal(points),
	}}
}

// compareLineItems checks the item count, then quantity and unit price of each
// item that both sides describe.
func compareLineItems(field string, inv, ref invoice.Value, tol ToleranceConfig) []Discrepancy {
	if len(inv.Items) != len(ref.Items) {
		return []Discrepancy{{
			Field:          field,
			InvoiceValue:   fmt.Sprintf("%d items", len(inv.Items)),
			ReferenceValue: fmt.Sprintf("%d items", len(ref.Items)),
			Kind:           domain.DiscrepancyValueMismatch,
		}}
	}

	var out []Discrepancy
	for i := range inv.Items {
		a, b := inv.Items[i], ref.Items[i]
		out = append(out, compareItemAmount(fmt.Sprintf("%s[%d].quantity", field, i), a.Quantity, b.Quantity, tol)...)
		out = append(out, compareItemAmount(fmt.Sprintf("%s[%d].unit_price", field, i), a.UnitPrice, b.UnitPrice, tol)...)
	}
	return out
}

func compareItemAmount(field string, a, b invoice.Optional[decimal.Decimal], tol ToleranceConfig) []Discrepancy {
	av, aok := a.Get()
	bv, bok := b.Get()
	if !aok || !bok {
		return nil
	}
	return compareAmount(field,
		invoice.Value{Kind: invoice.KindAmount, Present: true, Number: av},
		invoice.Value{Kind: invoice.KindAmount, Present: true, Number: bv},
		tol)
}
