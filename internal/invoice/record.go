package invoice

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one product or service line.
type LineItem struct {
	Name      Optional[string]          `json:"name"`
	Quantity  Optional[decimal.Decimal] `json:"quantity"`
	UnitPrice Optional[decimal.Decimal] `json:"unit_price"`
}

// Failure records a field that its source supplied but that could not be used:
// a blank value or one that did not parse.
type Failure struct {
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

// Record carries the canonical fields shared by invoices and reference rows.
// Tax rate is stored as a fraction (0.19 for 19%).
type Record struct {
	InvoiceNumber Optional[string]          `json:"invoice_number"`
	InvoiceDate   Optional[time.Time]       `json:"invoice_date"`
	DueDate       Optional[time.Time]       `json:"due_date"`
	PaymentMode   Optional[string]          `json:"payment_mode"`
	SupplierName  Optional[string]          `json:"supplier_name"`
	Address       Optional[string]          `json:"address"`
	TaxID         Optional[string]          `json:"tax_id"`
	IBAN          Optional[string]          `json:"iban"`
	BIC           Optional[string]          `json:"bic"`
	NetTotal      Optional[decimal.Decimal] `json:"net_total"`
	TaxRate       Optional[decimal.Decimal] `json:"tax_rate"`
	TaxAmount     Optional[decimal.Decimal] `json:"tax_amount"`
	GrossTotal    Optional[decimal.Decimal] `json:"gross_total"`
	LineItems     Optional[[]LineItem]      `json:"line_items"`

	Failures map[Field]Failure `json:"failures,omitempty"`
}

// InvoiceRecord is the normalized form of one extracted invoice. It is built
// once per extraction and not modified afterwards.
type InvoiceRecord struct {
	Record
}

// ReferenceRecord is one row of the trusted dataset.
type ReferenceRecord struct {
	Record
	// Row is the 1-based worksheet row the record was read from.
	Row int `json:"row"`
}

// Failure reports whether the source supplied f without a usable value.
func (r *Record) Failure(f Field) (Failure, bool) {
	fl, ok := r.Failures[f]
	return fl, ok
}

// Value is a kind-tagged view of one field, used by comparators and renderers.
type Value struct {
	Kind    Kind
	Present bool
	Text    string
	Number  decimal.Decimal
	Date    time.Time
	Items   []LineItem
}

// Value returns the field view for f. Unknown fields are reported absent.
func (r *Record) Value(f Field) Value {
	kind, _ := KindOf(f)
	v := Value{Kind: kind}
	switch f {
	case FieldInvoiceNumber:
		v.Text, v.Present = r.InvoiceNumber.Get()
	case FieldInvoiceDate:
		v.Date, v.Present = r.InvoiceDate.Get()
	case FieldDueDate:
		v.Date, v.Present = r.DueDate.Get()
	case FieldPaymentMode:
		v.Text, v.Present = r.PaymentMode.Get()
	case FieldSupplierName:
		v.Text, v.Present = r.SupplierName.Get()
	case FieldAddress:
		v.Text, v.Present = r.Address.Get()
	case FieldTaxID:
		v.Text, v.Present = r.TaxID.Get()
	case FieldIBAN:
		v.Text, v.Present = r.IBAN.Get()
	case FieldBIC:
		v.Text, v.Present = r.BIC.Get()
	case FieldNetTotal:
		v.Number, v.Present = r.NetTotal.Get()
	case FieldTaxRate:
		v.Number, v.Present = r.TaxRate.Get()
	case FieldTaxAmount:
		v.Number, v.Present = r.TaxAmount.Get()
	case FieldGrossTotal:
		v.Number, v.Present = r.GrossTotal.Get()
	case FieldLineItems:
		v.Items, v.Present = r.LineItems.Get()
	}
	return v
}

// String renders the value for reports and exports. Absent values render empty.
func (v Value) String() string {
	if !v.Present {
		return ""
	}
	switch v.Kind {
	case KindDate:
		return v.Date.Format(DateLayout)
	case KindAmount:
		return v.Number.StringFixed(2)
	case KindPercent:
		return FormatPercent(v.Number)
	case KindLineItems:
		names := make([]string, 0, len(v.Items))
		for _, it := range v.Items {
			if n, ok := it.Name.Get(); ok {
				names = append(names, n)
			}
		}
		return strings.Join(names, "; ")
	default:
		return v.Text
	}
}
