package invoice

// Field names one canonical invoice field.
type Field string

const (
	FieldInvoiceNumber Field = "invoice_number"
	FieldInvoiceDate   Field = "invoice_date"
	FieldDueDate       Field = "due_date"
	FieldPaymentMode   Field = "payment_mode"
	FieldSupplierName  Field = "supplier_name"
	FieldAddress       Field = "address"
	FieldTaxID         Field = "tax_id"
	FieldIBAN          Field = "iban"
	FieldBIC           Field = "bic"
	FieldNetTotal      Field = "net_total"
	FieldTaxRate       Field = "tax_rate"
	FieldTaxAmount     Field = "tax_amount"
	FieldGrossTotal    Field = "gross_total"
	FieldLineItems     Field = "line_items"
)

// Kind selects how a field is parsed and compared.
type Kind int

const (
	KindIdentifier Kind = iota
	KindText
	KindDate
	KindAmount
	KindPercent
	KindLineItems
)

func (k Kind) String() string {
	switch k {
	case KindIdentifier:
		return "identifier"
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindAmount:
		return "amount"
	case KindPercent:
		return "percent"
	case KindLineItems:
		return "line_items"
	default:
		return "unknown"
	}
}

// FieldSpec pairs a canonical field with its kind.
type FieldSpec struct {
	Field Field
	Kind  Kind
}

// Schema is the canonical field list in declaration order. Reports follow this
// order, not detection order.
var Schema = []FieldSpec{
	{FieldInvoiceNumber, KindIdentifier},
	{FieldInvoiceDate, KindDate},
	{FieldDueDate, KindDate},
	{FieldPaymentMode, KindText},
	{FieldSupplierName, KindText},
	{FieldAddress, KindText},
	{FieldTaxID, KindIdentifier},
	{FieldIBAN, KindIdentifier},
	{FieldBIC, KindIdentifier},
	{FieldNetTotal, KindAmount},
	{FieldTaxRate, KindPercent},
	{FieldTaxAmount, KindAmount},
	{FieldGrossTotal, KindAmount},
	{FieldLineItems, KindLineItems},
}

// KindOf returns the kind of a canonical field.
func KindOf(f Field) (Kind, bool) {
	for _, s := range Schema {
		if s.Field == f {
			return s.Kind, true
		}
	}
	return 0, false
}
