package invoice_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicerecon/internal/invoice"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"plain", "250.75", "250.75"},
		{"currency code", "250.75 EUR", "250.75"},
		{"euro sign", "€ 1 234,56", "1234.56"},
		{"nbsp thousands", "1 234,56", "1234.56"},
		{"dot thousands", "1.234,56", "1234.56"},
		{"comma thousands", "1,234.56", "1234.56"},
		{"comma thousands only", "1,234", "1234"},
		{"decimal comma", "12,5", "12.5"},
		{"apostrophe", "1'234.50", "1234.5"},
		{"parentheses", "(49.25)", "-49.25"},
		{"leading minus", "-3.10", "-3.1"},
		{"json number", json.Number("300.00"), "300"},
		{"float", 180.5, "180.5"},
		{"int", 42, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := invoice.ParseAmount(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, in := range []any{nil, "", "   ", "EUR", true} {
		_, err := invoice.ParseAmount(in)
		assert.Error(t, err, "%v", in)
	}
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"19%", "0.19"},
		{"19 %", "0.19"},
		{"5,5%", "0.055"},
		{json.Number("19"), "0.19"},
		{0.19, "0.19"},
		{"0.2", "0.2"},
		{20, "0.2"},
		{1, "0.01"},
		{"1", "0.01"},
		{"0.99", "0.99"},
	}
	for _, tt := range tests {
		got, err := invoice.ParsePercent(tt.in)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%v: got %s", tt.in, got)
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "19%", invoice.FormatPercent(decimal.RequireFromString("0.19")))
	assert.Equal(t, "5.5%", invoice.FormatPercent(decimal.RequireFromString("0.055")))
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-08-31", "31/08/2024", "31-08-2024", "31.08.2024", "2024/08/31", "31 Aug 2024", "2024-08-31T15:04:05+02:00"} {
		got, err := invoice.ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := invoice.ParseDate("yesterday")
	assert.Error(t, err)
	_, err = invoice.ParseDate("")
	assert.Error(t, err)
}

func TestValueString(t *testing.T) {
	rec := invoice.Record{
		InvoiceDate: invoice.Some(time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)),
		GrossTotal:  invoice.Some(decimal.RequireFromString("250.7")),
		TaxRate:     invoice.Some(decimal.RequireFromString("0.2")),
		LineItems: invoice.Some([]invoice.LineItem{
			{Name: invoice.Some("A")},
			{Name: invoice.Some("B")},
		}),
	}

	assert.Equal(t, "2024-02-15", rec.Value(invoice.FieldInvoiceDate).String())
	assert.Equal(t, "250.70", rec.Value(invoice.FieldGrossTotal).String())
	assert.Equal(t, "20%", rec.Value(invoice.FieldTaxRate).String())
	assert.Equal(t, "A; B", rec.Value(invoice.FieldLineItems).String())
	assert.Equal(t, "", rec.Value(invoice.FieldNetTotal).String())
}

func TestOptionalJSON(t *testing.T) {
	rec := invoice.Record{SupplierName: invoice.Some("Beta Ltd")}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"supplier_name":"Beta Ltd"`)
	assert.Contains(t, string(b), `"gross_total":null`)

	var back invoice.Record
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, invoice.Some("Beta Ltd"), back.SupplierName)
	assert.False(t, back.GrossTotal.Present)
}
