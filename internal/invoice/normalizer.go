package invoice

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"invoicerecon/internal/domain"
)

// NormalizerConfig carries extra key synonyms on top of the built-in table.
// Keys are normalized with NormalizeKey before use.
type NormalizerConfig struct {
	Synonyms map[string]Field
}

// NormalizationError reports an invoice that cannot be reconciled at all.
type NormalizationError struct {
	Field Field
	Err   error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalizing invoice: %s: %v", e.Field, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// Normalizer maps heterogeneous key sets onto the canonical record. It is
// safe for concurrent use.
type Normalizer struct {
	table map[string]synonym
}

// NewNormalizer builds a normalizer from the built-in synonym table plus cfg.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	table := make(map[string]synonym, len(synonyms)+len(cfg.Synonyms))
	for k, s := range synonyms {
		table[k] = s
	}
	for k, f := range cfg.Synonyms {
		if _, ok := KindOf(f); !ok {
			continue
		}
		table[normalizePath(k)] = synonym{field: f, priority: 0}
	}
	return &Normalizer{table: table}
}

// FieldFor resolves a single header or key to its canonical field.
func (n *Normalizer) FieldFor(key string) (Field, bool) {
	s, ok := n.table[NormalizeKey(key)]
	if !ok {
		return "", false
	}
	return s.field, true
}

// Invoice normalizes one extraction payload. Only a missing supplier name is
// fatal; every other unusable value ends up in Record.Failures.
func (n *Normalizer) Invoice(raw map[string]any) (InvoiceRecord, error) {
	rec := n.record(raw)
	if !rec.SupplierName.Present {
		err := domain.ErrSupplierMissing
		if fl, ok := rec.Failure(FieldSupplierName); ok {
			err = fmt.Errorf("%w: %s", domain.ErrSupplierMissing, fl.Reason)
		}
		return InvoiceRecord{}, &NormalizationError{Field: FieldSupplierName, Err: err}
	}
	return InvoiceRecord{Record: rec}, nil
}

// Reference normalizes one dataset row. Rows without a supplier name are kept;
// they simply never score.
func (n *Normalizer) Reference(raw map[string]any, row int) ReferenceRecord {
	return ReferenceRecord{Record: n.record(raw), Row: row}
}

type candidate struct {
	path     string
	priority int
	value    any
}

type entry struct {
	path  string
	leaf  string
	value any
}

func (n *Normalizer) record(raw map[string]any) Record {
	var entries []entry
	flatten(raw, "", &entries)

	byField := make(map[Field][]candidate)
	for _, e := range entries {
		if s, ok := n.table[e.path]; ok {
			byField[s.field] = append(byField[s.field], candidate{e.path, s.priority, e.value})
			continue
		}
		if e.leaf == e.path {
			continue
		}
		if s, ok := n.table[e.leaf]; ok {
			byField[s.field] = append(byField[s.field], candidate{e.path, s.priority + leafPenalty, e.value})
		}
	}

	var rec Record
	for _, spec := range Schema {
		cands := byField[spec.Field]
		if len(cands) == 0 {
			continue
		}
		sort.SliceStable(cands, func(i, j int) bool {
			if cands[i].priority != cands[j].priority {
				return cands[i].priority < cands[j].priority
			}
			return cands[i].path < cands[j].path
		})

		var firstErr error
		for _, c := range cands {
			err := assign(&rec, spec, c.value)
			if err == nil {
				firstErr = nil
				break
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		if firstErr != nil {
			if rec.Failures == nil {
				rec.Failures = make(map[Field]Failure)
			}
			rec.Failures[spec.Field] = Failure{Raw: rawText(cands[0].value), Reason: firstErr.Error()}
		}
	}
	return rec
}

// flatten walks nested maps in sorted key order and emits dotted paths of
// normalized segments. Lists are leaves.
func flatten(m map[string]any, prefix string, out *[]entry) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		seg := NormalizeKey(k)
		if seg == "" {
			continue
		}
		path := seg
		if prefix != "" {
			path = prefix + "." + seg
		}
		if nested, ok := m[k].(map[string]any); ok {
			flatten(nested, path, out)
			continue
		}
		*out = append(*out, entry{path: path, leaf: seg, value: m[k]})
	}
}

func normalizePath(key string) string {
	parts := strings.Split(key, ".")
	for i, p := range parts {
		parts[i] = NormalizeKey(p)
	}
	return strings.Join(parts, ".")
}

func assign(rec *Record, spec FieldSpec, v any) error {
	switch spec.Kind {
	case KindIdentifier, KindText:
		s, err := stringify(v)
		if err != nil {
			return err
		}
		setText(rec, spec.Field, s)
	case KindDate:
		d, err := ParseDate(v)
		if err != nil {
			return err
		}
		if spec.Field == FieldInvoiceDate {
			rec.InvoiceDate = Some(d)
		} else {
			rec.DueDate = Some(d)
		}
	case KindAmount:
		d, err := ParseAmount(v)
		if err != nil {
			return err
		}
		setAmount(rec, spec.Field, d)
	case KindPercent:
		d, err := ParsePercent(v)
		if err != nil {
			return err
		}
		rec.TaxRate = Some(d)
	case KindLineItems:
		items, err := parseItems(v)
		if err != nil {
			return err
		}
		rec.LineItems = Some(items)
	}
	return nil
}

func setText(rec *Record, f Field, s string) {
	switch f {
	case FieldInvoiceNumber:
		rec.InvoiceNumber = Some(s)
	case FieldPaymentMode:
		rec.PaymentMode = Some(s)
	case FieldSupplierName:
		rec.SupplierName = Some(s)
	case FieldAddress:
		rec.Address = Some(s)
	case FieldTaxID:
		rec.TaxID = Some(s)
	case FieldIBAN:
		rec.IBAN = Some(s)
	case FieldBIC:
		rec.BIC = Some(s)
	}
}

func setAmount(rec *Record, f Field, d decimal.Decimal) {
	switch f {
	case FieldNetTotal:
		rec.NetTotal = Some(d)
	case FieldTaxAmount:
		rec.TaxAmount = Some(d)
	case FieldGrossTotal:
		rec.GrossTotal = Some(d)
	}
}

var errNotAList = errors.New("line items are not a list")

// parseItems accepts a list of item objects, or a single string of names
// separated by semicolons or newlines as found in spreadsheet cells.
func parseItems(v any) ([]LineItem, error) {
	switch t := v.(type) {
	case []any:
		items := make([]LineItem, 0, len(t))
		for i, el := range t {
			m, ok := el.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("line item %d is not an object", i)
			}
			items = append(items, parseItem(m))
		}
		return items, nil
	case []map[string]any:
		items := make([]LineItem, 0, len(t))
		for _, m := range t {
			items = append(items, parseItem(m))
		}
		return items, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, errEmptyValue
		}
		var items []LineItem
		for _, name := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '\n' }) {
			if name = strings.TrimSpace(name); name != "" {
				items = append(items, LineItem{Name: Some(name)})
			}
		}
		return items, nil
	case nil:
		return nil, errEmptyValue
	default:
		return nil, errNotAList
	}
}

// parseItem reads the known item keys. Sub-values that do not parse stay absent.
func parseItem(m map[string]any) LineItem {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var it LineItem
	for _, k := range keys {
		f, ok := itemSynonyms[NormalizeKey(k)]
		if !ok {
			continue
		}
		switch f {
		case itemName:
			if it.Name.Present {
				continue
			}
			if s, err := stringify(m[k]); err == nil {
				it.Name = Some(s)
			}
		case itemQuantity:
			if it.Quantity.Present {
				continue
			}
			if d, err := ParseAmount(m[k]); err == nil {
				it.Quantity = Some(d)
			}
		case itemUnitPrice:
			if it.UnitPrice.Present {
				continue
			}
			if d, err := ParseAmount(m[k]); err == nil {
				it.UnitPrice = Some(d)
			}
		}
	}
	return it
}
