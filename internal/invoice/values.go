package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// DateLayout is the layout dates are rendered with.
const DateLayout = "2006-01-02"

var (
	errEmptyValue = errors.New("empty value")
	errNoDigits   = errors.New("no digits")
)

var hundred = decimal.NewFromInt(100)

// dateLayouts are tried in order. Day-first layouts come before any
// month-first reading, matching European invoices.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"2006/01/02",
	"02/01/06",
	"02 Jan 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 02, 2006",
	"January 2, 2006",
	"2006-01-02 15:04:05",
	"02-01-2006 15:04:05",
	time.RFC3339,
}

// ParseAmount converts a number-like value into a decimal. Strings may carry
// currency symbols or codes, spaces, thousands separators, a decimal comma or
// surrounding parentheses for negatives.
func ParseAmount(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Decimal{}, errEmptyValue
	case decimal.Decimal:
		return t, nil
	case json.Number:
		return decimal.NewFromString(t.String())
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case int32:
		return decimal.NewFromInt32(t), nil
	case string:
		return parseAmountString(t)
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported amount type %T", v)
	}
}

func parseAmountString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, errEmptyValue
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	var b strings.Builder
	seenDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			seenDigit = true
		case r == '.' || r == ',':
			if seenDigit {
				b.WriteRune(r)
			}
		case (r == '-' || r == '−') && !seenDigit:
			negative = true
		}
		// Anything else (currency, letters, spaces, apostrophes, %) is dropped.
	}
	digits := strings.TrimRight(b.String(), ".,")
	if !seenDigit {
		return decimal.Decimal{}, fmt.Errorf("parsing %q: %w", s, errNoDigits)
	}

	lastDot := strings.LastIndex(digits, ".")
	lastComma := strings.LastIndex(digits, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			digits = strings.ReplaceAll(digits, ".", "")
			digits = strings.Replace(digits, ",", ".", 1)
		} else {
			digits = strings.ReplaceAll(digits, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(digits, ",") > 1 || len(digits)-lastComma-1 == 3 {
			digits = strings.ReplaceAll(digits, ",", "")
		} else {
			digits = strings.Replace(digits, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(digits, ".") > 1 {
			digits = strings.ReplaceAll(digits, ".", "")
		}
	}

	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing %q: %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParsePercent converts a rate into a fraction. "19%", 19 and 0.19 all give
// 0.19. Without a percent sign, values of 1 or more are percentage points and
// values below 1 are fractions, so 1 is 1%.
func ParsePercent(v any) (decimal.Decimal, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if strings.Contains(s, "%") {
			d, err := parseAmountString(strings.ReplaceAll(s, "%", ""))
			if err != nil {
				return decimal.Decimal{}, err
			}
			return d.Div(hundred), nil
		}
	}
	d, err := ParseAmount(v)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.Abs().GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return d.Div(hundred), nil
	}
	return d, nil
}

// FormatPercent renders a fraction as percentage points, e.g. 0.19 -> "19%".
func FormatPercent(fraction decimal.Decimal) string {
	return fraction.Mul(hundred).String() + "%"
}

// ParseDate parses a date in any of the supported layouts and truncates it to
// the calendar day in UTC.
func ParseDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return civil(t), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, errEmptyValue
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return civil(parsed), nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable date: %s", s)
	case nil:
		return time.Time{}, errEmptyValue
	default:
		return time.Time{}, fmt.Errorf("unsupported date type %T", v)
	}
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// stringify renders a scalar payload value as trimmed text.
func stringify(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", errEmptyValue
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "", errEmptyValue
		}
		return s, nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unsupported text type %T", v)
	}
}

// rawText renders any payload value for Failure.Raw.
func rawText(v any) string {
	if s, err := stringify(v); err == nil {
		return s
	}
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// CollapseSpace lower-cases s and collapses every whitespace run to one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), unicode.IsSpace), " ")
}
