package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"invoicerecon/internal/reconcile"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// ContentType is the MIME type of the CSV export.
const ContentType = "text/csv; charset=utf-8"

// Writer wraps csv.Writer for exporting discrepancy tables.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the field, invoice_value, reference_value, kind header.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(reconcile.ExportHeader)
}

// WriteReport writes one row per discrepancy, in report order.
func (w *Writer) WriteReport(report reconcile.Report) error {
	for _, row := range report.Rows() {
		if err := w.csv.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// WriteAll writes the BOM, header and rows of report to out and flushes.
func WriteAll(out io.Writer, report reconcile.Report) error {
	if _, err := out.Write(BOM); err != nil {
		return err
	}
	w := NewWriter(out)
	if err := w.WriteHeader(); err != nil {
		return err
	}
	if err := w.WriteReport(report); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans an uploaded file name for use in Content-Disposition.
// Replaces non-alphanumeric chars (except - _) with _, collapses consecutive
// underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns a sanitized export filename.
// Format: {sanitized_name}_discrepancies_{YYYY-MM-DD}.{ext}
func BuildFilename(name, ext string) string {
	sanitized := SanitizeFilename(strings.TrimSuffix(name, extOf(name)))
	if sanitized == "" {
		sanitized = "reconciliation"
	}
	date := time.Now().Format("2006-01-02")
	return fmt.Sprintf("%s_discrepancies_%s.%s", sanitized, date, ext)
}

func extOf(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[i:]
	}
	return ""
}
