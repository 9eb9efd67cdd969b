package spreadsheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"invoicerecon/internal/reconcile"
)

const (
	discrepancySheet = "Discrepancies"
	summarySheet     = "Summary"
)

// ContentType is the MIME type of the files WriteDiscrepancies produces.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteDiscrepancies writes the report's discrepancy table, followed by a
// summary sheet with the match outcome.
func WriteDiscrepancies(w io.Writer, report reconcile.Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), discrepancySheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	rows := append([][]string{reconcile.ExportHeader}, report.Rows()...)
	if err := writeRows(f, discrepancySheet, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(discrepancySheet, "A1", "D1", bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}
	if err := f.SetColWidth(discrepancySheet, "A", "D", 24); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("adding summary sheet: %w", err)
	}
	summary := [][]string{
		{"verdict", string(report.Verdict)},
		{"match_status", string(report.Match.Status)},
		{"score", fmt.Sprintf("%.2f", report.Match.Score)},
		{"discrepancies", fmt.Sprintf("%d", len(report.Discrepancies))},
	}
	if ref := report.Match.Reference; ref != nil {
		summary = append(summary, []string{"reference_row", fmt.Sprintf("%d", ref.Row)})
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return fmt.Errorf("styling summary: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]string) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
