package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"invoicerecon/internal/domain"
	"invoicerecon/internal/service"
)

// exitCodeNotConforming is returned by run when the verdict is discrepant or
// unmatched, so scripts can branch on the outcome.
const exitCodeNotConforming = 2

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// serviceFactory builds the reconciliation service; withExtractor is false
// when no invoice PDF has to be read.
type serviceFactory func(withExtractor bool) (service.ReconciliationService, error)

func newRootCmd(factory serviceFactory, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "reconcile",
		Short:         "Reconcile supplier invoices against a reference spreadsheet",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newSheetsCmd(factory), newRunCmd(factory))
	return root
}

func newSheetsCmd(factory serviceFactory) *cobra.Command {
	var reference string

	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "List the sheets of a reference workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := factory(false)
			if err != nil {
				return err
			}
			ref, err := readUpload(reference)
			if err != nil {
				return err
			}
			sheets, err := svc.ListSheets(cmd.Context(), *ref)
			if err != nil {
				return err
			}
			for _, s := range sheets {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "reference workbook (.xlsx)")
	_ = cmd.MarkFlagRequired("reference")
	return cmd
}

type runOptions struct {
	reference string
	sheet     string
	invoice   string
	fields    string
	export    string
	asJSON    bool
}

func newRunCmd(factory serviceFactory) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile one invoice and print the report",
		Long: "Reconcile one invoice, given as a PDF or as an extracted JSON payload, against\n" +
			"one sheet of the reference workbook. Exits with status 2 when the invoice is\n" +
			"not conforming.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd.Context(), factory, &opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.reference, "reference", "", "reference workbook (.xlsx)")
	f.StringVar(&opts.sheet, "sheet", "", "sheet name (defaults to the first sheet)")
	f.StringVar(&opts.invoice, "invoice", "", "invoice PDF")
	f.StringVar(&opts.fields, "fields", "", "extracted invoice fields as a JSON file")
	f.StringVar(&opts.export, "export", "", "write the discrepancy table to this .xlsx or .csv file")
	f.BoolVar(&opts.asJSON, "json", false, "print the full result as JSON")
	_ = cmd.MarkFlagRequired("reference")
	cmd.MarkFlagsOneRequired("invoice", "fields")
	cmd.MarkFlagsMutuallyExclusive("invoice", "fields")
	return cmd
}

func runReconcile(ctx context.Context, factory serviceFactory, opts *runOptions, stdout, stderr io.Writer) error {
	var exportFormat domain.ExportFormat
	if opts.export != "" {
		var err error
		exportFormat, err = domain.ParseExportFormat(strings.TrimPrefix(strings.ToLower(filepath.Ext(opts.export)), "."))
		if err != nil {
			return fmt.Errorf("--export must end in .xlsx or .csv: %w", err)
		}
	}

	svc, err := factory(opts.invoice != "")
	if err != nil {
		return err
	}

	ref, err := readUpload(opts.reference)
	if err != nil {
		return err
	}
	input := &service.ReconcileInput{Reference: *ref, Sheet: opts.sheet}

	if opts.invoice != "" {
		inv, readErr := readUpload(opts.invoice)
		if readErr != nil {
			return readErr
		}
		input.Invoice = inv
	} else {
		fields, readErr := readFields(opts.fields)
		if readErr != nil {
			return readErr
		}
		input.Fields = fields
		input.FieldsName = filepath.Base(opts.fields)
	}

	result, err := svc.Reconcile(ctx, input)
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
	} else if err := printReport(stdout, result); err != nil {
		return err
	}

	if opts.export != "" {
		file, err := svc.Export(ctx, result.Reconciliation.ID, exportFormat)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.export, file.Data, 0o644); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		fmt.Fprintf(stderr, "discrepancies written to %s\n", opts.export)
	}

	if result.Report.Verdict != domain.VerdictConforming {
		return &exitError{code: exitCodeNotConforming}
	}
	return nil
}

func printReport(w io.Writer, result *service.ReconciliationResult) error {
	run := result.Reconciliation
	report := result.Report

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Invoice:\t%s\n", run.InvoiceName)
	fmt.Fprintf(tw, "Reference:\t%s [%s]\n", run.ReferenceName, run.Sheet)

	match := fmt.Sprintf("%s (score %.2f", report.Match.Status, report.Match.Score)
	if report.Match.Reference != nil {
		match += fmt.Sprintf(", row %d", report.Match.Reference.Row)
	}
	fmt.Fprintf(tw, "Match:\t%s)\n", match)
	fmt.Fprintf(tw, "Verdict:\t%s\n", strings.ToUpper(string(report.Verdict)))
	if err := tw.Flush(); err != nil {
		return err
	}

	switch {
	case report.Match.Status == domain.MatchStatusAmbiguous:
		fmt.Fprintln(w, "\nCandidates:")
		for _, c := range report.Match.Candidates {
			fmt.Fprintf(w, "  row %d  %.2f\n", c.Reference.Row, c.Score)
		}
		return nil
	case len(report.Discrepancies) == 0:
		return nil
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tINVOICE\tREFERENCE\tKIND")
	for _, row := range report.Rows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func readUpload(path string) (*service.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &service.Upload{Name: filepath.Base(path), Data: data}, nil
}

func readFields(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrInvalidFields)
	}
	return fields, nil
}
