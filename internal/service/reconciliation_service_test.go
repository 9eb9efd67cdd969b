package service_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"invoicerecon/internal/domain"
	"invoicerecon/internal/invoice"
	"invoicerecon/internal/parser"
	"invoicerecon/internal/port"
	"invoicerecon/internal/reconcile"
	"invoicerecon/internal/repository/memory"
	"invoicerecon/internal/service"
	"invoicerecon/mocks"
)

var testPDF = []byte("%PDF-1.4\n1 0 obj\n<< >>\nendobj\n%%EOF\n")

func referenceWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	rows := [][]any{
		{"N° Facture", "Date Facture", "Client", "Montant TTC"},
		{"F1001", "2024-02-15", "Acme Corp", 100.0},
		{"F1002", "2024-03-01", "Beta Ltd", 250.75},
		{"F1003", "2024-03-02", "Gamma SA", 75.0},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		values := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &values))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func betaFields(total string) map[string]any {
	return map[string]any{
		"numéro_facture": "F1002",
		"date_facture":   "2024-03-01",
		"client":         map[string]any{"nom": "Beta Ltd"},
		"montants":       map[string]any{"total_TTC": total},
	}
}

type fixture struct {
	text      *mocks.MockTextExtractor
	extractor *mocks.MockFieldExtractor
	storage   *mocks.MockObjectStorage
	repo      port.ReconciliationRepository
	svc       service.ReconciliationService
}

func newFixture(t *testing.T, cfg service.ReconciliationConfig) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	f := &fixture{
		text:      new(mocks.MockTextExtractor),
		extractor: new(mocks.MockFieldExtractor),
		storage:   new(mocks.MockObjectStorage),
		repo:      memory.NewReconciliationRepo(),
	}
	engine := reconcile.NewEngine(invoice.NormalizerConfig{}, reconcile.DefaultMatcherConfig(), reconcile.DefaultToleranceConfig())
	f.svc = service.NewReconciliationService(engine, f.text, f.extractor, f.storage, f.repo, cfg, logger)
	return f
}

func (f *fixture) archiveOK() {
	f.storage.On("Upload", mock.Anything, mock.Anything).Return(&port.UploadOutput{Location: "s3://bucket/key"}, nil)
}

func TestReconcile_PDF_Conforming(t *testing.T) {
	f := newFixture(t, service.ReconciliationConfig{Bucket: "archive", Prefix: "test/"})
	f.archiveOK()
	f.text.On("ExtractText", mock.Anything, testPDF).Return("FACTURE F1002 Beta Ltd", nil)
	f.extractor.On("Extract", mock.Anything, port.ExtractInput{Text: "FACTURE F1002 Beta Ltd"}).
		Return(&port.ExtractOutput{Fields: betaFields("250.75"), ModelUsed: "gemini-2.0-flash"}, nil)

	res, err := f.svc.Reconcile(context.Background(), &service.ReconcileInput{
		Invoice:   &service.Upload{Name: "facture F1002.pdf", Data: testPDF},
		Reference: service.Upload{Name: "reference.xlsx", Data: referenceWorkbook(t)},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictConforming, res.Report.Verdict)
	assert.Equal(t, domain.MatchStatusMatched, res.Report.Match.Status)
	assert.Equal(t, 3, res.Report.Match.Reference.Row)
	assert.Empty(t, res.Report.Discrepancies)

	run := res.Reconciliation
	assert.Equal(t, "facture F1002.pdf", run.InvoiceName)
	assert.Equal(t, "Sheet1", run.Sheet)
	assert.Equal(t, "gemini-2.0-flash", run.ModelUsed)
	require.NotNil(t, run.InvoiceKey)
	assert.True(t, strings.HasPrefix(*run.InvoiceKey, "test/reconciliations/"+run.ID.String()))
	assert.True(t, strings.HasSuffix(*run.InvoiceKey, "/facture_F1002.pdf"))
	require.NotNil(t, run.ReferenceKey)
	f.storage.AssertNumberOfCalls(t, "Upload", 2)

	stored, err := f.svc.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictConforming, stored.Report.Verdict)
	assert.Equal(t, "Beta Ltd", stored.Report.Match.Reference.SupplierName.Value)
}

func TestReconcile_Fields_Discrepant(t *testing.T) {
	f := newFixture(t, service.ReconciliationConfig{})
	f.archiveOK()

	res, err := f.svc.Reconcile(context.Background(), &service.ReconcileInput{
		Fields:     betaFields("300.00"),
		FieldsName: "f1002.json",
		Reference:  service.Upload{Name: "reference.xlsx", Data: referenceWorkbook(t)},
		Sheet:      "Sheet1",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictDiscrepant, res.Report.Verdict)
	require.Len(t, res.Report.Discrepancies, 1)
	d := res.Report.Discrepancies[0]
	assert.Equal(t, string(invoice.FieldGrossTotal), d.Field)
	assert.Equal(t, domain.DiscrepancyOutOfTolerance, d.Kind)
	assert.Equal(t, "49.25", d.Delta.Decimal.String())

	assert.Nil(t, res.Reconciliation.InvoiceKey)
	assert.Equal(t, 1, res.Reconciliation.DiscrepancyCount)
	f.text.AssertNotCalled(t, "ExtractText", mock.Anything, mock.Anything)
	f.storage.AssertNumberOfCalls(t, "Upload", 1)
}

func TestReconcile_NoTextLayer_SendsDocument(t *testing.T) {
	f := newFixture(t, service.ReconciliationConfig{})
	f.archiveOK()
	f.text.On("ExtractText", mock.Anything, testPDF).Return("", nil)
	f.extractor.On("Extract", mock.Anything, mock.MatchedBy(func(in port.ExtractInput) bool {
		return in.Text == "" && bytes.Equal(in.FileBytes, testPDF) && in.ContentType == "application/pdf"
	})).Return(&port.ExtractOutput{Fields: map[string]any{"nom_fournisseur": "Unknown Co", "montant_total": "10"}}, nil)

	res, err := f.svc.Reconcile(context.Background(), &service.ReconcileInput{
		Invoice:   &service.Upload{Name: "scan.pdf", Data: testPDF},
		Reference: service.Upload{Name: "reference.xlsx", Data: referenceWorkbook(t)},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictUnmatched, res.Report.Verdict)
	assert.Equal(t, domain.MatchStatusNotFound, res.Report.Match.Status)
	assert.NotNil(t, res.Report.Discrepancies)
}

func TestReconcile_MissingSupplier(t *testing.T) {
	f := newFixture(t, service.ReconciliationConfig{})

	_, err := f.svc.Reconcile(context.Background(), &service.ReconcileInput{
		Fields:    map[string]any{"numero_facture": "F1"},
		Reference: service.Upload{Name: "reference.xlsx", Data: referenceWorkbook(t)},
	})
	assert.ErrorIs(t, err, domain.ErrSupplierMissing)

	_, total, err := f.repo.List(context.Background(), domain.ReconciliationFilter{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestReconcile_InputValidation(t *testing.T) {
	f := newFixture(t, service.ReconciliationConfig{MaxUploadBytes: 1 << 20})
	ref := service.Upload{Name: "reference.xlsx", Data: referenceWorkbook(t)}

	tests := []struct {
		name  string
		input *service.ReconcileInput
		want  error
	}{
		{"reference not xlsx", &service.ReconcileInput{Fields: betaFields("1"), Reference: service.Upload{Name: "ref.csv", Data: []byte("a,b")}}, domain.ErrUnsupportedFileType},
		{"reference renamed pdf", &service.ReconcileInput{Fields: betaFields("1"), Reference: service.Upload{Name: "ref.xlsx", Data: testPDF}}, domain.ErrUnsupportedFileType},
		{"invoice not pdf", &service.ReconcileInput{Invoice: &service.Upload{Name: "inv.png", Data: testPDF}, Reference: ref}, domain.ErrUnsupportedFileType},
		{"invoice too large", &service.ReconcileInput{Invoice: &service.Upload{Name: "inv.pdf", Data: append(append([]byte{}, testPDF...), make([]byte, 1<<20)...)}, Reference: ref}, domain.ErrFileTooLarge},
		{"nothing to reconcile", &service.ReconcileInput{Reference: ref}, domain.ErrInvalidFields},
		{"unknown sheet", &service.ReconcileInput{Fields: betaFields("1"), Reference: ref, Sheet: "Archive"}, domain.ErrSheetNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Reconcile(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReconcile_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, service.ReconciliationConfig{})
	f.storage.On("Upload", mock.Anything, mock.Anything).Return(nil, errors.New("s3 down"))

	res, err := f.svc.Reconcile(context.Background(), &service.ReconcileInput{
		Fields:    betaFields("250.75"),
		Reference: service.Upload{Name: "reference.xlsx", Data: referenceWorkbook(t)},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Reconciliation.ReferenceKey)
}

func TestReconcile_RepositoryFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	repo := new(mocks.MockReconciliationRepo)
	storage := new(mocks.MockObjectStorage)
	storage.On("Upload", mock.Anything, mock.Anything).Return(&port.UploadOutput{}, nil)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Reconciliation")).Return(errors.New("connection refused"))

	engine := reconcile.NewEngine(invoice.NormalizerConfig{}, reconcile.DefaultMatcherConfig(), reconcile.DefaultToleranceConfig())
	svc := service.NewReconciliationService(engine, new(mocks.MockTextExtractor), new(mocks.MockFieldExtractor), storage, repo, service.ReconciliationConfig{}, logger)

	_, err := svc.Reconcile(context.Background(), &service.ReconcileInput{
		Fields:    betaFields("250.75"),
		Reference: service.Upload{Name: "reference.xlsx", Data: referenceWorkbook(t)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saving reconciliation")
}

func TestExtract_RetriesTransientErrors(t *testing.T) {
	f := newFixture(t, service.ReconciliationConfig{MaxRetries: 2})
	f.text.On("ExtractText", mock.Anything, testPDF).Return("texte", nil)
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(nil, errors.New("bad gateway")).Once()
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(&port.ExtractOutput{
		Fields:    map[string]any{"nom_fournisseur": "Beta Ltd", "montant_total": "250.75"},
		ModelUsed: "claude",
	}, nil).Once()

	res, err := f.svc.Extract(context.Background(), service.Upload{Name: "f.pdf", Data: testPDF})
	require.NoError(t, err)
	assert.Equal(t, "Beta Ltd", res.Invoice.SupplierName.Value)
	assert.Equal(t, "texte", res.Text)
	assert.Equal(t, "claude", res.ModelUsed)
	f.extractor.AssertNumberOfCalls(t, "Extract", 2)
}

func TestExtract_RateLimitIsNotRetried(t *testing.T) {
	f := newFixture(t, service.ReconciliationConfig{MaxRetries: 3, RetryBackoff: time.Hour})
	f.text.On("ExtractText", mock.Anything, testPDF).Return("texte", nil)
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(nil, parser.NewRateLimitError("all", errors.New("429"), 30))

	_, err := f.svc.Extract(context.Background(), service.Upload{Name: "f.pdf", Data: testPDF})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
	var rl *parser.RateLimitError
	assert.True(t, errors.As(err, &rl))
	f.extractor.AssertNumberOfCalls(t, "Extract", 1)
}

func TestExtract_TextFailureFallsBackToDocument(t *testing.T) {
	f := newFixture(t, service.ReconciliationConfig{})
	f.text.On("ExtractText", mock.Anything, testPDF).Return("", errors.New("malformed xref"))
	f.extractor.On("Extract", mock.Anything, mock.MatchedBy(func(in port.ExtractInput) bool {
		return len(in.FileBytes) > 0
	})).Return(&port.ExtractOutput{Fields: map[string]any{"nom_fournisseur": "Beta Ltd"}}, nil)

	_, err := f.svc.Extract(context.Background(), service.Upload{Name: "f.pdf", Data: testPDF})
	require.NoError(t, err)
}

func TestReconcileBatch(t *testing.T) {
	f := newFixture(t, service.ReconciliationConfig{BatchConcurrency: 2})
	f.archiveOK()

	pdfA := append(append([]byte{}, testPDF...), 'a')
	pdfB := append(append([]byte{}, testPDF...), 'b')
	pdfC := append(append([]byte{}, testPDF...), 'c')
	f.text.On("ExtractText", mock.Anything, pdfA).Return("A", nil)
	f.text.On("ExtractText", mock.Anything, pdfB).Return("B", nil)
	f.text.On("ExtractText", mock.Anything, pdfC).Return("C", nil)
	f.extractor.On("Extract", mock.Anything, port.ExtractInput{Text: "A"}).
		Return(&port.ExtractOutput{Fields: betaFields("250.75")}, nil)
	f.extractor.On("Extract", mock.Anything, port.ExtractInput{Text: "B"}).
		Return(&port.ExtractOutput{Fields: map[string]any{"montant_total": "10"}}, nil)
	f.extractor.On("Extract", mock.Anything, port.ExtractInput{Text: "C"}).
		Return(&port.ExtractOutput{Fields: map[string]any{"nom_fournisseur": "Acme Corp", "montant_total": "100"}}, nil)

	items, err := f.svc.ReconcileBatch(context.Background(), &service.BatchInput{
		Invoices: []service.Upload{
			{Name: "a.pdf", Data: pdfA},
			{Name: "b.pdf", Data: pdfB},
			{Name: "c.pdf", Data: pdfC},
			{Name: "d.txt", Data: []byte("nope")},
		},
		Reference: service.Upload{Name: "reference.xlsx", Data: referenceWorkbook(t)},
	})
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, "a.pdf", items[0].InvoiceName)
	require.NotNil(t, items[0].Result)
	assert.Equal(t, domain.VerdictConforming, items[0].Result.Report.Verdict)

	assert.Nil(t, items[1].Result)
	assert.Contains(t, items[1].Error, "supplier")

	require.NotNil(t, items[2].Result)
	assert.Equal(t, 2, items[2].Result.Report.Match.Reference.Row)

	assert.Equal(t, domain.ErrUnsupportedFileType.Error(), items[3].Error)

	_, total, err := f.repo.List(context.Background(), domain.ReconciliationFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	// two invoices and a single copy of the reference
	f.storage.AssertNumberOfCalls(t, "Upload", 3)
	require.NotNil(t, items[0].Result.Reconciliation.ReferenceKey)
	refKey := *items[0].Result.Reconciliation.ReferenceKey
	assert.True(t, strings.HasPrefix(refKey, "batches/"))
	assert.Equal(t, refKey, *items[2].Result.Reconciliation.ReferenceKey)
}

func TestReconcileBatch_CancelledContext(t *testing.T) {
	f := newFixture(t, service.ReconciliationConfig{BatchConcurrency: 1})
	f.archiveOK()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, err := f.svc.ReconcileBatch(ctx, &service.BatchInput{
		Invoices: []service.Upload{
			{Name: "a.pdf", Data: testPDF},
			{Name: "b.pdf", Data: testPDF},
		},
		Reference: service.Upload{Name: "reference.xlsx", Data: referenceWorkbook(t)},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Nil(t, item.Result)
		assert.Equal(t, context.Canceled.Error(), item.Error)
	}
	f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestReconcileBatch_Empty(t *testing.T) {
	f := newFixture(t, service.ReconciliationConfig{})
	_, err := f.svc.ReconcileBatch(context.Background(), &service.BatchInput{
		Reference: service.Upload{Name: "reference.xlsx", Data: referenceWorkbook(t)},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidFields)
}

func TestListSheets(t *testing.T) {
	f := newFixture(t, service.ReconciliationConfig{})

	names, err := f.svc.ListSheets(context.Background(), service.Upload{Name: "reference.xlsx", Data: referenceWorkbook(t)})
	require.NoError(t, err)
	assert.Equal(t, []string{"Sheet1"}, names)

	_, err = f.svc.ListSheets(context.Background(), service.Upload{Name: "reference.pdf", Data: testPDF})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
}

func TestExport(t *testing.T) {
	f := newFixture(t, service.ReconciliationConfig{})
	f.archiveOK()

	res, err := f.svc.Reconcile(context.Background(), &service.ReconcileInput{
		Fields:     betaFields("300.00"),
		FieldsName: "beta.json",
		Reference:  service.Upload{Name: "reference.xlsx", Data: referenceWorkbook(t)},
	})
	require.NoError(t, err)
	id := res.Reconciliation.ID

	csvFile, err := f.svc.Export(context.Background(), id, domain.ExportFormatCSV)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(csvFile.Name, ".csv"))
	assert.True(t, strings.HasPrefix(csvFile.Name, "beta_discrepancies_"))
	assert.Contains(t, string(csvFile.Data), "gross_total,300.00,250.75,out_of_tolerance")

	xlsxFile, err := f.svc.Export(context.Background(), id, domain.ExportFormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", xlsxFile.ContentType)
	wb, err := excelize.OpenReader(bytes.NewReader(xlsxFile.Data))
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()
	kind, err := wb.GetCellValue("Discrepancies", "D2")
	require.NoError(t, err)
	assert.Equal(t, "out_of_tolerance", kind)

	_, err = f.svc.Export(context.Background(), id, domain.ExportFormat("pdf"))
	assert.ErrorIs(t, err, domain.ErrInvalidExportFormat)
}
