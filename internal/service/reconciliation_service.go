package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"invoicerecon/internal/csvexport"
	"invoicerecon/internal/domain"
	"invoicerecon/internal/invoice"
	"invoicerecon/internal/logging"
	"invoicerecon/internal/parser"
	"invoicerecon/internal/port"
	"invoicerecon/internal/reconcile"
	"invoicerecon/internal/spreadsheet"
)

// ReconciliationConfig holds the service-level policy around the engine.
type ReconciliationConfig struct {
	MaxRetries       int
	RetryBackoff     time.Duration
	BatchConcurrency int
	Prefilter        bool
	DefaultSheet     string
	MaxUploadBytes   int64
	Bucket           string
	Prefix           string
}

// ExtractResult is the outcome of reading one invoice PDF.
type ExtractResult struct {
	Fields          map[string]any        `json:"fields"`
	Invoice         invoice.InvoiceRecord `json:"invoice"`
	Text            string                `json:"text"`
	ModelUsed       string                `json:"model_used"`
	SecondaryModel  string                `json:"secondary_model,omitempty"`
	FieldProvenance map[string]string     `json:"field_provenance,omitempty"`
}

// ReconcileInput describes one reconciliation. Exactly one of Invoice and
// Fields is set; Fields holds an already extracted payload.
type ReconcileInput struct {
	Invoice    *Upload
	Fields     map[string]any
	FieldsName string
	Reference  Upload
	Sheet      string
}

// BatchInput reconciles several invoices against one reference sheet.
type BatchInput struct {
	Invoices  []Upload
	Reference Upload
	Sheet     string
}

// ReconciliationResult pairs the stored run with its decoded report.
type ReconciliationResult struct {
	Reconciliation *domain.Reconciliation `json:"reconciliation"`
	Report         reconcile.Report        `json:"report"`
}

// BatchItem is the outcome for one invoice of a batch. Error is set instead of
// Result when that invoice could not be reconciled.
type BatchItem struct {
	InvoiceName string                `json:"invoice_name"`
	Result      *ReconciliationResult `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// ExportFile is a rendered discrepancy table.
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// ReconciliationService defines the reconciliation workflow contract.
type ReconciliationService interface {
	ListSheets(ctx context.Context, reference Upload) ([]string, error)
	Extract(ctx context.Context, inv Upload) (*ExtractResult, error)
	Reconcile(ctx context.Context, input *ReconcileInput) (*ReconciliationResult, error)
	ReconcileBatch(ctx context.Context, input *BatchInput) ([]BatchItem, error)
	Get(ctx context.Context, id uuid.UUID) (*ReconciliationResult, error)
	List(ctx context.Context, filter domain.ReconciliationFilter) ([]domain.Reconciliation, int, error)
	Export(ctx context.Context, id uuid.UUID, format domain.ExportFormat) (*ExportFile, error)
}

type reconciliationService struct {
	engine    *reconcile.Engine
	text      port.TextExtractor
	extractor port.FieldExtractor
	storage   port.ObjectStorage
	repo      port.ReconciliationRepository
	cfg       ReconciliationConfig
	logger    logrus.FieldLogger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewReconciliationService creates a new ReconciliationService implementation.
func NewReconciliationService(
	engine *reconcile.Engine,
	text port.TextExtractor,
	extractor port.FieldExtractor,
	storage port.ObjectStorage,
	repo port.ReconciliationRepository,
	cfg ReconciliationConfig,
	logger logrus.FieldLogger,
) ReconciliationService {
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = 1
	}
	return &reconciliationService{
		engine:    engine,
		text:      text,
		extractor: extractor,
		storage:   storage,
		repo:      repo,
		cfg:       cfg,
		logger:    logger.WithField("component", "reconciliationService"),
		sleep:     sleepCtx,
	}
}

func (s *reconciliationService) ListSheets(_ context.Context, reference Upload) ([]string, error) {
	if err := checkUpload(reference, domain.FileTypeXLSX, s.cfg.MaxUploadBytes); err != nil {
		return nil, err
	}
	return spreadsheet.SheetNames(bytes.NewReader(reference.Data))
}

func (s *reconciliationService) Extract(ctx context.Context, inv Upload) (*ExtractResult, error) {
	if err := checkUpload(inv, domain.FileTypePDF, s.cfg.MaxUploadBytes); err != nil {
		return nil, err
	}
	res, err := s.extract(ctx, inv)
	if err != nil {
		return nil, err
	}
	rec, err := s.engine.Normalizer().Invoice(res.Fields)
	if err != nil {
		return nil, err
	}
	res.Invoice = rec
	return res, nil
}

// extract reads the text layer and runs structured extraction on it, or on
// the raw PDF when the document has no text layer.
func (s *reconciliationService) extract(ctx context.Context, inv Upload) (*ExtractResult, error) {
	text, err := s.text.ExtractText(ctx, inv.Data)
	if err != nil {
		s.logger.WithError(err).WithField("invoice", inv.Name).Warn("text extraction failed, sending document bytes")
		text = ""
	}

	input := port.ExtractInput{Text: text}
	if text == "" {
		input.FileBytes = inv.Data
		input.ContentType = domain.ContentTypeFor(domain.FileTypePDF)
	}

	out, err := s.extractWithRetry(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExtractionFailed, err)
	}
	return &ExtractResult{
		Fields:          out.Fields,
		Text:            text,
		ModelUsed:       out.ModelUsed,
		SecondaryModel:  out.SecondaryModel,
		FieldProvenance: out.FieldProvenance,
	}, nil
}

// extractWithRetry retries transient provider errors. Rate limits are returned
// at once so the caller can honor Retry-After.
func (s *reconciliationService) extractWithRetry(ctx context.Context, input port.ExtractInput) (*port.ExtractOutput, error) {
	attempts := s.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := s.extractor.Extract(ctx, input)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var rlErr *parser.RateLimitError
		if errors.As(err, &rlErr) || ctx.Err() != nil || attempt == attempts {
			break
		}
		s.logger.WithError(err).WithField("attempt", attempt).Warn("extraction failed, retrying")
		if err := s.sleep(ctx, s.cfg.RetryBackoff*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *reconciliationService) Reconcile(ctx context.Context, input *ReconcileInput) (*ReconciliationResult, error) {
	table, idx, err := s.loadReference(input.Reference, input.Sheet)
	if err != nil {
		return nil, err
	}

	var inv *Upload
	if input.Fields == nil {
		if input.Invoice == nil {
			return nil, domain.ErrInvalidFields
		}
		if err := checkUpload(*input.Invoice, domain.FileTypePDF, s.cfg.MaxUploadBytes); err != nil {
			return nil, err
		}
		inv = input.Invoice
	}

	name := input.FieldsName
	if inv != nil {
		name = inv.Name
	}
	refKey := func(id uuid.UUID) *string {
		return s.archive(ctx, runDir(id), input.Reference, domain.FileTypeXLSX)
	}
	return s.reconcileOne(ctx, inv, input.Fields, name, input.Reference, refKey, table.Sheet, idx)
}

func (s *reconciliationService) ReconcileBatch(ctx context.Context, input *BatchInput) ([]BatchItem, error) {
	if len(input.Invoices) == 0 {
		return nil, domain.ErrInvalidFields
	}
	table, idx, err := s.loadReference(input.Reference, input.Sheet)
	if err != nil {
		return nil, err
	}

	// Every run of the batch shares one archived copy of the reference.
	key := s.archive(ctx, "batches/"+uuid.New().String(), input.Reference, domain.FileTypeXLSX)
	refKey := func(uuid.UUID) *string { return key }

	items := make([]BatchItem, len(input.Invoices))
	sem := make(chan struct{}, s.cfg.BatchConcurrency)
	var wg sync.WaitGroup

	for i := range input.Invoices {
		inv := input.Invoices[i]
		items[i].InvoiceName = inv.Name

		if err := ctx.Err(); err != nil {
			items[i].Error = err.Error()
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			items[i].Error = ctx.Err().Error()
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := checkUpload(inv, domain.FileTypePDF, s.cfg.MaxUploadBytes); err != nil {
				items[i].Error = err.Error()
				return
			}
			res, err := s.reconcileOne(ctx, &inv, nil, inv.Name, input.Reference, refKey, table.Sheet, idx)
			if err != nil {
				logging.LogError(s.logger, "reconciliationService", "ReconcileBatch", logrus.Fields{"invoice": inv.Name}, err)
				items[i].Error = err.Error()
				return
			}
			items[i].Result = res
		}(i)
	}
	wg.Wait()

	s.logger.WithFields(logrus.Fields{
		"invoices":  len(items),
		"reference": input.Reference.Name,
		"sheet":     table.Sheet,
	}).Info("batch reconciliation finished")
	return items, nil
}

func (s *reconciliationService) loadReference(ref Upload, sheet string) (*spreadsheet.Table, *reconcile.Index, error) {
	if err := checkUpload(ref, domain.FileTypeXLSX, s.cfg.MaxUploadBytes); err != nil {
		return nil, nil, err
	}
	if sheet == "" {
		sheet = s.cfg.DefaultSheet
	}
	table, err := spreadsheet.ReadSheet(bytes.NewReader(ref.Data), sheet, s.engine.Normalizer())
	if err != nil {
		return nil, nil, err
	}
	return table, s.engine.NewIndexFromRows(table.Rows, table.FirstRow, s.cfg.Prefilter), nil
}

func (s *reconciliationService) reconcileOne(
	ctx context.Context,
	inv *Upload,
	fields map[string]any,
	name string,
	ref Upload,
	refKey func(runID uuid.UUID) *string,
	sheet string,
	idx *reconcile.Index,
) (*ReconciliationResult, error) {
	var modelUsed string
	if inv != nil {
		res, err := s.extract(ctx, *inv)
		if err != nil {
			return nil, err
		}
		fields = res.Fields
		modelUsed = res.ModelUsed
	}

	rec, err := s.engine.Normalizer().Invoice(fields)
	if err != nil {
		return nil, err
	}
	report := s.engine.Reconcile(rec, idx)

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling invoice record: %w", err)
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}

	run := &domain.Reconciliation{
		ID:               uuid.New(),
		InvoiceName:      name,
		ReferenceName:    ref.Name,
		Sheet:            sheet,
		Verdict:          report.Verdict,
		MatchStatus:      report.Match.Status,
		MatchScore:       report.Match.Score,
		DiscrepancyCount: len(report.Discrepancies),
		ModelUsed:        modelUsed,
		InvoiceRecord:    recordJSON,
		Report:           reportJSON,
		CreatedAt:        time.Now().UTC(),
	}
	if inv != nil {
		run.InvoiceKey = s.archive(ctx, runDir(run.ID), *inv, domain.FileTypePDF)
	}
	run.ReferenceKey = refKey(run.ID)

	if err := s.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("saving reconciliation: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"reconciliation_id": run.ID,
		"invoice":           name,
		"verdict":           run.Verdict,
		"match_status":      run.MatchStatus,
		"discrepancies":     run.DiscrepancyCount,
	}).Info("invoice reconciled")

	return &ReconciliationResult{Reconciliation: run, Report: report}, nil
}

func runDir(id uuid.UUID) string {
	return "reconciliations/" + id.String()
}

// archive stores an upload under dir. Failures are logged and leave the key
// empty; a run is never lost because the archive is down.
func (s *reconciliationService) archive(ctx context.Context, dir string, u Upload, ft domain.FileType) *string {
	base := csvexport.SanitizeFilename(strings.TrimSuffix(u.Name, filepath.Ext(u.Name)))
	key := fmt.Sprintf("%s%s/%s.%s", s.cfg.Prefix, dir, base, ft)
	_, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:      s.cfg.Bucket,
		Key:         key,
		Body:        bytes.NewReader(u.Data),
		ContentType: domain.ContentTypeFor(ft),
		Size:        int64(len(u.Data)),
	})
	if err != nil {
		logging.LogError(s.logger, "reconciliationService", "archive", logrus.Fields{"key": key}, fmt.Errorf("%w: %w", domain.ErrUploadFailed, err))
		return nil
	}
	return &key
}

func (s *reconciliationService) Get(ctx context.Context, id uuid.UUID) (*ReconciliationResult, error) {
	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var report reconcile.Report
	if err := json.Unmarshal(run.Report, &report); err != nil {
		return nil, fmt.Errorf("decoding stored report: %w", err)
	}
	return &ReconciliationResult{Reconciliation: run, Report: report}, nil
}

func (s *reconciliationService) List(ctx context.Context, filter domain.ReconciliationFilter) ([]domain.Reconciliation, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *reconciliationService) Export(ctx context.Context, id uuid.UUID, format domain.ExportFormat) (*ExportFile, error) {
	res, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	file := &ExportFile{Name: csvexport.BuildFilename(res.Reconciliation.InvoiceName, string(format))}
	switch format {
	case domain.ExportFormatXLSX:
		file.ContentType = spreadsheet.ContentType
		err = spreadsheet.WriteDiscrepancies(&buf, res.Report)
	case domain.ExportFormatCSV:
		file.ContentType = csvexport.ContentType
		err = csvexport.WriteAll(&buf, res.Report)
	default:
		return nil, domain.ErrInvalidExportFormat
	}
	if err != nil {
		return nil, fmt.Errorf("rendering export: %w", err)
	}
	file.Data = buf.Bytes()
	return file, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
