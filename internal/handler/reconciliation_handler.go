package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"invoicerecon/internal/domain"
	"invoicerecon/internal/service"
)

// ReconciliationHandler handles invoice extraction and reconciliation endpoints.
type ReconciliationHandler struct {
	svc      service.ReconciliationService
	maxBytes int64
	logger   logrus.FieldLogger
}

// NewReconciliationHandler creates a new ReconciliationHandler. maxBytes bounds
// how much of each uploaded part is read into memory.
func NewReconciliationHandler(svc service.ReconciliationService, maxBytes int64, logger logrus.FieldLogger) *ReconciliationHandler {
	return &ReconciliationHandler{
		svc:      svc,
		maxBytes: maxBytes,
		logger:   logger.WithField("component", "reconciliationHandler"),
	}
}

// ListSheets handles POST /api/v1/reference/sheets
func (h *ReconciliationHandler) ListSheets(c *gin.Context) {
	ref, ok := h.requireUpload(c, "reference")
	if !ok {
		return
	}

	sheets, err := h.svc.ListSheets(c.Request.Context(), *ref)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	RespondOK(c, gin.H{"sheets": sheets})
}

// Extract handles POST /api/v1/extractions
func (h *ReconciliationHandler) Extract(c *gin.Context) {
	inv, ok := h.requireUpload(c, "invoice")
	if !ok {
		return
	}

	result, err := h.svc.Extract(c.Request.Context(), *inv)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	RespondOK(c, result)
}

// Reconcile handles POST /api/v1/reconciliations
// The invoice is either a PDF in the "invoice" part or an extracted payload in
// the "fields" part, sent as a form value or as a JSON file.
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	input := &service.ReconcileInput{Sheet: c.PostForm("sheet")}

	inv, err := h.optionalUpload(c, "invoice")
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	input.Invoice = inv

	fields, fieldsName, err := h.readFields(c)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	input.Fields = fields
	input.FieldsName = fieldsName

	if (input.Invoice == nil) == (input.Fields == nil) {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "exactly one of invoice or fields is required")
		return
	}

	ref, ok := h.requireUpload(c, "reference")
	if !ok {
		return
	}
	input.Reference = *ref

	result, err := h.svc.Reconcile(c.Request.Context(), input)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	RespondCreated(c, result)
}

// ReconcileBatch handles POST /api/v1/reconciliations/batch
func (h *ReconciliationHandler) ReconcileBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "multipart form is required")
		return
	}

	headers := form.File["invoices"]
	headers = append(headers, form.File["invoices[]"]...)
	if len(headers) == 0 {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "at least one invoices file is required")
		return
	}

	input := &service.BatchInput{Sheet: c.PostForm("sheet")}
	for _, fh := range headers {
		u, readErr := h.readPart(fh)
		if readErr != nil {
			HandleError(c, h.logger, readErr)
			return
		}
		input.Invoices = append(input.Invoices, *u)
	}

	ref, ok := h.requireUpload(c, "reference")
	if !ok {
		return
	}
	input.Reference = *ref

	items, err := h.svc.ReconcileBatch(c.Request.Context(), input)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	failed := 0
	for _, it := range items {
		if it.Error != "" {
			failed++
		}
	}

	RespondOK(c, gin.H{
		"items":  items,
		"total":  len(items),
		"failed": failed,
	})
}

// List handles GET /api/v1/reconciliations
func (h *ReconciliationHandler) List(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	filter := domain.ReconciliationFilter{Offset: offset, Limit: limit}
	if v := c.Query("verdict"); v != "" {
		verdict := domain.Verdict(v)
		switch verdict {
		case domain.VerdictConforming, domain.VerdictDiscrepant, domain.VerdictUnmatched:
		default:
			RespondError(c, http.StatusBadRequest, "INVALID_VERDICT", "invalid verdict; allowed: conforming, discrepant, unmatched")
			return
		}
		filter.Verdict = &verdict
	}

	runs, total, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	RespondPaginated(c, runs, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// GetByID handles GET /api/v1/reconciliations/:id
func (h *ReconciliationHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid reconciliation ID")
		return
	}

	result, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	RespondOK(c, result)
}

// Export handles GET /api/v1/reconciliations/:id/export?format=xlsx|csv
func (h *ReconciliationHandler) Export(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid reconciliation ID")
		return
	}

	format, err := domain.ParseExportFormat(c.Query("format"))
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	file, err := h.svc.Export(c.Request.Context(), id, format)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// requireUpload reads a mandatory file part, writing the error response
// itself when it is missing or unreadable.
func (h *ReconciliationHandler) requireUpload(c *gin.Context, field string) (*service.Upload, bool) {
	u, err := h.optionalUpload(c, field)
	if err != nil {
		HandleError(c, h.logger, err)
		return nil, false
	}
	if u == nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", field+" file is required")
		return nil, false
	}
	return u, true
}

func (h *ReconciliationHandler) optionalUpload(c *gin.Context, field string) (*service.Upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, nil
	}
	return h.readPart(fh)
}

func (h *ReconciliationHandler) readPart(fh *multipart.FileHeader) (*service.Upload, error) {
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		return nil, fmt.Errorf("%s: %w", fh.Filename, domain.ErrFileTooLarge)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", fh.Filename, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fh.Filename, err)
	}
	return &service.Upload{Name: fh.Filename, Data: data}, nil
}

// readFields returns the extracted payload from the "fields" part, or nil when
// the request carries none.
func (h *ReconciliationHandler) readFields(c *gin.Context) (map[string]any, string, error) {
	var raw []byte
	name := "fields.json"

	if fh, err := c.FormFile("fields"); err == nil {
		u, readErr := h.readPart(fh)
		if readErr != nil {
			return nil, "", readErr
		}
		raw, name = u.Data, u.Name
	} else if v, ok := c.GetPostForm("fields"); ok {
		raw = []byte(v)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, "", nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, "", domain.ErrInvalidFields
	}
	return fields, name, nil
}
