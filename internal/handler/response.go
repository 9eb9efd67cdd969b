package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"invoicerecon/internal/domain"
	"invoicerecon/internal/invoice"
	"invoicerecon/internal/parser"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *PagMeta    `json:"meta,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PagMeta holds pagination metadata.
type PagMeta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondCreated sends a 201 success response.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// RespondPaginated sends a 200 success response with pagination metadata.
func RespondPaginated(c *gin.Context, data interface{}, meta PagMeta) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: &meta})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code, msg string) {
	var rle *parser.RateLimitError
	var ne *invoice.NormalizationError
	switch {
	case errors.As(err, &rle):
		return http.StatusTooManyRequests, "RATE_LIMITED",
			fmt.Sprintf("extraction provider is rate limited; retry after %s", rle.RetryAfter)
	case errors.Is(err, domain.ErrSupplierMissing):
		return http.StatusUnprocessableEntity, "SUPPLIER_MISSING", "supplier name is missing from the invoice; it cannot be reconciled"
	case errors.As(err, &ne):
		return http.StatusUnprocessableEntity, "INVALID_INVOICE", ne.Error()
	case errors.Is(err, domain.ErrReconciliationNotFound):
		return http.StatusNotFound, "RECONCILIATION_NOT_FOUND", "reconciliation not found"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrUnsupportedFileType):
		return http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", "unsupported file type; invoices must be pdf and references xlsx"
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds maximum allowed size"
	case errors.Is(err, domain.ErrInvalidWorkbook):
		return http.StatusBadRequest, "INVALID_WORKBOOK", "reference file is not a readable xlsx workbook"
	case errors.Is(err, domain.ErrSheetNotFound):
		return http.StatusBadRequest, "SHEET_NOT_FOUND", "sheet not found in the reference workbook"
	case errors.Is(err, domain.ErrEmptyReference):
		return http.StatusBadRequest, "EMPTY_REFERENCE", "reference sheet has no data rows"
	case errors.Is(err, domain.ErrInvalidFields):
		return http.StatusBadRequest, "INVALID_FIELDS", "fields must be a JSON object"
	case errors.Is(err, domain.ErrInvalidExportFormat):
		return http.StatusBadRequest, "INVALID_EXPORT_FORMAT", "invalid export format; allowed: xlsx, csv"
	case errors.Is(err, domain.ErrEmptyQuestion):
		return http.StatusBadRequest, "EMPTY_QUESTION", "question must not be empty"
	case errors.Is(err, domain.ErrExtractionFailed):
		return http.StatusBadGateway, "EXTRACTION_FAILED", "structured extraction of the invoice failed"
	case errors.Is(err, domain.ErrUploadFailed):
		return http.StatusInternalServerError, "UPLOAD_FAILED", "file upload to storage failed"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// HandleError maps a domain error and sends the appropriate error response.
func HandleError(c *gin.Context, logger logrus.FieldLogger, err error) {
	status, code, msg := MapDomainError(err)
	if status >= 500 {
		requestID, _ := c.Get("request_id")
		logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"status":     status,
		}).WithError(err).Error("request failed")
	}
	RespondError(c, status, code, msg)
}
