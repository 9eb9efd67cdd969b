package domain

import "errors"

var (
	ErrNotFound               = errors.New("resource not found")
	ErrUnsupportedFileType    = errors.New("unsupported file type")
	ErrFileTooLarge           = errors.New("file exceeds maximum allowed size")
	ErrUploadFailed           = errors.New("file upload to storage failed")
	ErrSupplierMissing        = errors.New("supplier name is missing from the extracted fields")
	ErrExtractionFailed       = errors.New("structured extraction failed")
	ErrSheetNotFound          = errors.New("sheet not found in workbook")
	ErrEmptyReference         = errors.New("reference sheet has no data rows")
	ErrInvalidWorkbook        = errors.New("reference file is not a readable xlsx workbook")
	ErrReconciliationNotFound = errors.New("reconciliation not found")
	ErrInvalidExportFormat    = errors.New("invalid export format")
	ErrInvalidFields          = errors.New("fields payload is not a JSON object")
	ErrEmptyQuestion          = errors.New("question must not be empty")
)
