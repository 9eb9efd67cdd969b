package domain

// FileType represents the allowed upload types.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeXLSX FileType = "xlsx"
)

// AllowedContentTypes maps MIME content types to FileType.
var AllowedContentTypes = map[string]FileType{
	"application/pdf": FileTypePDF,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": FileTypeXLSX,
}

// AllowedExtensions maps file extensions (without dot) to FileType.
var AllowedExtensions = map[string]FileType{
	"pdf":  FileTypePDF,
	"xlsx": FileTypeXLSX,
}

// ContentTypeFor returns the MIME type used when storing a FileType.
func ContentTypeFor(ft FileType) string {
	for ct, t := range AllowedContentTypes {
		if t == ft {
			return ct
		}
	}
	return "application/octet-stream"
}

// Verdict is the top-level outcome of one reconciliation run.
type Verdict string

const (
	VerdictConforming Verdict = "conforming"
	VerdictDiscrepant Verdict = "discrepant"
	VerdictUnmatched  Verdict = "unmatched"
)

// MatchStatus is the outcome of locating a reference record.
type MatchStatus string

const (
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusAmbiguous MatchStatus = "ambiguous"
	MatchStatusNotFound  MatchStatus = "not_found"
)

// DiscrepancyKind classifies one field-level disagreement.
type DiscrepancyKind string

const (
	DiscrepancyValueMismatch      DiscrepancyKind = "value_mismatch"
	DiscrepancyMissingInInvoice   DiscrepancyKind = "missing_in_invoice"
	DiscrepancyMissingInReference DiscrepancyKind = "missing_in_reference"
	DiscrepancyOutOfTolerance     DiscrepancyKind = "out_of_tolerance"
)

// ExportFormat is a supported discrepancy table export format.
type ExportFormat string

const (
	ExportFormatXLSX ExportFormat = "xlsx"
	ExportFormatCSV  ExportFormat = "csv"
)

// ParseExportFormat validates a user supplied format, defaulting to xlsx.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case "", ExportFormatXLSX:
		return ExportFormatXLSX, nil
	case ExportFormatCSV:
		return ExportFormatCSV, nil
	default:
		return "", ErrInvalidExportFormat
	}
}
