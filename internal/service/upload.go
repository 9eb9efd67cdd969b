package service

import (
	"net/http"
	"path/filepath"
	"strings"

	"invoicerecon/internal/domain"
)

// Upload is one file received from a caller.
type Upload struct {
	Name string
	Data []byte
}

// detectedTypes lists the sniffed content types accepted per file type. xlsx
// files are zip archives to http.DetectContentType.
var detectedTypes = map[domain.FileType][]string{
	domain.FileTypePDF:  {"application/pdf"},
	domain.FileTypeXLSX: {"application/zip", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
}

// checkUpload validates extension, size and magic bytes against the expected type.
func checkUpload(u Upload, want domain.FileType, maxBytes int64) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(u.Name), "."))
	fileType, ok := domain.AllowedExtensions[ext]
	if !ok || fileType != want {
		return domain.ErrUnsupportedFileType
	}
	if maxBytes > 0 && int64(len(u.Data)) > maxBytes {
		return domain.ErrFileTooLarge
	}

	n := len(u.Data)
	if n > 512 {
		n = 512
	}
	detected := http.DetectContentType(u.Data[:n])
	for _, ct := range detectedTypes[want] {
		if detected == ct {
			return nil
		}
	}
	return domain.ErrUnsupportedFileType
}
