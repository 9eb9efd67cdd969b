package port

import (
	"context"
	"encoding/json"
)

// ExtractInput carries an invoice to structure. Text is the plain text layer
// of the document; when it is empty providers work from FileBytes instead.
type ExtractInput struct {
	FileBytes   []byte
	ContentType string
	Text        string
}

// ExtractOutput contains the key/value payload returned by an LLM provider.
type ExtractOutput struct {
	Fields          map[string]any
	RawJSON         json.RawMessage
	ModelUsed       string
	PromptUsed      string
	FieldProvenance map[string]string // which provider supplied each key (merge mode)
	SecondaryModel  string
}

// FieldExtractor abstracts LLM-based structured extraction.
type FieldExtractor interface {
	Extract(ctx context.Context, input ExtractInput) (*ExtractOutput, error)
}

// TextExtractor pulls the text layer out of a PDF.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}
