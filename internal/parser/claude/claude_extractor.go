package claude

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"invoicerecon/internal/config"
	"invoicerecon/internal/parser"
	"invoicerecon/internal/port"
)

const (
	apiURL       = "https://api.anthropic.com/v1/messages"
	apiVersion   = "2023-06-01"
	defaultModel = "claude-sonnet-4-20250514"
)

func init() {
	parser.RegisterProvider("claude", func(cfg *config.ParserProviderConfig) (port.FieldExtractor, error) {
		return NewParser(cfg), nil
	})
}

// Parser implements port.FieldExtractor using the Anthropic Messages API.
type Parser struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewParser creates a Claude-based field extractor from a provider config.
func NewParser(cfg *config.ParserProviderConfig) *Parser {
	return newParser(cfg, apiURL)
}

// NewParserWithEndpoint creates a parser pointing at a custom API endpoint (for testing).
func NewParserWithEndpoint(cfg *config.ParserProviderConfig, endpoint string) *Parser {
	return newParser(cfg, endpoint)
}

func newParser(cfg *config.ParserProviderConfig, endpoint string) *Parser {
	model := cfg.DefaultModel
	if model == "" {
		model = defaultModel
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Parser{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *Parser) Extract(ctx context.Context, input port.ExtractInput) (*port.ExtractOutput, error) {
	prompt := parser.BuildInvoicePrompt()

	blocks, err := buildContentBlocks(input, prompt)
	if err != nil {
		return nil, fmt.Errorf("building content blocks: %w", err)
	}

	reqBody := map[string]any{
		"model":       p.model,
		"max_tokens":  8192,
		"temperature": 0.1,
		"messages": []map[string]any{
			{
				"role":    "user",
				"content": blocks,
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling anthropic API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parser.StatusError("claude", resp, respBody)
	}

	return parseResponse(respBody, p.model, prompt)
}

func buildContentBlocks(input port.ExtractInput, prompt string) ([]map[string]any, error) {
	if input.Text != "" {
		return []map[string]any{
			{"type": "text", "text": prompt},
			{"type": "text", "text": parser.TextPart(input.Text)},
		}, nil
	}

	encoded := base64.StdEncoding.EncodeToString(input.FileBytes)
	var source map[string]any
	blockType := "image"
	switch input.ContentType {
	case "application/pdf":
		blockType = "document"
		source = map[string]any{"type": "base64", "media_type": "application/pdf", "data": encoded}
	case "image/jpeg", "image/png":
		source = map[string]any{"type": "base64", "media_type": input.ContentType, "data": encoded}
	default:
		return nil, fmt.Errorf("unsupported content type for extraction: %s", input.ContentType)
	}

	return []map[string]any{
		{"type": blockType, "source": source},
		{"type": "text", "text": prompt},
	}, nil
}

// apiResponse models the Anthropic Messages API response.
type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func parseResponse(body []byte, model, prompt string) (*port.ExtractOutput, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("empty response from API")
	}
	if resp.StopReason == "max_tokens" {
		return nil, fmt.Errorf("output truncated (stop_reason: max_tokens)")
	}

	fields, raw, err := parser.DecodeFields(resp.Content[0].Text)
	if err != nil {
		return nil, err
	}

	return &port.ExtractOutput{
		Fields:     fields,
		RawJSON:    raw,
		ModelUsed:  model,
		PromptUsed: prompt,
	}, nil
}
