// Package assistant answers free-form questions about an invoice and its
// reference data through a chat model.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"invoicerecon/internal/config"
	"invoicerecon/internal/parser"
	"invoicerecon/internal/port"
)

const (
	apiBaseURL   = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultModel = "gemini-2.0-flash"

	systemPrompt = `Tu es un assistant expert en facturation.
L'utilisateur a une question concernant la facture et la base de données.
Réponds de manière claire et détaillée, en t'appuyant uniquement sur les données fournies.`
)

// GeminiAssistant implements port.Assistant with the Gemini generateContent API.
type GeminiAssistant struct {
	apiKey      string
	model       string
	temperature float64
	endpoint    string
	client      *http.Client
}

// NewGeminiAssistant creates an assistant from config.
func NewGeminiAssistant(cfg *config.AssistantConfig) *GeminiAssistant {
	return newGeminiAssistant(cfg, "")
}

// NewGeminiAssistantWithEndpoint creates an assistant pointing at a custom API endpoint (for testing).
func NewGeminiAssistantWithEndpoint(cfg *config.AssistantConfig, endpoint string) *GeminiAssistant {
	return newGeminiAssistant(cfg, endpoint)
}

func newGeminiAssistant(cfg *config.AssistantConfig, endpoint string) *GeminiAssistant {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/%s:generateContent", apiBaseURL, model)
	}
	return &GeminiAssistant{
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: cfg.Temperature,
		endpoint:    endpoint,
		client:      &http.Client{Timeout: timeout},
	}
}

// Answer sends the data context, the prior turns and the new question. The
// conversation is never stored here.
func (a *GeminiAssistant) Answer(ctx context.Context, input port.AssistantInput) (string, error) {
	contents := make([]map[string]any, 0, len(input.History)+1)
	for _, msg := range input.History {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]any{{"text": msg.Content}},
		})
	}
	contents = append(contents, map[string]any{
		"role":  "user",
		"parts": []map[string]any{{"text": "Question : " + input.Question}},
	})

	system := systemPrompt
	if input.Context != "" {
		system += "\n\n" + input.Context
	}

	reqBody := map[string]any{
		"system_instruction": map[string]any{
			"parts": []map[string]any{{"text": system}},
		},
		"contents": contents,
		"generationConfig": map[string]any{
			"temperature": a.temperature,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling gemini API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", parser.StatusError("gemini", resp, respBody)
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("unmarshaling response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from API")
	}

	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String()), nil
}
