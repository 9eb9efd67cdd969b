package claude_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicerecon/internal/config"
	"invoicerecon/internal/parser"
	"invoicerecon/internal/parser/claude"
	"invoicerecon/internal/port"
)

func newTestParser(serverURL string) *claude.Parser {
	return claude.NewParserWithEndpoint(&config.ParserProviderConfig{
		Provider:     "claude",
		APIKey:       "test-claude-key",
		DefaultModel: "claude-sonnet-4-20250514",
	}, serverURL)
}

func successResponse(text, stop string) map[string]any {
	return map[string]any{
		"content":     []map[string]any{{"type": "text", "text": text}},
		"stop_reason": stop,
	}
}

func TestClaudeExtractor_PDF_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-claude-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var reqBody map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.Equal(t, "claude-sonnet-4-20250514", reqBody["model"])

		content := reqBody["messages"].([]any)[0].(map[string]any)["content"].([]any)
		if !assert.Len(t, content, 2) {
			return
		}
		doc := content[0].(map[string]any)
		assert.Equal(t, "document", doc["type"])
		assert.Equal(t, "application/pdf", doc["source"].(map[string]any)["media_type"])

		_ = json.NewEncoder(w).Encode(successResponse("```json\n{\"nom_fournisseur\":\"Beta Ltd\",\"montant_total\":\"250.75\"}\n```", "end_turn"))
	}))
	defer server.Close()

	out, err := newTestParser(server.URL).Extract(context.Background(), port.ExtractInput{
		FileBytes:   []byte("%PDF-1.4 fake"),
		ContentType: "application/pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "Beta Ltd", out.Fields["nom_fournisseur"])
	assert.Equal(t, "250.75", out.Fields["montant_total"])
	assert.Equal(t, "claude-sonnet-4-20250514", out.ModelUsed)
}

func TestClaudeExtractor_TextBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		content := reqBody["messages"].([]any)[0].(map[string]any)["content"].([]any)
		assert.Equal(t, "Facture brute : Beta Ltd", content[1].(map[string]any)["text"])

		_ = json.NewEncoder(w).Encode(successResponse(`{"nom_fournisseur":"Beta Ltd"}`, "end_turn"))
	}))
	defer server.Close()

	_, err := newTestParser(server.URL).Extract(context.Background(), port.ExtractInput{Text: "Beta Ltd"})
	require.NoError(t, err)
}

func TestClaudeExtractor_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, "status 500"},
		{"truncated", http.StatusOK, `{"content":[{"type":"text","text":"{"}],"stop_reason":"max_tokens"}`, "max_tokens"},
		{"empty", http.StatusOK, `{"content":[]}`, "empty response"},
		{"not json", http.StatusOK, `{"content":[{"type":"text","text":"sorry"}],"stop_reason":"end_turn"}`, "no JSON object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestParser(server.URL).Extract(context.Background(), port.ExtractInput{Text: "x"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestClaudeExtractor_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestParser(server.URL).Extract(context.Background(), port.ExtractInput{Text: "x"})
	var rl *parser.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, float64(60), rl.RetryAfter.Seconds())
}
