package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object in model output")

// DecodeFields recovers the JSON object from a model reply. Models sometimes
// wrap it in code fences or add prose around it, so everything outside the
// outermost braces is dropped. Numbers are kept as json.Number.
func DecodeFields(text string) (map[string]any, json.RawMessage, error) {
	raw, err := extractObject(text)
	if err != nil {
		return nil, nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, nil, fmt.Errorf("parsing LLM JSON output: %w (raw: %s)", err, truncate(text, 500))
	}

	// Some models echo a {"data": {...}} envelope.
	if len(fields) == 1 {
		if inner, ok := fields["data"].(map[string]any); ok {
			fields = inner
			if raw, err = json.Marshal(inner); err != nil {
				return nil, nil, fmt.Errorf("re-encoding fields: %w", err)
			}
		}
	}
	return fields, raw, nil
}

func extractObject(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w (raw: %s)", errNoJSONObject, truncate(text, 500))
	}
	return []byte(s[start : end+1]), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
