package openai

import (
	"encoding/json"
	"errors"
	"strings"
)

// extractFirstJSONObject recovers the first JSON object from model output.
// Models sometimes wrap JSON in prose or code fences.
func extractFirstJSONObject(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty text")
	}

	if raw, ok := asObject(text); ok {
		return raw, nil
	}

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			return extractFirstJSONObject(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	start := strings.IndexByte(text, '{')
	if start == -1 {
		return nil, errors.New("no JSON object start found")
	}
	for end := len(text) - 1; end > start; end-- {
		if text[end] != '}' {
			continue
		}
		if raw, ok := asObject(text[start : end+1]); ok {
			return raw, nil
		}
	}

	return nil, errors.New("failed to extract a valid JSON object")
}

func asObject(candidate string) (json.RawMessage, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		return nil, false
	}
	return json.RawMessage(candidate), true
}
