package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripMarkdownFences removes a ```json ... ``` wrapper if present.
func stripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return text
	}
	end := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	return strings.Join(lines[1:end], "\n")
}

// parseJSONObject unmarshals the outermost JSON object found in raw model output.
func parseJSONObject[T any](raw string) (T, error) {
	var result T
	text := stripMarkdownFences(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return result, fmt.Errorf("no JSON object found (raw length: %d)", len(raw))
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return result, fmt.Errorf("invalid JSON: %w (text: %s)", err, truncateString(text, 200))
	}
	return result, nil
}
