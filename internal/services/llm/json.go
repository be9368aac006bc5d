package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeLLMJSON unmarshals a model answer into target. Answers wrapped in
// markdown fences or surrounded by prose are narrowed to the outermost JSON
// object or array before giving up.
func DecodeLLMJSON(content string, target any) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errors.New("empty payload")
	}
	err := json.Unmarshal([]byte(content), target)
	if err == nil {
		return nil
	}
	narrowed := extractJSON(content)
	if narrowed == "" || narrowed == content {
		return fmt.Errorf("%w (payload snippet: %s)", err, summarizePayloadSnippet(content))
	}
	if err := json.Unmarshal([]byte(narrowed), target); err != nil {
		return fmt.Errorf("%w (extracted payload snippet: %s)", err, summarizePayloadSnippet(narrowed))
	}
	return nil
}

func extractJSON(content string) string {
	body := strings.TrimSpace(unfence(content))
	if body == "" || body[0] == '{' || body[0] == '[' {
		return body
	}
	for _, delims := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(body, delims[0])
		end := strings.LastIndex(body, delims[1])
		if start >= 0 && end > start {
			return strings.TrimSpace(body[start : end+1])
		}
	}
	return body
}

// unfence removes a surrounding ``` or ```json block.
func unfence(content string) string {
	body, ok := strings.CutPrefix(strings.TrimSpace(content), "```")
	if !ok {
		return content
	}
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// summarizePayloadSnippet collapses whitespace and truncates for error text.
func summarizePayloadSnippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
