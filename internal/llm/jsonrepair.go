package llm

import (
	"encoding/json"
	"strings"

	"sumbench/internal/errs"
)

// ExtractJSON returns the first JSON object or array embedded in text,
// preferring fenced code blocks. The second return is false when no
// opening brace or bracket exists. An unbalanced candidate is returned
// as-is for RepairJSON.
func ExtractJSON(text string) (string, bool) {
	if idx := strings.Index(text, "```json"); idx != -1 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			rest = rest[:end]
		}
		text = rest
	} else if idx := strings.Index(text, "```"); idx != -1 {
		rest := text[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			first := strings.TrimSpace(rest[:nl])
			if first != "" && !strings.ContainsAny(first, "{[") {
				// Language tag line
				rest = rest[nl+1:]
			}
		}
		if end := strings.Index(rest, "```"); end != -1 {
			rest = rest[:end]
		}
		text = rest
	}

	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{' || ch == '[':
			depth++
		case ch == '}' || ch == ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return strings.TrimSpace(text[start:]), true
}

// RepairJSON closes unbalanced strings, braces, and brackets so that
// slightly-truncated model output still parses. Hopeless input comes
// back no worse than it went in.
func RepairJSON(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			stack = append(stack, '}')
		case ch == '[':
			stack = append(stack, ']')
		case ch == '}' || ch == ']':
			if len(stack) > 0 && stack[len(stack)-1] == ch {
				stack = stack[:len(stack)-1]
			}
		}
	}

	out := s
	if escaped {
		// A dangling backslash would swallow the quote we add next.
		out += "\\"
	}
	if inString {
		out += `"`
	}

	// A trailing comma would choke encoding/json once the structure
	// closes.
	out = strings.TrimRight(out, " \t\r\n")
	out = strings.TrimSuffix(out, ",")

	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}

// ParseJSON extracts the first JSON value from a model response and
// unmarshals it into v, repairing truncation if the first parse fails.
// Failures are tagged invalid_response, a per-item failure.
func ParseJSON(op, model, text string, v any) error {
	raw, ok := ExtractJSON(text)
	if !ok {
		return errs.New(errs.KindInvalidResponse, op, "no JSON found in response").WithModel(model)
	}
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(RepairJSON(raw)), v); err != nil {
		return errs.E(errs.KindInvalidResponse, op, err).WithModel(model)
	}
	return nil
}
