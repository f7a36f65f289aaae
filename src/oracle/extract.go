package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON object out of a model response. Models wrap
// output in prose or code fences despite instructions, so this tries, in
// order: the whole response, a ```json fence, a bare ``` fence, and finally
// the largest balanced {...} span.
func ExtractJSON(response string) (json.RawMessage, error) {
	candidates := []string{strings.TrimSpace(response)}

	if fenced := betweenFences(response, "```json"); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if fenced := betweenFences(response, "```"); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if span := largestObjectSpan(response); span != "" {
		candidates = append(candidates, span)
	}

	for _, candidate := range candidates {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &probe); err == nil {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, fmt.Errorf("no JSON object found in oracle response")
}

func betweenFences(s, opener string) string {
	start := strings.Index(s, opener)
	if start < 0 {
		return ""
	}
	rest := s[start+len(opener):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// largestObjectSpan finds the longest brace-balanced object, respecting
// string literals and escapes.
func largestObjectSpan(s string) string {
	best := ""
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for j := i; j < len(s); j++ {
			c := s[j]
			switch {
			case escaped:
				escaped = false
			case c == '\\' && inString:
				escaped = true
			case c == '"':
				inString = !inString
			case !inString && c == '{':
				depth++
			case !inString && c == '}':
				depth--
				if depth == 0 {
					if span := s[i : j+1]; len(span) > len(best) {
						best = span
					}
					j = len(s)
				}
			}
		}
	}
	return best
}
