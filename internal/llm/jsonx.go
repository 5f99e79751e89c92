package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoJSON is returned when no JSON object can be recovered from a response.
var ErrNoJSON = errors.New("no JSON object in model response")

var (
	fenceRe         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	objectSpanRe    = regexp.MustCompile(`(?s)\{.*\}`)
)

// ExtractJSON recovers a JSON object from free-form model output. It tries,
// in order: the whole text, the text with code fences and trailing commas
// removed, the widest {...} span, and the first balanced object.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if isObject(text) {
		return text, nil
	}

	cleaned := text
	if m := fenceRe.FindStringSubmatch(cleaned); m != nil {
		cleaned = m[1]
	}
	cleaned = strings.TrimSpace(trailingCommaRe.ReplaceAllString(cleaned, "$1"))
	if isObject(cleaned) {
		return cleaned, nil
	}

	if span := objectSpanRe.FindString(cleaned); span != "" && isObject(span) {
		return span, nil
	}

	if obj, ok := firstBalanced(cleaned); ok {
		return obj, nil
	}
	return "", ErrNoJSON
}

// DecodeJSON extracts a JSON object from text and unmarshals it into v.
func DecodeJSON(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode model JSON: %w", err)
	}
	return nil
}

func isObject(s string) bool {
	return strings.HasPrefix(s, "{") && gjson.Valid(s)
}

// firstBalanced scans for the first brace-balanced object that parses,
// ignoring braces inside string literals.
func firstBalanced(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		depth := 0
		inString, escaped := false, false
		for i := start; i < len(s); i++ {
			c := s[i]
			switch {
			case escaped:
				escaped = false
			case c == '\\' && inString:
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '{':
				depth++
			case c == '}':
				depth--
				if depth == 0 {
					if cand := s[start : i+1]; isObject(cand) {
						return cand, true
					}
					i = len(s)
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}
