// Package agents implements the model-backed pipeline stages: triage,
// research and synthesis. Each agent renders a prompt, calls the model and
// decodes a JSON reply, falling back to a best-effort result when the reply
// cannot be decoded. Model call failures are returned as errors so the
// supervisor can retry the stage.
package agents

import (
	"strings"
	"unicode/utf8"
)

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func joinOr(items []string, sep, def string) string {
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, sep)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// confidenceOr reads an optional confidence from a model reply.
func confidenceOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return clamp01(*p)
}
