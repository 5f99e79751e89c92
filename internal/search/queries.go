package search

import (
	"fmt"
	"strings"
)

const (
	DefaultMaxQueries = 3
	minQueryLen       = 10
	queryMessageRunes = 50
)

// QueryInput is what query generation needs from earlier stages.
type QueryInput struct {
	ErrorType         string
	ErrorMessage      string
	Category          string
	SuggestedByTriage []string
}

// BuildQueries returns up to max search queries: triage suggestions first,
// then generic ones built from the error. Queries are deduplicated without
// regard to case and those of minQueryLen characters or fewer are dropped.
func BuildQueries(in QueryInput, max int) []string {
	if max <= 0 {
		max = DefaultMaxQueries
	}

	short := []rune(in.ErrorMessage)
	if len(short) > queryMessageRunes {
		short = short[:queryMessageRunes]
	}
	msg := strings.NewReplacer("'", "", `"`, "").Replace(string(short))

	candidates := append([]string(nil), in.SuggestedByTriage...)
	candidates = append(candidates,
		fmt.Sprintf("%s %s fix", in.ErrorType, msg),
		fmt.Sprintf("GitHub Actions %s solution", in.ErrorType),
		fmt.Sprintf("Python %s how to fix", in.ErrorType),
	)
	if in.Category != "" {
		candidates = append(candidates, fmt.Sprintf("CI/CD %s error solution", in.Category))
	}

	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, q := range candidates {
		key := strings.ToLower(strings.TrimSpace(q))
		if len(key) <= minQueryLen || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == max {
			break
		}
	}
	return out
}
