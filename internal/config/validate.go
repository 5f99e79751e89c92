package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is the result of Validate.
type ValidationErrors []ValidationError

// Err folds the errors into one, or returns nil when there are none.
func (v ValidationErrors) Err() error {
	var merr *multierror.Error
	for _, e := range v {
		merr = multierror.Append(merr, e)
	}
	return merr.ErrorOrNil()
}

var recognizedProviders = map[string]bool{
	ProviderClaudeCLI: true,
	ProviderGemini:    true,
}

var recognizedDepths = map[string]bool{
	"basic":    true,
	"advanced": true,
}

// Validate checks a Config for semantic errors. It returns every problem
// found (empty if valid).
func Validate(cfg *Config) ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	a := cfg.Analyzer
	if a.MaxFailures < 1 {
		add("analyzer.max_failures", "must be at least 1, got %d", a.MaxFailures)
	}
	if a.ContextLines < 0 {
		add("analyzer.context_lines", "must not be negative")
	}
	if a.MaxLogBytes < 0 {
		add("analyzer.max_log_bytes", "must not be negative")
	}
	if a.MaxContextChars < 0 {
		add("analyzer.max_context_chars", "must not be negative")
	}
	checkDuration(&errs, "analyzer.model_delay", a.ModelDelay)

	m := cfg.Model
	if !recognizedProviders[m.Provider] {
		add("model.provider", "unrecognized provider %q", m.Provider)
	}
	if m.Temperature < 0 || m.Temperature > 2 {
		add("model.temperature", "must be between 0 and 2, got %g", m.Temperature)
	}
	if m.MaxTokens < 0 {
		add("model.max_tokens", "must not be negative")
	}
	if m.MaxRetries < 0 {
		add("model.max_retries", "must not be negative")
	}
	checkDuration(&errs, "model.min_interval", m.MinInterval)
	checkDuration(&errs, "model.timeout", m.Timeout)

	s := cfg.Search
	if s.MaxResults < 1 || s.MaxResults > 10 {
		add("search.max_results", "must be between 1 and 10, got %d", s.MaxResults)
	}
	if s.MaxQueries < 1 {
		add("search.max_queries", "must be at least 1, got %d", s.MaxQueries)
	}
	if !recognizedDepths[s.SearchDepth] {
		add("search.search_depth", "unrecognized depth %q", s.SearchDepth)
	}
	checkDuration(&errs, "search.timeout", s.Timeout)

	if cfg.History.DSN == "" {
		add("history.dsn", "is required")
	}
	return errs
}

func checkDuration(errs *ValidationErrors, field, value string) {
	d, err := time.ParseDuration(value)
	switch {
	case err != nil:
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", value)})
	case d < 0:
		*errs = append(*errs, ValidationError{Field: field, Message: "must not be negative"})
	}
}
