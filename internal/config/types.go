package config

import "time"

// Config is the top-level configuration parsed from rootcause.yaml.
type Config struct {
	Analyzer Analyzer `yaml:"analyzer"`
	Model    Model    `yaml:"model"`
	Search   Search   `yaml:"search"`
	History  History  `yaml:"history"`
}

// Analyzer controls parsing and the pipeline supervisor.
type Analyzer struct {
	OutputDir       string `yaml:"output_dir"`
	StateDir        string `yaml:"state_dir"`
	PromptsDir      string `yaml:"prompts_dir"`
	MaxFailures     int    `yaml:"max_failures"`
	ModelDelay      string `yaml:"model_delay"`
	ContextLines    int    `yaml:"context_lines"`
	MaxLogBytes     int    `yaml:"max_log_bytes"`
	MaxContextChars int    `yaml:"max_context_chars"`
}

// Model selects and tunes the language model.
type Model struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	MinInterval string  `yaml:"min_interval"`
	MaxRetries  int     `yaml:"max_retries"`
	Timeout     string  `yaml:"timeout"`
}

// Search tunes web research.
type Search struct {
	MaxResults  int    `yaml:"max_results"`
	MaxQueries  int    `yaml:"max_queries"`
	SearchDepth string `yaml:"search_depth"`
	Timeout     string `yaml:"timeout"`
}

// History selects the run history database. A postgres:// DSN uses
// Postgres; anything else is a sqlite file path.
type History struct {
	DSN string `yaml:"dsn"`
}

// Model providers.
const (
	ProviderClaudeCLI = "claude-cli"
	ProviderGemini    = "gemini"
)

// ModelDelayDuration returns the pause before each model-backed stage.
func (a Analyzer) ModelDelayDuration() time.Duration { return mustDuration(a.ModelDelay) }

// MinIntervalDuration returns the minimum spacing between model calls.
func (m Model) MinIntervalDuration() time.Duration { return mustDuration(m.MinInterval) }

// TimeoutDuration returns the per-call model timeout.
func (m Model) TimeoutDuration() time.Duration { return mustDuration(m.Timeout) }

// TimeoutDuration returns the per-request search timeout.
func (s Search) TimeoutDuration() time.Duration { return mustDuration(s.Timeout) }

// mustDuration parses a validated duration; invalid values read as zero.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
