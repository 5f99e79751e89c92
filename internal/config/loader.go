package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the project-level config file name.
const FileName = "rootcause.yaml"

// Environment variables holding secrets.
const (
	EnvTavilyKey = "TAVILY_API_KEY"
	EnvGeminiKey = "GEMINI_API_KEY"
	EnvGoogleKey = "GOOGLE_API_KEY"
)

// HomeDir returns ~/.rootcause, or .rootcause if the home directory is
// unknown.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rootcause"
	}
	return filepath.Join(home, ".rootcause")
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a configuration from the given YAML file path.
// Unset fields get their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault loads the first config found in ./rootcause.yaml or
// ~/.rootcause/config.yaml. When neither exists it returns the built-in
// defaults and an empty path.
func LoadDefault() (*Config, string, error) {
	candidates := []string{FileName, filepath.Join(HomeDir(), "config.yaml")}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			return cfg, path, err
		}
	}
	return Default(), "", nil
}

// LoadDotEnv loads KEY=value files into the environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// TavilyAPIKey returns the web search key from the environment.
func TavilyAPIKey() string { return os.Getenv(EnvTavilyKey) }

// GeminiAPIKey returns the Gemini key, preferring GEMINI_API_KEY.
func GeminiAPIKey() string {
	if k := os.Getenv(EnvGeminiKey); k != "" {
		return k
	}
	return os.Getenv(EnvGoogleKey)
}

func applyDefaults(cfg *Config) {
	a := &cfg.Analyzer
	if a.OutputDir == "" {
		a.OutputDir = "output"
	}
	if a.StateDir == "" {
		a.StateDir = filepath.Join(HomeDir(), "runs")
	}
	if a.PromptsDir == "" {
		a.PromptsDir = filepath.Join(HomeDir(), "prompts")
	}
	if a.MaxFailures == 0 {
		a.MaxFailures = 3
	}
	if a.ModelDelay == "" {
		a.ModelDelay = "3s"
	}
	if a.ContextLines == 0 {
		a.ContextLines = 10
	}
	if a.MaxLogBytes == 0 {
		a.MaxLogBytes = 100 * 1024
	}
	if a.MaxContextChars == 0 {
		a.MaxContextChars = 2000
	}

	m := &cfg.Model
	if m.Provider == "" {
		m.Provider = ProviderClaudeCLI
	}
	if m.Name == "" {
		switch m.Provider {
		case ProviderGemini:
			m.Name = "gemini-2.5-flash"
		default:
			m.Name = "haiku"
		}
	}
	if m.Temperature == 0 {
		m.Temperature = 0.1
	}
	if m.MaxTokens == 0 {
		m.MaxTokens = 4096
	}
	if m.MinInterval == "" {
		m.MinInterval = "2s"
	}
	if m.MaxRetries == 0 {
		m.MaxRetries = 3
	}
	if m.Timeout == "" {
		m.Timeout = "5m"
	}

	s := &cfg.Search
	if s.MaxResults == 0 {
		s.MaxResults = 3
	}
	if s.MaxQueries == 0 {
		s.MaxQueries = 3
	}
	if s.SearchDepth == "" {
		s.SearchDepth = "basic"
	}
	if s.Timeout == "" {
		s.Timeout = "30s"
	}

	if cfg.History.DSN == "" {
		cfg.History.DSN = filepath.Join(HomeDir(), "history.db")
	}
}
