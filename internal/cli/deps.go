package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lucasnoah/rootcause/internal/config"
	"github.com/lucasnoah/rootcause/internal/db"
	"github.com/lucasnoah/rootcause/internal/llm"
)

// loadConfig returns the configuration from readConfig, rejecting it when it
// fails validation.
func loadConfig() (*config.Config, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg).Err(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// readConfig reads --config, or the first default location, and loads .env.
func readConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(".env", filepath.Join(config.HomeDir(), ".env")); err != nil {
		return nil, err
	}
	if configFile != "" {
		return config.Load(configFile)
	}
	cfg, path, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	if path != "" {
		logger.Debug("loaded config", zap.String("path", path))
	}
	return cfg, nil
}

// openDB opens and migrates the history DB, returning it with a cleanup func.
func openDB(cfg *config.Config) (*db.DB, func(), error) {
	d, err := db.Open(cfg.History.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

// newModel builds the configured model client wrapped in call spacing and
// throttling retries.
func newModel(ctx context.Context, cfg *config.Config) (llm.Model, error) {
	var base llm.Model
	switch cfg.Model.Provider {
	case config.ProviderClaudeCLI:
		base = llm.NewClaudeCLI(cfg.Model.Name, cfg.Model.TimeoutDuration())
	case config.ProviderGemini:
		g, err := llm.NewGemini(ctx, config.GeminiAPIKey(), cfg.Model.Name, cfg.Model.Temperature, cfg.Model.MaxTokens)
		if err != nil {
			return nil, err
		}
		base = g
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
	return llm.NewThrottled(base, cfg.Model.MinIntervalDuration(), cfg.Model.MaxRetries, logger), nil
}
