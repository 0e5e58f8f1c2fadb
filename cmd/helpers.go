package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/kpiscribe/kpiscribe/internal/config"
	"github.com/kpiscribe/kpiscribe/internal/db"
	"github.com/kpiscribe/kpiscribe/internal/facts"
	"github.com/kpiscribe/kpiscribe/internal/llm"
	"github.com/kpiscribe/kpiscribe/internal/narrator"
	"github.com/kpiscribe/kpiscribe/internal/prompt"
	"github.com/kpiscribe/kpiscribe/internal/sink"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `kpiscribe init` to create a config file", err)
	}
	return cfg, nil
}

// newLogger builds the structured logger used by long-running commands.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
}

// createProviderFromConfig creates the text-generation provider, wrapped in
// the configured rate limiter.
func createProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	provider, err := llm.NewProvider(string(cfg.Provider), cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}
	if cfg.RateLimitRPM > 0 {
		provider = llm.NewRateLimitedProvider(provider, cfg.RateLimitRPM)
	}
	return provider, nil
}

// openStores opens the database and wraps it in the fact and narrative
// stores. The caller owns the returned DB and must Close it.
func openStores(cfg *config.Config) (*db.DB, *facts.Store, *sink.Store, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return database, facts.NewStore(database), sink.NewStore(database), nil
}

// buildRequester assembles the full generation pipeline from config.
func buildRequester(cfg *config.Config, log *slog.Logger, factStore *facts.Store, sinkStore *sink.Store) (*narrator.Requester, error) {
	provider, err := createProviderFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	builder := prompt.NewBuilder(prompt.Options{
		Template:           cfg.Prompt.Template,
		CompanyName:        cfg.Prompt.CompanyName,
		CompanyDescription: cfg.Prompt.CompanyDescription,
		Strict:             cfg.Prompt.Strict,
		TokenBudget:        cfg.Prompt.TokenBudget,
	})

	return narrator.New(log, provider, factStore, builder, sinkStore, narrator.ParamsFromConfig(cfg)), nil
}
