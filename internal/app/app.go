// Package app builds the shared service components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zombar/feedbackpulse/internal/analyzer"
	"github.com/zombar/feedbackpulse/internal/config"
	"github.com/zombar/feedbackpulse/internal/database"
	"github.com/zombar/feedbackpulse/internal/gemini"
	"github.com/zombar/feedbackpulse/internal/llm"
	"github.com/zombar/feedbackpulse/internal/mongostore"
	"github.com/zombar/feedbackpulse/internal/ollama"
	"github.com/zombar/feedbackpulse/internal/openai"
	"github.com/zombar/feedbackpulse/pkg/metrics"
)

// Store is an opened, migrated store plus its shutdown hook
type Store struct {
	database.Store
	// SQL is set for the SQL backends, for pool metrics
	SQL   *database.DB
	close func(ctx context.Context) error
}

// Close releases the store's connections
func (s *Store) Close(ctx context.Context) error {
	return s.close(ctx)
}

// OpenStore connects to the configured backend and prepares its schema
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres, config.BackendSQLite:
		db, err := database.New(cfg.StoreBackend, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("sql store ready", "driver", cfg.StoreBackend)
		return &Store{
			Store: db,
			SQL:   db,
			close: func(context.Context) error { return db.Close() },
		}, nil

	case config.BackendMongo:
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			store.Close(ctx)
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
		logger.Info("mongo store ready", "database", cfg.MongoDB)
		return &Store{Store: store, close: store.Close}, nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// Providers builds the sentiment providers in fallback order: OpenAI, Gemini,
// then Ollama. Providers without credentials are left out.
func Providers(cfg *config.Config, logger *slog.Logger) []analyzer.Provider {
	var providers []analyzer.Provider

	if client, err := openai.New(openai.Config{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel, RPS: cfg.ProviderRPS}); err == nil {
		providers = append(providers, client)
	} else if !errors.Is(err, llm.ErrNotConfigured) {
		logger.Warn("openai provider disabled", "error", err)
	}

	if client, err := gemini.New(gemini.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel, Timeout: cfg.ProviderTimeout, RPS: cfg.ProviderRPS}); err == nil {
		providers = append(providers, client)
	} else if !errors.Is(err, llm.ErrNotConfigured) {
		logger.Warn("gemini provider disabled", "error", err)
	}

	if cfg.UseOllama {
		client, err := ollama.New(cfg.OllamaURL, cfg.OllamaModel)
		if err != nil {
			logger.Warn("failed to initialize Ollama client, continuing without it",
				"error", err,
				"ollama_url", cfg.OllamaURL,
			)
		} else {
			providers = append(providers, client)
		}
	}

	return providers
}

// NewAnalyzer builds the response analyzer from configuration
func NewAnalyzer(cfg *config.Config, logger *slog.Logger, m *metrics.BusinessMetrics) (*analyzer.Analyzer, error) {
	lexicon := analyzer.DefaultLexicon()
	if cfg.LexiconFile != "" {
		var err error
		lexicon, err = analyzer.LoadLexicon(cfg.LexiconFile)
		if err != nil {
			return nil, err
		}
		logger.Info("lexicon loaded", "path", cfg.LexiconFile)
	}

	a := analyzer.NewWithConfig(analyzer.Config{
		Lexicon:         lexicon,
		Providers:       Providers(cfg, logger),
		ProviderTimeout: cfg.ProviderTimeout,
		Logger:          logger,
		Metrics:         m,
	})
	logger.Info("analyzer initialized", "providers", a.Providers())
	return a, nil
}
