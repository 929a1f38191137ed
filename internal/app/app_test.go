package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/feedbackpulse/internal/config"
	"github.com/zombar/feedbackpulse/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig() *config.Config {
	return &config.Config{
		StoreBackend:        config.BackendSQLite,
		DatabaseURL:         ":memory:",
		ProviderTimeout:     time.Second,
		AnalysisConcurrency: 1,
	}
}

func TestOpenStoreSQLite(t *testing.T) {
	cfg := baseConfig()
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "feedback.db")

	ctx := context.Background()
	store, err := OpenStore(ctx, cfg, quietLogger())
	require.NoError(t, err)
	defer store.Close(ctx)

	require.NotNil(t, store.SQL)
	require.NoError(t, store.Ping(ctx))

	survey := &models.Survey{Title: "Onboarding", Status: models.SurveyStatusPublished}
	require.NoError(t, store.CreateSurvey(ctx, survey))

	got, err := store.GetSurvey(ctx, survey.ID)
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", got.Title)
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	cfg := baseConfig()
	cfg.StoreBackend = "cassandra"

	_, err := OpenStore(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestProvidersOrder(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(cfg *config.Config)
		expected []string
	}{
		{"none configured", func(cfg *config.Config) {}, nil},
		{"openai only", func(cfg *config.Config) { cfg.OpenAIAPIKey = "sk-test" }, []string{"openai"}},
		{"all", func(cfg *config.Config) {
			cfg.OpenAIAPIKey = "sk-test"
			cfg.GeminiAPIKey = "g-test"
			cfg.UseOllama = true
			cfg.OllamaURL = "http://localhost:11434"
		}, []string{"openai", "gemini", "ollama"}},
		{"gemini and ollama", func(cfg *config.Config) {
			cfg.GeminiAPIKey = "g-test"
			cfg.UseOllama = true
		}, []string{"gemini", "ollama"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.setup(cfg)

			var names []string
			for _, p := range Providers(cfg, quietLogger()) {
				names = append(names, p.Name())
			}
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestNewAnalyzerWithLexiconFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("positive: [stellar]\n"), 0o600))

	cfg := baseConfig()
	cfg.LexiconFile = path

	a, err := NewAnalyzer(cfg, quietLogger(), nil)
	require.NoError(t, err)

	result := a.Analyze(context.Background(), "stellar onboarding experience")
	assert.Equal(t, 0.6, result.Sentiment.Score)
}

func TestNewAnalyzerMissingLexicon(t *testing.T) {
	cfg := baseConfig()
	cfg.LexiconFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewAnalyzer(cfg, quietLogger(), nil)
	assert.Error(t, err)
}
