package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_BACKEND", "DATABASE_URL", "REDIS_ADDR", "USE_OLLAMA", "PROVIDER_TIMEOUT", "ANALYSIS_CONCURRENCY", "ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, "feedbackpulse.db", cfg.DatabaseURL)
	assert.Empty(t, cfg.RedisAddr)
	assert.False(t, cfg.UseOllama)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 4, cfg.AnalysisConcurrency)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/feedback")
	t.Setenv("USE_OLLAMA", "yes")
	t.Setenv("PROVIDER_TIMEOUT", "3s")
	t.Setenv("PROVIDER_RPS", "2.5")
	t.Setenv("ANALYSIS_CONCURRENCY", "8")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.True(t, cfg.UseOllama)
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 2.5, cfg.ProviderRPS)
	assert.Equal(t, 8, cfg.AnalysisConcurrency)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ANALYSIS_CONCURRENCY", "8")

	cfg, err := Load([]string{"-port", "7070", "-analysis-concurrency", "2"})
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, 2, cfg.AnalysisConcurrency)
}

func TestMalformedEnvironmentFallsBack(t *testing.T) {
	t.Setenv("PROVIDER_TIMEOUT", "soon")
	t.Setenv("ANALYSIS_CONCURRENCY", "many")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 4, cfg.AnalysisConcurrency)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"unknown backend", map[string]string{"STORE_BACKEND": "cassandra"}, nil},
		{"mongo without uri", map[string]string{"STORE_BACKEND": "mongo", "MONGO_URI": ""}, nil},
		{"zero timeout", nil, []string{"-provider-timeout", "0s"}},
		{"negative rps", nil, []string{"-provider-rps", "-1"}},
		{"zero concurrency", nil, []string{"-analysis-concurrency", "0"}},
		{"unknown flag", nil, []string{"-nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.args)
			assert.Error(t, err)
		})
	}
}
