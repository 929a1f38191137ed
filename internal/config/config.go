package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMongo    = "mongo"
)

// Config holds service settings. Environment variables set the defaults and
// command-line flags override them.
type Config struct {
	Port     string
	LogLevel string

	StoreBackend string
	DatabaseURL  string
	MongoURI     string
	MongoDB      string

	// RedisAddr enables the task queue and cross-instance dashboard fan-out
	RedisAddr string

	JWTSecret      string
	AllowedOrigins []string

	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string
	OllamaURL    string
	OllamaModel  string
	UseOllama    bool

	ProviderTimeout     time.Duration
	ProviderRPS         float64
	AnalysisConcurrency int
	LexiconFile         string

	OTelEnabled bool
}

// Load reads configuration from the environment and then args
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("feedbackpulse", flag.ContinueOnError)

	cfg := &Config{}
	var origins string

	fs.StringVar(&cfg.Port, "port", getEnv("PORT", "8080"), "Server port (env: PORT)")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level (env: LOG_LEVEL)")

	fs.StringVar(&cfg.StoreBackend, "store", getEnv("STORE_BACKEND", BackendSQLite), "Store backend: postgres, sqlite or mongo (env: STORE_BACKEND)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", getEnv("DATABASE_URL", "feedbackpulse.db"), "SQL connection string or sqlite path (env: DATABASE_URL)")
	fs.StringVar(&cfg.MongoURI, "mongo-uri", getEnv("MONGO_URI", ""), "MongoDB connection URI (env: MONGO_URI)")
	fs.StringVar(&cfg.MongoDB, "mongo-db", getEnv("MONGO_DB", "feedbackpulse"), "MongoDB database name (env: MONGO_DB)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", ""), "Redis address for queue and fan-out (env: REDIS_ADDR)")

	fs.StringVar(&cfg.JWTSecret, "jwt-secret", getEnv("JWT_SECRET", ""), "HS256 secret for dashboard tokens (env: JWT_SECRET)")
	fs.StringVar(&origins, "allowed-origins", getEnv("ALLOWED_ORIGINS", "*"), "Comma separated CORS origins (env: ALLOWED_ORIGINS)")

	fs.StringVar(&cfg.OpenAIAPIKey, "openai-api-key", getEnv("OPENAI_API_KEY", ""), "OpenAI API key (env: OPENAI_API_KEY)")
	fs.StringVar(&cfg.OpenAIModel, "openai-model", getEnv("OPENAI_MODEL", "gpt-4o-mini"), "OpenAI model (env: OPENAI_MODEL)")
	fs.StringVar(&cfg.GeminiAPIKey, "gemini-api-key", getEnv("GEMINI_API_KEY", ""), "Gemini API key (env: GEMINI_API_KEY)")
	fs.StringVar(&cfg.GeminiModel, "gemini-model", getEnv("GEMINI_MODEL", "gemini-1.5-flash"), "Gemini model (env: GEMINI_MODEL)")
	fs.StringVar(&cfg.OllamaURL, "ollama-url", getEnv("OLLAMA_URL", "http://localhost:11434"), "Ollama API URL (env: OLLAMA_URL)")
	fs.StringVar(&cfg.OllamaModel, "ollama-model", getEnv("OLLAMA_MODEL", "llama3.2"), "Ollama model (env: OLLAMA_MODEL)")
	fs.BoolVar(&cfg.UseOllama, "use-ollama", getEnvBool("USE_OLLAMA", false), "Enable the Ollama sentiment provider (env: USE_OLLAMA)")

	fs.DurationVar(&cfg.ProviderTimeout, "provider-timeout", getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second), "Per-attempt provider timeout (env: PROVIDER_TIMEOUT)")
	fs.Float64Var(&cfg.ProviderRPS, "provider-rps", getEnvFloat("PROVIDER_RPS", 5), "Requests per second allowed per provider, 0 for unlimited (env: PROVIDER_RPS)")
	fs.IntVar(&cfg.AnalysisConcurrency, "analysis-concurrency", getEnvInt("ANALYSIS_CONCURRENCY", 4), "Parallel field analyses per metrics computation (env: ANALYSIS_CONCURRENCY)")
	fs.StringVar(&cfg.LexiconFile, "lexicon", getEnv("LEXICON_FILE", ""), "YAML keyword table override (env: LEXICON_FILE)")

	fs.BoolVar(&cfg.OTelEnabled, "otel", getEnvBool("OTEL_ENABLED", false), "Export traces over OTLP (env: OTEL_ENABLED)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.AllowedOrigins = splitList(origins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later at startup
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend", c.StoreBackend)
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("provider timeout must be positive, got %s", c.ProviderTimeout)
	}
	if c.ProviderRPS < 0 {
		return fmt.Errorf("provider rps must not be negative")
	}
	if c.AnalysisConcurrency < 1 {
		return fmt.Errorf("analysis concurrency must be at least 1, got %d", c.AnalysisConcurrency)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
