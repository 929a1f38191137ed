package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/zombar/feedbackpulse/internal/llm"
)

const (
	DefaultModel   = "gpt-oss:20b"
	DefaultTimeout = 30 * time.Second

	// Confidence is the fixed confidence reported for Ollama scores
	Confidence = 0.80
)

// Client wraps the Ollama API client
type Client struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

// New creates a new Ollama client
func New(ollamaURL, model string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	if model == "" {
		model = DefaultModel
	}

	baseURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid Ollama URL: %q", ollamaURL)
	}

	return &Client{
		client:  api.NewClient(baseURL, http.DefaultClient),
		model:   model,
		timeout: DefaultTimeout,
	}, nil
}

// Name identifies the provider in logs and metrics
func (c *Client) Name() string {
	return "ollama"
}

// GenerateResponse generates a response from the LLM
func (c *Client) GenerateResponse(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: new(bool), // false
		Format: json.RawMessage(`"json"`),
	}

	var response strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		response.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	result := strings.TrimSpace(response.String())
	slog.Debug("ollama response received", "model", c.model, "chars", len(result))
	return result, nil
}

// ScoreSentiment asks the model for a 0-1 polarity score
func (c *Client) ScoreSentiment(ctx context.Context, text string) (float64, float64, error) {
	response, err := c.GenerateResponse(ctx, llm.SentimentPrompt(text))
	if err != nil {
		return 0, 0, err
	}
	score, err := llm.ParseSentimentScore(response)
	if err != nil {
		return 0, 0, err
	}
	return score, Confidence, nil
}
