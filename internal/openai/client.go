package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/zombar/feedbackpulse/internal/llm"
)

const (
	DefaultModel = "gpt-4o-mini"

	// Confidence is the fixed confidence reported for OpenAI scores
	Confidence = 0.85
)

// Config configures the OpenAI sentiment provider
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	RPS     float64
}

// Client scores sentiment through the OpenAI chat completions API
type Client struct {
	client  openai.Client
	model   string
	limiter *rate.Limiter
}

// New creates a new OpenAI provider. The SDK's own retries are disabled:
// each call is a single attempt so the analyzer can move on to the next provider.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai: %w", llm.ErrNotConfigured)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client:  openai.NewClient(opts...),
		model:   model,
		limiter: llm.NewLimiter(cfg.RPS),
	}, nil
}

// Name identifies the provider in logs and metrics
func (c *Client) Name() string {
	return "openai"
}

// ScoreSentiment asks the model for a 0-1 polarity score
func (c *Client) ScoreSentiment(ctx context.Context, text string) (float64, float64, error) {
	if !c.limiter.Allow() {
		return 0, 0, llm.ErrRateLimited
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a sentiment analysis engine for customer feedback surveys. Reply with JSON only."),
			openai.UserMessage(llm.SentimentPrompt(text)),
		},
		Model: openai.ChatModel(c.model),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, 0, fmt.Errorf("no response choices returned from OpenAI")
	}

	score, err := llm.ParseSentimentScore(resp.Choices[0].Message.Content)
	if err != nil {
		return 0, 0, err
	}
	return score, Confidence, nil
}
