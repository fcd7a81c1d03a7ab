// Package gemini completes prompts with Google's Gemini models.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/becomeliminal/nim-orchestrator/llm"
)

const DefaultModel = "gemini-2.5-flash"

func init() {
	llm.Register("gemini", func(cfg llm.Config) (llm.Completer, error) {
		return New(context.Background(), cfg)
	})
}

// Client implements llm.StructuredCompleter.
type Client struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// New creates a client on the Gemini API backend. Without an API key the
// SDK reads GOOGLE_API_KEY / GEMINI_API_KEY.
func New(ctx context.Context, cfg llm.Config) (*Client, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: client, model: model, maxTokens: int32(cfg.MaxTokens)}, nil
}

// Complete generates a reply to prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, c.config())
}

// CompleteJSON requests application/json output constrained by schema.
func (c *Client) CompleteJSON(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	cfg := c.config()
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseJsonSchema = schema
	return c.generate(ctx, prompt, cfg)
}

func (c *Client) config() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if c.maxTokens > 0 {
		cfg.MaxOutputTokens = c.maxTokens
	}
	return cfg
}

func (c *Client) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
