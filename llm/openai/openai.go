// Package openai completes prompts with the OpenAI Responses API or any
// compatible endpoint.
package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"github.com/becomeliminal/nim-orchestrator/llm"
)

const DefaultModel = "gpt-4o-mini"

func init() {
	llm.Register("openai", func(cfg llm.Config) (llm.Completer, error) {
		return New(cfg)
	})
}

// Client implements llm.StructuredCompleter.
type Client struct {
	client    *openai.Client
	model     string
	maxTokens int64
}

// New creates a client. Without an API key the SDK reads OPENAI_API_KEY.
func New(cfg llm.Config) (*Client, error) {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: &client, model: model, maxTokens: cfg.MaxTokens}, nil
}

// Complete sends prompt as the response input.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.create(ctx, c.params(prompt))
}

// CompleteJSON requests a JSON schema constrained reply.
func (c *Client) CompleteJSON(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	params := c.params(prompt)
	params.Text = responses.ResponseTextConfigParam{
		Format: responses.ResponseFormatTextConfigUnionParam{
			OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
				Name:   "reply",
				Schema: schema,
				Strict: openai.Bool(false),
			},
		},
	}
	return c.create(ctx, params)
}

func (c *Client) params(prompt string) responses.ResponseNewParams {
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(prompt),
		},
	}
	if c.maxTokens > 0 {
		params.MaxOutputTokens = openai.Int(c.maxTokens)
	}
	return params
}

func (c *Client) create(ctx context.Context, params responses.ResponseNewParams) (string, error) {
	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai responses: %w", err)
	}
	return strings.TrimSpace(resp.OutputText()), nil
}
