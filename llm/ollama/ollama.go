// Package ollama completes prompts with a local or remote Ollama server.
package ollama

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"

	"github.com/becomeliminal/nim-orchestrator/llm"
)

// DefaultModel is the instruction-tuned Gemma build the assistant was tuned against.
const DefaultModel = "gemma3:12b-it-q4_K_M"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	llm.Register("ollama", func(cfg llm.Config) (llm.Completer, error) {
		return New(cfg)
	})
}

// Client implements llm.StructuredCompleter on the Ollama chat API.
type Client struct {
	client  *api.Client
	model   string
	options map[string]any
}

// New creates a client. An empty BaseURL falls back to OLLAMA_HOST.
func New(cfg llm.Config) (*Client, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	var client *api.Client
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		httpClient := cfg.HTTPClient
		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		client = api.NewClient(u, httpClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	log.Printf("[LLM] Ollama client initialized (model=%s, base_url=%s)", model, cfg.BaseURL)
	return &Client{client: client, model: model, options: cfg.Options}, nil
}

// Complete sends prompt as a single user message.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, prompt, nil)
}

// CompleteJSON constrains the reply to schema using Ollama's format field.
func (c *Client) CompleteJSON(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	format, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}
	return c.chat(ctx, prompt, format)
}

func (c *Client) chat(ctx context.Context, prompt string, format []byte) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: []api.Message{{Role: "user", Content: prompt}},
		Options:  c.options,
		Stream:   &stream,
	}
	if format != nil {
		req.Format = format
	}

	var sb strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}
