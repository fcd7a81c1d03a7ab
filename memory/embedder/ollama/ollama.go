// Package ollama embeds text with a model served by Ollama's /api/embed endpoint.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/becomeliminal/nim-orchestrator/core"
)

// DefaultModel is a 384-dimension MiniLM served by Ollama.
const DefaultModel = "all-minilm"

// Embedder calls Ollama for one embedding per text.
type Embedder struct {
	client     *api.Client
	model      string
	dimensions int
}

// New creates an Ollama embedder. An empty baseURL falls back to OLLAMA_HOST.
func New(baseURL, model string, dimensions int, httpClient *http.Client) (*Embedder, error) {
	if model == "" {
		model = DefaultModel
	}
	if dimensions == 0 {
		dimensions = 384
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var client *api.Client
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client = api.NewClient(u, httpClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	return &Embedder{client: client, model: model, dimensions: dimensions}, nil
}

// Embed requests a single embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, core.Upstream("embedding", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings for model %s", e.model)
	}
	return resp.Embeddings[0], nil
}

// Dimensions returns the configured embedding width.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
