// Package chromem adapts chromem-go embedding functions to memory.Embedder.
package chromem

import (
	"context"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-orchestrator/core"
)

// Embedder wraps a chromem.EmbeddingFunc with a fixed width.
type Embedder struct {
	fn         chromem.EmbeddingFunc
	dimensions int
}

// New wraps any chromem embedding function.
func New(fn chromem.EmbeddingFunc, dimensions int) *Embedder {
	return &Embedder{fn: fn, dimensions: dimensions}
}

// NewOpenAI embeds with OpenAI's hosted models, e.g. "text-embedding-3-small" (1536 dims).
func NewOpenAI(apiKey, model string, dimensions int) *Embedder {
	return New(chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI(model)), dimensions)
}

// NewOpenAICompat embeds with any server speaking the OpenAI embeddings API.
func NewOpenAICompat(baseURL, apiKey, model string, dimensions int) *Embedder {
	return New(chromem.NewEmbeddingFuncOpenAICompat(baseURL, apiKey, model, nil), dimensions)
}

// NewOllama embeds through chromem's Ollama client. baseURL includes the
// "/api" suffix, e.g. "http://localhost:11434/api".
func NewOllama(model, baseURL string, dimensions int) *Embedder {
	return New(chromem.NewEmbeddingFuncOllama(model, baseURL), dimensions)
}

// Embed calls the wrapped function.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.fn(ctx, text)
	if err != nil {
		return nil, core.Upstream("embedding", err)
	}
	return vec, nil
}

// Dimensions returns the configured embedding width.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
