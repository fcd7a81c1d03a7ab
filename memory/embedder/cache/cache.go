// Package cache memoises embeddings in a ristretto cache.
//
// Requests are remembered verbatim and the same phrasing is often recalled
// again, so repeated texts skip the embedding provider entirely.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/nim-orchestrator/memory"
)

// Config sizes the cache.
type Config struct {
	// MaxBytes bounds the total size of cached vectors. Default: 64 MiB.
	MaxBytes int64

	// NumCounters should be about 10x the expected number of entries.
	// Default: 100000.
	NumCounters int64
}

// Embedder caches the vectors produced by an inner Embedder.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New wraps inner with a cache.
func New(inner memory.Embedder, cfg Config) (*Embedder, error) {
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 64 << 20
	}
	if cfg.NumCounters == 0 {
		cfg.NumCounters = 100_000
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: c}, nil
}

// Embed returns a cached vector or computes and caches a new one.
// Callers receive a private copy.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return clone(v.([]float32)), nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, clone(vec), int64(len(vec)*4))
	e.cache.Wait()
	return vec, nil
}

// Dimensions returns the inner embedder's width.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Close stops the cache's background goroutines.
func (e *Embedder) Close() {
	e.cache.Close()
}

func clone(v []float32) []float32 {
	return append([]float32(nil), v...)
}
