//go:build !onnx

package main

import (
	"errors"

	"github.com/becomeliminal/nim-orchestrator/config"
	"github.com/becomeliminal/nim-orchestrator/memory"
)

func newONNXEmbedder(config.EmbeddingConfig) (memory.Embedder, func() error, error) {
	return nil, nil, errors.New("onnx embedder not available: rebuild with -tags onnx")
}
