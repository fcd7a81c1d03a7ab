//go:build onnx

package main

import (
	"os"

	"github.com/becomeliminal/nim-orchestrator/config"
	"github.com/becomeliminal/nim-orchestrator/memory"
	"github.com/becomeliminal/nim-orchestrator/memory/embedder/onnx"
)

func newONNXEmbedder(cfg config.EmbeddingConfig) (memory.Embedder, func() error, error) {
	emb, err := onnx.New(onnx.Config{
		ModelPath:     cfg.ModelPath,
		TokenizerPath: cfg.TokenizerPath,
		LibraryPath:   os.Getenv("ONNXRUNTIME_LIB"),
		Dimensions:    cfg.Dimensions,
	})
	if err != nil {
		return nil, nil, err
	}
	return emb, emb.Close, nil
}
