package chromem_test

import (
	"context"
	"errors"
	"testing"

	"github.com/becomeliminal/nim-orchestrator/core"
	"github.com/becomeliminal/nim-orchestrator/memory/embedder/chromem"
)

func TestEmbedder_WrapsFunc(t *testing.T) {
	emb := chromem.New(func(ctx context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text)), 0}, nil
	}, 2)

	vec, err := emb.Embed(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vec[0] != 3 || emb.Dimensions() != 2 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestEmbedder_FailureIsUpstream(t *testing.T) {
	emb := chromem.New(func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("connection refused")
	}, 2)

	_, err := emb.Embed(context.Background(), "abc")
	if !core.IsRetryable(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
