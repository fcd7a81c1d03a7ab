package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/becomeliminal/nim-orchestrator/memory/embedder/mock"
)

func TestEmbedder_Deterministic(t *testing.T) {
	emb := mock.New()
	a, _ := emb.Embed(context.Background(), "hello")
	b, _ := emb.Embed(context.Background(), "hello")
	c, _ := emb.Embed(context.Background(), "goodbye")

	if len(a) != 384 {
		t.Fatalf("expected 384 dims, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at %d", i)
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical embeddings")
	}

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-4 {
		t.Errorf("expected unit vector, got norm %f", norm)
	}
	if emb.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", emb.Calls())
	}
}
