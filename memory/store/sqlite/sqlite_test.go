package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/becomeliminal/nim-orchestrator/memory"
	"github.com/becomeliminal/nim-orchestrator/memory/embedder/mock"
)

func TestBackend_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "memory.db")

	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i, text := range []string{"first", "second"} {
		if err := b.Append(ctx, memory.NewRecord(i, text, []float32{float32(i), 0.5})); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	b.Close()

	b, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()

	records, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].Text != "second" || records[1].Index != 1 || records[1].Vector[0] != 1 {
		t.Errorf("unexpected record %+v", records[1])
	}
	if records[0].CreatedAt.IsZero() {
		t.Error("expected created_at to round-trip")
	}
}

func TestBackend_DuplicateIndexRejected(t *testing.T) {
	ctx := context.Background()
	b, err := Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	if err := b.Append(ctx, memory.NewRecord(0, "a", []float32{1})); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := b.Append(ctx, memory.NewRecord(0, "b", []float32{1})); err == nil {
		t.Fatal("expected duplicate index to fail")
	}
	records, _ := b.Load(ctx)
	if len(records) != 1 || records[0].Text != "a" {
		t.Errorf("failed insert must leave nothing behind, got %d records", len(records))
	}
}

func TestBackend_StoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.db")
	emb := mock.New()

	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store, err := memory.Open(ctx, emb, b)
	if err != nil {
		t.Fatalf("memory.Open: %v", err)
	}
	for _, text := range []string{"my name is Ada", "nice to meet you Ada"} {
		if err := store.Remember(ctx, text); err != nil {
			t.Fatalf("Remember: %v", err)
		}
	}
	store.Close()

	b, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	store, err = memory.Open(ctx, emb, b)
	if err != nil {
		t.Fatalf("memory.Open: %v", err)
	}
	defer store.Close()

	got, err := store.Recall(ctx, "my name is Ada", 1)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != 1 || got[0] != "my name is Ada" {
		t.Errorf("unexpected recall %v", got)
	}
}
