package memory_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/becomeliminal/nim-orchestrator/core"
	"github.com/becomeliminal/nim-orchestrator/memory"
	"github.com/becomeliminal/nim-orchestrator/memory/embedder/mock"
)

// TableEmbedder returns fixed vectors per text and counts calls.
type TableEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
	err     error
}

func NewTableEmbedder(vectors map[string][]float32) *TableEmbedder {
	return &TableEmbedder{vectors: vectors}
}

func (e *TableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0}, nil
}

func (e *TableEmbedder) Dimensions() int { return 2 }

func (e *TableEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// MemBackend is an in-memory Backend with optional write failures.
type MemBackend struct {
	mu      sync.Mutex
	records []*memory.Record
	failErr error
	// commitThenFail stores the record and still reports failErr, like an
	// INSERT that lands just before the deadline fires.
	commitThenFail bool
	closed         bool
}

func (b *MemBackend) Load(ctx context.Context) ([]*memory.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*memory.Record(nil), b.records...), nil
}

func (b *MemBackend) Append(ctx context.Context, rec *memory.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec.Index != len(b.records) {
		return fmt.Errorf("index %d already taken", rec.Index)
	}
	if b.failErr != nil && !b.commitThenFail {
		return b.failErr
	}
	b.records = append(b.records, rec)
	return b.failErr
}

func (b *MemBackend) Close() error {
	b.closed = true
	return nil
}

func openStore(t *testing.T, emb memory.Embedder, backend memory.Backend, opts ...memory.StoreOption) *memory.Store {
	t.Helper()
	store, err := memory.Open(context.Background(), emb, backend, opts...)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return store
}

func TestStore_RecallEmptySkipsEmbedder(t *testing.T) {
	emb := NewTableEmbedder(nil)
	store := openStore(t, emb, nil)

	got, err := store.Recall(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
	if emb.Calls() != 0 {
		t.Errorf("expected no embedding calls, got %d", emb.Calls())
	}
}

func TestStore_RecallZeroKSkipsEmbedder(t *testing.T) {
	emb := NewTableEmbedder(nil)
	store := openStore(t, emb, nil)
	if err := store.Remember(context.Background(), "a"); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	before := emb.Calls()

	got, err := store.Recall(context.Background(), "a", 0)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != 0 || emb.Calls() != before {
		t.Errorf("expected empty result without embedding, got %v (%d calls)", got, emb.Calls()-before)
	}
}

func TestStore_RecallOrderAndTies(t *testing.T) {
	ctx := context.Background()
	emb := NewTableEmbedder(map[string][]float32{
		"origin": {0, 0},
		"first":  {1, 0},
		"second": {1, 0},
		"far":    {5, 5},
		"query":  {1, 0},
	})
	store := openStore(t, emb, nil)

	for _, text := range []string{"origin", "first", "second", "far"} {
		if err := store.Remember(ctx, text); err != nil {
			t.Fatalf("Remember(%q): %v", text, err)
		}
	}

	got, err := store.Recall(ctx, "query", 3)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	want := []string{"first", "second", "origin"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Recall: got %v, want %v", got, want)
	}

	all, err := store.Recall(ctx, "query", 10)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected k capped at 4 records, got %d", len(all))
	}
}

func TestStore_RememberIncrementsBothCounts(t *testing.T) {
	ctx := context.Background()
	backend := &MemBackend{}
	store := openStore(t, mock.New(), backend)

	for i, text := range []string{"one", "two", "three"} {
		if err := store.Remember(ctx, text); err != nil {
			t.Fatalf("Remember: %v", err)
		}
		if store.Len() != i+1 {
			t.Errorf("expected %d records, got %d", i+1, store.Len())
		}
	}

	records, _ := backend.Load(ctx)
	for i, rec := range records {
		if rec.Index != i {
			t.Errorf("record %d has index %d", i, rec.Index)
		}
		if len(rec.Vector) != 384 {
			t.Errorf("record %d has %d dims", i, len(rec.Vector))
		}
	}
}

func TestStore_PersistenceFailureLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	backend := &MemBackend{}
	store := openStore(t, mock.New(), backend)

	if err := store.Remember(ctx, "kept"); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	backend.failErr = errors.New("disk full")
	err := store.Remember(ctx, "lost")
	var perr *core.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 record after failed write, got %d", store.Len())
	}

	backend.failErr = nil
	if err := store.Remember(ctx, "next"); err != nil {
		t.Fatalf("Remember after recovery: %v", err)
	}
	records, _ := backend.Load(ctx)
	if len(records) != 2 || records[1].Index != 1 {
		t.Errorf("expected contiguous indexes after recovery, got %d records", len(records))
	}
}

func TestStore_CommittedFailureIsAdoptedOnNextWrite(t *testing.T) {
	ctx := context.Background()
	backend := &MemBackend{}
	store := openStore(t, mock.New(), backend)

	backend.failErr = context.DeadlineExceeded
	backend.commitThenFail = true
	if err := store.Remember(ctx, "landed anyway"); err == nil {
		t.Fatal("expected the append error to surface")
	}
	if store.Len() != 0 {
		t.Fatalf("expected the failed write to stay out of the index, got %d", store.Len())
	}

	backend.failErr = nil
	backend.commitThenFail = false
	if err := store.Remember(ctx, "next"); err != nil {
		t.Fatalf("Remember after committed failure: %v", err)
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 records, got %d", store.Len())
	}
	records, _ := backend.Load(ctx)
	if len(records) != 2 || records[1].Index != 1 || records[1].Text != "next" {
		t.Fatalf("expected contiguous records, got %d", len(records))
	}

	got, err := store.Recall(ctx, "landed anyway", 1)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != 1 || got[0] != "landed anyway" {
		t.Errorf("expected the adopted record to be recallable, got %v", got)
	}
}

func TestStore_EmbeddingFailureIsNotPersistenceFailure(t *testing.T) {
	emb := NewTableEmbedder(nil)
	emb.err = errors.New("model crashed")
	store := openStore(t, emb, &MemBackend{})

	err := store.Remember(context.Background(), "x")
	var eerr *core.EmbeddingError
	if !errors.As(err, &eerr) {
		t.Fatalf("expected EmbeddingError, got %v", err)
	}
	var perr *core.PersistenceError
	if errors.As(err, &perr) {
		t.Error("embedding failure must not be reported as persistence failure")
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d", store.Len())
	}
}

func TestStore_WrongDimensionsRejected(t *testing.T) {
	emb := NewTableEmbedder(map[string][]float32{"bad": {1, 2, 3}})
	store := openStore(t, emb, nil)

	err := store.Remember(context.Background(), "bad")
	var eerr *core.EmbeddingError
	if !errors.As(err, &eerr) {
		t.Fatalf("expected EmbeddingError, got %v", err)
	}
}

type slowEmbedder struct{}

func (slowEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowEmbedder) Dimensions() int { return 2 }

func TestStore_EmbedTimeout(t *testing.T) {
	store := openStore(t, slowEmbedder{}, nil, memory.WithEmbedTimeout(10*time.Millisecond))

	err := store.Remember(context.Background(), "x")
	if !core.IsTimeout(err) {
		t.Fatalf("expected upstream timeout, got %v", err)
	}
	if !core.IsRetryable(err) {
		t.Error("expected timeout to be retryable")
	}
}

func TestStore_ReloadFromBackend(t *testing.T) {
	ctx := context.Background()
	backend := &MemBackend{}
	emb := mock.New()

	store := openStore(t, emb, backend)
	for _, text := range []string{"alpha", "beta"} {
		if err := store.Remember(ctx, text); err != nil {
			t.Fatalf("Remember: %v", err)
		}
	}

	reopened := openStore(t, emb, backend)
	if reopened.Len() != 2 {
		t.Fatalf("expected 2 records after reload, got %d", reopened.Len())
	}
	got, err := reopened.Recall(ctx, "beta", 1)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != 1 || got[0] != "beta" {
		t.Errorf("expected exact match first, got %v", got)
	}

	if err := reopened.Close(); err != nil || !backend.closed {
		t.Errorf("expected backend closed, err=%v", err)
	}
}

func TestStore_OpenRejectsGaps(t *testing.T) {
	backend := &MemBackend{records: []*memory.Record{
		{Index: 0, Text: "a", Vector: make([]float32, 384)},
		{Index: 2, Text: "c", Vector: make([]float32, 384)},
	}}
	_, err := memory.Open(context.Background(), mock.New(), backend)
	var perr *core.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}

func TestStore_ConcurrentRemember(t *testing.T) {
	ctx := context.Background()
	backend := &MemBackend{}
	store := openStore(t, mock.New(), backend)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.Remember(ctx, string(rune('a'+i))); err != nil {
				t.Errorf("Remember: %v", err)
			}
			if _, err := store.Recall(ctx, "a", 3); err != nil {
				t.Errorf("Recall: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if store.Len() != 20 {
		t.Fatalf("expected 20 records, got %d", store.Len())
	}
	records, _ := backend.Load(ctx)
	for i, rec := range records {
		if rec.Index != i {
			t.Fatalf("record %d persisted with index %d", i, rec.Index)
		}
	}
}
