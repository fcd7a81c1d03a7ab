package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/becomeliminal/nim-orchestrator/core"
)

// Store is the in-memory vector index plus its text list, mirrored to a
// durable Backend.
//
// Concurrency:
//   - Remember calls are serialised by writeMu for their whole duration.
//   - The index and texts only change under mu's write lock, and only after
//     the Backend has accepted the record.
//   - Recall embeds outside any lock and holds the read lock for the scan.
type Store struct {
	embedder     Embedder
	backend      Backend
	embedTimeout time.Duration

	writeMu sync.Mutex
	// unsynced is set when an Append failed. The backend may still have
	// committed the record, so the next write reconciles first.
	unsynced bool

	mu    sync.RWMutex
	index *flatIndex
	texts []string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithEmbedTimeout bounds every embedding call. Zero disables the bound.
func WithEmbedTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.embedTimeout = d
	}
}

// Open builds a Store and replays every record held by backend.
// A nil backend gives a purely in-memory store.
func Open(ctx context.Context, embedder Embedder, backend Backend, opts ...StoreOption) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("memory: embedder is required")
	}
	s := &Store{
		embedder: embedder,
		backend:  backend,
		index:    newFlatIndex(embedder.Dimensions()),
	}
	for _, opt := range opts {
		opt(s)
	}

	if backend == nil {
		return s, nil
	}

	records, err := backend.Load(ctx)
	if err != nil {
		return nil, &core.PersistenceError{Op: "load", Err: err}
	}
	for i, rec := range records {
		if rec.Index != i {
			return nil, &core.PersistenceError{Op: "load", Err: fmt.Errorf("record %d found at position %d", rec.Index, i)}
		}
		if err := s.index.add(rec.Vector); err != nil {
			return nil, &core.PersistenceError{Op: "load", Err: fmt.Errorf("record %d: %w", rec.Index, err)}
		}
		s.texts = append(s.texts, rec.Text)
	}
	log.Printf("[MEMORY] Loaded %d records", len(records))
	return s, nil
}

// Remember embeds text, persists it, then appends it to the index.
func (s *Store) Remember(ctx context.Context, text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.unsynced {
		if err := s.resync(ctx); err != nil {
			return err
		}
	}

	vec, err := s.embed(ctx, text)
	if err != nil {
		return err
	}

	// Only writers mutate texts, and writeMu is held.
	rec := NewRecord(len(s.texts), text, vec)

	if s.backend != nil {
		if err := s.backend.Append(ctx, rec); err != nil {
			log.Printf("[MEMORY] Failed to persist %s: %v", rec, err)
			s.unsynced = true
			return &core.PersistenceError{Op: "append", Err: err}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.add(vec); err != nil {
		// embed already checked the width, so this is unreachable in practice.
		return &core.EmbeddingError{Err: err}
	}
	s.texts = append(s.texts, text)

	log.Printf("[MEMORY] Stored %s", rec)
	return nil
}

// resync adopts records the backend committed despite reporting a failed
// Append. Caller holds writeMu.
func (s *Store) resync(ctx context.Context) error {
	records, err := s.backend.Load(ctx)
	if err != nil {
		return &core.PersistenceError{Op: "load", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records[min(len(s.texts), len(records)):] {
		if rec.Index != len(s.texts) {
			return &core.PersistenceError{Op: "load", Err: fmt.Errorf("record %d found at position %d", rec.Index, len(s.texts))}
		}
		if err := s.index.add(rec.Vector); err != nil {
			return &core.PersistenceError{Op: "load", Err: fmt.Errorf("record %d: %w", rec.Index, err)}
		}
		s.texts = append(s.texts, rec.Text)
		log.Printf("[MEMORY] Adopted %s after failed append", rec)
	}
	s.unsynced = false
	return nil
}

// Recall returns up to k texts nearest to query in ascending L2 distance.
func (s *Store) Recall(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 || s.Len() == 0 {
		return []string{}, nil
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.index.search(vec, k)
	if err != nil {
		return nil, &core.EmbeddingError{Err: err}
	}

	results := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.index >= len(s.texts) {
			log.Printf("[MEMORY] Skipping hit %d beyond %d texts", h.index, len(s.texts))
			continue
		}
		results = append(results, s.texts[h.index])
	}

	log.Printf("[MEMORY] Recalled %d of %d records for query: %q", len(results), len(s.texts), truncateLog(query, 50))
	return results, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.texts)
}

// Close releases the backend.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// embed calls the embedder under the configured timeout and classifies
// failures as upstream timeouts or embedding errors.
func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.embedTimeout)
		defer cancel()
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		var ue *core.UpstreamError
		switch {
		case errors.As(err, &ue):
			return nil, err
		case errors.Is(err, context.DeadlineExceeded):
			return nil, &core.UpstreamError{Service: "embedding", Timeout: true, Err: err}
		default:
			return nil, &core.EmbeddingError{Err: err}
		}
	}
	if len(vec) != s.embedder.Dimensions() {
		return nil, &core.EmbeddingError{Err: fmt.Errorf("got %d dimensions, want %d", len(vec), s.embedder.Dimensions())}
	}
	return vec, nil
}
