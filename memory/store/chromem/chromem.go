// Package chromem mirrors the memory record log into a chromem-go database.
package chromem

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-orchestrator/memory"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const collectionName = "memories"

// Backend stores each record as a chromem document.
// chromem normalises embeddings on insert, so the exact vector is kept in
// the document metadata and restored from there on Load.
type Backend struct {
	db  *chromem.DB
	col *chromem.Collection
	mu  sync.Mutex
}

var _ memory.Backend = (*Backend)(nil)

// New creates an in-memory backend. Records do not survive the process.
func New() (*Backend, error) {
	return newBackend(chromem.NewDB())
}

// Open creates or reopens a persistent database under dir.
func Open(dir string, compress bool) (*Backend, error) {
	db, err := chromem.NewPersistentDB(dir, compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	return newBackend(db)
}

func newBackend(db *chromem.DB) (*Backend, error) {
	col, err := db.GetOrCreateCollection(
		collectionName,
		nil, // No metadata
		nil, // Embeddings always supplied
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Backend{db: db, col: col}, nil
}

// Load returns all records ordered by index.
func (b *Backend) Load(ctx context.Context) ([]*memory.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.col.Count()
	records := make([]*memory.Record, 0, n)
	for i := 0; i < n; i++ {
		doc, err := b.col.GetByID(ctx, documentID(i))
		if err != nil {
			return nil, fmt.Errorf("get record %d: %w", i, err)
		}
		rec, err := deserializeRecord(i, doc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	log.Printf("[CHROMEM] Loaded %d records", len(records))
	return records, nil
}

// Append adds one document. chromem writes the document file before returning.
func (b *Backend) Append(ctx context.Context, rec *memory.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.col.GetByID(ctx, documentID(rec.Index)); err == nil {
		return fmt.Errorf("record %d already exists", rec.Index)
	}

	doc, err := serializeRecord(rec)
	if err != nil {
		return fmt.Errorf("serialize record: %w", err)
	}
	if err := b.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	log.Printf("[CHROMEM] Stored record: index=%d id=%s", rec.Index, rec.ID)
	return nil
}

// Close releases resources. chromem keeps nothing open between writes.
func (b *Backend) Close() error {
	return nil
}

// documentID zero-pads the index so IDs also sort in insertion order.
func documentID(index int) string {
	return fmt.Sprintf("%012d", index)
}

func serializeRecord(rec *memory.Record) (chromem.Document, error) {
	vector, err := json.Marshal(rec.Vector)
	if err != nil {
		return chromem.Document{}, fmt.Errorf("marshal vector: %w", err)
	}
	return chromem.Document{
		ID:        documentID(rec.Index),
		Content:   rec.Text,
		Embedding: append([]float32(nil), rec.Vector...),
		Metadata: map[string]string{
			"record_id":  rec.ID,
			"vector":     string(vector),
			"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
		},
	}, nil
}

func deserializeRecord(index int, doc chromem.Document) (*memory.Record, error) {
	var vector []float32
	if err := json.Unmarshal([]byte(doc.Metadata["vector"]), &vector); err != nil {
		return nil, fmt.Errorf("unmarshal vector of record %d: %w", index, err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, doc.Metadata["created_at"])

	return &memory.Record{
		ID:        doc.Metadata["record_id"],
		Index:     index,
		Text:      doc.Content,
		Vector:    vector,
		CreatedAt: createdAt,
	}, nil
}
