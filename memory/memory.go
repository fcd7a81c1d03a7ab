package memory

import (
	"context"
)

// Memory is the store surface the rest of the system depends on.
// Store is the SDK-provided implementation.
type Memory interface {
	// Remember embeds text and appends it as a new record. The record is
	// durable before Remember returns.
	Remember(ctx context.Context, text string) error

	// Recall returns up to k stored texts nearest to query, closest first.
	// An empty store answers without calling the embedder.
	Recall(ctx context.Context, query string, k int) ([]string, error)
}

// Manager decides how recalled memories are presented to the planner and
// what a finished turn writes back.
//
// Implementations:
//   - SimpleManager: newline-joined top-k recall, request and response stored verbatim
type Manager interface {
	// Retrieve returns the context block for a request, or "" when nothing
	// relevant is stored.
	Retrieve(ctx context.Context, request string) (string, error)

	// RecordRequest stores a request whose turn produced no response.
	RecordRequest(ctx context.Context, request string) error

	// RecordConversation stores the request and then the response.
	RecordConversation(ctx context.Context, request string, response string) error
}

// Backend is the durable mirror of the record log.
// Implementations: sqlite (default), chromem (persistent DB), postgres.
type Backend interface {
	// Load returns every stored record ordered by Index.
	Load(ctx context.Context) ([]*Record, error)

	// Append persists one record. It must not return until the record is
	// durable, and must leave no partial record behind on failure.
	Append(ctx context.Context, rec *Record) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), onnx (local MiniLM), ollama, chromem (OpenAI/Ollama funcs),
// cache (ristretto wrapper around any of these).
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}
