// Package memory provides the semantic memory store used by the assistant.
//
// Every request and every response is embedded and appended to a flat
// vector index alongside its text. Recall is an exact k-nearest-neighbour
// scan by Euclidean distance, so results are deterministic: ties go to the
// record that was stored first.
//
// Architecture:
//   - Embedder: text-to-vector conversion (mock, ONNX, Ollama, chromem funcs)
//   - Backend: durable mirror of the record log (SQLite, chromem, Postgres)
//   - Store: in-memory index and text list, rebuilt from the Backend on Open
//   - Manager: formats recalled context and records conversation turns
//
// Records are append-only. The vector count and the text count always move
// together; a write that cannot be persisted is not applied in memory.
package memory
