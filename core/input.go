package core

import "github.com/google/uuid"

// Source identifies how a request reached the assistant.
type Source string

const (
	// SourceText is a typed prompt.
	SourceText Source = "text"

	// SourceAudio is a prompt recovered from an uploaded recording.
	SourceAudio Source = "audio"
)

// Request is one inbound user turn.
// Every surface (HTTP, WebSocket, gRPC, MCP, CLI) reduces its input to a Request
// before handing it to the assistant.
type Request struct {
	// ID correlates log lines and spans for a single turn.
	ID string

	// Text is the raw natural-language request. For audio input this is the
	// transcription, or the transcription failure text.
	Text string

	// Source records where Text came from.
	Source Source
}

// NewRequest creates a Request with a fresh ID.
func NewRequest(text string, source Source) *Request {
	return &Request{
		ID:     uuid.New().String(),
		Text:   text,
		Source: source,
	}
}
