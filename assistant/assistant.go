// Package assistant is the caller surface of the decision loop.
//
// It turns text or audio into a core.Request, runs it through the engine and
// writes the turn back to memory: the request always, the response only when
// one was produced. Every network surface (HTTP, WebSocket, gRPC, MCP) and
// the CLI go through an Assistant.
package assistant

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/becomeliminal/nim-orchestrator/core"
	"github.com/becomeliminal/nim-orchestrator/engine"
	"github.com/becomeliminal/nim-orchestrator/memory"
	"github.com/becomeliminal/nim-orchestrator/transcribe"
)

var errTranscriptionDisabled = errors.New("no transcriber configured")

// Assistant handles one request at a time end to end.
type Assistant struct {
	engine      *engine.Engine
	memory      memory.Manager
	transcriber transcribe.Transcriber
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithMemory sets the manager the finished turn is written to.
// It should be the same manager the engine retrieves context from.
func WithMemory(m memory.Manager) Option {
	return func(a *Assistant) {
		a.memory = m
	}
}

// WithTranscriber enables HandleAudio.
func WithTranscriber(t transcribe.Transcriber) Option {
	return func(a *Assistant) {
		a.transcriber = t
	}
}

// New creates an assistant around e.
func New(e *engine.Engine, opts ...Option) *Assistant {
	a := &Assistant{engine: e}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Engine returns the underlying decision loop.
func (a *Assistant) Engine() *engine.Engine {
	return a.engine
}

// HandleText runs a typed request.
func (a *Assistant) HandleText(ctx context.Context, text string) (*engine.Output, error) {
	return a.Handle(ctx, core.NewRequest(text, core.SourceText))
}

// HandleAudio transcribes audio and runs the result. Transcription failures
// do not abort the turn: the failure text becomes the request, as does
// transcribe.NoSpeechText for silent recordings.
func (a *Assistant) HandleAudio(ctx context.Context, filename string, audio io.Reader) (*engine.Output, error) {
	var (
		text string
		err  error
	)
	if a.transcriber == nil {
		err = errTranscriptionDisabled
	} else {
		text, err = a.transcriber.Transcribe(ctx, filename, audio)
	}
	if err != nil {
		log.Printf("[ASSISTANT] Transcription of %q failed: %v", filename, err)
	}
	return a.Handle(ctx, core.NewRequest(transcribe.Text(text, err), core.SourceAudio))
}

// Handle runs req and records the turn.
func (a *Assistant) Handle(ctx context.Context, req *core.Request) (*engine.Output, error) {
	out, err := a.engine.Run(ctx, req)
	a.record(ctx, req, out, err)
	return out, err
}

// record writes the turn back to memory: the request, then the reply text
// the user saw, fixed failure messages included. When the loop failed
// upstream only the request is kept. Write failures are logged and never
// change the reply.
func (a *Assistant) record(ctx context.Context, req *core.Request, out *engine.Output, runErr error) {
	if a.memory == nil {
		return
	}
	// The reply is already decided; a client hanging up must not lose the turn.
	ctx = context.WithoutCancel(ctx)

	var err error
	if runErr == nil && out != nil {
		err = a.memory.RecordConversation(ctx, req.Text, out.Text)
	} else {
		err = a.memory.RecordRequest(ctx, req.Text)
	}
	if err != nil {
		log.Printf("[MEMORY] Failed to record turn %s: %v", req.ID, err)
	}
}
