// Package server exposes the assistant over HTTP and WebSocket.
//
// Endpoints:
//
//	POST /api/prompt  form field "prompt" or JSON {"prompt": ...} -> {"response": ...}
//	POST /api/file    multipart field "file" (audio)              -> {"response": ...}
//	GET  /api/tools   cached capability snapshot
//	GET  /health      liveness
//	GET  /ws          one {"prompt": ...} frame in, one {"response": ...} frame out
//
// User-visible failures (unparseable plan, unknown capability, failed
// capability) are ordinary 200 responses carrying the failure text. Upstream
// failures map to 502, or 504 when the upstream timed out.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/becomeliminal/nim-orchestrator/assistant"
	"github.com/becomeliminal/nim-orchestrator/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMaxUploadBytes bounds /api/file uploads.
const DefaultMaxUploadBytes = 32 << 20

// Lister returns the current capability snapshot for listing endpoints.
// *tools.Catalog satisfies it.
type Lister interface {
	Snapshot() []core.ToolDescriptor
}

// Config configures a Server.
type Config struct {
	// Assistant handles every request. Required.
	Assistant *assistant.Assistant

	// Catalog backs GET /api/tools. When nil the engine's registry is
	// scanned on every listing request.
	Catalog Lister

	// MaxUploadBytes bounds audio uploads (default: 32 MiB).
	MaxUploadBytes int64

	// RequestTimeout bounds a whole turn. Zero leaves only the per-call
	// timeouts of the collaborators.
	RequestTimeout time.Duration
}

// Server is the HTTP and WebSocket surface.
type Server struct {
	config     Config
	mux        *http.ServeMux
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// New creates a server and registers its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Assistant == nil {
		return nil, errors.New("assistant is required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for decoupled UI
			},
		},
	}
	s.mux.HandleFunc("POST /api/prompt", s.handlePrompt)
	s.mux.HandleFunc("POST /api/file", s.handleFile)
	s.mux.HandleFunc("GET /api/tools", s.handleTools)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	return s, nil
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run listens on addr until Shutdown is called.
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("[SERVER] Listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// turnContext applies RequestTimeout to a request context.
func (s *Server) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.config.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// statusFor maps a Go error returned by the assistant to an HTTP status.
func statusFor(err error) int {
	switch {
	case core.IsTimeout(err):
		return http.StatusGatewayTimeout
	case core.IsRetryable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
