package server_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/becomeliminal/nim-orchestrator/assistant"
	"github.com/becomeliminal/nim-orchestrator/core"
	"github.com/becomeliminal/nim-orchestrator/engine"
	"github.com/becomeliminal/nim-orchestrator/server"
	"github.com/becomeliminal/nim-orchestrator/tools"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// echoCompleter responds with the planning prompt's request line.
type echoCompleter struct {
	mu  sync.Mutex
	err error
}

func (c *echoCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	line, _, _ := strings.Cut(prompt, "\n")
	request := strings.TrimPrefix(line, "[USER INPUT]: ")
	if request == "break the plan" {
		return "not json", nil
	}
	body, _ := json.Marshal(map[string]string{"action": "respond", "response": "echo: " + request})
	return string(body), nil
}

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d bytes", filename, len(data)), nil
}

type fakeLister []core.ToolDescriptor

func (f fakeLister) Snapshot() []core.ToolDescriptor { return f }

func newServer(t *testing.T, completer *echoCompleter, catalog server.Lister) *server.Server {
	t.Helper()
	registry := tools.NewRegistry(t.TempDir())
	e := engine.NewEngine(completer, registry, tools.NewDispatcher(registry))
	a := assistant.New(e, assistant.WithTranscriber(fakeTranscriber{}))
	srv, err := server.New(server.Config{Assistant: a, Catalog: catalog})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	return srv
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestNew_RequiresAssistant(t *testing.T) {
	if _, err := server.New(server.Config{}); err == nil {
		t.Error("expected error without an assistant")
	}
}

func TestPrompt_Form(t *testing.T) {
	srv := newServer(t, &echoCompleter{}, nil)

	form := url.Values{"prompt": {"What's 2+2"}}
	req := httptest.NewRequest(http.MethodPost, "/api/prompt", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["response"]; got != "echo: What's 2+2" {
		t.Errorf("unexpected response %v", got)
	}
}

func TestPrompt_JSON(t *testing.T) {
	srv := newServer(t, &echoCompleter{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/prompt", strings.NewReader(`{"prompt":"hello"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["response"] != "echo: hello" || body["action"] != "respond" {
		t.Errorf("unexpected reply %d %v", rec.Code, body)
	}
}

func TestPrompt_Invalid(t *testing.T) {
	srv := newServer(t, &echoCompleter{}, nil)

	for _, tc := range []struct{ contentType, body string }{
		{"application/x-www-form-urlencoded", ""},
		{"application/json", `{"prompt":"   "}`},
		{"application/json", `{not json`},
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/prompt", strings.NewReader(tc.body))
		req.Header.Set("Content-Type", tc.contentType)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%q: expected 400, got %d", tc.body, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prompt", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", rec.Code)
	}
}

func TestPrompt_UserVisibleFailureIsOK(t *testing.T) {
	srv := newServer(t, &echoCompleter{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/prompt", strings.NewReader(`{"prompt":"break the plan"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["response"] != engine.PlanParseFailureText {
		t.Errorf("unexpected reply %d %v", rec.Code, body)
	}
	if body["error"] == nil {
		t.Error("expected error detail alongside the failure text")
	}
}

func TestPrompt_UpstreamFailures(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("connection refused"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		srv := newServer(t, &echoCompleter{err: tt.err}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/prompt", strings.NewReader(`{"prompt":"hi"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		if rec.Code != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, rec.Code)
		}
		if body := decode(t, rec); body["retryable"] != true {
			t.Errorf("%v: expected retryable, got %v", tt.err, body)
		}
	}
}

func TestFile(t *testing.T) {
	srv := newServer(t, &echoCompleter{}, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("RIFF0000"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["response"]; got != "echo: clip.wav:8 bytes" {
		t.Errorf("unexpected response %v", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/file", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a file, got %d", rec.Code)
	}
}

func TestToolsAndHealth(t *testing.T) {
	catalog := fakeLister{
		{Name: "get_weather", Description: "Weather", Args: core.ArgSpec{Form: core.ArgsList, Names: []string{"location"}}, Builtin: true},
		{Name: "clock"},
	}
	srv := newServer(t, &echoCompleter{}, catalog)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tools", nil))
	var listing struct {
		Tools []struct {
			Name     string         `json:"name"`
			Metadata map[string]any `json:"metadata"`
			Builtin  bool           `json:"builtin"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listing.Tools) != 2 || listing.Tools[0].Name != "get_weather" || !listing.Tools[0].Builtin {
		t.Fatalf("unexpected listing %+v", listing)
	}
	if args, _ := listing.Tools[0].Metadata["args"].([]any); len(args) != 1 || args[0] != "location" {
		t.Errorf("unexpected metadata %v", listing.Tools[0].Metadata)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
		t.Errorf("unexpected health reply %d %s", rec.Code, rec.Body.String())
	}
}

func TestWebSocket(t *testing.T) {
	srv := newServer(t, &echoCompleter{}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, tc := range []struct{ frame, want string }{
		{`{"prompt":"first"}`, "echo: first"},
		{"plain text", "echo: plain text"},
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(tc.frame)); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var reply map[string]any
		if err := json.Unmarshal(msg, &reply); err != nil {
			t.Fatalf("decode %q: %v", msg, err)
		}
		if reply["response"] != tc.want {
			t.Errorf("frame %q: unexpected reply %v", tc.frame, reply)
		}
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"prompt":""}`))
	_, msg, err := conn.ReadMessage()
	if err != nil || !strings.Contains(string(msg), "prompt is required") {
		t.Errorf("expected validation error frame, got %q (%v)", msg, err)
	}
}
