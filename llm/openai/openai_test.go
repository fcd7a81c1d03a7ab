package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/becomeliminal/nim-orchestrator/llm"
	"github.com/becomeliminal/nim-orchestrator/llm/openai"
)

const responseBody = `{
	"id": "resp_1",
	"object": "response",
	"created_at": 1700000000,
	"model": "gpt-4o-mini",
	"status": "completed",
	"output": [{
		"type": "message",
		"id": "msg_1",
		"role": "assistant",
		"status": "completed",
		"content": [{"type": "output_text", "text": "{\"action\":\"respond\"}", "annotations": []}]
	}]
}`

func TestCompleteJSON(t *testing.T) {
	var sent map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/responses") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(responseBody))
	}))
	defer srv.Close()

	c, err := openai.New(llm.Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := c.CompleteJSON(context.Background(), "plan this", llm.PlanSchema())
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if out != `{"action":"respond"}` {
		t.Errorf("unexpected completion %q", out)
	}

	if sent["input"] != "plan this" || sent["model"] != openai.DefaultModel {
		t.Errorf("unexpected request %v", sent)
	}
	text, _ := sent["text"].(map[string]any)
	format, _ := text["format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Errorf("expected json_schema format, got %v", text)
	}
}

func TestComplete_ServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":{"message":"down"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := openai.New(llm.Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Complete(context.Background(), "hi"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}
