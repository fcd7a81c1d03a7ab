package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/becomeliminal/nim-orchestrator/memory"
	"github.com/becomeliminal/nim-orchestrator/memory/embedder/mock"
)

// SpyMemory records Remember calls and serves canned recall results.
type SpyMemory struct {
	remembered []string
	recalled   []string
	lastK      int
	failOn     string
}

func (s *SpyMemory) Remember(ctx context.Context, text string) error {
	if text == s.failOn {
		return errors.New("write failed")
	}
	s.remembered = append(s.remembered, text)
	return nil
}

func (s *SpyMemory) Recall(ctx context.Context, query string, k int) ([]string, error) {
	s.lastK = k
	return s.recalled, nil
}

func TestSimpleManager_RecordAndRetrieve(t *testing.T) {
	ctx := context.Background()

	store, err := memory.Open(ctx, mock.New(), nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	manager := memory.NewSimpleManager(store, nil)

	if err := manager.RecordConversation(ctx, "my dog is called Rex", "Nice name!"); err != nil {
		t.Fatalf("Failed to record conversation: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", store.Len())
	}

	got, err := manager.Retrieve(ctx, "my dog is called Rex")
	if err != nil {
		t.Fatalf("Failed to retrieve memories: %v", err)
	}
	if got != "my dog is called Rex\nNice name!" {
		t.Errorf("unexpected context %q", got)
	}
}

func TestSimpleManager_JoinsTopThree(t *testing.T) {
	spy := &SpyMemory{recalled: []string{"a", "b", "c"}}
	manager := memory.NewSimpleManager(spy, nil)

	got, err := manager.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got != "a\nb\nc" {
		t.Errorf("expected newline-joined context, got %q", got)
	}
	if spy.lastK != 3 {
		t.Errorf("expected k=3, got %d", spy.lastK)
	}
}

func TestSimpleManager_EmptyRecall(t *testing.T) {
	manager := memory.NewSimpleManager(&SpyMemory{}, nil)
	got, err := manager.Retrieve(context.Background(), "q")
	if err != nil || got != "" {
		t.Errorf("expected empty context, got %q, %v", got, err)
	}
}

func TestSimpleManager_RecordOrder(t *testing.T) {
	spy := &SpyMemory{}
	manager := memory.NewSimpleManager(spy, nil)

	if err := manager.RecordConversation(context.Background(), "request", ""); err != nil {
		t.Fatalf("RecordConversation: %v", err)
	}
	if len(spy.remembered) != 2 || spy.remembered[0] != "request" || spy.remembered[1] != "" {
		t.Errorf("expected request then empty response, got %q", spy.remembered)
	}

	skipping := memory.NewSimpleManager(spy, &memory.Config{Enabled: true, RecallK: 3, SkipEmptyResponses: true})
	spy.remembered = nil
	if err := skipping.RecordConversation(context.Background(), "request", ""); err != nil {
		t.Fatalf("RecordConversation: %v", err)
	}
	if len(spy.remembered) != 1 {
		t.Errorf("expected only the request, got %q", spy.remembered)
	}
}

func TestSimpleManager_RequestFailureStopsRecording(t *testing.T) {
	spy := &SpyMemory{failOn: "request"}
	manager := memory.NewSimpleManager(spy, nil)

	if err := manager.RecordConversation(context.Background(), "request", "response"); err == nil {
		t.Fatal("expected error")
	}
	if len(spy.remembered) != 0 {
		t.Errorf("response must not be stored without its request, got %q", spy.remembered)
	}
}

func TestSimpleManager_DisabledConfig(t *testing.T) {
	spy := &SpyMemory{recalled: []string{"x"}}
	manager := memory.NewSimpleManager(spy, &memory.Config{Enabled: false})

	if err := manager.RecordConversation(context.Background(), "a", "b"); err != nil {
		t.Fatalf("RecordConversation should not error when disabled: %v", err)
	}
	formatted, err := manager.Retrieve(context.Background(), "a")
	if err != nil {
		t.Fatalf("Retrieve should not error when disabled: %v", err)
	}
	if formatted != "" || len(spy.remembered) != 0 {
		t.Error("Expected no memory traffic when memory is disabled")
	}
}

func TestSimpleManager_RecordRequest(t *testing.T) {
	spy := &SpyMemory{}
	manager := memory.NewSimpleManager(spy, nil)

	if err := manager.RecordRequest(context.Background(), "weather in Atlantis"); err != nil {
		t.Fatalf("RecordRequest: %v", err)
	}
	if len(spy.remembered) != 1 || spy.remembered[0] != "weather in Atlantis" {
		t.Errorf("expected only the request, got %q", spy.remembered)
	}
}
