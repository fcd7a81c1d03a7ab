package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// SimpleManager is the default Manager.
// It recalls the closest records for a request and joins them one per line,
// and records both sides of every turn verbatim.
//
// Custom managers can layer on:
//   - Filtering of trivial turns
//   - Summarisation before storage
//   - Per-source namespacing
type SimpleManager struct {
	memory Memory
	config *Config
}

// NewSimpleManager creates a new SimpleManager.
func NewSimpleManager(memory Memory, config *Config) *SimpleManager {
	if config == nil {
		config = DefaultConfig
	}
	return &SimpleManager{
		memory: memory,
		config: config,
	}
}

// Retrieve recalls the nearest records and returns them newline-joined.
func (m *SimpleManager) Retrieve(ctx context.Context, request string) (string, error) {
	if !m.config.Enabled {
		return "", nil // Memory disabled
	}

	texts, err := m.memory.Recall(ctx, request, m.config.RecallK)
	if err != nil {
		return "", fmt.Errorf("recall: %w", err)
	}

	log.Printf("[MEMORY] Retrieved %d memories for query: %q", len(texts), truncateLog(request, 50))
	return strings.Join(texts, "\n"), nil
}

// RecordRequest remembers only the request, for turns that ended in an error.
func (m *SimpleManager) RecordRequest(ctx context.Context, request string) error {
	if !m.config.Enabled {
		return nil
	}
	if err := m.memory.Remember(ctx, request); err != nil {
		return fmt.Errorf("remember request: %w", err)
	}
	return nil
}

// RecordConversation remembers the request and then the response.
// The request is always stored; an empty response is skipped only when
// SkipEmptyResponses is set.
func (m *SimpleManager) RecordConversation(ctx context.Context, request string, response string) error {
	if !m.config.Enabled {
		return nil
	}

	if err := m.memory.Remember(ctx, request); err != nil {
		return fmt.Errorf("remember request: %w", err)
	}
	if response == "" && m.config.SkipEmptyResponses {
		return nil
	}
	if err := m.memory.Remember(ctx, response); err != nil {
		return fmt.Errorf("remember response: %w", err)
	}
	return nil
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:runeCut(s, maxLen)] + "..."
}

// Config holds SimpleManager configuration.
type Config struct {
	// Enabled toggles memory system on/off.
	Enabled bool

	// RecallK is how many records are recalled per request.
	// Default: 3
	RecallK int

	// SkipEmptyResponses avoids storing "" when a turn produced no text.
	// Default: false (every turn writes two records).
	SkipEmptyResponses bool
}

// DefaultConfig returns the defaults used by the assistant.
var DefaultConfig = &Config{
	Enabled: true,
	RecallK: 3,
}
