// Package llm defines the completion interface the decision loop talks to and
// a registry of concrete providers.
//
// Providers live in sub-packages and register themselves from init, so a
// binary selects the backends it supports with blank imports:
//
//	import _ "github.com/becomeliminal/nim-orchestrator/llm/ollama"
//
//	c, err := llm.New(llm.Config{Provider: "ollama", Model: "gemma3:12b-it-q4_K_M"})
package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Completer turns a prompt into completion text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// StructuredCompleter is implemented by providers that can constrain the
// completion to a JSON schema. The returned text is the raw JSON document.
type StructuredCompleter interface {
	Completer
	CompleteJSON(ctx context.Context, prompt string, schema map[string]any) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	// Provider is the registered provider name ("ollama", "anthropic", "openai", "gemini").
	Provider string

	// Model is the provider's model identifier. Empty uses the provider default.
	Model string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// APIKey authenticates against hosted providers.
	APIKey string

	// MaxTokens caps the completion length where the provider supports it.
	MaxTokens int64

	// Options are passed through to providers that accept free-form options.
	Options map[string]any

	// Timeout bounds every call. Zero means no bound.
	Timeout time.Duration

	HTTPClient *http.Client
}

// Factory creates a provider from configuration.
type Factory func(cfg Config) (Completer, error)

var (
	providersMu sync.RWMutex
	providers   = map[string]Factory{}
)

// Register makes a provider available to New under name.
func Register(name string, f Factory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = f
}

// Providers lists the registered provider names in sorted order.
func Providers() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the configured provider and applies cfg.Timeout to it.
func New(cfg Config) (Completer, error) {
	providersMu.RLock()
	f, ok := providers[cfg.Provider]
	providersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q (registered: %v)", cfg.Provider, Providers())
	}

	c, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.Provider, err)
	}
	return WithTimeout(c, cfg.Timeout), nil
}
