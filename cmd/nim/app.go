package main

import (
	"context"
	"fmt"
	"log"

	"github.com/becomeliminal/nim-orchestrator/assistant"
	"github.com/becomeliminal/nim-orchestrator/config"
	"github.com/becomeliminal/nim-orchestrator/engine"
	"github.com/becomeliminal/nim-orchestrator/llm"
	_ "github.com/becomeliminal/nim-orchestrator/llm/anthropic"
	_ "github.com/becomeliminal/nim-orchestrator/llm/gemini"
	_ "github.com/becomeliminal/nim-orchestrator/llm/ollama"
	_ "github.com/becomeliminal/nim-orchestrator/llm/openai"
	"github.com/becomeliminal/nim-orchestrator/memory"
	"github.com/becomeliminal/nim-orchestrator/memory/embedder/cache"
	chromemembed "github.com/becomeliminal/nim-orchestrator/memory/embedder/chromem"
	"github.com/becomeliminal/nim-orchestrator/memory/embedder/mock"
	ollamaembed "github.com/becomeliminal/nim-orchestrator/memory/embedder/ollama"
	chromemstore "github.com/becomeliminal/nim-orchestrator/memory/store/chromem"
	"github.com/becomeliminal/nim-orchestrator/memory/store/postgres"
	"github.com/becomeliminal/nim-orchestrator/memory/store/sqlite"
	"github.com/becomeliminal/nim-orchestrator/telemetry"
	"github.com/becomeliminal/nim-orchestrator/tools"
	"github.com/becomeliminal/nim-orchestrator/transcribe"
	"github.com/becomeliminal/nim-orchestrator/websearch"
)

// defaultOpenAIEmbeddingModel is used when embedding.provider is "openai"
// and no model is configured.
const defaultOpenAIEmbeddingModel = "text-embedding-3-small"

// app holds the wired components and what must be released on exit.
type app struct {
	assistant *assistant.Assistant
	store     *memory.Store // nil when memory is disabled
	catalog   *tools.Catalog
	closers   []func(context.Context) error
}

// build wires every component from configuration.
func build(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	// ============================================================================
	// TELEMETRY
	// ============================================================================

	inst, shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	// ============================================================================
	// COMPLETION
	// ============================================================================

	completer, err := llm.New(llm.Config{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout.Duration,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Completion: %s %s", cfg.LLM.Provider, cfg.LLM.Model)

	engineOpts := []engine.Option{
		engine.WithInstruments(inst),
		engine.WithStructuredOutput(cfg.LLM.Structured),
	}
	var assistantOpts []assistant.Option

	// ============================================================================
	// MEMORY SYSTEM SETUP
	// ============================================================================

	if cfg.Memory.Enabled {
		store, err := a.openMemory(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.store = store
		manager := memory.NewSimpleManager(store, &memory.Config{
			Enabled: true,
			RecallK: cfg.Memory.RecallK,
		})
		engineOpts = append(engineOpts, engine.WithMemory(manager))
		assistantOpts = append(assistantOpts, assistant.WithMemory(manager))
		log.Printf("✅ Memory: %s backend, %s embedder, %d records", cfg.Memory.Backend, cfg.Embedding.Provider, store.Len())
	} else {
		log.Println("Memory disabled")
	}

	// ============================================================================
	// CAPABILITIES
	// ============================================================================

	registry := newRegistry(cfg)
	dispatcher := tools.NewDispatcher(registry, tools.WithTimeout(cfg.Tools.Timeout.Duration))
	a.catalog = tools.NewCatalog(ctx, registry)
	if cfg.Tools.Watch {
		if err := a.catalog.Watch(ctx); err != nil {
			log.Printf("[TOOLS] Watcher disabled: %v", err)
		}
	}
	log.Printf("✅ Capabilities: %d under %s", len(a.catalog.Snapshot()), registry.Root())

	// ============================================================================
	// SEARCH AND TRANSCRIPTION
	// ============================================================================

	if cfg.Search.Enabled {
		searchOpts := []websearch.Option{
			websearch.WithTimeout(cfg.Search.Timeout.Duration),
			websearch.WithPageFetch(cfg.Search.FetchPages),
			websearch.WithMaxChars(cfg.Search.MaxChars),
		}
		if cfg.Search.Endpoint != "" {
			searchOpts = append(searchOpts, websearch.WithEndpoint(cfg.Search.Endpoint))
		}
		engineOpts = append(engineOpts, engine.WithSearcher(websearch.NewDuckDuckGo(searchOpts...)))
	}

	if cfg.Transcribe.APIKey != "" {
		assistantOpts = append(assistantOpts, assistant.WithTranscriber(transcribe.NewWhisper(transcribe.Config{
			APIKey:   cfg.Transcribe.APIKey,
			BaseURL:  cfg.Transcribe.BaseURL,
			Model:    cfg.Transcribe.Model,
			Language: cfg.Transcribe.Language,
			Timeout:  cfg.Transcribe.Timeout.Duration,
		})))
	} else {
		log.Println("Audio input disabled: no transcription API key")
	}

	e := engine.NewEngine(completer, registry, dispatcher, engineOpts...)
	a.assistant = assistant.New(e, assistantOpts...)

	ok = true
	return a, nil
}

// newRegistry creates the capability registry with the enabled built-ins.
func newRegistry(cfg config.Config) *tools.Registry {
	registry := tools.NewRegistry(cfg.Tools.Dir)
	for _, b := range tools.Builtins(tools.BuiltinConfig{
		WeatherAPIKey: cfg.Tools.WeatherAPIKey,
		ProjectsDir:   cfg.Tools.ProjectsDir,
		GitPath:       cfg.Tools.GitPath,
	}) {
		registry.Register(b)
	}
	return registry
}

func (a *app) openMemory(ctx context.Context, cfg config.Config) (*memory.Store, error) {
	embedder, err := a.newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if cfg.Embedding.CacheBytes > 0 {
		cached, err := cache.New(embedder, cache.Config{MaxBytes: cfg.Embedding.CacheBytes})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error {
			cached.Close()
			return nil
		})
		embedder = cached
	}

	backend, err := openBackend(ctx, cfg.Memory)
	if err != nil {
		return nil, err
	}
	store, err := memory.Open(ctx, embedder, backend, memory.WithEmbedTimeout(cfg.Embedding.Timeout.Duration))
	if err != nil {
		if backend != nil {
			backend.Close()
		}
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	return store, nil
}

func (a *app) newEmbedder(cfg config.EmbeddingConfig) (memory.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return ollamaembed.New(cfg.BaseURL, cfg.Model, cfg.Dimensions, nil)
	case "openai":
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIEmbeddingModel
		}
		if cfg.BaseURL != "" {
			return chromemembed.NewOpenAICompat(cfg.BaseURL, cfg.APIKey, model, cfg.Dimensions), nil
		}
		return chromemembed.NewOpenAI(cfg.APIKey, model, cfg.Dimensions), nil
	case "onnx":
		emb, closeFn, err := newONNXEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return closeFn() })
		return emb, nil
	case "mock":
		return mock.NewWithDimensions(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// openBackend returns the durable mirror, or nil for a purely in-memory store.
func openBackend(ctx context.Context, cfg config.MemoryConfig) (memory.Backend, error) {
	switch cfg.Backend {
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "chromem":
		return chromemstore.Open(cfg.Path, cfg.Compress)
	case "postgres":
		return postgres.Open(ctx, cfg.DSN)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	ctx := context.Background()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Printf("WARNING: shutdown: %v", err)
		}
	}
	a.closers = nil
}
