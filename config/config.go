// Package config loads runtime configuration.
//
// Sources are layered: defaults -> TOML file -> .env file -> process
// environment (env wins). Variables set in the process environment take
// precedence over the same variables in the .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultPath is the TOML file read when Load is given an empty path.
const DefaultPath = "nim.toml"

type Config struct {
	Server     ServerConfig     `toml:"server"`
	LLM        LLMConfig        `toml:"llm"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Memory     MemoryConfig     `toml:"memory"`
	Tools      ToolsConfig      `toml:"tools"`
	Search     SearchConfig     `toml:"search"`
	Transcribe TranscribeConfig `toml:"transcribe"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
}

type ServerConfig struct {
	Addr           string   `toml:"addr"`
	GRPCAddr       string   `toml:"grpc_addr"` // Empty disables the gRPC listener
	RequestTimeout Duration `toml:"request_timeout"`
	MaxUploadBytes int64    `toml:"max_upload_bytes"`
}

type LLMConfig struct {
	Provider   string   `toml:"provider"` // ollama, anthropic, openai, gemini
	Model      string   `toml:"model"`
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	MaxTokens  int64    `toml:"max_tokens"`
	Timeout    Duration `toml:"timeout"`
	Structured bool     `toml:"structured"`
}

type EmbeddingConfig struct {
	Provider   string   `toml:"provider"` // ollama, onnx, openai, mock
	Model      string   `toml:"model"`
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	Dimensions int      `toml:"dimensions"`
	Timeout    Duration `toml:"timeout"`
	CacheBytes int64    `toml:"cache_bytes"` // Embedding cache budget; 0 disables the cache

	// ONNX model files, used when Provider is "onnx".
	ModelPath     string `toml:"model_path"`
	TokenizerPath string `toml:"tokenizer_path"`
}

type MemoryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Backend  string `toml:"backend"` // sqlite, chromem, postgres, none
	Path     string `toml:"path"`    // SQLite file or chromem directory
	DSN      string `toml:"dsn"`     // Postgres connection string
	Compress bool   `toml:"compress"`
	RecallK  int    `toml:"recall_k"`
}

type ToolsConfig struct {
	Dir           string   `toml:"dir"`
	Timeout       Duration `toml:"timeout"`
	Watch         bool     `toml:"watch"`
	WeatherAPIKey string   `toml:"weather_api_key"`
	ProjectsDir   string   `toml:"projects_dir"`
	GitPath       string   `toml:"git_path"`
}

type SearchConfig struct {
	Enabled    bool     `toml:"enabled"`
	Endpoint   string   `toml:"endpoint"`
	Timeout    Duration `toml:"timeout"`
	FetchPages bool     `toml:"fetch_pages"`
	MaxChars   int      `toml:"max_chars"`
}

type TranscribeConfig struct {
	APIKey   string   `toml:"api_key"` // Empty disables audio input
	BaseURL  string   `toml:"base_url"`
	Model    string   `toml:"model"`
	Language string   `toml:"language"`
	Timeout  Duration `toml:"timeout"`
}

type TelemetryConfig struct {
	ServiceName  string `toml:"service_name"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

// Duration is a time.Duration written as a string ("30s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8000",
			MaxUploadBytes: 32 << 20,
		},
		LLM: LLMConfig{
			Provider:   "ollama", // Model left empty: each provider has its own default
			Timeout:    Duration{2 * time.Minute},
			Structured: true,
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Dimensions: 384,
			Timeout:    Duration{30 * time.Second},
			CacheBytes: 64 << 20,
		},
		Memory: MemoryConfig{
			Enabled: true,
			Backend: "sqlite",
			Path:    "nim_memory.db",
			RecallK: 3,
		},
		Tools: ToolsConfig{
			Dir:     "tools",
			Timeout: Duration{time.Minute},
			Watch:   true,
			GitPath: "git",
		},
		Search: SearchConfig{
			Enabled:    true,
			Endpoint:   "https://api.duckduckgo.com/",
			Timeout:    Duration{15 * time.Second},
			FetchPages: true,
			MaxChars:   4000,
		},
		Transcribe: TranscribeConfig{
			Model:   "whisper-1",
			Timeout: Duration{time.Minute},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "nim",
		},
	}
}

// Load reads config: defaults -> TOML file -> .env -> env vars (env wins).
// A missing TOML or .env file is not an error; a malformed one is.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	dotenv := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("read %s: %w", envFile, err)
		}
		if values != nil {
			dotenv = values
		}
	}
	env := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	}

	if err := applyEnv(&cfg, env); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, env func(string) string) error {
	setString := func(key string, dst *string) {
		if v := env(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	setBool := func(key string, dst *bool) {
		if v := env(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	setDuration := func(key string, dst *Duration) {
		if v := env(key); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}

	setString("NIM_SERVER_ADDR", &cfg.Server.Addr)
	setString("NIM_GRPC_ADDR", &cfg.Server.GRPCAddr)
	setDuration("NIM_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)

	setString("NIM_LLM_PROVIDER", &cfg.LLM.Provider)
	setString("NIM_LLM_MODEL", &cfg.LLM.Model)
	setString("NIM_LLM_BASE_URL", &cfg.LLM.BaseURL)
	setString("NIM_LLM_API_KEY", &cfg.LLM.APIKey)
	setDuration("NIM_LLM_TIMEOUT", &cfg.LLM.Timeout)
	setBool("NIM_LLM_STRUCTURED", &cfg.LLM.Structured)

	setString("NIM_EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	setString("NIM_EMBEDDING_MODEL", &cfg.Embedding.Model)
	setString("NIM_EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL)
	setString("NIM_EMBEDDING_API_KEY", &cfg.Embedding.APIKey)

	setBool("NIM_MEMORY_ENABLED", &cfg.Memory.Enabled)
	setString("NIM_MEMORY_BACKEND", &cfg.Memory.Backend)
	setString("NIM_MEMORY_PATH", &cfg.Memory.Path)
	setString("NIM_MEMORY_DSN", &cfg.Memory.DSN)

	setString("NIM_TOOLS_DIR", &cfg.Tools.Dir)
	setString("NIM_PROJECTS_DIR", &cfg.Tools.ProjectsDir)
	setString("OPENWEATHERMAP", &cfg.Tools.WeatherAPIKey)
	setString("NIM_WEATHER_API_KEY", &cfg.Tools.WeatherAPIKey)

	setBool("NIM_SEARCH_ENABLED", &cfg.Search.Enabled)

	setString("NIM_TRANSCRIBE_API_KEY", &cfg.Transcribe.APIKey)
	setString("NIM_TRANSCRIBE_BASE_URL", &cfg.Transcribe.BaseURL)

	setString("NIM_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)

	// Fallbacks
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "anthropic":
			cfg.LLM.APIKey = env("ANTHROPIC_API_KEY")
		case "openai":
			cfg.LLM.APIKey = env("OPENAI_API_KEY")
		case "gemini":
			cfg.LLM.APIKey = env("GEMINI_API_KEY")
		}
	}
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = env("OPENAI_API_KEY")
	}
	if cfg.Transcribe.APIKey == "" {
		cfg.Transcribe.APIKey = env("OPENAI_API_KEY")
	}

	return errors.Join(errs...)
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	var errs []error
	switch c.Embedding.Provider {
	case "ollama", "onnx", "openai", "mock":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider: unknown provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, errors.New("embedding.dimensions must be positive"))
	}
	if c.Embedding.Provider == "onnx" && (c.Embedding.ModelPath == "" || c.Embedding.TokenizerPath == "") {
		errs = append(errs, errors.New("embedding: onnx needs model_path and tokenizer_path"))
	}
	switch c.Memory.Backend {
	case "sqlite", "chromem", "none":
	case "postgres":
		if c.Memory.DSN == "" {
			errs = append(errs, errors.New("memory.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("memory.backend: unknown backend %q", c.Memory.Backend))
	}
	if c.Memory.RecallK < 0 {
		errs = append(errs, errors.New("memory.recall_k must not be negative"))
	}
	return errors.Join(errs...)
}
