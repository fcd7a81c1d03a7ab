package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/becomeliminal/nim-orchestrator/core"
)

// DefaultWeatherURL is OpenWeatherMap's current weather endpoint.
const DefaultWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// BuiltinConfig configures the capabilities compiled into the binary.
type BuiltinConfig struct {
	// WeatherAPIKey enables get_weather when set.
	WeatherAPIKey string

	// WeatherURL overrides DefaultWeatherURL.
	WeatherURL string

	// ProjectsDir is where new_project creates folders. Empty disables it.
	ProjectsDir string

	// GitPath is the git binary used by new_project (default: "git").
	GitPath string

	HTTPClient *http.Client
}

// Builtins returns the enabled built-in capabilities.
func Builtins(cfg BuiltinConfig) []*Builtin {
	var out []*Builtin
	if cfg.WeatherAPIKey != "" {
		out = append(out, Weather(cfg))
	}
	if cfg.ProjectsDir != "" {
		out = append(out, NewProject(cfg))
	}
	return out
}

// Weather reports current conditions for a city.
func Weather(cfg BuiltinConfig) *Builtin {
	endpoint := cfg.WeatherURL
	if endpoint == "" {
		endpoint = DefaultWeatherURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &Builtin{
		Name:        "get_weather",
		Description: "Get the current weather for a location.",
		Args: core.ArgSpec{
			Form:         core.ArgsMapping,
			Names:        []string{"location"},
			Descriptions: map[string]string{"location": "City name, e.g. Oslo"},
		},
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			location := stringArg(args, "location")
			if location == "" {
				return "", errors.New("location is required")
			}

			q := url.Values{}
			q.Set("q", location)
			q.Set("appid", cfg.WeatherAPIKey)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
			if err != nil {
				return "", err
			}
			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("weather request: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return "", fmt.Errorf("read weather response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("weather service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}

			var report struct {
				Weather []struct {
					Description string `json:"description"`
				} `json:"weather"`
				Main struct {
					Temp float64 `json:"temp"`
				} `json:"main"`
			}
			if err := json.Unmarshal(body, &report); err != nil {
				return "", fmt.Errorf("decode weather response: %w", err)
			}

			conditions := "unknown conditions"
			if len(report.Weather) > 0 && report.Weather[0].Description != "" {
				conditions = report.Weather[0].Description
			}
			return fmt.Sprintf("The weather in %s is %s and %.1f°C.", location, conditions, kelvinToCelsius(report.Main.Temp)), nil
		},
	}
}

// NewProject creates a project folder and initialises a git repository in it.
// A failing git init is reported in the result, not as an error.
func NewProject(cfg BuiltinConfig) *Builtin {
	gitPath := cfg.GitPath
	if gitPath == "" {
		gitPath = "git"
	}

	return &Builtin{
		Name:        "new_project",
		Description: "Create a new project folder with an initialised git repository.",
		Args: core.ArgSpec{
			Form:         core.ArgsMapping,
			Names:        []string{"name"},
			Descriptions: map[string]string{"name": "Folder name for the project"},
		},
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			name := stringArg(args, "name")
			if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
				return "", fmt.Errorf("invalid project name %q", name)
			}

			path := filepath.Join(cfg.ProjectsDir, name)
			if err := os.MkdirAll(path, 0o755); err != nil {
				return "", fmt.Errorf("create project folder: %w", err)
			}

			result := fmt.Sprintf("Created a new project folder at: %s", path)
			cmd := exec.CommandContext(ctx, gitPath, "init")
			cmd.Dir = path
			if out, err := cmd.CombinedOutput(); err != nil {
				msg := strings.TrimSpace(string(out))
				if msg == "" {
					msg = err.Error()
				}
				return result + fmt.Sprintf(" (git init failed: %s)", msg), nil
			}
			return result, nil
		},
	}
}

func kelvinToCelsius(k float64) float64 {
	return k - 273.15
}

// stringArg reads args[key] as a trimmed string, formatting non-strings.
func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
