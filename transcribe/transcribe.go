// Package transcribe converts uploaded audio into request text.
package transcribe

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/becomeliminal/nim-orchestrator/core"
)

const (
	// NoSpeechText is used when the audio contained nothing recognisable.
	NoSpeechText = "Unable to recognize speech"

	// ServiceErrorPrefix starts the text used when the service fails.
	ServiceErrorPrefix = "Speech recognition service error: "
)

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Text is the request text for a transcription outcome. Failures and silence
// still produce text so that the request continues through the loop.
func Text(text string, err error) string {
	if err != nil {
		return ServiceErrorPrefix + err.Error()
	}
	if strings.TrimSpace(text) == "" {
		return NoSpeechText
	}
	return strings.TrimSpace(text)
}

// Config configures Whisper.
type Config struct {
	APIKey  string
	BaseURL string

	// Model defaults to whisper-1.
	Model string

	// Language is an optional ISO-639-1 hint.
	Language string

	Timeout time.Duration
}

// Whisper transcribes through the OpenAI audio API or a compatible server.
type Whisper struct {
	client   *openai.Client
	model    string
	language string
	timeout  time.Duration
}

// NewWhisper creates a Whisper transcriber.
func NewWhisper(cfg Config, opts ...option.RequestOption) *Whisper {
	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)
	client := openai.NewClient(reqOpts...)

	model := cfg.Model
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	return &Whisper{client: &client, model: model, language: cfg.Language, timeout: cfg.Timeout}
}

// Transcribe uploads audio and returns the recognised text.
func (w *Whisper) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filepath.Base(filename), contentType),
		Model: openai.AudioModel(w.model),
	}
	if w.language != "" {
		params.Language = openai.String(w.language)
	}

	start := time.Now()
	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", core.Upstream("transcription", fmt.Errorf("transcribe %s: %w", filename, err))
	}
	log.Printf("[TRANSCRIBE] %s transcribed in %s (%d chars)", filename, time.Since(start).Round(time.Millisecond), len(resp.Text))
	return resp.Text, nil
}
