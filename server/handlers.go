package server

import (
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"

	"github.com/becomeliminal/nim-orchestrator/core"
	"github.com/becomeliminal/nim-orchestrator/engine"
	"github.com/becomeliminal/nim-orchestrator/tools"
)

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type promptResponse struct {
	Response string `json:"response"`
	Action   string `json:"action,omitempty"`
	Error    string `json:"error,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

type toolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	Builtin     bool           `json:"builtin"`
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	prompt, err := readPrompt(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := s.turnContext(r.Context())
	defer cancel()

	out, err := s.config.Assistant.HandleText(ctx, prompt)
	s.reply(w, out, err)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field \"file\" is required"})
		return
	}
	defer file.Close()

	ctx, cancel := s.turnContext(r.Context())
	defer cancel()

	out, err := s.config.Assistant.HandleAudio(ctx, header.Filename, file)
	s.reply(w, out, err)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	snapshot := []toolInfo{}
	for _, d := range s.listTools(r) {
		snapshot = append(snapshot, toolInfo{
			Name:        d.Name,
			Description: d.Description,
			Metadata:    tools.MetadataFor(d),
			Builtin:     d.Builtin,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": snapshot})
}

func (s *Server) listTools(r *http.Request) []core.ToolDescriptor {
	if s.config.Catalog != nil {
		return s.config.Catalog.Snapshot()
	}
	snapshot, err := s.config.Assistant.Engine().Registry().Discover(r.Context())
	if err != nil {
		log.Printf("[SERVER] Capability listing failed: %v", err)
		return nil
	}
	return snapshot
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) reply(w http.ResponseWriter, out *engine.Output, err error) {
	if err != nil {
		log.Printf("[SERVER] Request failed: %v", err)
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), Retryable: core.IsRetryable(err)})
		return
	}
	resp := promptResponse{Response: out.Text, Action: string(out.Action)}
	if out.Type == engine.OutputError && out.Error != nil {
		resp.Error = out.Error.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// readPrompt accepts either a JSON body or a "prompt" form field.
func readPrompt(r *http.Request) (string, error) {
	var prompt string
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body promptRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
			return "", errors.New("invalid JSON body")
		}
		prompt = body.Prompt
	} else {
		prompt = r.FormValue("prompt")
	}
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt is required")
	}
	return prompt, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[SERVER] Failed to write response: %v", err)
	}
}
