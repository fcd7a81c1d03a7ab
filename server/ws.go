package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-orchestrator/core"
)

const maxFrameBytes = 1 << 20

type wsReply struct {
	Response  string `json:"response"`
	Action    string `json:"action,omitempty"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// handleWebSocket answers each prompt frame with one reply frame. Frames
// that are not {"prompt": ...} JSON are treated as plain text prompts.
// Turns on one connection run one after another.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SERVER] WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	log.Printf("[SERVER] WebSocket connected: %s", r.RemoteAddr)
	defer log.Printf("[SERVER] WebSocket disconnected: %s", r.RemoteAddr)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[SERVER] WebSocket read error: %v", err)
			}
			return
		}

		prompt := framePrompt(msg)
		if prompt == "" {
			if err := s.writeFrame(conn, wsReply{Error: "prompt is required"}); err != nil {
				return
			}
			continue
		}

		ctx, cancel := s.turnContext(r.Context())
		out, err := s.config.Assistant.HandleText(ctx, prompt)
		cancel()

		reply := wsReply{}
		if err != nil {
			reply.Error = err.Error()
			reply.Retryable = core.IsRetryable(err)
		} else {
			reply.Response = out.Text
			reply.Action = string(out.Action)
			if out.Error != nil {
				reply.Error = out.Error.Error()
			}
		}
		if err := s.writeFrame(conn, reply); err != nil {
			log.Printf("[SERVER] WebSocket write error: %v", err)
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, reply wsReply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func framePrompt(msg []byte) string {
	var req promptRequest
	if err := json.Unmarshal(msg, &req); err == nil {
		return strings.TrimSpace(req.Prompt)
	}
	// Fallback: treat as plain text
	return strings.TrimSpace(string(msg))
}
