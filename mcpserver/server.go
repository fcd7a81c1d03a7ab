// Package mcpserver exposes the assistant to MCP clients over stdio.
//
// Each tool follows the same shape:
//   - a struct holding its dependencies, injected via constructor
//   - Definition() returns the mcp.Tool schema
//   - Handle() processes the request and returns a result
//
// Failures are returned as tool error results, never as protocol errors, so
// the calling model sees the message.
package mcpserver

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/becomeliminal/nim-orchestrator/assistant"
	"github.com/becomeliminal/nim-orchestrator/core"
	"github.com/becomeliminal/nim-orchestrator/memory"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Lister returns the current capability snapshot. *tools.Catalog satisfies it.
type Lister interface {
	Snapshot() []core.ToolDescriptor
}

// Deps are the collaborators the MCP tools use.
type Deps struct {
	Assistant *assistant.Assistant

	// Memory enables remember and recall. Optional.
	Memory memory.Memory

	// Catalog backs list_tools. When nil the engine's registry is scanned.
	Catalog Lister
}

type tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// New creates the MCP server with every available tool registered.
func New(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"nim",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	registered := []tool{
		NewAskTool(deps.Assistant),
		NewListToolsTool(deps.Assistant, deps.Catalog),
		NewSelectTool(deps.Assistant),
	}
	if deps.Memory != nil {
		registered = append(registered, NewRememberTool(deps.Memory), NewRecallTool(deps.Memory))
	} else {
		log.Printf("[MCP] Memory disabled, remember and recall are not registered")
	}
	for _, t := range registered {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

// Serve runs s on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const instructions = `nim is a single-user assistant with semantic memory and local capabilities.
Use "ask" for any natural-language request: nim decides whether to answer from memory, search the web or run a capability.
Use "list_tools" and "select_tool" to inspect capabilities, and "remember" / "recall" to manage memory directly.`
