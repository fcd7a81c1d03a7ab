package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/becomeliminal/nim-orchestrator/assistant"
	"github.com/becomeliminal/nim-orchestrator/engine"
)

// AskTool handles the ask MCP tool.
type AskTool struct {
	assistant *assistant.Assistant
}

// NewAskTool creates an AskTool.
func NewAskTool(a *assistant.Assistant) *AskTool {
	return &AskTool{assistant: a}
}

// Definition returns the MCP tool definition for ask.
func (t *AskTool) Definition() mcp.Tool {
	return mcp.NewTool("ask",
		mcp.WithDescription(
			"Send a natural-language request to the assistant. It recalls related memories, "+
				"then answers directly, searches the web, or runs one of its capabilities.",
		),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The request, e.g. 'What's the weather in Oslo?'"),
		),
	)
}

// Handle processes the ask tool call.
func (t *AskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt := req.GetString("prompt", "")
	if prompt == "" {
		return mcp.NewToolResultError("'prompt' is required"), nil
	}

	out, err := t.assistant.HandleText(ctx, prompt)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("request failed: %v", err)), nil
	}
	if out.Type == engine.OutputError {
		return mcp.NewToolResultError(out.Text), nil
	}
	return mcp.NewToolResultText(out.Text), nil
}
