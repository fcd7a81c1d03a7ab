package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/becomeliminal/nim-orchestrator/memory"
)

const (
	defaultRecallK = 3
	maxRecallK     = 20
)

// RememberTool handles the remember MCP tool.
type RememberTool struct {
	memory memory.Memory
}

// NewRememberTool creates a RememberTool.
func NewRememberTool(m memory.Memory) *RememberTool {
	return &RememberTool{memory: m}
}

// Definition returns the MCP tool definition for remember.
func (t *RememberTool) Definition() mcp.Tool {
	return mcp.NewTool("remember",
		mcp.WithDescription("Store a piece of text in the assistant's semantic memory."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to remember"),
		),
	)
}

// Handle processes the remember tool call.
func (t *RememberTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}
	if err := t.memory.Remember(ctx, text); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("remember failed: %v", err)), nil
	}
	return mcp.NewToolResultText("Remembered."), nil
}

// RecallTool handles the recall MCP tool.
type RecallTool struct {
	memory memory.Memory
}

// NewRecallTool creates a RecallTool.
func NewRecallTool(m memory.Memory) *RecallTool {
	return &RecallTool{memory: m}
}

// Definition returns the MCP tool definition for recall.
func (t *RecallTool) Definition() mcp.Tool {
	return mcp.NewTool("recall",
		mcp.WithDescription("Find the stored memories closest in meaning to a query, closest first."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural-language query"),
		),
		mcp.WithNumber("k",
			mcp.Description("Max results (default: 3, max: 20)"),
		),
	)
}

// Handle processes the recall tool call.
func (t *RecallTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	k := intArg(req, "k", defaultRecallK)
	if k > maxRecallK {
		k = maxRecallK
	}

	texts, err := t.memory.Recall(ctx, query, k)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recall failed: %v", err)), nil
	}
	if len(texts) == 0 {
		return mcp.NewToolResultText("No memories found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d memories:\n\n", len(texts))
	for i, text := range texts {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, text)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}
