package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/becomeliminal/nim-orchestrator/assistant"
	"github.com/becomeliminal/nim-orchestrator/core"
)

// ListToolsTool handles the list_tools MCP tool.
type ListToolsTool struct {
	assistant *assistant.Assistant
	catalog   Lister
}

// NewListToolsTool creates a ListToolsTool. catalog may be nil.
func NewListToolsTool(a *assistant.Assistant, catalog Lister) *ListToolsTool {
	return &ListToolsTool{assistant: a, catalog: catalog}
}

// Definition returns the MCP tool definition for list_tools.
func (t *ListToolsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_tools",
		mcp.WithDescription("List the capabilities the assistant can run, with their arguments."),
	)
}

// Handle processes the list_tools tool call.
func (t *ListToolsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var snapshot []core.ToolDescriptor
	if t.catalog != nil {
		snapshot = t.catalog.Snapshot()
	} else {
		var err error
		snapshot, err = t.assistant.Engine().Registry().Discover(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("discover failed: %v", err)), nil
		}
	}
	if len(snapshot) == 0 {
		return mcp.NewToolResultText("No capabilities available."), nil
	}

	lines := make([]string, 0, len(snapshot))
	for _, d := range snapshot {
		lines = append(lines, d.Summary())
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

// SelectTool handles the select_tool MCP tool.
type SelectTool struct {
	assistant *assistant.Assistant
}

// NewSelectTool creates a SelectTool.
func NewSelectTool(a *assistant.Assistant) *SelectTool {
	return &SelectTool{assistant: a}
}

// Definition returns the MCP tool definition for select_tool.
func (t *SelectTool) Definition() mcp.Tool {
	return mcp.NewTool("select_tool",
		mcp.WithDescription(
			"Ask the assistant which single capability best fits a request, without running it.",
		),
		mcp.WithString("request",
			mcp.Required(),
			mcp.Description("The request to match against the available capabilities"),
		),
	)
}

// Handle processes the select_tool tool call.
func (t *SelectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	request := req.GetString("request", "")
	if request == "" {
		return mcp.NewToolResultError("'request' is required"), nil
	}

	sel, err := t.assistant.Engine().SelectTool(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("selection failed: %v", err)), nil
	}
	if sel.Tool == nil {
		text := "No suitable tool available."
		if sel.Reason != "" {
			text += " " + sel.Reason
		}
		return mcp.NewToolResultText(text), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", sel.Tool.Summary())
	if sel.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", sel.Reason)
	}
	return mcp.NewToolResultText(b.String()), nil
}
