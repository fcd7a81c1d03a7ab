package engine

import (
	"context"
	"log"

	"github.com/becomeliminal/nim-orchestrator/core"
	"github.com/becomeliminal/nim-orchestrator/llm"
)

// noTool is the sentinel the model uses when nothing fits.
const noTool = "none"

type toolChoice struct {
	ToolName string `json:"tool_name" jsonschema:"description=Name of the selected tool or none"`
	Reason   string `json:"reason" jsonschema:"description=Brief explanation for the choice"`
}

// Selection is the outcome of SelectTool. Tool is nil when no capability fits.
type Selection struct {
	Tool   *core.ToolDescriptor
	Reason string
}

// SelectTool asks the model which single capability best serves request.
// It is independent of Run and is used by surfaces that let a client pick a
// capability before invoking it. An empty capability set, the "none"
// sentinel, an unparseable reply or an unknown name all select nothing.
func (e *Engine) SelectTool(ctx context.Context, request string) (*Selection, error) {
	snapshot, err := e.discover(ctx)
	if err != nil {
		return nil, err
	}
	if len(snapshot) == 0 {
		return &Selection{}, nil
	}

	raw, err := e.completeJSON(ctx, "select", selectionPrompt(request, snapshot), llm.SchemaFor(&toolChoice{}))
	if err != nil {
		return nil, err
	}

	var choice toolChoice
	body := core.StripFences(raw)
	if err := json.Unmarshal([]byte(body), &choice); err != nil {
		log.Printf("[ENGINE] Tool selection reply is not JSON: %q", truncateLog(raw, 200))
		return &Selection{}, nil
	}
	if choice.ToolName == "" || choice.ToolName == noTool {
		return &Selection{Reason: choice.Reason}, nil
	}

	desc, ok := core.FindTool(snapshot, choice.ToolName)
	if !ok {
		log.Printf("[ENGINE] Tool selection named unknown capability %q", choice.ToolName)
		return &Selection{Reason: choice.Reason}, nil
	}
	return &Selection{Tool: &desc, Reason: choice.Reason}, nil
}
