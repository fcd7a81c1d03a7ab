package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Action is the top-level choice a plan makes.
type Action string

const (
	ActionRespond   Action = "respond"
	ActionWebSearch Action = "web_search"
	ActionRunTool   Action = "run_tool"
)

// ActionPlan is the JSON object the planning completion must return.
// The struct tags double as the structured-output schema for providers
// that support one.
type ActionPlan struct {
	Action   Action         `json:"action" jsonschema:"enum=respond,enum=web_search,enum=run_tool,description=What to do next"`
	ToolName string         `json:"tool_name,omitempty" jsonschema:"description=Capability to run when action is run_tool"`
	Args     map[string]any `json:"args,omitempty" jsonschema:"description=Arguments for the capability when action is run_tool"`
	Response string         `json:"response,omitempty" jsonschema:"description=Direct answer when action is respond"`
}

// wirePlan is the lenient shape used for decoding. Models routinely put
// lists or strings where an object was asked for.
type wirePlan struct {
	Action   json.RawMessage `json:"action"`
	ToolName json.RawMessage `json:"tool_name"`
	Args     json.RawMessage `json:"args"`
	Response json.RawMessage `json:"response"`
}

// ParsePlan decodes a planning completion into an ActionPlan.
// Surrounding whitespace and a single Markdown code fence are tolerated.
// Anything that is not a JSON object yields an error wrapping ErrPlanParse.
func ParsePlan(raw string) (*ActionPlan, error) {
	body := StripFences(raw)
	if !strings.HasPrefix(body, "{") {
		return nil, fmt.Errorf("%w: completion is not a JSON object", ErrPlanParse)
	}

	var w wirePlan
	if err := jsonAPI.Unmarshal([]byte(body), &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanParse, err)
	}

	plan := &ActionPlan{
		Action:   Action(textOf(w.Action)),
		ToolName: textOf(w.ToolName),
		Response: textOf(w.Response),
	}
	if len(w.Args) > 0 && bytes.HasPrefix(bytes.TrimSpace(w.Args), []byte("{")) {
		var args map[string]any
		if err := jsonAPI.Unmarshal(w.Args, &args); err == nil {
			plan.Args = args
		}
	}
	return plan, nil
}

// textOf renders a JSON value as plain text: strings are unquoted, null and
// missing values are empty, anything else keeps its JSON form.
func textOf(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := jsonAPI.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// StripFences trims whitespace and removes a ```json ... ``` wrapper if the
// whole completion is fenced.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(s)
}

// Decision is the validated, tagged form of an ActionPlan.
// The concrete types are Respond, WebSearch, RunTool and UnknownAction.
type Decision interface {
	decision()
}

// Respond answers directly with Text.
type Respond struct {
	Text string
}

// WebSearch defers to the search collaborator.
type WebSearch struct{}

// RunTool invokes a capability. Args may be nil, in which case arguments are
// extracted from the request.
type RunTool struct {
	ToolName string
	Args     map[string]any
}

// UnknownAction carries an action string the loop does not understand,
// including the empty string when the field was missing.
type UnknownAction struct {
	Action string
}

func (Respond) decision()       {}
func (WebSearch) decision()     {}
func (RunTool) decision()       {}
func (UnknownAction) decision() {}

// Decide converts the plan into its tagged variant.
func (p *ActionPlan) Decide() Decision {
	switch p.Action {
	case ActionRespond:
		return Respond{Text: p.Response}
	case ActionWebSearch:
		return WebSearch{}
	case ActionRunTool:
		return RunTool{ToolName: p.ToolName, Args: p.Args}
	default:
		return UnknownAction{Action: string(p.Action)}
	}
}
