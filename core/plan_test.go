package core_test

import (
	"errors"
	"testing"

	"github.com/becomeliminal/nim-orchestrator/core"
)

func TestParsePlan_Respond(t *testing.T) {
	plan, err := core.ParsePlan(`{"action":"respond","response":"4"}`)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	d, ok := plan.Decide().(core.Respond)
	if !ok {
		t.Fatalf("expected Respond, got %T", plan.Decide())
	}
	if d.Text != "4" {
		t.Errorf("expected response %q, got %q", "4", d.Text)
	}
}

func TestParsePlan_RunToolWithArgs(t *testing.T) {
	plan, err := core.ParsePlan(`{"action":"run_tool","tool_name":"get_weather","args":{"location":"Oslo"},"response":""}`)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	d, ok := plan.Decide().(core.RunTool)
	if !ok {
		t.Fatalf("expected RunTool, got %T", plan.Decide())
	}
	if d.ToolName != "get_weather" {
		t.Errorf("tool name: got %q", d.ToolName)
	}
	if d.Args["location"] != "Oslo" {
		t.Errorf("args: got %v", d.Args)
	}
}

func TestParsePlan_NonObjectArgsAreDropped(t *testing.T) {
	plan, err := core.ParsePlan(`{"action":"run_tool","tool_name":"x","args":["a"]}`)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if plan.Args != nil {
		t.Errorf("expected nil args, got %v", plan.Args)
	}
}

func TestParsePlan_Fenced(t *testing.T) {
	raw := "```json\n{\"action\":\"web_search\"}\n```"
	plan, err := core.ParsePlan(raw)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if _, ok := plan.Decide().(core.WebSearch); !ok {
		t.Fatalf("expected WebSearch, got %T", plan.Decide())
	}
}

func TestParsePlan_Failures(t *testing.T) {
	cases := []string{
		"",
		"I think you should search the web.",
		`["respond"]`,
		`null`,
		`{"action": "respond",`,
	}
	for _, raw := range cases {
		if _, err := core.ParsePlan(raw); !errors.Is(err, core.ErrPlanParse) {
			t.Errorf("ParsePlan(%q): expected ErrPlanParse, got %v", raw, err)
		}
	}
}

func TestParsePlan_UnknownAndMissingAction(t *testing.T) {
	for raw, want := range map[string]string{
		`{"action":"dance"}`:   "dance",
		`{"response":"hi"}`:    "",
		`{"action":null}`:      "",
		`{"action":"RESPOND"}`: "RESPOND",
	} {
		plan, err := core.ParsePlan(raw)
		if err != nil {
			t.Fatalf("ParsePlan(%q): %v", raw, err)
		}
		d, ok := plan.Decide().(core.UnknownAction)
		if !ok {
			t.Fatalf("ParsePlan(%q): expected UnknownAction, got %T", raw, plan.Decide())
		}
		if d.Action != want {
			t.Errorf("ParsePlan(%q): action %q, want %q", raw, d.Action, want)
		}
	}
}

func TestParsePlan_MissingResponseIsEmpty(t *testing.T) {
	plan, err := core.ParsePlan(`{"action":"respond"}`)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if d := plan.Decide().(core.Respond); d.Text != "" {
		t.Errorf("expected empty response, got %q", d.Text)
	}
}
