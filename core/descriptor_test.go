package core_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/becomeliminal/nim-orchestrator/core"
)

func TestParseArgSpec(t *testing.T) {
	cases := []struct {
		raw   string
		form  core.ArgForm
		names []string
	}{
		{"", core.ArgsNone, nil},
		{`{"location": "City name", "units": "metric or imperial"}`, core.ArgsMapping, []string{"location", "units"}},
		{`{"b": 1, "a": "x"}`, core.ArgsMapping, []string{"b", "a"}},
		{`["name"]`, core.ArgsList, []string{"name"}},
		{`[]`, core.ArgsList, nil},
		{`"location"`, core.ArgsOpaque, nil},
		{`null`, core.ArgsOpaque, nil},
		{`[1, 2]`, core.ArgsOpaque, nil},
	}
	for _, tc := range cases {
		spec := core.ParseArgSpec([]byte(tc.raw))
		if spec.Form != tc.form {
			t.Errorf("ParseArgSpec(%q): form %d, want %d", tc.raw, spec.Form, tc.form)
		}
		if !reflect.DeepEqual(spec.Declared(), tc.names) {
			t.Errorf("ParseArgSpec(%q): names %v, want %v", tc.raw, spec.Declared(), tc.names)
		}
	}
}

func TestToolDescriptor_Summary(t *testing.T) {
	cases := []struct {
		desc core.ToolDescriptor
		want string
	}{
		{
			core.ToolDescriptor{Name: "get_weather", Description: "Current weather", Args: core.ParseArgSpec([]byte(`{"location":"City"}`))},
			"- get_weather: Current weather (Args: location)",
		},
		{
			core.ToolDescriptor{Name: "new_project", Args: core.ParseArgSpec([]byte(`["name", "template"]`))},
			"- new_project: No description available (Args: name, template)",
		},
		{
			core.ToolDescriptor{Name: "clock", Description: "Time"},
			"- clock: Time",
		},
		{
			core.ToolDescriptor{Name: "odd", Description: "Odd", Args: core.ParseArgSpec([]byte(`42`))},
			"- odd: Odd (Args available)",
		},
	}
	for _, tc := range cases {
		if got := tc.desc.Summary(); got != tc.want {
			t.Errorf("Summary: got %q, want %q", got, tc.want)
		}
	}
}

func TestArgSpec_Lines(t *testing.T) {
	mapping := core.ParseArgSpec([]byte(`{"location":"City name"}`))
	if got := mapping.Lines(); got != "- location: City name" {
		t.Errorf("mapping lines: %q", got)
	}
	list := core.ParseArgSpec([]byte(`["a","b"]`))
	if got := list.Lines(); got != "- a\n- b" {
		t.Errorf("list lines: %q", got)
	}
}

func TestUpstream(t *testing.T) {
	if core.Upstream("llm", nil) != nil {
		t.Fatal("nil error should stay nil")
	}

	err := core.Upstream("llm", errors.New("connection refused"))
	if !core.IsRetryable(err) || core.IsTimeout(err) {
		t.Errorf("expected retryable non-timeout, got %v", err)
	}

	wrapped := core.Upstream("embedding", fmt.Errorf("embed: %w", context.DeadlineExceeded))
	if !core.IsTimeout(wrapped) {
		t.Errorf("expected timeout, got %v", wrapped)
	}

	if again := core.Upstream("other", wrapped); again != wrapped {
		t.Error("expected upstream errors to pass through unchanged")
	}
}
