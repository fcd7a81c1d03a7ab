package llm

import (
	"github.com/invopop/jsonschema"
	jsoniter "github.com/json-iterator/go"

	"github.com/becomeliminal/nim-orchestrator/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SchemaFor reflects the JSON schema of v's type, inlined without $ref
// definitions so it can be handed to providers' structured output modes.
func SchemaFor(v any) map[string]any {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)

	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// PlanSchema is the schema of core.ActionPlan.
func PlanSchema() map[string]any {
	return SchemaFor(&core.ActionPlan{})
}

// StringMapSchema describes an object whose listed properties are strings.
func StringMapSchema(names []string) map[string]any {
	props := map[string]any{}
	for _, n := range names {
		props[n] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   append([]string{}, names...),
	}
}
