package tools

import "github.com/becomeliminal/nim-orchestrator/core"

// Schema helpers for building JSON Schema definitions.

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty creates a string property with optional description.
func StringProperty(description string) map[string]interface{} {
	prop := map[string]interface{}{
		"type": "string",
	}
	if description != "" {
		prop["description"] = description
	}
	return prop
}

// ArgumentSchema describes the JSON object argument extraction must return
// for a capability: one string property per declared argument, all required.
// Opaque and absent specs yield an open object.
func ArgumentSchema(spec core.ArgSpec) map[string]interface{} {
	props := make(map[string]interface{}, len(spec.Names))
	for _, name := range spec.Names {
		props[name] = StringProperty(spec.Descriptions[name])
	}
	return ObjectSchema(props, spec.Names...)
}

// MetadataFor renders the meta.json-shaped mapping for a descriptor, used for
// built-in capabilities that have no file on disk.
func MetadataFor(d core.ToolDescriptor) map[string]interface{} {
	meta := map[string]interface{}{}
	if d.Description != "" {
		meta["description"] = d.Description
	}
	switch d.Args.Form {
	case core.ArgsMapping:
		args := make(map[string]interface{}, len(d.Args.Names))
		for _, name := range d.Args.Names {
			args[name] = d.Args.Descriptions[name]
		}
		meta["args"] = args
	case core.ArgsList:
		args := make([]interface{}, len(d.Args.Names))
		for i, name := range d.Args.Names {
			args[i] = name
		}
		meta["args"] = args
	}
	return meta
}
