package core

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// ArgForm is the shape of a capability's declared arguments.
type ArgForm int

const (
	// ArgsNone means the metadata has no args key.
	ArgsNone ArgForm = iota

	// ArgsMapping is {"name": "description", ...}.
	ArgsMapping

	// ArgsList is ["name", ...].
	ArgsList

	// ArgsOpaque is any other value. The capability takes arguments but
	// their names are unknown.
	ArgsOpaque
)

// ArgSpec describes the arguments a capability declares in its metadata.
type ArgSpec struct {
	Form ArgForm

	// Names keeps declaration order for both mapping and list forms.
	Names []string

	// Descriptions is populated for the mapping form only.
	Descriptions map[string]string
}

// ParseArgSpec decodes the raw "args" value of a metadata file.
// An empty input means the key was absent.
func ParseArgSpec(raw []byte) ArgSpec {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return ArgSpec{Form: ArgsNone}
	}

	iter := jsoniter.ParseBytes(jsonAPI, raw)
	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		spec := ArgSpec{Form: ArgsMapping, Descriptions: map[string]string{}}
		iter.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
			spec.Names = append(spec.Names, key)
			if it.WhatIsNext() == jsoniter.StringValue {
				spec.Descriptions[key] = it.ReadString()
			} else {
				spec.Descriptions[key] = strings.TrimSpace(string(it.SkipAndReturnBytes()))
			}
			return true
		})
		if iter.Error != nil {
			return ArgSpec{Form: ArgsOpaque}
		}
		return spec

	case jsoniter.ArrayValue:
		spec := ArgSpec{Form: ArgsList}
		ok := true
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			if it.WhatIsNext() != jsoniter.StringValue {
				ok = false
				it.Skip()
				return true
			}
			spec.Names = append(spec.Names, it.ReadString())
			return true
		})
		if !ok || iter.Error != nil {
			return ArgSpec{Form: ArgsOpaque}
		}
		return spec

	default:
		return ArgSpec{Form: ArgsOpaque}
	}
}

// Declared returns the argument names in declaration order.
func (a ArgSpec) Declared() []string {
	return a.Names
}

// Lines renders one "- name: description" line per argument, as used in
// argument extraction prompts. Opaque and absent specs render nothing.
func (a ArgSpec) Lines() string {
	var lines []string
	for _, name := range a.Names {
		if a.Form == ArgsMapping {
			lines = append(lines, fmt.Sprintf("- %s: %s", name, a.Descriptions[name]))
		} else {
			lines = append(lines, "- "+name)
		}
	}
	return strings.Join(lines, "\n")
}

// ToolDescriptor is what discovery knows about one capability.
type ToolDescriptor struct {
	Name        string
	Description string
	Args        ArgSpec

	// Builtin marks capabilities compiled into the binary rather than found
	// under the capability root.
	Builtin bool
}

// Summary renders the one-line form used in planning prompts, e.g.
// "- get_weather: Current weather (Args: location)".
func (d ToolDescriptor) Summary() string {
	desc := d.Description
	if desc == "" {
		desc = "No description available"
	}

	var args string
	switch d.Args.Form {
	case ArgsMapping, ArgsList:
		args = fmt.Sprintf(" (Args: %s)", strings.Join(d.Args.Names, ", "))
	case ArgsOpaque:
		args = " (Args available)"
	}
	return fmt.Sprintf("- %s: %s%s", d.Name, desc, args)
}

// FindTool returns the descriptor named name from a snapshot.
func FindTool(snapshot []ToolDescriptor, name string) (ToolDescriptor, bool) {
	for _, d := range snapshot {
		if d.Name == name {
			return d, true
		}
	}
	return ToolDescriptor{}, false
}
