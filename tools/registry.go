// Package tools discovers and runs the assistant's capabilities.
//
// A capability is either a directory under the capability root holding an
// executable entry point, or a built-in Go function registered at startup.
// Directories are rescanned on every Discover call, so capabilities can be
// added or removed while the assistant is running.
package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/becomeliminal/nim-orchestrator/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMetaFile is the optional metadata file inside a capability directory.
const DefaultMetaFile = "meta.json"

// Func is the signature of a built-in capability.
type Func func(ctx context.Context, args map[string]any) (string, error)

// Builtin is a capability compiled into the binary.
type Builtin struct {
	Name        string
	Description string
	Args        core.ArgSpec
	Run         Func
}

// Descriptor returns the discovery view of b.
func (b *Builtin) Descriptor() core.ToolDescriptor {
	return core.ToolDescriptor{
		Name:        b.Name,
		Description: b.Description,
		Args:        b.Args,
		Builtin:     true,
	}
}

// Registry enumerates capabilities from the capability root and the set of
// registered built-ins.
type Registry struct {
	root     string
	metaFile string

	mu       sync.RWMutex
	builtins []*Builtin
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMetaFile overrides the metadata file name.
func WithMetaFile(name string) RegistryOption {
	return func(r *Registry) {
		r.metaFile = name
	}
}

// NewRegistry creates a registry rooted at root. An empty root disables
// directory discovery.
func NewRegistry(root string, opts ...RegistryOption) *Registry {
	r := &Registry{
		root:     root,
		metaFile: DefaultMetaFile,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the capability root.
func (r *Registry) Root() string {
	return r.root
}

// Register adds a built-in capability. Registering a name twice replaces
// the earlier entry.
func (r *Registry) Register(b *Builtin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.builtins {
		if existing.Name == b.Name {
			r.builtins[i] = b
			return
		}
	}
	r.builtins = append(r.builtins, b)
}

// Discover returns every capability: directories first in listing order,
// then built-ins whose names are not taken by a directory.
// A missing capability root is not an error.
func (r *Registry) Discover(ctx context.Context) ([]core.ToolDescriptor, error) {
	var descriptors []core.ToolDescriptor
	seen := map[string]bool{}

	dirs, err := r.scan()
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := r.describeDir(dir)
		seen[d.Name] = true
		descriptors = append(descriptors, d)
	}

	r.mu.RLock()
	for _, b := range r.builtins {
		if !seen[b.Name] {
			descriptors = append(descriptors, b.Descriptor())
		}
	}
	r.mu.RUnlock()

	log.Printf("[TOOLS] Discovered %d capabilities (%d on disk)", len(descriptors), len(dirs))
	return descriptors, nil
}

// Metadata returns the declared metadata of name, or an empty map when the
// capability is unknown or its metadata is missing or malformed.
func (r *Registry) Metadata(name string) map[string]any {
	if dir, ok := r.capabilityDir(name); ok {
		meta, err := r.readMeta(dir)
		if err != nil || meta.raw == nil {
			return map[string]any{}
		}
		return meta.raw
	}
	if b, ok := r.builtin(name); ok {
		return MetadataFor(b.Descriptor())
	}
	return map[string]any{}
}

// scan lists the qualifying capability directories under the root.
func (r *Registry) scan() ([]string, error) {
	if r.root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(r.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read capability root: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		dir := filepath.Join(r.root, e.Name())
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		if _, ok := entryPoint(dir); ok {
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}

// capabilityDir resolves name to a qualifying directory.
func (r *Registry) capabilityDir(name string) (string, bool) {
	if r.root == "" || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", false
	}
	dir := filepath.Join(r.root, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	if _, ok := entryPoint(dir); !ok {
		return "", false
	}
	return dir, true
}

func (r *Registry) builtin(name string) (*Builtin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.builtins {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}

func (r *Registry) describeDir(dir string) core.ToolDescriptor {
	d := core.ToolDescriptor{Name: filepath.Base(dir)}
	meta, err := r.readMeta(dir)
	if err != nil {
		log.Printf("[TOOLS] Ignoring metadata for %s: %v", d.Name, err)
		return d
	}
	d.Description = meta.description
	d.Args = meta.args
	return d
}

type metadata struct {
	raw         map[string]any
	description string
	args        core.ArgSpec
}

// readMeta parses the metadata file of dir. A missing file yields empty
// metadata and no error.
func (r *Registry) readMeta(dir string) (metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, r.metaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return metadata{}, nil
	}
	if err != nil {
		return metadata{}, err
	}

	var fields map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return metadata{}, fmt.Errorf("parse %s: %w", r.metaFile, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return metadata{}, fmt.Errorf("parse %s: %w", r.metaFile, err)
	}

	meta := metadata{raw: raw}
	if desc, ok := raw["description"]; ok && desc != nil {
		if s, isString := desc.(string); isString {
			meta.description = s
		} else {
			meta.description = strings.TrimSpace(string(fields["description"]))
		}
	}
	if args, ok := fields["args"]; ok {
		meta.args = core.ParseArgSpec(args)
	}
	return meta, nil
}

// entryPoint finds the executable "run" or "run.<ext>" file in dir.
// Candidates are tried in name order.
func entryPoint(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if name == "run" || strings.HasPrefix(name, "run.") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if info.Mode().Perm()&0o111 != 0 {
			return path, true
		}
	}
	return "", false
}
