package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/kairoslabs/delegate/internal/errs"
	"github.com/kairoslabs/delegate/model"
)

// Category tags a tool with the broad kind of effect it has, used by
// Confirmation/risk-display layers upstream without needing to know every
// tool name individually.
type Category string

const (
	CategoryFilesystemRead  Category = "filesystem_read"
	CategoryFilesystemWrite Category = "filesystem_write"
	CategoryShell           Category = "shell"
	CategoryPython          Category = "python"
	CategoryConfig          Category = "config"
	CategoryMemory          Category = "memory"
	CategoryArtifact        Category = "artifact"
)

// maxResultBytes bounds a single tool result before truncation, matching the
// "caller's context budget" constraint in spec form; Dispatch truncates any
// handler output past this.
const maxResultBytes = 50 * 1024

// Context carries the process-local state a handler needs: the workspace
// root every filesystem tool is confined to, and the memory mutator that
// backs the memory.* tools. It deliberately does not carry a *memory.Store
// concrete type — MemoryMutator is a narrow interface so this package never
// imports memory, keeping the dependency one-directional (cmd/delegate wires
// a *memory.Store in as a MemoryMutator).
type Context struct {
	WorkspaceRoot string
	Memory        MemoryMutator
	Config        ConfigAccessor
}

// ConfigAccessor is the narrow surface the config.* tools need: dotted-path
// get/set over the engine's YAML config, without this package importing
// internal/config directly. *config.Config implements it.
type ConfigAccessor interface {
	Lookup(key string) (*yaml.Node, bool)
	Set(key string, value any) error
}

// Handler executes one tool invocation. Dispatch has already validated args
// against the tool's InputSchema by the time Handler runs, so a handler only
// needs to type-assert the fields it reads; the hand-rolled "is this field
// present and non-empty" checks scattered through handlers are a second,
// domain-specific layer (e.g. a path that resolves outside the workspace
// root is schema-valid but still rejected), not a substitute for schema
// validation.
type Handler func(ctx context.Context, tctx *Context, args map[string]any) (string, error)

// Definition is one entry in the fixed dispatch table.
type Definition struct {
	Name        string
	Description string
	Category    Category
	InputSchema map[string]any
	Handler     Handler

	// resolved is InputSchema compiled once at registration time by
	// Registry.register; Dispatch validates every call's args against it.
	resolved *jsonschema.Resolved
}

// Registry is the fixed built-in tool dispatch table, keyed by short name
// (without the "builtin." namespace prefix tools.Ident uses on the wire).
type Registry struct {
	defs map[string]*Definition
}

// NewRegistry builds the registry with every built-in tool registered.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]*Definition)}
	for _, d := range allDefinitions() {
		r.register(d)
	}
	return r
}

func (r *Registry) register(d *Definition) {
	if _, exists := r.defs[d.Name]; exists {
		panic(fmt.Sprintf("tools: duplicate registration for %q", d.Name))
	}
	resolved, err := compileSchema(d.InputSchema)
	if err != nil {
		panic(fmt.Sprintf("tools: %q has an invalid input schema: %v", d.Name, err))
	}
	d.resolved = resolved
	r.defs[d.Name] = d
}

func allDefinitions() []*Definition {
	var all []*Definition
	all = append(all, fileDefinitions()...)
	all = append(all, shellDefinitions()...)
	all = append(all, configDefinitions()...)
	all = append(all, memoryDefinitions()...)
	return all
}

// Names returns every registered tool's short name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get looks up a definition by its short name (without "builtin.").
func (r *Registry) Get(name string) (*Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// ToolDefinitions projects the registry into model.ToolDefinition for
// building a model Request's Tools field, namespacing every name under
// "builtin.".
func (r *Registry) ToolDefinitions() []*model.ToolDefinition {
	names := r.Names()
	defs := make([]*model.ToolDefinition, 0, len(names))
	for _, name := range names {
		d := r.defs[name]
		defs = append(defs, &model.ToolDefinition{
			Name:        "builtin." + d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
	}
	return defs
}

// Dispatch invokes the tool named by ident (a bare name or a "builtin."
// qualified one), validates args against its InputSchema, and truncates its
// result to the shared context budget.
func (r *Registry) Dispatch(ctx context.Context, tctx *Context, ident Ident, args map[string]any) (string, error) {
	name := string(ident)
	if n, ok := stripBuiltinPrefix(name); ok {
		name = n
	}
	d, ok := r.defs[name]
	if !ok {
		return "", errs.Errorf(errs.KindUnknownTool, "tools.dispatch", "no built-in tool named %q", name)
	}
	if err := validateArgs("tools.dispatch."+name, d.resolved, args); err != nil {
		return "", err
	}
	result, err := d.Handler(ctx, tctx, args)
	if err != nil {
		return "", err
	}
	return truncate(result), nil
}

func stripBuiltinPrefix(name string) (string, bool) {
	const prefix = "builtin."
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return name[len(prefix):], true
	}
	return name, false
}

func truncate(s string) string {
	if len(s) <= maxResultBytes {
		return s
	}
	return fmt.Sprintf("%s\n(truncated, total %d bytes)", s[:maxResultBytes], len(s))
}
