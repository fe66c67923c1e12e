package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Built-in schema names.
const (
	SchemaManifest  = "manifest"
	SchemaWorkspace = "workspace"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	// Built-in schemas are constants; a compile failure is a programming error.
	if err := sr.RegisterSchema(SchemaManifest, builtinManifestSchema, "#Manifest"); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema(SchemaWorkspace, builtinWorkspaceSchema, "#Workspace"); err != nil {
		panic(err)
	}
	return sr
}

// RegisterSchema compiles schema and registers the definition it declares
// under name.
func (sr *SchemaRegistry) RegisterSchema(name, schema, definition string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not declare %s", name, definition)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates decoded data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	// cue.Context is not safe for concurrent use.
	sr.mu.Lock()
	defer sr.mu.Unlock()

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s validation failed: %w", schemaName, err)
	}
	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinManifestSchema = `
// Package manifest (package.json)
#Manifest: {
	// Name overrides the folder-derived package name
	name?: string & !=""

	version?: string

	// Dependencies map repository identifiers to version constraints
	dependencies?: [=~"^[A-Za-z0-9][A-Za-z0-9_.-]*$"]: string

	// Defines become preprocessor definitions
	defines?: [=~"^[A-Za-z_][A-Za-z0-9_]*$"]: string | number | bool

	// Options are extra tool arguments per action
	options?: {
		compile?: [...string]
		archive?: [...string]
		link?: [...string]
	}

	...
}
`

const builtinWorkspaceSchema = `
// Workspace settings (epic.yaml)
#Workspace: {
	local_repo?: string
	toolchain?: "auto" | "llvm" | "gnu" | "msvc"
	arch?: "x86" | "x64"
	variant?: "debug" | "release"

	// Go duration string, e.g. "5m"
	operator_timeout?: string & =~"^[0-9]+(ns|us|ms|s|m|h)([0-9]+(ns|us|ms|s|m|h))*$"

	direct_outputs?: bool

	history?: {
		enabled?: bool
		path?: string
		keep?: int & >=0
	}

	telemetry?: {
		logging?: {
			level?: "debug" | "info" | "warn" | "error"
			format?: "console" | "json"
		}
		tracing?: {
			enabled?: bool
			exporter?: "stdout" | "otlp" | "none"
			endpoint?: string
		}
		metrics?: {
			enabled?: bool
			address?: string
		}
	}
}
`
