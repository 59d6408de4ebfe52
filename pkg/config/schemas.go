package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas used to validate the JSON blobs
// that flow through Pylon import/export: extern provider folder args,
// module-declared generic config payloads, and toolchain descriptors.
// Nothing downstream trusts this JSON until it unifies cleanly with
// its named schema.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry pre-loaded with the built-in
// extern/module/toolchain schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	sr.registerBuiltins()
	return sr
}

func (sr *SchemaRegistry) registerBuiltins() {
	_ = sr.RegisterSchema("externArgs", builtinExternArgsSchema)
	_ = sr.RegisterSchema("toolchain", builtinToolchainSchema)
	_ = sr.RegisterSchema("moduleConfig", builtinModuleConfigSchema)
}

// RegisterSchema compiles and registers a CUE schema under name,
// overwriting any existing schema of the same name — the mechanism a
// Plyfile uses to extend validation beyond the built-ins.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("compile schema %s: %w", name, err)
	}
	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema unifies data with the named schema and
// reports the unification's concreteness errors, if any.
func (sr *SchemaRegistry) ValidateAgainstSchema(schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

const builtinExternArgsSchema = `
// Args schema for an extern provider's folderArgs — the key/value bag
// that, together with the provider name, identifies an Extern Folder.
#ExternArgs: {
	[string]: string
}
#ExternArgs
`

const builtinToolchainSchema = `
// Toolchain descriptor schema: the generator/platform/arch/default
// build options a provider's Status/Install/Instantiate is
// conditioned on.
#Toolchain: {
	generator?:     string
	platform?:      string
	toolset?:       string
	toolchainFile?: string
	buildType?:     string
	os:             string
	arch:           string
}
#Toolchain
`

const builtinModuleConfigSchema = `
// Generic config schema for a module's free-form config block, set
// via ModuleArgs.SetGenericConfig and validated before the
// Instantiator trusts it.
#ModuleConfig: {
	[string]: _
}
#ModuleConfig
`

// ValidateExternArgs validates a provider's folder args.
func (sr *SchemaRegistry) ValidateExternArgs(args map[string]string) error {
	return sr.ValidateAgainstSchema("externArgs", args)
}

// ValidateToolchain validates a toolchain descriptor.
func (sr *SchemaRegistry) ValidateToolchain(tc map[string]interface{}) error {
	return sr.ValidateAgainstSchema("toolchain", tc)
}

// ValidateModuleConfig validates a module's generic config block
// against a named schema, falling back to the permissive built-in
// #ModuleConfig schema if schemaName is empty.
func (sr *SchemaRegistry) ValidateModuleConfig(schemaName string, data interface{}) error {
	if schemaName == "" {
		schemaName = "moduleConfig"
	}
	return sr.ValidateAgainstSchema(schemaName, data)
}
