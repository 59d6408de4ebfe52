package extern

import (
	"gopkg.in/yaml.v3"

	"github.com/plywood-build/plywood/pkg/config"
	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/plywood-build/plywood/pkg/perrors"
)

// Manifest is optional human-facing metadata about a provider —
// version, description, upstream URL — kept separate from the
// Provider itself (which is compiled-in Go, not data) so it can be
// authored and reviewed independently of the binary that implements
// it, the same manifest/binary split a provider plugin host uses.
type Manifest struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	Upstream    string `yaml:"upstream,omitempty"`

	// ArgsSchema, if set, names a pkg/config.SchemaRegistry schema that
	// a Coordinator validates a folder's Args against before Install
	// runs. Empty means the provider accepts any args.
	ArgsSchema string `yaml:"argsSchema,omitempty"`
}

// LoadManifest reads and parses a provider manifest file.
func LoadManifest(fs fsio.Adapter, path string) (*Manifest, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, perrors.Parse("invalid provider manifest %s: %v", path, err)
	}
	if m.Name == "" {
		return nil, perrors.SchemaMismatch("provider manifest %s is missing a name", path)
	}
	return &m, nil
}

// ValidateArgs checks args against the manifest's ArgsSchema, falling
// back to the registry's built-in externArgs schema when ArgsSchema is
// unset.
func (m *Manifest) ValidateArgs(registry *config.SchemaRegistry, args Args) error {
	schemaName := m.ArgsSchema
	if schemaName == "" {
		schemaName = "externArgs"
	}
	if err := registry.ValidateAgainstSchema(schemaName, map[string]string(args)); err != nil {
		return perrors.SchemaMismatch("provider %s args failed schema %s: %v", m.Name, schemaName, err)
	}
	return nil
}
