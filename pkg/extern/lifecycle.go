package extern

import (
	"context"

	"github.com/plywood-build/plywood/pkg/config"
	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/plywood-build/plywood/pkg/perrors"
)

// InstallGate is consulted before a Provider's Install step runs. It
// is implemented by pkg/policy.Engine in this repo's wiring, kept as
// an interface here so pkg/extern doesn't import OPA directly.
type InstallGate interface {
	EvaluateInstall(ctx context.Context, providerName string, args Args, tc Toolchain) (allowed bool, reason string, err error)
}

// SelectionPredicate picks one provider from several candidates that
// all support the requested toolchain, e.g. preferring a vendored
// provider over a system one. A nil predicate means "first match".
type SelectionPredicate func(ctx context.Context, candidates []*Provider) (*Provider, error)

// Coordinator ties the provider Registry, the on-disk FolderStore, an
// optional install policy gate, and an optional selection predicate
// together into the single entry point modules call to ensure an
// extern dependency is ready to use.
type Coordinator struct {
	Registry *Registry
	Folders  *FolderStore
	Gate     InstallGate
	Select   SelectionPredicate

	// Schemas, if set, validates a folder's Args against the
	// "externArgs" schema (or a provider's own ArgsSchema, when its
	// Manifest is registered via RegisterManifest) before Install runs.
	Schemas   *config.SchemaRegistry
	manifests map[string]*Manifest
}

// NewCoordinator constructs a Coordinator with no gate and
// first-match selection; set Gate/Select/Schemas afterward to opt in.
func NewCoordinator(reg *Registry, folders *FolderStore) *Coordinator {
	return &Coordinator{Registry: reg, Folders: folders, manifests: make(map[string]*Manifest)}
}

// RegisterManifest associates a loaded Manifest with a provider's
// fully-qualified name so EnsureInstalled can validate Args against
// the manifest's ArgsSchema instead of the built-in default.
func (c *Coordinator) RegisterManifest(fullyQualifiedName string, m *Manifest) {
	if c.manifests == nil {
		c.manifests = make(map[string]*Manifest)
	}
	c.manifests[fullyQualifiedName] = m
}

// EnsureInstalled resolves name to a concrete Provider (consulting
// Select if more than one candidate supports tc), checks its Status,
// runs Install through the Gate if the provider isn't already
// installed, and finally calls Instantiate — the
// Status -> Install -> Instantiate state machine every extern
// dependency goes through exactly once per folder.
func (c *Coordinator) EnsureInstalled(ctx context.Context, fs fsio.Adapter, name string, args Args, tc Toolchain) (Instance, error) {
	provider, err := c.resolve(ctx, name, tc)
	if err != nil {
		return Instance{}, err
	}

	folder, found := c.Folders.Find(provider.FullyQualifiedName(), args)
	if !found {
		folder, err = c.Folders.Create(provider.FullyQualifiedName(), SanitizeBaseName(provider.FullyQualifiedName()), args)
		if err != nil {
			return Instance{}, err
		}
	} else if folder.Success {
		return provider.Instantiate(folder, args)
	}

	status, err := provider.Status(ctx, folder, args)
	if err != nil {
		return Instance{}, err
	}
	switch status {
	case StatusInstalled:
		if err := c.Folders.MarkResult(folder, true); err != nil {
			return Instance{}, err
		}
		return provider.Instantiate(folder, args)
	case StatusUnsupported:
		return Instance{}, perrors.Structural("extern %q is not supported on this toolchain", name).WithResource(name)
	}

	if c.Schemas != nil {
		m := c.manifests[provider.FullyQualifiedName()]
		if m == nil {
			m = &Manifest{Name: provider.FullyQualifiedName()}
		}
		if err := m.ValidateArgs(c.Schemas, args); err != nil {
			return Instance{}, err
		}
	}

	if c.Gate != nil {
		allowed, reason, err := c.Gate.EvaluateInstall(ctx, provider.FullyQualifiedName(), args, tc)
		if err != nil {
			return Instance{}, err
		}
		if !allowed {
			return Instance{}, perrors.Structural("install of %q denied by policy: %s", provider.FullyQualifiedName(), reason).WithResource(name).WithCode("POLICY_DENIED")
		}
	}

	if err := provider.Install(ctx, fs, folder, args); err != nil {
		_ = c.Folders.MarkResult(folder, false)
		return Instance{}, perrors.IO(err).WithOperation("extern.install").WithResource(name)
	}
	if err := c.Folders.MarkResult(folder, true); err != nil {
		return Instance{}, err
	}
	return provider.Instantiate(folder, args)
}

func (c *Coordinator) resolve(ctx context.Context, name string, tc Toolchain) (*Provider, error) {
	if p, ok := c.Registry.Lookup(name); ok {
		return p, nil
	}
	candidates := c.Registry.Candidates(name, tc)
	if len(candidates) == 0 {
		return nil, perrors.Structural("no extern provider named %q supports this toolchain", name).WithResource(name)
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	if c.Select != nil {
		return c.Select(ctx, candidates)
	}
	return candidates[0], nil
}

// StarlarkSelect builds a SelectionPredicate that runs a small
// Starlark script, through the same sandboxed config.StarlarkEvaluator
// the rest of the repo's Starlark-driven configuration uses, to pick
// among candidates. The script receives a `names` input (the
// candidates' fully-qualified names) and must set a global `selected`
// to the chosen name; evaluator's own timeout and hermetic builtin set
// keep provider selection a pure, sandboxed decision rather than one
// that can touch the filesystem or network.
func StarlarkSelect(evaluator *config.StarlarkEvaluator, script string) SelectionPredicate {
	return func(ctx context.Context, candidates []*Provider) (*Provider, error) {
		names := make([]interface{}, len(candidates))
		byName := make(map[string]*Provider, len(candidates))
		for i, p := range candidates {
			fq := p.FullyQualifiedName()
			byName[fq] = p
			names[i] = fq
		}

		result, err := evaluator.Evaluate(ctx, script, map[string]interface{}{"names": names})
		if err != nil {
			return nil, perrors.Structural("starlark selection script failed: %v", err)
		}
		chosen, ok := result.Output["selected"].(string)
		if !ok {
			return nil, perrors.Structural("starlark selection script must set a string global named selected")
		}
		p, ok := byName[chosen]
		if !ok {
			return nil, perrors.Structural("starlark selection script returned unknown provider %q", chosen)
		}
		return p, nil
	}
}
