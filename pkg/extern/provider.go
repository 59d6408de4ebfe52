// Package extern implements the extern provider lifecycle (status,
// install, instantiate) and the on-disk extern folder store providers
// install into.
package extern

import (
	"context"
	"sort"

	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/plywood-build/plywood/pkg/perrors"
)

// Status is the result of asking a Provider whether it can, or
// already has, satisfied an extern dependency.
type Status int

const (
	StatusUnsupported Status = iota
	StatusSupportedNotInstalled
	StatusInstalled
	StatusInstallFailed
)

func (s Status) String() string {
	switch s {
	case StatusSupportedNotInstalled:
		return "supported_not_installed"
	case StatusInstalled:
		return "installed"
	case StatusInstallFailed:
		return "install_failed"
	default:
		return "unsupported"
	}
}

// Args is the argument bag a provider is instantiated with — e.g. a
// requested version range — flattened to strings since these
// ultimately come from Pylon text or command-line flags.
type Args map[string]string

// Key produces a stable, order-independent string for Args, used both
// as the extern folder's lookup key and as part of its on-disk
// descriptor.
func (a Args) Key() string {
	if len(a) == 0 {
		return ""
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for _, k := range keys {
		if s != "" {
			s += ","
		}
		s += k + "=" + a[k]
	}
	return s
}

// Toolchain describes the host/target toolchain context a Provider's
// Supports predicate is evaluated against.
type Toolchain struct {
	OS   string
	Arch string
}

// Provider is one compiled-in extern provider: these are Go functions
// linked into this binary, not remotely fetched plugins loaded
// through a sandboxed plugin host.
type Provider struct {
	Name        string
	Repo        string
	Supports    func(tc Toolchain) bool
	Status      func(ctx context.Context, folder *Folder, args Args) (Status, error)
	Install     func(ctx context.Context, fs fsio.Adapter, folder *Folder, args Args) error
	Instantiate func(folder *Folder, args Args) (Instance, error)
}

// FullyQualifiedName returns "repo.extern.name", the dotted form used
// to address a provider across repos.
func (p *Provider) FullyQualifiedName() string {
	return p.Repo + ".extern." + p.Name
}

// Instance is what a successfully-installed provider hands back to
// the module that depended on it: include paths, link libraries,
// whatever that extern exposes as build options.
type Instance struct {
	IncludeDirs []string
	LinkLibs    []string
	Defines     []string
}

// Registry is the process-wide extern provider table.
type Registry struct {
	providers map[string]*Provider
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*Provider)}
}

// Register installs p, keyed by its fully qualified name.
func (r *Registry) Register(p *Provider) error {
	key := p.FullyQualifiedName()
	if _, exists := r.providers[key]; exists {
		return perrors.Programmer("extern provider %q already registered", key)
	}
	r.providers[key] = p
	return nil
}

// Lookup returns the provider registered under the given fully
// qualified name.
func (r *Registry) Lookup(fqName string) (*Provider, bool) {
	p, ok := r.providers[fqName]
	return p, ok
}

// Candidates returns every registered provider named name (unqualified),
// across all repos, that supports tc — used when more than one repo
// offers an extern of the same name and a selection policy (Starlark
// predicate, or simply "first match") must pick one.
func (r *Registry) Candidates(name string, tc Toolchain) []*Provider {
	var out []*Provider
	for _, p := range r.providers {
		if p.Name == name && (p.Supports == nil || p.Supports(tc)) {
			out = append(out, p)
		}
	}
	return out
}
