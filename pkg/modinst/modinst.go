// Package modinst implements the Module Instantiator: the registry of
// native Go module functions, the ModuleArgs handle they operate on,
// and the deduplicated (target, config) instantiation driver.
package modinst

import (
	"context"
	"fmt"
	"sort"

	"github.com/plywood-build/plywood/pkg/extern"
	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/plywood-build/plywood/pkg/graph"
	"github.com/plywood-build/plywood/pkg/perrors"
	"github.com/plywood-build/plywood/pkg/telemetry"
)

// ModuleFunc is a native Go function that populates one Target's
// sources, options and dependencies. Registering one binds a module
// name to the code that describes how to build it.
type ModuleFunc func(args *ModuleArgs) error

// Repo groups related modules under a name and is the addressing
// unit for cross-repo module references ("repo.module").
type Repo struct {
	Name string
	Root string
}

// Registry is the process-wide module function table, analogous to
// pkg/reflect.Registry but for build modules instead of reflected
// types.
type Registry struct {
	repos   map[string]Repo
	modules map[string]ModuleFunc // fully-qualified "repo.module" -> func
}

// NewRegistry constructs an empty module Registry.
func NewRegistry() *Registry {
	return &Registry{repos: make(map[string]Repo), modules: make(map[string]ModuleFunc)}
}

// AddRepo registers a repo; it is a programmer error to register the
// same repo name twice with a different root.
func (r *Registry) AddRepo(repo Repo) error {
	if existing, ok := r.repos[repo.Name]; ok && existing.Root != repo.Root {
		return perrors.Programmer("repo %q already registered with a different root", repo.Name)
	}
	r.repos[repo.Name] = repo
	return nil
}

// Register installs a module function under "repoName.moduleName".
func (r *Registry) Register(repoName, moduleName string, fn ModuleFunc) error {
	if _, ok := r.repos[repoName]; !ok {
		return perrors.Programmer("cannot register module %q: repo %q not registered", moduleName, repoName)
	}
	key := repoName + "." + moduleName
	if _, exists := r.modules[key]; exists {
		return perrors.Programmer("module %q already registered", key)
	}
	r.modules[key] = fn
	return nil
}

// Lookup resolves a possibly-unqualified module reference against
// repoHint (the requesting module's own repo), falling back to a
// fully-qualified "repo.module" form.
func (r *Registry) Lookup(ref string, repoHint string) (ModuleFunc, string, bool) {
	if fn, ok := r.modules[ref]; ok {
		return fn, ref, true
	}
	qualified := repoHint + "." + ref
	if fn, ok := r.modules[qualified]; ok {
		return fn, qualified, true
	}
	return nil, "", false
}

// ModuleArgs is the handle a ModuleFunc receives. It accumulates a
// Target's shape; Instantiator.Run commits the result into the Graph
// only once the function returns without error, so a half-described
// target never becomes visible to inheritance.
type ModuleArgs struct {
	target *graph.Target
	inst   *Instantiator
	repo   string
}

// Name returns the target name being built.
func (a *ModuleArgs) Name() string { return a.target.Name }

// SetKind sets the target's kind (library, executable, object group).
func (a *ModuleArgs) SetKind(k graph.TargetKind) { a.target.Kind = k }

// AddSourceGroup appends a source group to the target.
func (a *ModuleArgs) AddSourceGroup(g graph.SourceGroup) { a.target.Sources = append(a.target.Sources, g) }

// AddOption appends an option to the target unchanged. Module
// functions that need visibility bookkeeping should prefer
// AddIncludeDir/SetPreprocessorDefinition, which compute Public for
// the caller; AddOption remains for options with no public/private
// distinction (e.g. link_lib entries derived elsewhere).
func (a *ModuleArgs) AddOption(o graph.Option) { a.target.Options = append(a.target.Options, o) }

// AddIncludeDir records dir as an include_dir option, visible to
// dependents when vis is Public.
func (a *ModuleArgs) AddIncludeDir(vis graph.Visibility, dir string, enabled graph.Bits) {
	a.target.Options = append(a.target.Options, graph.Option{
		Category: "include_dir", Value: dir, Enabled: enabled, Public: vis.Mask(enabled),
	})
}

// SetPreprocessorDefinition records define (e.g. "NAME" or
// "NAME=value") as a define option, visible to dependents when vis is
// Public.
func (a *ModuleArgs) SetPreprocessorDefinition(vis graph.Visibility, define string, enabled graph.Bits) {
	a.target.Options = append(a.target.Options, graph.Option{
		Category: "define", Value: define, Enabled: enabled, Public: vis.Mask(enabled),
	})
}

// SetPrecompiledHeader designates path as this target's precompiled
// header; precompiled headers are never shared with dependents, so
// this carries no visibility.
func (a *ModuleArgs) SetPrecompiledHeader(path string, enabled graph.Bits) {
	a.target.Options = append(a.target.Options, graph.Option{
		Category: "precompiled_header", Value: path, Enabled: enabled,
	})
}

// AddNonParticipatingFiles records files as a source group excluded
// from unity-build and precompiled-header participation.
func (a *ModuleArgs) AddNonParticipatingFiles(files []string, enabled graph.Bits) {
	group := graph.SourceGroup{Name: "non_participating", Enabled: enabled}
	for _, f := range files {
		group.Files = append(group.Files, graph.SourceFile{Path: f, Enabled: enabled})
	}
	a.target.Sources = append(a.target.Sources, group)
}

// AddTarget instantiates (if needed) and records a dependency on the
// module named ref, resolved against this module's own repo. vis
// determines whether ref's public options keep propagating to this
// target's own dependents through the dependency edge's public bits.
func (a *ModuleArgs) AddTarget(vis graph.Visibility, ref string, kind graph.DependencyKind, enabled graph.Bits) error {
	_, qualified, ok := a.inst.registry.Lookup(ref, a.repo)
	if !ok {
		return perrors.Structural("module %q referenced by %q not found", ref, a.target.Name).WithResource(a.target.Name)
	}
	if err := a.inst.instantiate(a.inst.ctx, qualified, a.repo); err != nil {
		return err
	}
	a.target.Deps = append(a.target.Deps, graph.Dependency{
		TargetName: qualified, Kind: kind, Enabled: enabled, Public: vis.Mask(enabled),
	})
	return nil
}

// AddExtern resolves the extern dependency named qualifiedName
// through the Instantiator's Extern Coordinator (Status -> Install ->
// Instantiate) and merges the resulting include
// dirs, link libs and defines into this target as options, gated by
// the same visibility machinery as an in-tree AddTarget dependency.
func (a *ModuleArgs) AddExtern(vis graph.Visibility, qualifiedName string, args extern.Args, enabled graph.Bits) error {
	if a.inst.Externs == nil {
		return perrors.Programmer("add_extern(%q) called but no extern Coordinator is configured on this Instantiator", qualifiedName)
	}
	inst, err := a.inst.Externs.EnsureInstalled(a.inst.ctx, a.inst.FS, qualifiedName, args, a.inst.Toolchain)
	if err != nil {
		return err
	}
	pub := vis.Mask(enabled)
	for _, d := range inst.IncludeDirs {
		a.target.Options = append(a.target.Options, graph.Option{Category: "include_dir", Value: d, Enabled: enabled, Public: pub})
	}
	for _, l := range inst.LinkLibs {
		a.target.Options = append(a.target.Options, graph.Option{Category: "link_lib", Value: l, Enabled: enabled, Public: pub})
	}
	for _, d := range inst.Defines {
		a.target.Options = append(a.target.Options, graph.Option{Category: "define", Value: d, Enabled: enabled, Public: pub})
	}
	return nil
}

// Instantiator drives module instantiation: given a set of requested
// top-level targets, it resolves their full dependency closure,
// invoking each module function at most once per target name, keyed
// by the fully-qualified "repo.module" string.
type Instantiator struct {
	registry     *Registry
	graph        *graph.Graph
	instantiated map[string]bool
	errs         []error
	ctx          context.Context

	// Externs, FS and Toolchain back AddExtern calls. Externs is nil
	// by default: a module function that calls AddExtern without one
	// configured gets a programmer error rather than a silent no-op.
	Externs   *extern.Coordinator
	FS        fsio.Adapter
	Toolchain extern.Toolchain
}

// NewInstantiator constructs an Instantiator over reg, populating g.
func NewInstantiator(reg *Registry, g *graph.Graph) *Instantiator {
	return &Instantiator{registry: reg, graph: g, instantiated: make(map[string]bool)}
}

// Run instantiates every target named in roots (each either
// unqualified, resolved against repoHint, or fully qualified),
// returning every structural error encountered rather than stopping
// at the first one, so a user sees all broken module references in
// one pass.
func (inst *Instantiator) Run(ctx context.Context, roots []string, repoHint string) error {
	inst.ctx = ctx
	for _, name := range roots {
		_, qualified, ok := inst.registry.Lookup(name, repoHint)
		if !ok {
			inst.errs = append(inst.errs, perrors.Structural("requested module %q not found", name))
			continue
		}
		if err := inst.instantiate(ctx, qualified, repoHint); err != nil {
			inst.errs = append(inst.errs, err)
		}
	}

	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		counts := make(map[graph.TargetKind]int)
		for name := range inst.instantiated {
			if t, ok := inst.graph.Targets[name]; ok {
				counts[t.Kind]++
			}
		}
		for kind, n := range counts {
			tel.Metrics.SetTargetCount(kind.String(), "instantiated", float64(n))
		}
	}

	if len(inst.errs) > 0 {
		return joinErrors(inst.errs)
	}
	return nil
}

func (inst *Instantiator) instantiate(ctx context.Context, qualified string, repoHint string) error {
	if inst.instantiated[qualified] {
		return nil
	}
	inst.instantiated[qualified] = true

	fn, ok := inst.registry.modules[qualified]
	if !ok {
		return perrors.Structural("module %q not found", qualified)
	}
	dot := -1
	for i, c := range qualified {
		if c == '.' {
			dot = i
			break
		}
	}
	repo := repoHint
	if dot >= 0 {
		repo = qualified[:dot]
	}

	target := &graph.Target{Name: qualified, DefinedAt: qualified}
	args := &ModuleArgs{target: target, inst: inst, repo: repo}
	if err := fn(args); err != nil {
		return perrors.Structural("instantiating %q: %v", qualified, err).WithResource(qualified)
	}
	if err := inst.graph.AddTarget(target); err != nil {
		return err
	}
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.SetTargetState(qualified, target.Kind.String(), true)
		_ = tel.Events.PublishTargetStateChanged(qualified, "", "instantiated")
	}
	return nil
}

// Errors returns every structural error collected during Run, in
// encounter order.
func (inst *Instantiator) Errors() []error { return inst.errs }

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	sort.Strings(msgs)
	return perrors.Structural("%d errors instantiating modules:\n%s", len(errs), joinLines(msgs)).WithCode("MULTI")
}

func joinLines(lines []string) string {
	s := ""
	for i, l := range lines {
		if i > 0 {
			s += "\n"
		}
		s += fmt.Sprintf("  - %s", l)
	}
	return s
}
