// Package graph implements the declarative build graph model: targets,
// options, dependencies and source groups carrying per-configuration
// bitmasks, plus the leaves-first inheritance engine that resolves a
// target's effective settings from its dependency closure.
package graph

import "github.com/plywood-build/plywood/pkg/perrors"

// Bits is a per-configuration bitmask: bit i is set when configuration
// i (by index into the owning Graph's ConfigSet) is affected. At most
// 64 configurations can be represented at once — a deliberate width
// limit rather than a growable bitset.
type Bits uint64

// Set returns a copy of b with bit i set.
func (b Bits) Set(i int) Bits { return b | (1 << uint(i)) }

// Has reports whether bit i is set.
func (b Bits) Has(i int) bool { return b&(1<<uint(i)) != 0 }

// Any reports whether any bit is set.
func (b Bits) Any() bool { return b != 0 }

// ConfigSet names the configurations (e.g. "debug", "release") a
// Graph's Bits fields index into, in index order.
type ConfigSet []string

// AllBits returns a Bits value with one bit set per entry in cs.
func (cs ConfigSet) AllBits() Bits {
	var b Bits
	for i := range cs {
		b = b.Set(i)
	}
	return b
}

// IndexOf returns the index of name in cs, or -1.
func (cs ConfigSet) IndexOf(name string) int {
	for i, n := range cs {
		if n == name {
			return i
		}
	}
	return -1
}

// TargetKind distinguishes the handful of target shapes the build
// graph supports.
type TargetKind int

const (
	KindInvalid TargetKind = iota
	KindLib
	KindExecutable
	// KindObjectGroup compiles but never archives: dependents link its
	// object files directly instead of a library.
	KindObjectGroup
	// KindHeaderOnly has no compile step of its own; it exists purely
	// to propagate include dirs and defines to dependents and never
	// appears on a link line.
	KindHeaderOnly
)

// String renders a TargetKind for logs, metrics labels, and diagnostics.
func (k TargetKind) String() string {
	switch k {
	case KindLib:
		return "library"
	case KindExecutable:
		return "executable"
	case KindObjectGroup:
		return "object_group"
	case KindHeaderOnly:
		return "header_only"
	default:
		return "invalid"
	}
}

// SourceFile is one compiled input of a Target.
type SourceFile struct {
	Path    string
	Enabled Bits
}

// SourceGroup is a named, independently-enabled collection of source
// files (e.g. a platform-specific subset).
type SourceGroup struct {
	Name    string
	Files   []SourceFile
	Enabled Bits
}

// Option is one build option a Target or its dependents can read:
// an include path, a preprocessor define, a linker flag, and so on.
// Public options propagate to dependents; private ones don't.
type Option struct {
	Category string // "include_dir", "define", "link_lib", "compile_flag", ...
	Value    string
	Enabled  Bits
	Public   Bits // subset of Enabled that also propagates to dependents
}

// Visibility classifies an add_include_dir/add_target/add_extern/
// set_preprocessor_definition call made by a module function: Public
// exposes the entry to the target's own dependents, Private stops it
// at the target itself.
type Visibility int

const (
	Private Visibility = iota
	Public
)

func (v Visibility) String() string {
	if v == Public {
		return "public"
	}
	return "private"
}

// Mask returns the public-bits an entry enabled in enabled gets under
// this visibility: the full enabled set for Public, none for Private.
// Building Option.Public/Dependency.Public this way keeps the
// public_bits ⊆ enabled_bits invariant true by construction.
func (v Visibility) Mask(enabled Bits) Bits {
	if v == Public {
		return enabled
	}
	return 0
}

// DependencyKind distinguishes how one target depends on another.
type DependencyKind int

const (
	DepInvalid DependencyKind = iota
	// DepBuild is a normal build dependency: the dependency's public
	// options and linker inputs are inherited.
	DepBuild
	// DepRun is a run-time-only dependency (e.g. a data file target)
	// that doesn't affect compilation or linking.
	DepRun
)

// Dependency is one edge of the build graph: target's dependency on
// target named TargetName, gated per-configuration. Public is the
// subset of Enabled in which this edge is itself a public dependency
// — i.e. in which a third target depending on the target that owns
// this edge should also see TargetName's public options. A private
// edge (Public == 0) still has TargetName's public options merged
// into the owning target, but stops there: the merged copies get
// their own Public bits reduced to this edge's Public AND the
// option's original Public.
type Dependency struct {
	TargetName string
	Kind       DependencyKind
	Enabled    Bits
	Public     Bits
}

// Target is one node of the build graph, prior to inheritance
// resolution.
type Target struct {
	Name      string
	Kind      TargetKind
	Sources   []SourceGroup
	Options   []Option
	Deps      []Dependency
	DefinedAt string // repo-relative path, for diagnostics

	// DynamicLinkPrefix, when non-empty, is the macro prefix used for
	// this target's symbol visibility defines: code compiled into the
	// same shared container sees <PREFIX>_EXPORTING, dependents in
	// other containers see <PREFIX>_IMPORTING.
	DynamicLinkPrefix string

	// SharedContainer names the shared library this target's objects
	// are linked into. Empty means the target links statically into
	// whatever consumes it.
	SharedContainer string
}

// HasBuildStepBits returns the configurations in which this target
// actually has compile inputs: the union of its source files' enabled
// bits, each restricted to its group's. Distinct from the configs a
// target is enabled in — a header-only target is enabled everywhere
// its dependents are, yet never has a build step.
func (t *Target) HasBuildStepBits() Bits {
	if t.Kind == KindHeaderOnly {
		return 0
	}
	var b Bits
	for _, g := range t.Sources {
		for _, f := range g.Files {
			b |= f.Enabled & g.Enabled
		}
	}
	return b
}

// Graph is a fully-populated, not-yet-resolved build graph: every
// Target that was instantiated, plus the ConfigSet they're expressed
// over.
type Graph struct {
	Configs ConfigSet
	Targets map[string]*Target
	// order preserves first-instantiation order, used for
	// deterministic inheritance traversal and diagnostics.
	order []string
}

// NewGraph constructs an empty Graph over the given configurations.
func NewGraph(configs ConfigSet) *Graph {
	return &Graph{Configs: configs, Targets: make(map[string]*Target)}
}

// AddTarget registers t, returning a structural error if a target of
// the same name already exists (module instantiation should have
// deduplicated before reaching here; a collision here is a bug in the
// caller, not in user input, so it's still reported as Structural
// since it reflects a real build-graph conflict the user caused by
// naming two targets the same).
func (g *Graph) AddTarget(t *Target) error {
	if _, exists := g.Targets[t.Name]; exists {
		return perrors.Structural("target %q is already defined", t.Name).WithResource(t.Name)
	}
	g.Targets[t.Name] = t
	g.order = append(g.order, t.Name)
	return nil
}

// Order returns target names in first-instantiation order.
func (g *Graph) Order() []string { return append([]string(nil), g.order...) }
