package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSimpleGraph(t *testing.T) *Graph {
	t.Helper()
	configs := ConfigSet{"debug", "release"}
	g := NewGraph(configs)

	core := &Target{
		Name: "core",
		Kind: KindLib,
		Options: []Option{
			{Category: "include_dir", Value: "core/include", Enabled: configs.AllBits(), Public: configs.AllBits()},
			{Category: "define", Value: "CORE=1", Enabled: configs.AllBits(), Public: configs.AllBits()},
		},
	}
	app := &Target{
		Name: "app",
		Kind: KindExecutable,
		Deps: []Dependency{{TargetName: "core", Kind: DepBuild, Enabled: configs.AllBits()}},
	}
	require.NoError(t, g.AddTarget(core))
	require.NoError(t, g.AddTarget(app))
	return g
}

func TestInheritancePropagatesPublicOptions(t *testing.T) {
	g := buildSimpleGraph(t)
	e := NewEngine(g)
	resolved, err := e.ResolveAll(0)
	require.NoError(t, err)

	app := resolved["app"]
	require.NotNil(t, app)
	found := false
	for _, o := range app.Options {
		if o.Category == "include_dir" && o.Value == "core/include" {
			found = true
		}
	}
	assert.True(t, found)
	assert.Contains(t, app.LinkOrder, "core")
}

func TestPrivateDependencyStopsPublicOptionPropagation(t *testing.T) {
	configs := ConfigSet{"debug"}
	g := NewGraph(configs)

	lib := &Target{
		Name: "lib",
		Kind: KindLib,
		Options: []Option{
			{Category: "include_dir", Value: "lib/include", Enabled: configs.AllBits(), Public: configs.AllBits()},
		},
	}
	app := &Target{
		Name: "app",
		Kind: KindLib,
		Deps: []Dependency{{TargetName: "lib", Kind: DepBuild, Enabled: configs.AllBits(), Public: Private.Mask(configs.AllBits())}},
	}
	other := &Target{
		Name: "other",
		Kind: KindExecutable,
		Deps: []Dependency{{TargetName: "app", Kind: DepBuild, Enabled: configs.AllBits(), Public: Public.Mask(configs.AllBits())}},
	}
	require.NoError(t, g.AddTarget(lib))
	require.NoError(t, g.AddTarget(app))
	require.NoError(t, g.AddTarget(other))

	e := NewEngine(g)
	resolved, err := e.ResolveAll(0)
	require.NoError(t, err)

	appHasInclude := false
	for _, o := range resolved["app"].Options {
		if o.Category == "include_dir" && o.Value == "lib/include" {
			appHasInclude = true
		}
	}
	assert.True(t, appHasInclude, "app privately depends on lib, so app still needs lib/include to build")

	for _, o := range resolved["other"].Options {
		assert.Falsef(t, o.Category == "include_dir" && o.Value == "lib/include",
			"other must not inherit lib/include through app's private dependency on lib")
	}
}

func TestInheritanceDetectsCycle(t *testing.T) {
	configs := ConfigSet{"debug"}
	g := NewGraph(configs)
	a := &Target{Name: "a", Deps: []Dependency{{TargetName: "b", Kind: DepBuild, Enabled: configs.AllBits()}}}
	b := &Target{Name: "b", Deps: []Dependency{{TargetName: "a", Kind: DepBuild, Enabled: configs.AllBits()}}}
	require.NoError(t, g.AddTarget(a))
	require.NoError(t, g.AddTarget(b))

	e := NewEngine(g)
	_, err := e.ResolveAll(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CYCLE")
}

func TestInheritanceRejectsUndefinedDependency(t *testing.T) {
	configs := ConfigSet{"debug"}
	g := NewGraph(configs)
	a := &Target{Name: "a", Deps: []Dependency{{TargetName: "missing", Kind: DepBuild, Enabled: configs.AllBits()}}}
	require.NoError(t, g.AddTarget(a))

	e := NewEngine(g)
	_, err := e.ResolveAll(0)
	require.Error(t, err)
}

func TestMergeOwnOptionsRejectsDefineClash(t *testing.T) {
	configs := ConfigSet{"debug"}
	g := NewGraph(configs)
	a := &Target{
		Name: "a",
		Options: []Option{
			{Category: "define", Value: "X=1", Enabled: configs.AllBits()},
			{Category: "define", Value: "X=2", Enabled: configs.AllBits()},
		},
	}
	require.NoError(t, g.AddTarget(a))

	e := NewEngine(g)
	_, err := e.ResolveAll(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPTION_CLASH")
}

func TestInheritanceIsIdempotent(t *testing.T) {
	g := buildSimpleGraph(t)
	e := NewEngine(g)

	first, err := e.ResolveAll(0)
	require.NoError(t, err)
	second, err := e.ResolveAll(0)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for name, r := range first {
		assert.Equal(t, r.Options, second[name].Options, "target %s", name)
		assert.Equal(t, r.LinkOrder, second[name].LinkOrder, "target %s", name)
		assert.Equal(t, r.LinkInputs, second[name].LinkInputs, "target %s", name)
	}
}

func TestDiamondDependencyMergesToOneOption(t *testing.T) {
	// app -> left -> core, app -> right -> core: core's public include
	// dir arrives twice and must merge into a single entry with OR'd
	// bits, not a duplicate.
	configs := ConfigSet{"debug", "release"}
	g := NewGraph(configs)
	all := configs.AllBits()

	core := &Target{Name: "core", Kind: KindLib, Options: []Option{
		{Category: "include_dir", Value: "core/include", Enabled: all, Public: all},
	}}
	left := &Target{Name: "left", Kind: KindLib,
		Deps: []Dependency{{TargetName: "core", Kind: DepBuild, Enabled: all, Public: all}}}
	right := &Target{Name: "right", Kind: KindLib,
		Deps: []Dependency{{TargetName: "core", Kind: DepBuild, Enabled: all, Public: all}}}
	app := &Target{Name: "app", Kind: KindExecutable, Deps: []Dependency{
		{TargetName: "left", Kind: DepBuild, Enabled: all},
		{TargetName: "right", Kind: DepBuild, Enabled: all},
	}}
	for _, tgt := range []*Target{core, left, right, app} {
		require.NoError(t, g.AddTarget(tgt))
	}

	resolved, err := NewEngine(g).ResolveAll(0)
	require.NoError(t, err)

	count := 0
	for _, o := range resolved["app"].Options {
		if o.Category == "include_dir" && o.Value == "core/include" {
			count++
			assert.Equal(t, all, o.Enabled)
		}
	}
	assert.Equal(t, 1, count, "diamond inheritance must dedupe identical options")
	assert.Equal(t, []string{"core", "left", "right"}, resolved["app"].LinkOrder)
}

func TestSiblingOrderDoesNotChangeOptionSet(t *testing.T) {
	build := func(depOrder []string) map[string]*Resolved {
		configs := ConfigSet{"debug"}
		g := NewGraph(configs)
		all := configs.AllBits()
		a := &Target{Name: "a", Kind: KindLib, Options: []Option{
			{Category: "include_dir", Value: "a/include", Enabled: all, Public: all},
			{Category: "define", Value: "WITH_A=1", Enabled: all, Public: all},
		}}
		b := &Target{Name: "b", Kind: KindLib, Options: []Option{
			{Category: "include_dir", Value: "b/include", Enabled: all, Public: all},
		}}
		app := &Target{Name: "app", Kind: KindExecutable}
		for _, dep := range depOrder {
			app.Deps = append(app.Deps, Dependency{TargetName: dep, Kind: DepBuild, Enabled: all})
		}
		require.NoError(t, g.AddTarget(a))
		require.NoError(t, g.AddTarget(b))
		require.NoError(t, g.AddTarget(app))
		resolved, err := NewEngine(g).ResolveAll(0)
		require.NoError(t, err)
		return resolved
	}

	asSet := func(opts []Option) map[Option]bool {
		s := make(map[Option]bool, len(opts))
		for _, o := range opts {
			s[o] = true
		}
		return s
	}

	ab := build([]string{"a", "b"})
	ba := build([]string{"b", "a"})
	assert.Equal(t, asSet(ab["app"].Options), asSet(ba["app"].Options),
		"permuting sibling dependencies must not change the resolved option set")
}

func TestSharedContainerLinkInputsAndMacros(t *testing.T) {
	// runtime and codec live in one shared container "engine.dll";
	// tool links against them from outside the container.
	configs := ConfigSet{"debug"}
	g := NewGraph(configs)
	all := configs.AllBits()

	runtime := &Target{Name: "runtime", Kind: KindLib,
		DynamicLinkPrefix: "RT", SharedContainer: "engine"}
	codec := &Target{Name: "codec", Kind: KindLib,
		DynamicLinkPrefix: "CODEC", SharedContainer: "engine",
		Deps: []Dependency{{TargetName: "runtime", Kind: DepBuild, Enabled: all, Public: all}}}
	tool := &Target{Name: "tool", Kind: KindExecutable,
		Deps: []Dependency{{TargetName: "codec", Kind: DepBuild, Enabled: all}}}
	for _, tgt := range []*Target{runtime, codec, tool} {
		require.NoError(t, g.AddTarget(tgt))
	}

	resolved, err := NewEngine(g).ResolveAll(0)
	require.NoError(t, err)

	// Both container members collapse to one link input for tool.
	assert.Equal(t, []string{"engine"}, resolved["tool"].LinkInputs)

	defines := func(name string) []string {
		var out []string
		for _, o := range resolved[name].Options {
			if o.Category == "define" {
				out = append(out, o.Value)
			}
		}
		return out
	}
	// codec shares runtime's container: it exports, never imports.
	assert.Contains(t, defines("codec"), "CODEC_EXPORTING=1")
	assert.Contains(t, defines("codec"), "RT_EXPORTING=1")
	assert.NotContains(t, defines("codec"), "RT_IMPORTING=1")
	// tool consumes both from outside the container.
	assert.Contains(t, defines("tool"), "CODEC_IMPORTING=1")
	assert.Contains(t, defines("tool"), "RT_IMPORTING=1")
}

func TestNonOverlappingDefineValuesCoexist(t *testing.T) {
	configs := ConfigSet{"debug", "release"}
	g := NewGraph(configs)
	debugBit := Bits(0).Set(0)
	releaseBit := Bits(0).Set(1)
	a := &Target{Name: "a", Options: []Option{
		{Category: "define", Value: "LEVEL=0", Enabled: debugBit},
		{Category: "define", Value: "LEVEL=2", Enabled: releaseBit},
	}}
	require.NoError(t, g.AddTarget(a))

	resolved, err := NewEngine(g).ResolveAll(0)
	require.NoError(t, err)
	values := []string{}
	for _, o := range resolved["a"].Options {
		values = append(values, o.Value)
	}
	assert.ElementsMatch(t, []string{"LEVEL=0", "LEVEL=2"}, values,
		"per-config values of one define must coexist when their configs don't overlap")
}

func TestKeyedOptionConflictDropsContestedConfigs(t *testing.T) {
	// Two values for one keyed option with overlapping configs: the
	// contested configs are carved out of both sides, so the result
	// cannot depend on which entry merged first.
	resolve := func(options []Option) map[string]Bits {
		configs := ConfigSet{"debug", "release"}
		g := NewGraph(configs)
		a := &Target{Name: "a", Options: options}
		require.NoError(t, g.AddTarget(a))
		resolved, err := NewEngine(g).ResolveAll(0)
		require.NoError(t, err)
		byValue := map[string]Bits{}
		for _, o := range resolved["a"].Options {
			if o.Category == "precompiled_header" {
				byValue[o.Value] = o.Enabled
			}
		}
		return byValue
	}

	configs := ConfigSet{"debug", "release"}
	all := configs.AllBits()
	debugBit := Bits(0).Set(0)
	releaseBit := Bits(0).Set(1)
	allPch := Option{Category: "precompiled_header", Value: "pch/all.h", Enabled: all}
	releasePch := Option{Category: "precompiled_header", Value: "pch/release.h", Enabled: releaseBit}

	forward := resolve([]Option{allPch, releasePch})
	// The release config has two disagreeing values: both lose it.
	// pch/all.h survives in debug, where it is uncontested;
	// pch/release.h is contested everywhere it's enabled and drops out.
	assert.Equal(t, debugBit, forward["pch/all.h"])
	assert.NotContains(t, forward, "pch/release.h")

	assert.Equal(t, forward, resolve([]Option{releasePch, allPch}),
		"keyed-option conflict resolution must not depend on merge order")
}

func TestHeaderOnlyAndObjectGroupLinkInputs(t *testing.T) {
	configs := ConfigSet{"debug"}
	g := NewGraph(configs)
	all := configs.AllBits()

	headers := &Target{Name: "math-inl", Kind: KindHeaderOnly, Options: []Option{
		{Category: "include_dir", Value: "math-inl/include", Enabled: all, Public: all},
	}}
	objs := &Target{Name: "platform-objs", Kind: KindObjectGroup, Sources: []SourceGroup{
		{Name: "src", Enabled: all, Files: []SourceFile{{Path: "impl.cpp", Enabled: all}}},
	}}
	core := &Target{Name: "core", Kind: KindLib, Deps: []Dependency{
		{TargetName: "math-inl", Kind: DepBuild, Enabled: all, Public: all},
		{TargetName: "platform-objs", Kind: DepBuild, Enabled: all},
	}}
	app := &Target{Name: "app", Kind: KindExecutable, Deps: []Dependency{
		{TargetName: "core", Kind: DepBuild, Enabled: all},
	}}
	for _, tgt := range []*Target{headers, objs, core, app} {
		require.NoError(t, g.AddTarget(tgt))
	}

	resolved, err := NewEngine(g).ResolveAll(0)
	require.NoError(t, err)

	// The header-only target's options still flow, but it never
	// appears on a link line; the object group appears as its objects.
	includeSeen := false
	for _, o := range resolved["app"].Options {
		if o.Category == "include_dir" && o.Value == "math-inl/include" {
			includeSeen = true
		}
	}
	assert.True(t, includeSeen)
	assert.Equal(t, []string{"$<TARGET_OBJECTS:platform-objs>", "core"}, resolved["app"].LinkInputs)
	assert.NotContains(t, resolved["app"].LinkInputs, "math-inl")
}

func TestHasBuildStepBits(t *testing.T) {
	configs := ConfigSet{"debug", "release"}
	debugBit := Bits(0).Set(0)

	compiled := &Target{Name: "lib", Kind: KindLib, Sources: []SourceGroup{
		{Name: "src", Enabled: configs.AllBits(), Files: []SourceFile{{Path: "a.cpp", Enabled: debugBit}}},
	}}
	assert.Equal(t, debugBit, compiled.HasBuildStepBits())

	headerOnly := &Target{Name: "hdrs", Kind: KindHeaderOnly, Sources: []SourceGroup{
		{Name: "include", Enabled: configs.AllBits(), Files: []SourceFile{{Path: "a.h", Enabled: configs.AllBits()}}},
	}}
	assert.Equal(t, Bits(0), headerOnly.HasBuildStepBits())
}
