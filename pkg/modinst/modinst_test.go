package modinst

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plywood-build/plywood/pkg/extern"
	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/plywood-build/plywood/pkg/graph"
)

func TestInstantiateResolvesDependencies(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.AddRepo(Repo{Name: "demo", Root: "/repo"}))

	coreBuilt := false
	require.NoError(t, reg.Register("demo", "core", func(a *ModuleArgs) error {
		coreBuilt = true
		a.SetKind(graph.KindLib)
		a.AddOption(graph.Option{Category: "include_dir", Value: "core/include", Enabled: 0b11, Public: 0b11})
		return nil
	}))
	require.NoError(t, reg.Register("demo", "app", func(a *ModuleArgs) error {
		a.SetKind(graph.KindExecutable)
		return a.AddTarget(graph.Public, "core", graph.DepBuild, 0b11)
	}))

	g := graph.NewGraph(graph.ConfigSet{"debug", "release"})
	inst := NewInstantiator(reg, g)
	require.NoError(t, inst.Run(context.Background(), []string{"app"}, "demo"))

	assert.True(t, coreBuilt)
	assert.Len(t, g.Targets, 2)
	app := g.Targets["demo.app"]
	require.NotNil(t, app)
	require.Len(t, app.Deps, 1)
	assert.Equal(t, "demo.core", app.Deps[0].TargetName)
	assert.Equal(t, graph.Bits(0b11), app.Deps[0].Public, "AddTarget(graph.Public, ...) should set the dependency's own public-bits")
}

func TestAddTargetPrivateVisibilityHasZeroPublicBits(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.AddRepo(Repo{Name: "demo", Root: "/repo"}))
	require.NoError(t, reg.Register("demo", "core", func(a *ModuleArgs) error { return nil }))
	require.NoError(t, reg.Register("demo", "app", func(a *ModuleArgs) error {
		return a.AddTarget(graph.Private, "core", graph.DepBuild, 0b1)
	}))

	g := graph.NewGraph(graph.ConfigSet{"debug"})
	inst := NewInstantiator(reg, g)
	require.NoError(t, inst.Run(context.Background(), []string{"app"}, "demo"))

	app := g.Targets["demo.app"]
	require.Len(t, app.Deps, 1)
	assert.Equal(t, graph.Bits(0), app.Deps[0].Public)
}

func TestAddIncludeDirAndSetPreprocessorDefinitionSetVisibility(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.AddRepo(Repo{Name: "demo", Root: "/repo"}))
	require.NoError(t, reg.Register("demo", "core", func(a *ModuleArgs) error {
		a.AddIncludeDir(graph.Public, "core/include", 0b1)
		a.SetPreprocessorDefinition(graph.Private, "CORE_INTERNAL=1", 0b1)
		return nil
	}))

	g := graph.NewGraph(graph.ConfigSet{"debug"})
	inst := NewInstantiator(reg, g)
	require.NoError(t, inst.Run(context.Background(), []string{"core"}, "demo"))

	core := g.Targets["demo.core"]
	require.Len(t, core.Options, 2)
	assert.Equal(t, graph.Bits(0b1), core.Options[0].Public)
	assert.Equal(t, graph.Bits(0), core.Options[1].Public)
}

func TestAddExternMergesInstanceAsOptions(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.AddRepo(Repo{Name: "demo", Root: "/repo"}))
	require.NoError(t, reg.Register("demo", "app", func(a *ModuleArgs) error {
		return a.AddExtern(graph.Public, "demo.extern.zlib", extern.Args{"version": "1.3"}, 0b1)
	}))

	fs := fsio.NewMemoryAdapter()
	externReg := extern.NewRegistry()
	require.NoError(t, externReg.Register(&extern.Provider{
		Name: "zlib",
		Repo: "demo",
		Supports: func(extern.Toolchain) bool { return true },
		Status: func(ctx context.Context, folder *extern.Folder, args extern.Args) (extern.Status, error) {
			return extern.StatusSupportedNotInstalled, nil
		},
		Install: func(ctx context.Context, fs fsio.Adapter, folder *extern.Folder, args extern.Args) error { return nil },
		Instantiate: func(folder *extern.Folder, args extern.Args) (extern.Instance, error) {
			return extern.Instance{IncludeDirs: []string{folder.Path + "/include"}, LinkLibs: []string{"z"}}, nil
		},
	}))
	store := extern.NewFolderStore(fs, "/repo/data/extern")
	coord := extern.NewCoordinator(externReg, store)

	g := graph.NewGraph(graph.ConfigSet{"debug"})
	inst := NewInstantiator(reg, g)
	inst.Externs = coord
	inst.FS = fs
	inst.Toolchain = extern.Toolchain{OS: "linux"}
	require.NoError(t, inst.Run(context.Background(), []string{"app"}, "demo"))

	app := g.Targets["demo.app"]
	require.Len(t, app.Options, 2)
	var haveInclude, haveLib bool
	for _, o := range app.Options {
		if o.Category == "include_dir" {
			haveInclude = true
		}
		if o.Category == "link_lib" && o.Value == "z" {
			haveLib = true
		}
		assert.Equal(t, graph.Bits(0b1), o.Public)
	}
	assert.True(t, haveInclude)
	assert.True(t, haveLib)
}

func TestInstantiateDeduplicatesSharedDependency(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.AddRepo(Repo{Name: "demo", Root: "/repo"}))

	buildCount := 0
	require.NoError(t, reg.Register("demo", "core", func(a *ModuleArgs) error {
		buildCount++
		return nil
	}))
	require.NoError(t, reg.Register("demo", "app1", func(a *ModuleArgs) error {
		return a.AddTarget(graph.Private, "core", graph.DepBuild, 1)
	}))
	require.NoError(t, reg.Register("demo", "app2", func(a *ModuleArgs) error {
		return a.AddTarget(graph.Private, "core", graph.DepBuild, 1)
	}))

	g := graph.NewGraph(graph.ConfigSet{"debug"})
	inst := NewInstantiator(reg, g)
	require.NoError(t, inst.Run(context.Background(), []string{"app1", "app2"}, "demo"))

	assert.Equal(t, 1, buildCount)
	assert.Len(t, g.Targets, 3)
}

func TestRunCollectsMultipleErrors(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.AddRepo(Repo{Name: "demo", Root: "/repo"}))
	g := graph.NewGraph(graph.ConfigSet{"debug"})
	inst := NewInstantiator(reg, g)

	err := inst.Run(context.Background(), []string{"missing1", "missing2"}, "demo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors")
}
