package extern

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plywood-build/plywood/pkg/fsio"
)

func fakeProvider(installed *bool) *Provider {
	return &Provider{
		Name: "zlib",
		Repo: "demo",
		Supports: func(tc Toolchain) bool { return true },
		Status: func(ctx context.Context, folder *Folder, args Args) (Status, error) {
			if *installed {
				return StatusInstalled, nil
			}
			return StatusSupportedNotInstalled, nil
		},
		Install: func(ctx context.Context, fs fsio.Adapter, folder *Folder, args Args) error {
			*installed = true
			return nil
		},
		Instantiate: func(folder *Folder, args Args) (Instance, error) {
			return Instance{IncludeDirs: []string{folder.Path + "/include"}}, nil
		},
	}
}

func TestCoordinatorEnsureInstalledRunsInstallOnce(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	reg := NewRegistry()
	installed := false
	p := fakeProvider(&installed)
	require.NoError(t, reg.Register(p))

	store := NewFolderStore(fs, "/repo/data/extern")
	coord := NewCoordinator(reg, store)

	inst, err := coord.EnsureInstalled(context.Background(), fs, "demo.extern.zlib", Args{"version": "1.3"}, Toolchain{OS: "linux"})
	require.NoError(t, err)
	assert.True(t, installed)
	assert.NotEmpty(t, inst.IncludeDirs)

	installed = false // if Install ran again this would flip back without affecting the cached "Success" folder
	inst2, err := coord.EnsureInstalled(context.Background(), fs, "demo.extern.zlib", Args{"version": "1.3"}, Toolchain{OS: "linux"})
	require.NoError(t, err)
	assert.False(t, installed, "second EnsureInstalled should reuse the already-successful folder without reinstalling")
	assert.Equal(t, inst.IncludeDirs, inst2.IncludeDirs)
}

func TestCoordinatorDeniesInstallWhenGateRejects(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	reg := NewRegistry()
	installed := false
	p := fakeProvider(&installed)
	require.NoError(t, reg.Register(p))

	store := NewFolderStore(fs, "/repo/data/extern")
	coord := NewCoordinator(reg, store)
	coord.Gate = denyAllGate{}

	_, err := coord.EnsureInstalled(context.Background(), fs, "demo.extern.zlib", Args{}, Toolchain{OS: "linux"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLICY_DENIED")
	assert.False(t, installed)
}

type denyAllGate struct{}

func (denyAllGate) EvaluateInstall(ctx context.Context, providerName string, args Args, tc Toolchain) (bool, string, error) {
	return false, "blocked by test policy", nil
}

func TestFolderStoreMakeUniqueFileNameAvoidsCollision(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	store := NewFolderStore(fs, "/repo/data/extern")

	f1, err := store.Create("demo.extern.zlib", "zlib", Args{})
	require.NoError(t, err)
	f2, err := store.Create("demo.extern.zlib", "zlib", Args{"version": "2"})
	require.NoError(t, err)

	assert.NotEqual(t, f1.Path, f2.Path)
}

func TestArgsKeyIsOrderIndependent(t *testing.T) {
	a := Args{"b": "2", "a": "1"}
	b := Args{"a": "1", "b": "2"}
	assert.Equal(t, a.Key(), b.Key())
}

func TestFolderStoreListSkipsMalformedFolders(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	store := NewFolderStore(fs, "/repo/data/extern")

	_, err := store.Create("demo.extern.zlib", "zlib", Args{})
	require.NoError(t, err)
	_, err = store.Create("demo.extern.libpng", "libpng", Args{"version": "1.6"})
	require.NoError(t, err)
	_, err = fs.WriteFileIfDifferent("/repo/data/extern/junk/notes.txt", []byte("not an info.pylon"), 0o644)
	require.NoError(t, err)

	folders := store.List()
	require.Len(t, folders, 2)
}
