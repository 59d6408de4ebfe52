package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plywood-build/plywood/pkg/fsio"
)

func TestInitThenLocate(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	ws, err := Init(fs, "/repo")
	require.NoError(t, err)
	assert.Equal(t, "data/build", ws.Settings.BuildFolderName)

	found, err := Locate(fs, "/repo/modules/foo")
	require.NoError(t, err)
	assert.Equal(t, "/repo", found.Root)
}

func TestLocateFailsWithoutSettings(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	_, err := Locate(fs, "/nowhere/deep")
	require.Error(t, err)
}

func TestDataAndExternFolders(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	ws, err := Init(fs, "/repo")
	require.NoError(t, err)
	assert.Equal(t, "/repo/data", ws.DataFolder())
	assert.Equal(t, "/repo/data/extern", ws.ExternFolder())
}

func TestCurrentBuildFolderRoundTrips(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	ws, err := Init(fs, "/repo")
	require.NoError(t, err)
	assert.Empty(t, ws.Settings.CurrentBuildFolder)

	ws.Settings.CurrentBuildFolder = "debug"
	require.NoError(t, ws.Save(fs))

	reloaded, err := Load(fs, "/repo")
	require.NoError(t, err)
	assert.Equal(t, "debug", reloaded.Settings.CurrentBuildFolder)
}

func TestLoadToleratesUnknownKeys(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	settings := `build_folder: out
default_config: release
futureKnob: whatever
`
	_, err := fs.WriteFileIfDifferent("/repo/"+SettingsFileName, []byte(settings), 0o644)
	require.NoError(t, err)

	ws, err := Load(fs, "/repo")
	require.NoError(t, err, "a settings key written by a newer tool must not break loading")
	assert.Equal(t, "out", ws.Settings.BuildFolderName)
	assert.Equal(t, "release", ws.Settings.DefaultConfigName)
	assert.Equal(t, "data", ws.Settings.DataFolderName, "omitted keys keep their defaults")
}
