// Package workspace locates and loads the workspace root — the
// directory tree a Plywood repo's modules, extern folders, and cook
// cache are all rooted under. Nothing else can run until the upward
// directory search for the settings file has succeeded.
package workspace

import (
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/plywood-build/plywood/pkg/perrors"
	"github.com/plywood-build/plywood/pkg/pylon"
	"github.com/plywood-build/plywood/pkg/reflect"
)

// SettingsFileName is the file Locate searches for, at and above the
// starting directory.
const SettingsFileName = "workspace-settings.pylon"

// Settings is the workspace-wide configuration every module and
// extern instantiation reads from. Struct tags are validated with
// go-playground/validator when the settings file is loaded.
type Settings struct {
	// BuildFolderName names the subdirectory (relative to the
	// workspace root) generated build output is written under.
	BuildFolderName string `validate:"required" ply:"build_folder"`
	// DataFolderName names the subdirectory extern folders and the
	// cook cache are rooted under.
	DataFolderName string `validate:"required" ply:"data_folder"`
	// DefaultConfigName is used when a command doesn't specify
	// --config explicitly.
	DefaultConfigName string `validate:"required" ply:"default_config"`
	// CurrentBuildFolder names the build folder (a subdirectory of
	// BuildFolderName) that commands operate on when none is given
	// explicitly. Empty until the first `folder create`/`folder set`;
	// a freshly initialized workspace has no build folder selected.
	CurrentBuildFolder string `ply:"current_build_folder"`
}

// DefaultSettings returns the settings a freshly-initialized
// workspace is created with.
func DefaultSettings() Settings {
	return Settings{
		BuildFolderName:   "data/build",
		DataFolderName:    "data",
		DefaultConfigName: "debug",
	}
}

// Workspace is a located, loaded workspace root.
type Workspace struct {
	Root     string
	Settings Settings
}

// DataFolder returns the absolute path of the workspace's data
// folder, the root extern folders live under. The cook run log is
// not placed here; it is written wherever --run-log points.
func (w *Workspace) DataFolder() string {
	return filepath.Join(w.Root, w.Settings.DataFolderName)
}

// ExternFolder returns the absolute path extern folders are created
// under.
func (w *Workspace) ExternFolder() string {
	return filepath.Join(w.DataFolder(), "extern")
}

// BuildFolder returns the absolute path generated build output is
// written under.
func (w *Workspace) BuildFolder() string {
	return filepath.Join(w.Root, w.Settings.BuildFolderName)
}

// Locate walks upward from startDir looking for SettingsFileName,
// loading and validating it on the first match. It fails with a
// structural error if no settings file is found before reaching the
// filesystem root.
func Locate(fs fsio.Adapter, startDir string) (*Workspace, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, SettingsFileName)
		if fs.Exists(candidate) {
			return Load(fs, dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, perrors.Structural("no %s found above %s", SettingsFileName, startDir).WithOperation("workspace.locate")
		}
		dir = parent
	}
}

// Load reads and validates the settings file directly under root,
// without searching upward. Keys the settings struct doesn't declare
// are tolerated (a newer tool may have written them) and keys the file
// omits keep their defaults.
func Load(fs fsio.Adapter, root string) (*Workspace, error) {
	path := filepath.Join(root, SettingsFileName)
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	node, err := pylon.Parse(string(data))
	if err != nil {
		return nil, err
	}
	settings := DefaultSettings()
	a, err := reflect.FromNative(settingsType(), &settings)
	if err != nil {
		return nil, err
	}
	if _, err := pylon.ImportInto(a, node); err != nil {
		return nil, perrors.Structural("malformed workspace settings: %v", err).WithResource(path)
	}
	if err := reflect.ToNative(a, &settings); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(settings); err != nil {
		return nil, perrors.Structural("invalid workspace settings: %v", err).WithResource(path)
	}
	return &Workspace{Root: root, Settings: settings}, nil
}

var (
	settingsTypeOnce sync.Once
	settingsTypeVal  reflect.StructType
)

// settingsType lazily registers the reflected mirror of Settings; the
// ply tags on its fields supply the on-disk key names.
func settingsType() reflect.StructType {
	settingsTypeOnce.Do(func() {
		reg := reflect.NewRegistry()
		t, err := reg.RegisterNative("WorkspaceSettings", Settings{})
		if err != nil {
			panic(err)
		}
		settingsTypeVal = t
	})
	return settingsTypeVal
}

// Init creates a new workspace-settings.pylon at root if one doesn't
// already exist, writing DefaultSettings().
func Init(fs fsio.Adapter, root string) (*Workspace, error) {
	path := filepath.Join(root, SettingsFileName)
	if fs.Exists(path) {
		return Load(fs, root)
	}
	settings := DefaultSettings()
	node := pylon.NewObjectNode()
	node.Set("build_folder", pylon.Text(settings.BuildFolderName))
	node.Set("data_folder", pylon.Text(settings.DataFolderName))
	node.Set("default_config", pylon.Text(settings.DefaultConfigName))
	text, err := pylon.Write(node, pylon.DefaultWriteOptions)
	if err != nil {
		return nil, err
	}
	if _, err := fs.WriteFileIfDifferent(path, []byte(text), 0o644); err != nil {
		return nil, err
	}
	return &Workspace{Root: root, Settings: settings}, nil
}

// Save writes w.Settings back to workspace-settings.pylon, atomically
// via write-if-different so an unchanged settings file doesn't bump
// its mtime.
func (w *Workspace) Save(fs fsio.Adapter) error {
	path := filepath.Join(w.Root, SettingsFileName)
	node := pylon.NewObjectNode()
	node.Set("build_folder", pylon.Text(w.Settings.BuildFolderName))
	node.Set("data_folder", pylon.Text(w.Settings.DataFolderName))
	node.Set("default_config", pylon.Text(w.Settings.DefaultConfigName))
	node.Set("current_build_folder", pylon.Text(w.Settings.CurrentBuildFolder))
	text, err := pylon.Write(node, pylon.DefaultWriteOptions)
	if err != nil {
		return err
	}
	_, err = fs.WriteFileIfDifferent(path, []byte(text), 0o644)
	return err
}
