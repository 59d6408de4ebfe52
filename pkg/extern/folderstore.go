package extern

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/goombaio/namegenerator"

	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/plywood-build/plywood/pkg/perrors"
	"github.com/plywood-build/plywood/pkg/pylon"
)

const infoFileName = "info.pylon"

// Folder is one on-disk extern folder: a directory under the
// workspace's extern root holding whatever a provider's Install step
// produced, plus an info.pylon descriptor recording which provider
// and arguments created it.
type Folder struct {
	Path         string
	ProviderName string // fully qualified
	ArgsKey      string
	Success      bool
}

// FolderStore scans and manages the extern folder tree on disk.
type FolderStore struct {
	fs   fsio.Adapter
	root string
}

// NewFolderStore constructs a FolderStore rooted at root (typically
// Workspace.ExternFolder()).
func NewFolderStore(fs fsio.Adapter, root string) *FolderStore {
	return &FolderStore{fs: fs, root: root}
}

func (s *FolderStore) readDescriptor(dir string) (*Folder, error) {
	data, err := s.fs.ReadFile(path.Join(dir, infoFileName))
	if err != nil {
		return nil, err
	}
	node, err := pylon.Parse(string(data))
	if err != nil {
		return nil, err
	}
	return &Folder{
		Path:         dir,
		ProviderName: node.Get("providerName").TextValue(),
		ArgsKey:      node.Get("folderArgs").TextValue(),
		Success:      node.Get("success").TextValue() == "true",
	}, nil
}

func (s *FolderStore) writeDescriptor(f *Folder) error {
	node := pylon.NewObjectNode()
	node.Set("providerName", pylon.Text(f.ProviderName))
	node.Set("folderArgs", pylon.Text(f.ArgsKey))
	node.Set("success", pylon.Text(boolText(f.Success)))
	text, err := pylon.Write(node, pylon.DefaultWriteOptions)
	if err != nil {
		return err
	}
	_, err = s.fs.WriteFileIfDifferent(path.Join(f.Path, infoFileName), []byte(text), 0o644)
	return err
}

func boolText(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// List returns every well-formed extern folder under the store's
// root, skipping malformed ones rather than failing, so one corrupt
// info.pylon can't hide every other installed extern.
func (s *FolderStore) List() []*Folder {
	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		return nil
	}
	var folders []*Folder
	for _, e := range entries {
		dir := path.Join(s.root, e.Name())
		f, err := s.readDescriptor(dir)
		if err != nil {
			continue
		}
		folders = append(folders, f)
	}
	return folders
}

// Find returns the existing folder for (providerName, args), if any.
// Its Success field tells the caller whether a prior install attempt
// actually succeeded — an existing-but-failed folder is still
// returned, distinguishing
// "not installed" from "install previously failed" so a caller doesn't
// silently retry a known-bad install on every run.
func (s *FolderStore) Find(providerName string, args Args) (*Folder, bool) {
	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		return nil, false
	}
	argsKey := args.Key()
	for _, e := range entries {
		dir := path.Join(s.root, e.Name())
		f, err := s.readDescriptor(dir)
		if err != nil {
			continue
		}
		if f.ProviderName == providerName && f.ArgsKey == argsKey {
			return f, true
		}
	}
	return nil, false
}

// Create allocates a new, uniquely-named folder for providerName,
// using baseName as the preferred directory name and appending a
// zero-padded numeric suffix on collision, so two installs of extern
// providers that happen to share a base name (e.g. two "zlib"
// providers from different repos) don't clobber each other.
func (s *FolderStore) Create(providerName, baseName string, args Args) (*Folder, error) {
	name, err := s.makeUniqueFileName(baseName)
	if err != nil {
		return nil, err
	}
	dir := path.Join(s.root, name)
	if err := s.fs.MakeDirs(dir); err != nil {
		return nil, err
	}
	f := &Folder{Path: dir, ProviderName: providerName, ArgsKey: args.Key()}
	if err := s.writeDescriptor(f); err != nil {
		return nil, err
	}
	return f, nil
}

// MarkResult updates a folder's recorded success/failure after an
// Install attempt.
func (s *FolderStore) MarkResult(f *Folder, success bool) error {
	f.Success = success
	return s.writeDescriptor(f)
}

func (s *FolderStore) makeUniqueFileName(baseName string) (string, error) {
	if !s.fs.Exists(path.Join(s.root, baseName)) {
		return baseName, nil
	}
	for i := 1; i < 1000; i++ {
		candidate := fmt.Sprintf("%s-%03d", baseName, i)
		if !s.fs.Exists(path.Join(s.root, candidate)) {
			return candidate, nil
		}
	}
	// Collision-exhaustion fallback: the numeric-suffix scheme above
	// covers the overwhelming common case, but after 999 collisions (almost
	// certainly a caller bug re-using the same base name in a loop)
	// fall back to a generated name rather than failing the install.
	gen := namegenerator.NewNameGenerator(time.Now().UnixNano())
	for i := 0; i < 10; i++ {
		candidate := baseName + "-" + gen.Generate()
		if !s.fs.Exists(path.Join(s.root, candidate)) {
			return candidate, nil
		}
	}
	return "", perrors.IO(fmt.Errorf("exhausted unique names for %q under %s", baseName, s.root))
}

// SanitizeBaseName turns a fully qualified provider name into a
// filesystem-safe base directory name ("repo.extern.zlib" ->
// "repo-extern-zlib").
func SanitizeBaseName(fqName string) string {
	return strings.ReplaceAll(fqName, ".", "-")
}
