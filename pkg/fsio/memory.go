package fsio

import (
	"context"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/plywood-build/plywood/pkg/perrors"
)

// MemoryAdapter is an in-memory Adapter used by tests in this module
// and by callers exercising cook/modinst/extern logic without
// touching disk.
type MemoryAdapter struct {
	mu    sync.Mutex
	files map[string][]byte
	times map[string]time.Time
	now   time.Time
}

// NewMemoryAdapter constructs an empty MemoryAdapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		files: make(map[string][]byte),
		times: make(map[string]time.Time),
		now:   time.Unix(1_700_000_000, 0),
	}
}

// Advance moves the adapter's simulated clock forward, so tests can
// exercise mtime-based up-to-date checks deterministically.
func (m *MemoryAdapter) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *MemoryAdapter) ReadFile(p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[p]
	if !ok {
		return nil, perrors.IO(os.ErrNotExist).WithOperation("read").WithResource(p)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryAdapter) WriteFileIfDifferent(p string, data []byte, _ os.FileMode) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.files[p]; ok && string(existing) == string(data) {
		return false, nil
	}
	m.files[p] = append([]byte(nil), data...)
	m.now = m.now.Add(time.Second)
	m.times[p] = m.now
	return true, nil
}

func (m *MemoryAdapter) MakeDirs(string) error { return nil }

func (m *MemoryAdapter) Exists(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[p]; ok {
		return true
	}
	// Treat p as an existing directory if any file was written under
	// it, since MakeDirs itself doesn't materialize an entry.
	prefix := strings.TrimSuffix(p, "/") + "/"
	for f := range m.files {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}

type memFileInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (fi memFileInfo) Name() string       { return fi.name }
func (fi memFileInfo) Size() int64        { return fi.size }
func (fi memFileInfo) Mode() os.FileMode  { return 0o644 }
func (fi memFileInfo) ModTime() time.Time { return fi.modTime }
func (fi memFileInfo) IsDir() bool        { return false }
func (fi memFileInfo) Sys() interface{}   { return nil }

func (m *MemoryAdapter) Stat(p string) (os.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[p]
	if !ok {
		return nil, perrors.IO(os.ErrNotExist).WithOperation("stat").WithResource(p)
	}
	return memFileInfo{name: path.Base(p), size: int64(len(data)), modTime: m.times[p]}, nil
}

func (m *MemoryAdapter) ReadDir(dir string) ([]os.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var names []string
	prefix := strings.TrimSuffix(dir, "/") + "/"
	for p := range m.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		name := strings.SplitN(rest, "/", 2)[0]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	entries := make([]os.DirEntry, len(names))
	for i, n := range names {
		entries[i] = memDirEntry{name: n}
	}
	return entries, nil
}

type memDirEntry struct{ name string }

func (e memDirEntry) Name() string { return e.name }
func (e memDirEntry) IsDir() bool { return false }
func (e memDirEntry) Type() os.FileMode { return 0 }
func (e memDirEntry) Info() (os.FileInfo, error) { return memFileInfo{name: e.name}, nil }

func (m *MemoryAdapter) Remove(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, p)
	delete(m.times, p)
	return nil
}

func (m *MemoryAdapter) Run(_ context.Context, _ string, _ string, _ ...string) ([]byte, error) {
	return nil, perrors.Programmer("MemoryAdapter cannot execute subprocesses")
}
