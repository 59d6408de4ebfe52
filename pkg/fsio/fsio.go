// Package fsio is the filesystem/process boundary the cook, extern,
// modinst and workspace packages go through instead of touching os
// directly. The CUE schema loader, the policy file loader and the
// telemetry log file still use os themselves.
package fsio

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/plywood-build/plywood/pkg/perrors"
)

// Adapter is the seam. A LocalAdapter talks to the real filesystem; a
// test fake can implement the same interface entirely in memory.
type Adapter interface {
	ReadFile(path string) ([]byte, error)
	// WriteFileIfDifferent writes data to path only if the existing
	// content differs (or the file doesn't exist), returning whether a
	// write occurred. This is the idiom the cook cache and extern
	// folder store both rely on to avoid bumping mtimes on unchanged
	// generated files.
	WriteFileIfDifferent(path string, data []byte, perm os.FileMode) (wrote bool, err error)
	MakeDirs(path string) error
	Exists(path string) bool
	Stat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.DirEntry, error)
	Remove(path string) error
	// Run executes a subprocess to completion, returning combined
	// stdout/stderr. This and the watcher loop in pkg/cook are where
	// the cook engine's otherwise single-threaded cooperative model
	// crosses into real OS concurrency.
	Run(ctx context.Context, dir string, name string, args ...string) (output []byte, err error)
}

// LocalAdapter implements Adapter against the real OS filesystem.
type LocalAdapter struct{}

// NewLocalAdapter constructs a LocalAdapter.
func NewLocalAdapter() *LocalAdapter { return &LocalAdapter{} }

func (LocalAdapter) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.IO(err).WithOperation("read").WithResource(path)
	}
	return StripBOM(data), nil
}

func (LocalAdapter) WriteFileIfDifferent(path string, data []byte, perm os.FileMode) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, perrors.IO(err).WithOperation("mkdir").WithResource(path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return false, perrors.IO(err).WithOperation("write").WithResource(path)
	}
	if err := os.Rename(tmp, path); err != nil {
		return false, perrors.IO(err).WithOperation("rename").WithResource(path)
	}
	return true, nil
}

func (LocalAdapter) MakeDirs(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return perrors.IO(err).WithOperation("mkdirs").WithResource(path)
	}
	return nil
}

func (LocalAdapter) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (LocalAdapter) Stat(path string) (os.FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, perrors.IO(err).WithOperation("stat").WithResource(path)
	}
	return fi, nil
}

func (LocalAdapter) ReadDir(path string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, perrors.IO(err).WithOperation("readdir").WithResource(path)
	}
	return entries, nil
}

func (LocalAdapter) Remove(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return perrors.IO(err).WithOperation("remove").WithResource(path)
	}
	return nil
}

func (LocalAdapter) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), perrors.IO(err).WithOperation("exec").WithResource(name)
	}
	return out.Bytes(), nil
}

// StripBOM autodetects and strips a UTF-8 byte-order mark, for text
// config files that may have been saved by a BOM-emitting editor.
func StripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// IsValidUTF8 reports whether data is well-formed UTF-8 text, used to
// reject binary files mistakenly fed to the Pylon parser.
func IsValidUTF8(data []byte) bool {
	return utf8.Valid(data)
}

// ModTime is a small helper wrapping Stat for the common case the
// cook cache's FileDependency needs: the modification time used as
// the up-to-date check's sentinel value.
func ModTime(a Adapter, path string) (time.Time, error) {
	fi, err := a.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}
