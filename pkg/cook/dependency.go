package cook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/plywood-build/plywood/pkg/fsio"
)

// FileDependency records a cook job's dependency on the content of a
// file, checked by comparing a recorded modification-time sentinel
// against the file's current one rather than re-hashing content on
// every check.
type FileDependency struct {
	Path        string
	RecordedMod time.Time
	// Missing records whether the file was absent when this dependency
	// was recorded, so a file that didn't exist (and still doesn't)
	// counts as unchanged instead of erroring on every check.
	Missing bool
}

// NewFileDependency snapshots a file's current mtime for later change
// detection. Pass fs so the snapshot and later checks run against the
// same adapter (real or in-memory) the job itself used.
func NewFileDependency(fs fsio.Adapter, path string) FileDependency {
	info, err := fs.Stat(path)
	if err != nil {
		return FileDependency{Path: path, Missing: true}
	}
	return FileDependency{Path: path, RecordedMod: info.ModTime()}
}

func (d FileDependency) String() string { return "file:" + d.Path }

// Changed reports whether the file's mtime (or existence) has moved
// since d was recorded. It reads through the Tracker's own fsio
// Adapter so file dependencies stay consistent with whatever
// filesystem view the cook run is using.
func (d FileDependency) Changed(ctx context.Context, dt *Tracker) (bool, error) {
	info, err := dt.fs.Stat(d.Path)
	if err != nil {
		return !d.Missing, nil
	}
	if d.Missing {
		return true, nil
	}
	return !info.ModTime().Equal(d.RecordedMod), nil
}

// JobDependency records that a job's result depends on another job's
// result, compared by the dependency's content hash at the time it was
// recorded (see Tracker.resultHash) rather than by identity, so a
// rebuild of the referenced job that produces byte-identical output
// doesn't force every job downstream of it to rebuild too: the
// dependency is on the output, not the recipe.
type JobDependency struct {
	ID           JobID
	RecordedHash string
}

func (d JobDependency) String() string { return "job:" + d.ID.String() }

// Changed recursively ensures the referenced job is itself up to date
// and then compares its current result hash against the one recorded
// when this dependency was captured.
func (d JobDependency) Changed(ctx context.Context, dt *Tracker) (bool, error) {
	result, err := dt.EnsureCooked(ctx, d.ID)
	if err != nil {
		return false, err
	}
	return resultHash(result) != d.RecordedHash, nil
}

// resultHash is the content address of a job's result: a digest over
// its Value, so two cooks that happen to produce byte-identical output
// hash identically even if the job reran. Jobs whose Value types carry
// meaningful Go identity (pointers, funcs) should normalize to a plain
// value before returning it in Result.
func resultHash(r Result) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%#v", r.Value)))
	return hex.EncodeToString(sum[:])
}
