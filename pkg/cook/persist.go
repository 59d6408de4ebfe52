package cook

import (
	"sync"
	"time"

	"github.com/plywood-build/plywood/pkg/perrors"
	preflect "github.com/plywood-build/plywood/pkg/reflect"
)

// The cook database is the tracker's state between processes: every
// successfully-cooked job with its dependency list, reflected through
// pkg/reflect's schema-carrying codec so the on-disk blob is
// self-describing. Loading it back seeds the next run's up-to-date
// checks, which is what makes "re-run with no changes cooks nothing"
// hold across process boundaries, not just within one.

type fileDepRecord struct {
	Path        string
	ModUnixNano int64
	Missing     bool
}

type jobDepRecord struct {
	TypeName     string
	Desc         string
	RecordedHash string
}

type jobRecord struct {
	TypeName string
	Desc     string
	// HasValue guards Value: only string-valued results survive a
	// round trip. A job whose Value is any other Go type is persisted
	// dependency-only and recooks on first demand in the next process.
	HasValue bool
	Value    string
	FileDeps []fileDepRecord
	JobDeps  []jobDepRecord
}

type databaseRecord struct {
	Jobs []jobRecord
}

var (
	persistOnce sync.Once
	persistReg  *preflect.Registry
	persistType preflect.StructType
)

func persistRegistry() (*preflect.Registry, preflect.StructType) {
	persistOnce.Do(func() {
		persistReg = preflect.NewRegistry()
		t, err := persistReg.RegisterNative("CookDatabase", databaseRecord{})
		if err != nil {
			panic(err)
		}
		persistType = t
	})
	return persistReg, persistType
}

// SaveDatabase writes the tracker's cooked state to path (normally
// data/cook-db.bin under the workspace). Only jobs whose last cook
// succeeded are recorded; a failed job must recook regardless.
func (t *Tracker) SaveDatabase(path string) error {
	t.mu.Lock()
	db := databaseRecord{}
	for id, rec := range t.records {
		if rec.lastErr != nil || !hasEverCooked(rec) {
			continue
		}
		jr := jobRecord{TypeName: id.Type.Name, Desc: id.Desc}
		if s, ok := rec.result.Value.(string); ok {
			jr.HasValue = true
			jr.Value = s
		}
		for _, dep := range rec.result.Dependencies {
			switch d := dep.(type) {
			case FileDependency:
				jr.FileDeps = append(jr.FileDeps, fileDepRecord{
					Path:        d.Path,
					ModUnixNano: d.RecordedMod.UnixNano(),
					Missing:     d.Missing,
				})
			case JobDependency:
				jr.JobDeps = append(jr.JobDeps, jobDepRecord{
					TypeName:     d.ID.Type.Name,
					Desc:         d.ID.Desc,
					RecordedHash: d.RecordedHash,
				})
			}
		}
		db.Jobs = append(db.Jobs, jr)
	}
	t.mu.Unlock()

	_, dbType := persistRegistry()
	a, err := preflect.FromNative(dbType, &db)
	if err != nil {
		return perrors.Programmer("cook database does not reflect: %v", err)
	}
	blob, err := preflect.Encode(a)
	if err != nil {
		return err
	}
	_, err = t.fs.WriteFileIfDifferent(path, blob, 0o644)
	return err
}

// LoadDatabase restores state saved by SaveDatabase. types lists every
// JobType the embedding process registered this run; persisted jobs
// whose type is no longer registered are dropped (their cook function
// is gone), as is any job depending on one, so a stale entry can never
// satisfy an up-to-date check it shouldn't. Jobs saved without a
// string Value are not restored either, so they recook on first
// demand. A missing database file is not an error — the first run of a
// workspace has none.
func (t *Tracker) LoadDatabase(path string, types []*JobType) error {
	if !t.fs.Exists(path) {
		return nil
	}
	blob, err := t.fs.ReadFile(path)
	if err != nil {
		return err
	}
	reg, _ := persistRegistry()
	decoded, err := preflect.Decode(blob, reg)
	if err != nil {
		return perrors.SchemaMismatch("cook database %s is unreadable: %v", path, err).WithResource(path)
	}
	var db databaseRecord
	if err := preflect.ToNative(decoded, &db); err != nil {
		return perrors.SchemaMismatch("cook database %s does not match this build: %v", path, err).WithResource(path)
	}

	byName := make(map[string]*JobType, len(types))
	for _, jt := range types {
		byName[jt.Name] = jt
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, jr := range db.Jobs {
		jt, ok := byName[jr.TypeName]
		if !ok {
			continue
		}
		rec := &record{}
		if jr.HasValue {
			rec.result.Value = jr.Value
		}
		usable := true
		for _, fd := range jr.FileDeps {
			dep := FileDependency{Path: fd.Path, Missing: fd.Missing}
			if !fd.Missing {
				dep.RecordedMod = time.Unix(0, fd.ModUnixNano)
			}
			rec.result.Dependencies = append(rec.result.Dependencies, dep)
		}
		for _, jd := range jr.JobDeps {
			depType, ok := byName[jd.TypeName]
			if !ok {
				usable = false
				break
			}
			rec.result.Dependencies = append(rec.result.Dependencies, JobDependency{
				ID:           JobID{Type: depType, Desc: jd.Desc},
				RecordedHash: jd.RecordedHash,
			})
		}
		if !usable || !jr.HasValue || !hasEverCooked(rec) {
			continue
		}
		t.records[JobID{Type: jt, Desc: jr.Desc}] = rec
	}
	return nil
}

// SetRootReferences trims the tracker to the jobs transitively
// reachable from roots through recorded job dependencies, releasing
// results for derived artifacts nothing refers to anymore.
func (t *Tracker) SetRootReferences(roots []JobID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	reachable := make(map[JobID]bool, len(t.records))
	var mark func(id JobID)
	mark = func(id JobID) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		rec, ok := t.records[id]
		if !ok {
			return
		}
		for _, dep := range rec.result.Dependencies {
			if jd, ok := dep.(JobDependency); ok {
				mark(jd.ID)
			}
		}
	}
	for _, id := range roots {
		mark(id)
	}
	for id := range t.records {
		if !reachable[id] {
			delete(t.records, id)
		}
	}
}
