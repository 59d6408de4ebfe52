package cook

import (
	"context"
	"testing"

	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseRoundTripSkipsRecooking(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	_, err := fs.WriteFileIfDifferent("a.md", []byte("hello"), 0o644)
	require.NoError(t, err)

	makeTypes := func() (*JobType, *JobType, *int, *int) {
		extract, extractCalls := countingJobType("extractPageMeta", func(ctx *Context, desc string) (Result, error) {
			dep := ctx.DependOnFile(desc)
			content, err := ctx.FS().ReadFile(desc)
			if err != nil {
				return Result{}, err
			}
			return Result{Dependencies: []Dependency{dep}, Value: "meta:" + string(content)}, nil
		})
		var renderCalls int
		render := &JobType{Name: "renderPage"}
		render.Cook = func(ctx *Context, desc string) (Result, error) {
			renderCalls++
			extractID := JobID{Type: extract, Desc: desc + ".md"}
			extractResult, err := ctx.EnsureCooked(extractID)
			if err != nil {
				return Result{}, err
			}
			jdep := JobDependency{ID: extractID, RecordedHash: resultHash(extractResult)}
			return Result{Dependencies: []Dependency{jdep}, Value: "page:" + desc}, nil
		}
		return extract, render, extractCalls, &renderCalls
	}

	// First process: cook and persist.
	_, render1, extractCalls1, renderCalls1 := makeTypes()
	tr1 := NewTracker(fs)
	_, err = tr1.EnsureCooked(context.Background(), JobID{Type: render1, Desc: "a"})
	require.NoError(t, err)
	require.Equal(t, 1, *extractCalls1)
	require.Equal(t, 1, *renderCalls1)
	require.NoError(t, tr1.SaveDatabase("cook-db.bin"))

	// Second process: fresh tracker and fresh JobType values (the
	// function pointers differ across processes; only names persist).
	extract2, render2, extractCalls2, renderCalls2 := makeTypes()
	tr2 := NewTracker(fs)
	require.NoError(t, tr2.LoadDatabase("cook-db.bin", []*JobType{extract2, render2}))

	_, err = tr2.EnsureCooked(context.Background(), JobID{Type: render2, Desc: "a"})
	require.NoError(t, err)
	assert.Equal(t, 0, *extractCalls2, "unchanged file must not recook across processes")
	assert.Equal(t, 0, *renderCalls2)

	// Third process: the source file changed in between.
	_, err = fs.WriteFileIfDifferent("a.md", []byte("hello, changed"), 0o644)
	require.NoError(t, err)
	extract3, render3, extractCalls3, renderCalls3 := makeTypes()
	tr3 := NewTracker(fs)
	require.NoError(t, tr3.LoadDatabase("cook-db.bin", []*JobType{extract3, render3}))

	_, err = tr3.EnsureCooked(context.Background(), JobID{Type: render3, Desc: "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, *extractCalls3)
	assert.Equal(t, 1, *renderCalls3)
}

func TestLoadDatabaseDropsUnregisteredTypes(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	_, err := fs.WriteFileIfDifferent("a.md", []byte("x"), 0o644)
	require.NoError(t, err)

	jt, _ := countingJobType("extractPageMeta", func(ctx *Context, desc string) (Result, error) {
		return Result{Dependencies: []Dependency{ctx.DependOnFile(desc)}, Value: "v"}, nil
	})
	tr := NewTracker(fs)
	_, err = tr.EnsureCooked(context.Background(), JobID{Type: jt, Desc: "a.md"})
	require.NoError(t, err)
	require.NoError(t, tr.SaveDatabase("cook-db.bin"))

	// Next process registers a different job type set: the persisted
	// entry has no cook function anymore and must be dropped, so a
	// fresh registration of the same name later recooks from scratch.
	other := &JobType{Name: "other", Cook: func(ctx *Context, desc string) (Result, error) { return Result{}, nil }}
	tr2 := NewTracker(fs)
	require.NoError(t, tr2.LoadDatabase("cook-db.bin", []*JobType{other}))
	assert.Empty(t, tr2.Jobs())

	// And loading with the type registered restores the record.
	jt2, calls2 := countingJobType("extractPageMeta", func(ctx *Context, desc string) (Result, error) {
		return Result{Dependencies: []Dependency{ctx.DependOnFile(desc)}, Value: "v"}, nil
	})
	tr3 := NewTracker(fs)
	require.NoError(t, tr3.LoadDatabase("cook-db.bin", []*JobType{jt2}))
	_, err = tr3.EnsureCooked(context.Background(), JobID{Type: jt2, Desc: "a.md"})
	require.NoError(t, err)
	assert.Equal(t, 0, *calls2, "restored record with unchanged file must be a cache hit")
}

func TestLoadDatabaseMissingFileIsNoop(t *testing.T) {
	tr := NewTracker(fsio.NewMemoryAdapter())
	require.NoError(t, tr.LoadDatabase("cook-db.bin", nil))
	assert.Empty(t, tr.Jobs())
}

func TestSetRootReferencesTrimsUnreachable(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	tr := NewTracker(fs)

	leaf := &JobType{Name: "leaf", Cook: func(ctx *Context, desc string) (Result, error) {
		return Result{Value: "leaf:" + desc}, nil
	}}
	root := &JobType{Name: "root"}
	root.Cook = func(ctx *Context, desc string) (Result, error) {
		leafID := JobID{Type: leaf, Desc: desc}
		res, err := ctx.EnsureCooked(leafID)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Dependencies: []Dependency{JobDependency{ID: leafID, RecordedHash: resultHash(res)}},
			Value:        "root:" + desc,
		}, nil
	}

	rootID := JobID{Type: root, Desc: "kept"}
	_, err := tr.EnsureCooked(context.Background(), rootID)
	require.NoError(t, err)
	_, err = tr.EnsureCooked(context.Background(), JobID{Type: leaf, Desc: "orphan"})
	require.NoError(t, err)
	require.Len(t, tr.Jobs(), 3)

	tr.SetRootReferences([]JobID{rootID})

	ids := tr.Jobs()
	require.Len(t, ids, 2)
	assert.Equal(t, "leaf:kept", ids[0].String())
	assert.Equal(t, "root:kept", ids[1].String())
}
