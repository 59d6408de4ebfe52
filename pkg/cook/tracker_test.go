package cook

import (
	"context"
	"testing"

	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingJobType wraps a cook function with an invocation counter so
// tests can assert exactly how many times a job actually recooked.
func countingJobType(name string, fn func(ctx *Context, desc string) (Result, error)) (*JobType, *int) {
	var calls int
	jt := &JobType{Name: name}
	jt.Cook = func(ctx *Context, desc string) (Result, error) {
		calls++
		return fn(ctx, desc)
	}
	return jt, &calls
}

func TestEnsureCookedSkipsUnchangedFile(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	_, err := fs.WriteFileIfDifferent("a.md", []byte("hello"), 0o644)
	require.NoError(t, err)

	jt, calls := countingJobType("extractPageMeta", func(ctx *Context, desc string) (Result, error) {
		dep := ctx.DependOnFile(desc)
		return Result{Dependencies: []Dependency{dep}, Value: "meta:" + desc}, nil
	})

	tr := NewTracker(fs)
	id := JobID{Type: jt, Desc: "a.md"}

	_, err = tr.EnsureCooked(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)

	tr.BeginPass()
	_, err = tr.EnsureCooked(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls, "re-running with no file changes must not recook")
}

func TestEnsureCookedRecooksOnFileChange(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	_, err := fs.WriteFileIfDifferent("a.md", []byte("hello"), 0o644)
	require.NoError(t, err)

	jt, calls := countingJobType("extractPageMeta", func(ctx *Context, desc string) (Result, error) {
		dep := ctx.DependOnFile(desc)
		return Result{Dependencies: []Dependency{dep}, Value: "meta:" + desc}, nil
	})

	tr := NewTracker(fs)
	id := JobID{Type: jt, Desc: "a.md"}

	_, err = tr.EnsureCooked(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 1, *calls)

	fs.Advance(0)
	_, err = fs.WriteFileIfDifferent("a.md", []byte("hello, changed"), 0o644)
	require.NoError(t, err)

	tr.BeginPass()
	_, err = tr.EnsureCooked(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, *calls, "a changed dependency must force exactly one recook")
}

func TestEnsureCookedPropagatesThroughJobDependency(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	_, err := fs.WriteFileIfDifferent("a.md", []byte("hello"), 0o644)
	require.NoError(t, err)
	_, err = fs.WriteFileIfDifferent("b.md", []byte("unrelated"), 0o644)
	require.NoError(t, err)

	extractType, extractCalls := countingJobType("extractPageMeta", func(ctx *Context, desc string) (Result, error) {
		dep := ctx.DependOnFile(desc)
		content, err := ctx.FS().ReadFile(desc)
		if err != nil {
			return Result{}, err
		}
		return Result{Dependencies: []Dependency{dep}, Value: "meta:" + string(content)}, nil
	})

	tr := NewTracker(fs)
	extractID := JobID{Type: extractType, Desc: "a.md"}

	var renderCalls int
	renderType := &JobType{Name: "renderPage"}
	renderType.Cook = func(ctx *Context, desc string) (Result, error) {
		renderCalls++
		extractResult, err := ctx.EnsureCooked(extractID)
		if err != nil {
			return Result{}, err
		}
		jdep := JobDependency{ID: extractID, RecordedHash: resultHash(extractResult)}
		return Result{Dependencies: []Dependency{jdep}, Value: "page:" + desc}, nil
	}
	renderID := JobID{Type: renderType, Desc: "a"}

	// Initial cook: both jobs run once.
	_, err = tr.EnsureCooked(context.Background(), renderID)
	require.NoError(t, err)
	assert.Equal(t, 1, *extractCalls)
	assert.Equal(t, 1, renderCalls)

	// Touching the dependency file forces both the extractor and the
	// job that references it to recook exactly once.
	_, err = fs.WriteFileIfDifferent("a.md", []byte("hello, changed"), 0o644)
	require.NoError(t, err)
	tr.BeginPass()
	_, err = tr.EnsureCooked(context.Background(), renderID)
	require.NoError(t, err)
	assert.Equal(t, 2, *extractCalls)
	assert.Equal(t, 2, renderCalls)

	// Touching an unrelated file invalidates neither job.
	_, err = fs.WriteFileIfDifferent("b.md", []byte("still unrelated"), 0o644)
	require.NoError(t, err)
	tr.BeginPass()
	_, err = tr.EnsureCooked(context.Background(), renderID)
	require.NoError(t, err)
	assert.Equal(t, 2, *extractCalls)
	assert.Equal(t, 2, renderCalls)
}

func TestEnsureCookedBreaksCycleAsUpToDate(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	tr := NewTracker(fs)

	var aID, bID JobID
	var aCalls, bCalls int
	aType := &JobType{Name: "a"}
	bType := &JobType{Name: "b"}
	aType.Cook = func(ctx *Context, desc string) (Result, error) {
		aCalls++
		_, err := ctx.EnsureCooked(bID)
		return Result{Value: "a"}, err
	}
	bType.Cook = func(ctx *Context, desc string) (Result, error) {
		bCalls++
		// aID is already in progress (it's the job that triggered this
		// cook): EnsureCooked must short-circuit as up-to-date rather
		// than erroring or recursing forever.
		_, err := ctx.EnsureCooked(aID)
		return Result{Value: "b"}, err
	}
	aID = JobID{Type: aType, Desc: "x"}
	bID = JobID{Type: bType, Desc: "x"}

	_, err := tr.EnsureCooked(context.Background(), aID)
	require.NoError(t, err)
	assert.Equal(t, 1, aCalls)
	assert.Equal(t, 1, bCalls)
}

func TestDeferDrainsAfterPrimaryWalk(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	tr := NewTracker(fs)

	sideType, sideCalls := countingJobType("side", func(ctx *Context, desc string) (Result, error) {
		return Result{Value: "side:" + desc}, nil
	})
	sideID := JobID{Type: sideType, Desc: "x"}

	mainType := &JobType{Name: "main"}
	mainType.Cook = func(ctx *Context, desc string) (Result, error) {
		ctx.Defer(sideID)
		return Result{Value: "main:" + desc}, nil
	}
	mainID := JobID{Type: mainType, Desc: "x"}

	_, err := tr.EnsureCooked(context.Background(), mainID)
	require.NoError(t, err)
	assert.Equal(t, 0, *sideCalls, "deferred job must not run inline")

	errs := tr.DrainDeferred(context.Background())
	assert.Empty(t, errs)
	assert.Equal(t, 1, *sideCalls)
}

func TestJobsOrderedByTypeThenDesc(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	tr := NewTracker(fs)

	aType := &JobType{Name: "a", Cook: func(ctx *Context, desc string) (Result, error) { return Result{}, nil }}
	bType := &JobType{Name: "b", Cook: func(ctx *Context, desc string) (Result, error) { return Result{}, nil }}

	ids := []JobID{
		{Type: bType, Desc: "1"},
		{Type: aType, Desc: "2"},
		{Type: aType, Desc: "1"},
	}
	for _, id := range ids {
		_, err := tr.EnsureCooked(context.Background(), id)
		require.NoError(t, err)
	}

	got := tr.Jobs()
	require.Len(t, got, 3)
	assert.Equal(t, "a:1", got[0].String())
	assert.Equal(t, "a:2", got[1].String())
	assert.Equal(t, "b:1", got[2].String())
}
