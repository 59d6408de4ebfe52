package cook

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDependencyPathsListsTrackedFiles(t *testing.T) {
	fs := fsio.NewMemoryAdapter()
	for _, p := range []string{"b.md", "a.md"} {
		_, err := fs.WriteFileIfDifferent(p, []byte("x"), 0o644)
		require.NoError(t, err)
	}

	jt := &JobType{Name: "extract", Cook: func(ctx *Context, desc string) (Result, error) {
		return Result{Dependencies: []Dependency{ctx.DependOnFile(desc)}, Value: desc}, nil
	}}
	tr := NewTracker(fs)
	for _, p := range []string{"b.md", "a.md"} {
		_, err := tr.EnsureCooked(context.Background(), JobID{Type: jt, Desc: p})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"a.md", "b.md"}, tr.FileDependencyPaths())
}

func TestWatcherDebouncesBurstsIntoOneRecook(t *testing.T) {
	w := NewWatcher(NewTracker(fsio.NewMemoryAdapter()), 50*time.Millisecond)

	abs, err := filepath.Abs("a.md")
	require.NoError(t, err)
	tracked := map[string]bool{abs: true}

	var recooks atomic.Int32
	events := make(chan string, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.loop(ctx, events, tracked, func(context.Context) error {
			recooks.Add(1)
			return nil
		})
	}()

	// A burst of events for one logical save collapses to one recook.
	for i := 0; i < 5; i++ {
		events <- "a.md"
	}
	require.Eventually(t, func() bool { return recooks.Load() == 1 },
		5*time.Second, 10*time.Millisecond)

	// Quiet period, then a second change: exactly one more recook.
	time.Sleep(100 * time.Millisecond)
	events <- "a.md"
	require.Eventually(t, func() bool { return recooks.Load() == 2 },
		5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher loop did not stop on context cancellation")
	}
	assert.Equal(t, int32(2), recooks.Load())
}

func TestWatcherIgnoresUntrackedPaths(t *testing.T) {
	w := NewWatcher(NewTracker(fsio.NewMemoryAdapter()), 20*time.Millisecond)

	abs, err := filepath.Abs("a.md")
	require.NoError(t, err)
	tracked := map[string]bool{abs: true}

	var recooks atomic.Int32
	events := make(chan string, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.loop(ctx, events, tracked, func(context.Context) error {
			recooks.Add(1)
			return nil
		})
	}()

	events <- "unrelated.md"
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), recooks.Load())

	cancel()
	<-done
}
