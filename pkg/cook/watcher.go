package cook

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/plywood-build/plywood/pkg/telemetry"
)

// Watcher is the opt-in development mode layered over the one-pass
// scheduler: it subscribes to every path behind a live FileDependency
// and triggers another cook pass when one changes on disk. The
// single-threaded cooperative model is preserved — recook runs on the
// watcher's goroutine, one pass at a time, never concurrently with
// itself.
type Watcher struct {
	tracker  *Tracker
	debounce time.Duration
}

// NewWatcher constructs a Watcher over tracker. debounce collapses
// the bursts of events editors and build tools produce for one
// logical save into a single recook; zero picks a default.
func NewWatcher(tracker *Tracker, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{tracker: tracker, debounce: debounce}
}

// Run watches until ctx is cancelled, calling recook after each
// debounced batch of changes to tracked files. Directories are
// watched rather than files so an editor's delete-and-rename save
// still produces events. Recook errors are logged and watching
// continues; a watch that dies on the first broken save would be
// useless for its purpose.
func (w *Watcher) Run(ctx context.Context, recook func(ctx context.Context) error) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	tracked := map[string]bool{}
	dirs := map[string]bool{}
	for _, p := range w.tracker.FileDependencyPaths() {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		tracked[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	log := telemetry.FromContext(ctx).NewComponentLogger("cook")
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			log.WithError(err).WithField("dir", dir).Warn("cannot watch directory")
		}
	}
	log.WithField("files", len(tracked)).Info("watching tracked dependencies")

	events := make(chan string, 64)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					events <- ev.Name
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("file watcher error")
			}
		}
	}()

	w.loop(ctx, events, tracked, recook)
	return nil
}

// loop is the debounce core, separated from fsnotify so it can be
// driven directly in tests.
func (w *Watcher) loop(ctx context.Context, events <-chan string, tracked map[string]bool, recook func(ctx context.Context) error) {
	log := telemetry.FromContext(ctx).NewComponentLogger("cook")
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case path, ok := <-events:
			if !ok {
				timer.Stop()
				return
			}
			abs, err := filepath.Abs(path)
			if err != nil || !tracked[abs] {
				continue
			}
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true
		case <-timer.C:
			pending = false
			if err := recook(ctx); err != nil {
				log.WithError(err).Error("recook failed")
			}
		}
	}
}

// FileDependencyPaths returns the sorted, deduplicated set of paths
// any live job's result currently depends on — the watch set for
// Watcher and a useful diagnostic on its own.
func (t *Tracker) FileDependencyPaths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := map[string]bool{}
	for _, rec := range t.records {
		for _, dep := range rec.result.Dependencies {
			if fd, ok := dep.(FileDependency); ok {
				seen[fd.Path] = true
			}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
