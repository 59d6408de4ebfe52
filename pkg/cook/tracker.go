package cook

import (
	"context"
	"sort"
	"sync"

	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/plywood-build/plywood/pkg/perrors"
	"github.com/plywood-build/plywood/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// visitStatus tracks where a job is in the current cook pass, the
// DFS visit-state idiom pkg/graph/inherit.go uses, with its "done"
// state split into upToDate and recooked (finish records every
// completed visit, cache hit or recook, as recooked): a job that's
// InProgress when EnsureCooked recurses into it again is a dependency
// cycle, not a bug to special-case per call site.
type visitStatus int

const (
	notVisited visitStatus = iota
	inProgress
	upToDate
	recooked
)

// record is everything the Tracker remembers about one job between
// cook runs: its last Result and the Dependency list recorded for it,
// used to decide whether the next EnsureCooked call can skip Cook.
type record struct {
	result  Result
	status  visitStatus
	lastErr error
}

// Tracker is the DependencyTracker: the content-addressed store of
// every cook job's last-known result, keyed by JobID, plus the
// per-pass visitation state used to make recursive up-to-date checks
// cycle-safe. It is not thread-safe across concurrent cook passes —
// the cook engine is single-threaded and cooperative, and a Cook
// function recurses into its dependencies synchronously.
type Tracker struct {
	mu       sync.Mutex
	fs       fsio.Adapter
	records  map[JobID]*record
	deferred []JobID
}

// NewTracker constructs an empty Tracker backed by fs for file
// dependency checks.
func NewTracker(fs fsio.Adapter) *Tracker {
	return &Tracker{fs: fs, records: make(map[JobID]*record)}
}

// BeginPass resets every job's visitation status to notVisited ahead
// of a new EnsureCooked sweep, without discarding the recorded
// results/dependencies from the previous pass that up-to-date checks
// need to compare against.
func (t *Tracker) BeginPass() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.records {
		r.status = notVisited
	}
	t.deferred = nil
}

// Context is handed to a JobType.Cook function. It exposes the
// subset of Tracker operations a job is allowed to use while running:
// recording file dependencies it reads and depending on other jobs'
// results, plus deferring a job for later rather than cooking it
// inline.
type Context struct {
	ctx     context.Context
	tracker *Tracker
	fs      fsio.Adapter
}

// FS returns the fsio.Adapter the current cook pass is running
// against, so a Cook function can read the files it depends on through
// the same adapter the Tracker uses for mtime checks.
func (c *Context) FS() fsio.Adapter { return c.fs }

// DependOnFile records a FileDependency on path against the calling
// job's in-progress Result. Call this for every file a Cook function
// reads so future EnsureCooked calls know to check it.
func (c *Context) DependOnFile(path string) Dependency {
	return NewFileDependency(c.fs, path)
}

// EnsureCooked recursively cooks id's dependencies (if needed) and
// returns its up-to-date Result, allowing one Cook function to depend
// on another job's output synchronously.
func (c *Context) EnsureCooked(id JobID) (Result, error) {
	return c.tracker.EnsureCooked(c.ctx, id)
}

// Defer registers id to be cooked after the current pass's primary
// EnsureCooked walk completes, via DrainDeferred. Use this for jobs
// that are discovered as a side effect of cooking something else but
// aren't on the critical path, e.g. generating a compile_commands.json
// entry while compiling a target.
func (c *Context) Defer(id JobID) {
	c.tracker.mu.Lock()
	defer c.tracker.mu.Unlock()
	c.tracker.deferred = append(c.tracker.deferred, id)
}

// EnsureCooked is the DependencyTracker's core operation: return id's
// up-to-date Result, recooking it (and recursively, anything it
// depends on) only if something changed since the last successful
// cook. Concurrent/recursive calls for the same id within one pass are
// cycle-detected rather than stack-overflowing.
func (t *Tracker) EnsureCooked(ctx context.Context, id JobID) (Result, error) {
	t.mu.Lock()
	rec, ok := t.records[id]
	if !ok {
		rec = &record{}
		t.records[id] = rec
	}
	switch rec.status {
	case inProgress:
		// id is already being cooked higher up this same call stack: a
		// cook dependency cycle. Per the up-to-date algorithm, treat it
		// as up-to-date to break the cycle rather than erroring — the
		// in-progress cook's own completion will record the real result.
		t.mu.Unlock()
		return rec.result, nil
	case upToDate, recooked:
		t.mu.Unlock()
		return rec.result, rec.lastErr
	}
	rec.status = inProgress
	t.mu.Unlock()

	needsRecook := !hasEverCooked(rec) || rec.lastErr != nil
	if !needsRecook {
		for _, dep := range rec.result.Dependencies {
			changed, err := dep.Changed(ctx, t)
			if err != nil {
				t.finish(id, rec, Result{}, err)
				return Result{}, err
			}
			if changed {
				needsRecook = true
				break
			}
		}
	}

	tel := telemetry.FromTelemetryContext(ctx)

	if !needsRecook {
		recordCacheLookup(tel, id, "hit")
		t.finish(id, rec, rec.result, nil)
		return rec.result, nil
	}
	recordCacheLookup(tel, id, "miss")

	if id.Type == nil || id.Type.Cook == nil {
		err := perrors.Programmer("cook job %s has no JobType.Cook function", id.String())
		t.finish(id, rec, Result{}, err)
		return Result{}, err
	}

	jobName := "<nil>"
	if id.Type != nil {
		jobName = id.Type.Name
	}
	var span trace.Span
	var timer *telemetry.Timer
	if tel != nil {
		ctx, span = tel.Tracer.StartJobSpan(ctx, id.String(), id.Desc, jobName)
		timer = telemetry.NewTimer()
	}

	jobCtx := &Context{ctx: ctx, tracker: t, fs: t.fs}
	result, err := id.Type.Cook(jobCtx, id.Desc)
	t.finish(id, rec, result, err)

	if tel != nil {
		duration := timer.Duration()
		status := "succeeded"
		if err != nil {
			status = "failed"
			telemetry.RecordError(span, err)
			tel.Events.PublishJobFailed("", id.String(), id.Desc, err.Error())
		} else {
			telemetry.RecordSuccess(span)
			tel.Events.PublishJobCompleted("", id.String(), id.Desc, duration)
		}
		span.End()
		tel.Metrics.RecordJobExecution(jobName, status, duration, id.Desc)
	}

	return result, err
}

// recordCacheLookup reports whether EnsureCooked found id already
// up-to-date ("hit") or had to recook it ("miss"). No-op when ctx
// carries no telemetry.
func recordCacheLookup(tel *telemetry.Telemetry, id JobID, outcome string) {
	if tel == nil {
		return
	}
	tel.Metrics.RecordCacheLookup(outcome)
	_ = tel.Events.PublishCacheResult(id.String(), outcome)
}

func hasEverCooked(rec *record) bool {
	return rec.result.Value != nil || len(rec.result.Dependencies) > 0
}

func (t *Tracker) finish(id JobID, rec *record, result Result, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec.result = result
	rec.lastErr = err
	if err != nil {
		rec.status = notVisited
		return
	}
	rec.status = recooked
}

// DrainDeferred cooks every job queued via Context.Defer during the
// current pass, in the order they were deferred, and keeps draining
// until the queue is empty, so jobs deferred by a deferred job are
// cooked too. It returns every error encountered and still attempts
// every deferred job, mirroring modinst's "collect all errors"
// discipline rather than aborting the queue on the first failure.
func (t *Tracker) DrainDeferred(ctx context.Context) []error {
	var errs []error
	for {
		t.mu.Lock()
		queue := append([]JobID(nil), t.deferred...)
		t.deferred = nil
		t.mu.Unlock()
		if len(queue) == 0 {
			return errs
		}
		for _, id := range queue {
			if _, err := t.EnsureCooked(ctx, id); err != nil {
				errs = append(errs, err)
			}
		}
	}
}

// Jobs returns every JobID the tracker has a record for, ordered by
// JobID.Less for deterministic iteration (e.g. writing the run log).
func (t *Tracker) Jobs() []JobID {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]JobID, 0, len(t.records))
	for id := range t.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// Result returns the last-recorded Result for id without triggering a
// cook, along with whether the tracker has ever cooked it.
func (t *Tracker) Result(id JobID) (Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok {
		return Result{}, false
	}
	return rec.result, hasEverCooked(rec)
}
