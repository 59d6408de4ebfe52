// Package cook implements the content-addressed cook job graph: job
// identity, dependency-tracked up-to-date checking with cycle-safe
// recursion, deferred job execution, and file dependencies.
package cook

import (
	"context"
	"fmt"
)

// JobType identifies a family of cook jobs (e.g. "compile", "link",
// "generate-header") and supplies the function that actually performs
// the work.
type JobType struct {
	Name string
	Cook func(ctx *Context, desc string) (Result, error)
}

// JobID identifies one cook job: a JobType plus a description string
// that's unique within that type (e.g. a target name, a source file
// path). Equality is over (Type pointer, Desc), so JobIDs can key a
// map; ordering (Less) is over (Type.Name, Desc), so they sort
// deterministically with same-type jobs grouped together.
type JobID struct {
	Type *JobType
	Desc string
}

// String renders a JobID for logs and error messages.
func (id JobID) String() string {
	name := "<nil>"
	if id.Type != nil {
		name = id.Type.Name
	}
	return name + ":" + id.Desc
}

// Less defines the grouped-by-type ordering used when iterating a
// DependencyTracker's jobs deterministically (e.g. for the run log).
func (id JobID) Less(other JobID) bool {
	if id.Type != other.Type {
		return id.Type.Name < other.Type.Name
	}
	return id.Desc < other.Desc
}

// Result is what a JobType.Cook function returns: its own errors (job
// logic failures, as opposed to perrors from this package) plus the
// dependencies it discovered while running, used to decide whether a
// future cook of this job can be skipped.
type Result struct {
	// Dependencies lists everything this job's output depends on.
	// EnsureCooked compares each against its last-known state on the
	// *next* cook attempt to decide whether to re-run.
	Dependencies []Dependency
	// Errors collects non-fatal problems the job wants surfaced
	// without aborting the rest of the cook (e.g. a source file with a
	// deprecation warning).
	Errors []error
	// Value is the job's payload, opaque to this package; callers
	// type-assert it back to whatever their JobType produces.
	Value interface{}
}

// Dependency is something a cook job's result depends on. EnsureCooked
// calls Changed to decide whether to re-run the job.
type Dependency interface {
	Changed(ctx context.Context, dt *Tracker) (bool, error)
	fmt.Stringer
}
