// Package stores persists the cook run log: one row per cook pass
// plus the job-level events it emitted. This is explicitly a
// diagnostics/history log, not the authoritative cache — the
// reflected dependency tracker in pkg/cook, serialized via
// pkg/reflect to the on-disk cook database, is what a rerun actually
// consults to decide what's stale.
package stores
