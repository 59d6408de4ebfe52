package stores

import (
	"context"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	return store
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	for _, table := range []string{"runs", "job_events"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	run := &Run{
		ID:            "run-001",
		WorkspaceRoot: "/workspace",
		Status:        RunStatusPending,
		StartedAt:     now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.WorkspaceRoot != run.WorkspaceRoot {
		t.Errorf("expected WorkspaceRoot %s, got %s", run.WorkspaceRoot, retrieved.WorkspaceRoot)
	}
	if retrieved.Status != run.Status {
		t.Errorf("expected Status %s, got %s", run.Status, retrieved.Status)
	}

	errMsg := "test error"
	if err := store.UpdateRunStatus(ctx, run.ID, RunStatusFailed, 3, 1, &errMsg); err != nil {
		t.Fatalf("failed to update run status: %v", err)
	}

	updated, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get updated run: %v", err)
	}
	if updated.Status != RunStatusFailed {
		t.Errorf("expected Status %s, got %s", RunStatusFailed, updated.Status)
	}
	if updated.JobsCooked != 3 || updated.JobsFailed != 1 {
		t.Errorf("expected jobs_cooked=3 jobs_failed=1, got %d/%d", updated.JobsCooked, updated.JobsFailed)
	}
	if updated.Error == nil || *updated.Error != errMsg {
		t.Errorf("expected Error %s, got %v", errMsg, updated.Error)
	}
	if updated.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}
}

func TestJobEventOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	run := &Run{ID: "run-002", WorkspaceRoot: "/workspace", Status: RunStatusRunning, StartedAt: now, CreatedAt: now, UpdatedAt: now}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	events := []*JobEvent{
		{RunID: run.ID, JobID: "extractPageMeta:a.md", Level: EventLevelInfo, Message: "cooked", Timestamp: now},
		{RunID: run.ID, JobID: "renderPage:a", Level: EventLevelError, Message: "missing input", Timestamp: now.Add(time.Second)},
	}
	for _, e := range events {
		if err := store.AppendJobEvent(ctx, e); err != nil {
			t.Fatalf("failed to append job event: %v", err)
		}
		if e.ID == 0 {
			t.Error("expected job event ID to be set after insert")
		}
	}

	retrieved, err := store.ListJobEvents(ctx, run.ID, 10, 0)
	if err != nil {
		t.Fatalf("failed to list job events: %v", err)
	}
	if len(retrieved) != 2 {
		t.Fatalf("expected 2 job events, got %d", len(retrieved))
	}
	if retrieved[1].Level != EventLevelError {
		t.Errorf("expected second event level %s, got %s", EventLevelError, retrieved[1].Level)
	}
}
