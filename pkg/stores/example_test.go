package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/plywood-build/plywood/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new
// cook run log backed by SQLite.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_CreateRun demonstrates recording a cook run.
func ExampleSQLiteStore_CreateRun() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	run := &stores.Run{
		ID:            "run-001",
		WorkspaceRoot: "/home/dev/myworkspace",
		Status:        stores.RunStatusPending,
		StartedAt:     time.Now(),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		log.Fatal(err)
	}

	retrieved, err := store.GetRun(ctx, "run-001")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Run ID: %s, Status: %s\n", retrieved.ID, retrieved.Status)
	// Output: Run ID: run-001, Status: pending
}

// ExampleSQLiteStore_AppendJobEvent demonstrates logging a cook job
// outcome against a run.
func ExampleSQLiteStore_AppendJobEvent() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	run := &stores.Run{
		ID: "run-003", WorkspaceRoot: "/ws", Status: stores.RunStatusRunning,
		StartedAt: time.Now(), CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	_ = store.CreateRun(ctx, run)

	event := &stores.JobEvent{
		RunID:     run.ID,
		JobID:     "renderPage:index",
		Level:     stores.EventLevelInfo,
		Message:   "cooked",
		Timestamp: time.Now(),
	}
	if err := store.AppendJobEvent(ctx, event); err != nil {
		log.Fatal(err)
	}

	events, err := store.ListJobEvents(ctx, run.ID, 10, 0)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Event count: %d, Message: %s\n", len(events), events[0].Message)
	// Output: Event count: 1, Message: cooked
}
