package stores

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of one recorded cook run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// EventLevel is the severity of one JobEvent: info, warning or
// error. There is no fatal level.
type EventLevel string

const (
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run is one recorded cook pass: when it started, how many jobs it
// cooked or failed, and how it ended.
type Run struct {
	ID            string     `json:"id"`
	WorkspaceRoot string     `json:"workspace_root"`
	Status        RunStatus  `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	JobsCooked    int        `json:"jobs_cooked"`
	JobsFailed    int        `json:"jobs_failed"`
	Error         *string    `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// JobEvent is one cook-function-level outcome recorded against a Run,
// the persisted counterpart of the pkg/telemetry job-completed/
// job-failed events emitted live during the same pass.
type JobEvent struct {
	ID        int64      `json:"id"`
	RunID     string     `json:"run_id"`
	JobID     string     `json:"job_id"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// Store is the persistence contract the cook CLI driver depends on.
// SQLiteStore is the only implementation in this module.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, jobsCooked, jobsFailed int, errMsg *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	AppendJobEvent(ctx context.Context, event *JobEvent) error
	ListJobEvents(ctx context.Context, runID string, limit, offset int) ([]*JobEvent, error)

	HealthCheck(ctx context.Context) error
}
