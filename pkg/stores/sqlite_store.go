package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store over a SQLite database file (or
// ":memory:" for tests). Init opens the connection and Migrate
// applies the embedded migrations; neither runs on construction.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate applies the embedded runs/job_events schema.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, workspace_root, status, started_at, completed_at, jobs_cooked, jobs_failed, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.WorkspaceRoot, run.Status, run.StartedAt, run.CompletedAt,
		run.JobsCooked, run.JobsFailed, run.Error, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, workspace_root, status, started_at, completed_at, jobs_cooked, jobs_failed, error, created_at, updated_at
		FROM runs WHERE id = ?
	`
	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.WorkspaceRoot, &run.Status, &run.StartedAt, &run.CompletedAt,
		&run.JobsCooked, &run.JobsFailed, &run.Error, &run.CreatedAt, &run.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// UpdateRunStatus updates a run's terminal status, job counters and
// optional error, stamping completed_at when the status is terminal.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status RunStatus, jobsCooked, jobsFailed int, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, jobs_cooked = ?, jobs_failed = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`
	var completedAt *time.Time
	now := time.Now()
	if status == RunStatusCompleted || status == RunStatusFailed {
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, jobsCooked, jobsFailed, errMsg, completedAt, now, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// ListRuns lists runs newest-first with pagination.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, workspace_root, status, started_at, completed_at, jobs_cooked, jobs_failed, error, created_at, updated_at
		FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		if err := rows.Scan(
			&run.ID, &run.WorkspaceRoot, &run.Status, &run.StartedAt, &run.CompletedAt,
			&run.JobsCooked, &run.JobsFailed, &run.Error, &run.CreatedAt, &run.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// AppendJobEvent appends one job-level event to the log.
func (s *SQLiteStore) AppendJobEvent(ctx context.Context, event *JobEvent) error {
	query := `
		INSERT INTO job_events (run_id, job_id, level, message, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, event.RunID, event.JobID, event.Level, event.Message, event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append job event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get job event ID: %w", err)
	}
	event.ID = id
	return nil
}

// ListJobEvents lists events for one run, oldest-first.
func (s *SQLiteStore) ListJobEvents(ctx context.Context, runID string, limit, offset int) ([]*JobEvent, error) {
	query := `
		SELECT id, run_id, job_id, level, message, timestamp
		FROM job_events WHERE run_id = ? ORDER BY timestamp ASC LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list job events: %w", err)
	}
	defer rows.Close()

	events := []*JobEvent{}
	for rows.Next() {
		event := &JobEvent{}
		if err := rows.Scan(&event.ID, &event.RunID, &event.JobID, &event.Level, &event.Message, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan job event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job events: %w", err)
	}
	return events, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
