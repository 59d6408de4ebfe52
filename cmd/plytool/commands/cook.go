package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/plywood-build/plywood/pkg/cook"
	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/plywood-build/plywood/pkg/stores"
)

// extractType is a demo cook job: it reads a file and records a
// dependency on it, the way a real documentation-extraction job would
// depend on the source file it parses.
var extractType = &cook.JobType{
	Name: "extract",
	Cook: func(ctx *cook.Context, desc string) (cook.Result, error) {
		dep := ctx.DependOnFile(desc)
		content, err := ctx.FS().ReadFile(desc)
		if err != nil {
			return cook.Result{}, err
		}
		return cook.Result{
			Dependencies: []cook.Dependency{dep},
			Value:        fmt.Sprintf("%d bytes", len(content)),
		}, nil
	},
}

func newCookCommand() *cobra.Command {
	var watch bool
	var dbPath, runLogPath string
	cmd := &cobra.Command{
		Use:   "cook <path>...",
		Short: "Cook one or more files through the demo extract job, reporting cache hits and misses",
		Long: `cook drives the dependency-tracked job scheduler against real files:
each path given is cooked through a demo extraction job that depends
on the file's modification time. Running it twice in a row with no
changes performs zero cook function invocations. With --db, the
tracker's state is loaded before the first pass and saved after the
last one, so the cache survives across invocations.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := fsio.NewLocalAdapter()
			tr := cook.NewTracker(fs)
			if dbPath != "" {
				if err := tr.LoadDatabase(dbPath, []*cook.JobType{extractType}); err != nil {
					return asExitError(err)
				}
			}

			run := func(label string) error {
				tr.BeginPass()
				fmt.Fprintln(cmd.OutOrStdout(), label+":")
				for _, path := range args {
					id := cook.JobID{Type: extractType, Desc: path}
					result, err := tr.EnsureCooked(cmd.Context(), id)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "  %s -> %v\n", path, result.Value)
				}
				return nil
			}

			if err := run("first pass"); err != nil {
				return asExitError(err)
			}
			if err := run("second pass (expect cache hits for unchanged files)"); err != nil {
				return asExitError(err)
			}
			if watch {
				w := cook.NewWatcher(tr, 0)
				if err := w.Run(cmd.Context(), func(ctx context.Context) error {
					return run("change detected")
				}); err != nil {
					return asExitError(err)
				}
			}
			if dbPath != "" {
				if err := tr.SaveDatabase(dbPath); err != nil {
					return asExitError(err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running, recooking whenever a tracked file changes")
	cmd.Flags().StringVar(&dbPath, "db", "", "load/save the cook database at this path, keeping the cache across runs")
	cmd.Flags().StringVar(&runLogPath, "run-log", "", "append this invocation to the SQLite run log at the given path")
	wrapRunLog(cmd, &runLogPath)
	return cmd
}

// wrapRunLog layers run-log recording around cmd's RunE: when
// --run-log is set, the invocation is recorded as a run row that is
// marked completed or failed on the way out. The row's jobs_cooked is
// the number of paths given on the command line and its jobs_failed is
// always 0; cache hits, recooks and failed jobs are not counted. The
// log is history for
// operators; a failure to write it fails the command visibly rather
// than silently losing the record.
func wrapRunLog(cmd *cobra.Command, path *string) {
	inner := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if *path == "" {
			return inner(cmd, args)
		}
		store, err := stores.NewSQLiteStore(stores.Config{Path: *path})
		if err != nil {
			return asExitError(err)
		}
		ctx := cmd.Context()
		if err := store.Init(ctx); err != nil {
			return asExitError(err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return asExitError(err)
		}
		defer store.Close()

		now := time.Now().UTC()
		run := &stores.Run{
			ID:            uuid.NewString(),
			WorkspaceRoot: workspaceDir,
			Status:        stores.RunStatusRunning,
			StartedAt:     now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := store.CreateRun(ctx, run); err != nil {
			return asExitError(err)
		}
		runErr := inner(cmd, args)
		status := stores.RunStatusCompleted
		var msg *string
		if runErr != nil {
			status = stores.RunStatusFailed
			s := runErr.Error()
			msg = &s
		}
		if err := store.UpdateRunStatus(ctx, run.ID, status, len(args), 0, msg); err != nil {
			return asExitError(err)
		}
		return runErr
	}
}
