// Package commands implements plytool's subcommands over the core
// packages: one newXCommand() constructor per subcommand, a single
// Execute entry point, persistent flags for the workspace directory.
package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/plywood-build/plywood/pkg/perrors"
)

var (
	workspaceDir string
)

// Execute builds and runs the root command against ctx.
func Execute(ctx context.Context) error {
	root := newRootCommand()
	return root.ExecuteContext(ctx)
}

// ExitCode maps err to a process exit code: 0 for nil, 1 for any
// error whatever its perrors.Class. Negative codes for subprocess
// propagation are not produced by this driver.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "plytool",
		Short: "Drive the Plywood build-and-cook core",
		Long: `plytool is an illustrative front-end over the build-and-cook core:
workspace location, module instantiation, build graph inheritance,
extern provider resolution, and the cook job scheduler.

Richer front-ends are expected to embed the core packages directly
rather than shell out to this driver.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&workspaceDir, "workspace", "w", ".", "starting directory to locate the workspace from")

	root.AddCommand(newFolderCommand())
	root.AddCommand(newGenerateCommand())
	root.AddCommand(newCookCommand())
	root.AddCommand(newExternCommand())

	return root
}

// asExitError renders err the way cobra's RunE contract expects:
// printed once by the caller, never twice. perrors.Error already
// formats its own class/code/resource, so no extra wrapping is added.
func asExitError(err error) error {
	if err == nil {
		return nil
	}
	var pe *perrors.Error
	if errors.As(err, &pe) {
		return pe
	}
	return err
}
