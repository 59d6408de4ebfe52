package commands

import (
	"context"
	"fmt"
	"path"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/plywood-build/plywood/pkg/config"
	"github.com/plywood-build/plywood/pkg/extern"
	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/plywood-build/plywood/pkg/perrors"
	"github.com/plywood-build/plywood/pkg/policy"
	"github.com/plywood-build/plywood/pkg/workspace"
)

func newExternCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extern",
		Short: "Inspect and install extern dependencies",
	}
	cmd.AddCommand(newExternListCommand())
	cmd.AddCommand(newExternInstallCommand())
	return cmd
}

func newExternListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed extern folders under the workspace data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := fsio.NewLocalAdapter()
			ws, err := workspace.Locate(fs, workspaceDir)
			if err != nil {
				return asExitError(err)
			}
			store := extern.NewFolderStore(fs, ws.ExternFolder())
			folders := store.List()
			if len(folders) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No extern folders found.")
				return nil
			}
			for _, f := range folders {
				status := "failed"
				if f.Success {
					status = "ok"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t[%s]\n", f.ProviderName, f.Path, status)
			}
			return nil
		},
	}
}

func newExternInstallCommand() *cobra.Command {
	var osFlag, archFlag, manifestPath string
	var argPairs []string
	cmd := &cobra.Command{
		Use:   "install <extern>",
		Short: "Resolve an extern to a provider and run its Status/Install/Instantiate lifecycle",
		Long: `install drives the full extern provider state machine against the
workspace's extern folder store: Status first, then (if not yet
installed) a policy-gated Install into a freshly allocated extern
folder, then Instantiate. Re-running the command finds the existing
folder and goes straight to Instantiate without reinstalling.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			fs := fsio.NewLocalAdapter()
			ws, err := workspace.Locate(fs, workspaceDir)
			if err != nil {
				return asExitError(err)
			}

			eargs := extern.Args{}
			for _, pair := range argPairs {
				k, v, ok := strings.Cut(pair, "=")
				if !ok {
					return asExitError(perrors.Structural("--arg %q is not key=value", pair))
				}
				eargs[k] = v
			}

			reg := extern.NewRegistry()
			provider := newVendoredProvider(cmdArgs[0])
			if err := reg.Register(provider); err != nil {
				return asExitError(err)
			}

			gate, err := policy.NewEngine(zerolog.New(cmd.ErrOrStderr()).Level(zerolog.WarnLevel))
			if err != nil {
				return asExitError(err)
			}

			coord := extern.NewCoordinator(reg, extern.NewFolderStore(fs, ws.ExternFolder()))
			coord.Gate = gate
			coord.Schemas = config.NewSchemaRegistry()
			if manifestPath != "" {
				m, err := extern.LoadManifest(fs, manifestPath)
				if err != nil {
					return asExitError(err)
				}
				coord.RegisterManifest(provider.FullyQualifiedName(), m)
			}

			tc := extern.Toolchain{OS: osFlag, Arch: archFlag}
			inst, err := coord.EnsureInstalled(cmd.Context(), fs, cmdArgs[0], eargs, tc)
			if err != nil {
				return asExitError(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Extern %q ready.\n", cmdArgs[0])
			for _, d := range inst.IncludeDirs {
				fmt.Fprintf(cmd.OutOrStdout(), "  include: %s\n", d)
			}
			for _, l := range inst.LinkLibs {
				fmt.Fprintf(cmd.OutOrStdout(), "  lib:     %s\n", l)
			}
			for _, d := range inst.Defines {
				fmt.Fprintf(cmd.OutOrStdout(), "  define:  %s\n", d)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&osFlag, "os", runtime.GOOS, "toolchain target OS")
	cmd.Flags().StringVar(&archFlag, "arch", runtime.GOARCH, "toolchain target architecture")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "optional provider manifest.yaml to validate --arg values against")
	cmd.Flags().StringArrayVar(&argPairs, "arg", nil, "provider argument as key=value (repeatable)")
	return cmd
}

// newVendoredProvider is the one provider compiled into this driver:
// it "installs" an extern by laying out an include directory inside
// the extern folder, standing in for a real provider's archive
// download and extraction. Real embeddings register their own
// providers through extern.Registry the same way.
func newVendoredProvider(name string) *extern.Provider {
	return &extern.Provider{
		Name: name,
		Repo: "vendored",
		Supports: func(tc extern.Toolchain) bool {
			return tc.OS != "" && tc.Arch != ""
		},
		Status: func(ctx context.Context, folder *extern.Folder, args extern.Args) (extern.Status, error) {
			if folder != nil && folder.Success {
				return extern.StatusInstalled, nil
			}
			return extern.StatusSupportedNotInstalled, nil
		},
		Install: func(ctx context.Context, fs fsio.Adapter, folder *extern.Folder, args extern.Args) error {
			includeDir := path.Join(folder.Path, "include")
			if err := fs.MakeDirs(includeDir); err != nil {
				return err
			}
			marker := "vendored extern " + name + "\n"
			_, err := fs.WriteFileIfDifferent(path.Join(includeDir, name+".h"), []byte("// "+marker), 0o644)
			return err
		},
		Instantiate: func(folder *extern.Folder, args extern.Args) (extern.Instance, error) {
			return extern.Instance{
				IncludeDirs: []string{path.Join(folder.Path, "include")},
				LinkLibs:    []string{name},
			}, nil
		},
	}
}
