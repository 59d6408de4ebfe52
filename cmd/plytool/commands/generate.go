package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/plywood-build/plywood/pkg/graph"
	"github.com/plywood-build/plywood/pkg/modinst"
	"github.com/plywood-build/plywood/pkg/perrors"
	"github.com/plywood-build/plywood/pkg/workspace"
)

func newGenerateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Instantiate the module graph and resolve inheritance for the current build folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := fsio.NewLocalAdapter()
			ws, err := workspace.Locate(fs, workspaceDir)
			if err != nil {
				return asExitError(err)
			}
			if ws.Settings.CurrentBuildFolder == "" {
				return asExitError(perrors.Structural("current build folder not set").WithCode("NO_BUILD_FOLDER"))
			}
			dir := filepath.Join(ws.BuildFolder(), ws.Settings.CurrentBuildFolder)
			info, err := readBuildFolderInfo(fs, dir)
			if err != nil {
				return asExitError(perrors.Structural("build folder %q has no valid info.pylon: %v", ws.Settings.CurrentBuildFolder, err))
			}

			configs := graph.ConfigSet{info.ActiveConfig}
			if info.ActiveConfig == "" {
				configs = graph.ConfigSet{ws.Settings.DefaultConfigName}
			}
			g := graph.NewGraph(configs)
			registry := newModuleRegistry()

			inst := modinst.NewInstantiator(registry, g)
			if err := inst.Run(cmd.Context(), info.RootTargets, ""); err != nil {
				return asExitError(err)
			}

			engine := graph.NewEngine(g)
			resolved, err := engine.ResolveAll(0)
			if err != nil {
				return asExitError(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d target(s) for config %q:\n", len(resolved), configs[0])
			for _, name := range g.Order() {
				r := resolved[name]
				fmt.Fprintf(cmd.OutOrStdout(), "  %s (%d option(s), link order: %v)\n", name, len(r.Options), r.LinkOrder)
			}
			return nil
		},
	}
}

// newModuleRegistry returns the module function registry this
// illustrative driver instantiates against. A real embedding of the
// core registers a Go-native ModuleFunc per repo module at startup;
// this thin CLI has none compiled in, so an empty registry simply means
// `generate` succeeds with zero targets when no root targets were
// requested, and reports a structural error naming the missing module
// otherwise.
func newModuleRegistry() *modinst.Registry {
	return modinst.NewRegistry()
}
