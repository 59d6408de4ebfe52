package commands

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plywood-build/plywood/pkg/fsio"
	"github.com/plywood-build/plywood/pkg/pylon"
	"github.com/plywood-build/plywood/pkg/workspace"
)

const buildInfoFileName = "info.pylon"

func newFolderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "List, create, select, or delete build folders",
	}
	cmd.AddCommand(newFolderListCommand())
	cmd.AddCommand(newFolderCreateCommand())
	cmd.AddCommand(newFolderSetCommand())
	cmd.AddCommand(newFolderDeleteCommand())
	return cmd
}

func newFolderListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List build folders under the current workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := fsio.NewLocalAdapter()
			ws, err := workspace.Locate(fs, workspaceDir)
			if err != nil {
				return asExitError(err)
			}
			names, err := listBuildFolders(fs, ws)
			if err != nil {
				return asExitError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Build folders found:")
			for _, n := range names {
				marker := "  "
				if n == ws.Settings.CurrentBuildFolder {
					marker = "* "
				}
				fmt.Fprintln(cmd.OutOrStdout(), marker+n)
			}
			return nil
		},
	}
}

func newFolderCreateCommand() *cobra.Command {
	var targets []string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new build folder and select it as current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := fsio.NewLocalAdapter()
			ws, err := workspace.Locate(fs, workspaceDir)
			if err != nil {
				return asExitError(err)
			}
			name := args[0]
			dir := filepath.Join(ws.BuildFolder(), name)
			if err := fs.MakeDirs(dir); err != nil {
				return asExitError(err)
			}
			info := buildFolderInfo{
				SolutionName: name,
				RootTargets:  targets,
				ActiveConfig: ws.Settings.DefaultConfigName,
			}
			if err := writeBuildFolderInfo(fs, dir, info); err != nil {
				return asExitError(err)
			}
			ws.Settings.CurrentBuildFolder = name
			if err := ws.Save(fs); err != nil {
				return asExitError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created build folder %q (targets: %s)\n", name, strings.Join(targets, ", "))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&targets, "targets", nil, "root target names to instantiate in this folder")
	return cmd
}

func newFolderSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Select the current build folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := fsio.NewLocalAdapter()
			ws, err := workspace.Locate(fs, workspaceDir)
			if err != nil {
				return asExitError(err)
			}
			name := args[0]
			dir := filepath.Join(ws.BuildFolder(), name)
			if !fs.Exists(filepath.Join(dir, buildInfoFileName)) {
				return asExitError(fmt.Errorf("no build folder named %q", name))
			}
			ws.Settings.CurrentBuildFolder = name
			if err := ws.Save(fs); err != nil {
				return asExitError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Current build folder set to %q\n", name)
			return nil
		},
	}
}

func newFolderDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a build folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := fsio.NewLocalAdapter()
			ws, err := workspace.Locate(fs, workspaceDir)
			if err != nil {
				return asExitError(err)
			}
			name := args[0]
			if err := fs.Remove(filepath.Join(ws.BuildFolder(), name)); err != nil {
				return asExitError(err)
			}
			if ws.Settings.CurrentBuildFolder == name {
				ws.Settings.CurrentBuildFolder = ""
				if err := ws.Save(fs); err != nil {
					return asExitError(err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted build folder %q\n", name)
			return nil
		},
	}
}

// buildFolderInfo is the decoded form of a build folder's info.pylon:
// { solutionName, rootTargets: [string], cmakeOptions, activeConfig }.
type buildFolderInfo struct {
	SolutionName string
	RootTargets  []string
	ActiveConfig string
}

func writeBuildFolderInfo(fs fsio.Adapter, dir string, info buildFolderInfo) error {
	node := pylon.NewObjectNode()
	node.Set("solutionName", pylon.Text(info.SolutionName))
	targets := pylon.Array()
	for _, t := range info.RootTargets {
		targets.Append(pylon.Text(t))
	}
	node.Set("rootTargets", targets)
	node.Set("cmakeOptions", pylon.NewObjectNode())
	node.Set("activeConfig", pylon.Text(info.ActiveConfig))
	text, err := pylon.Write(node, pylon.DefaultWriteOptions)
	if err != nil {
		return err
	}
	_, err = fs.WriteFileIfDifferent(filepath.Join(dir, buildInfoFileName), []byte(text), 0o644)
	return err
}

func readBuildFolderInfo(fs fsio.Adapter, dir string) (buildFolderInfo, error) {
	data, err := fs.ReadFile(filepath.Join(dir, buildInfoFileName))
	if err != nil {
		return buildFolderInfo{}, err
	}
	node, err := pylon.Parse(string(data))
	if err != nil {
		return buildFolderInfo{}, err
	}
	info := buildFolderInfo{
		SolutionName: node.Get("solutionName").TextValue(),
		ActiveConfig: node.Get("activeConfig").TextValue(),
	}
	if rt := node.Get("rootTargets"); rt.IsArray() {
		for _, child := range rt.ArrayView() {
			info.RootTargets = append(info.RootTargets, child.TextValue())
		}
	}
	return info, nil
}

// listBuildFolders returns the names of every subdirectory of
// ws.BuildFolder() that carries a well-formed info.pylon, sorted for
// deterministic output. Malformed folders are skipped rather than
// failing the whole listing, the same discipline the extern folder
// store applies to its scan.
func listBuildFolders(fs fsio.Adapter, ws *workspace.Workspace) ([]string, error) {
	if !fs.Exists(ws.BuildFolder()) {
		return nil, nil
	}
	entries, err := fs.ReadDir(ws.BuildFolder())
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		dir := filepath.Join(ws.BuildFolder(), e.Name())
		if _, err := readBuildFolderInfo(fs, dir); err != nil {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
