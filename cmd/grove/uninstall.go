package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grove-tools/grove/internal/lockfile"
	"github.com/grove-tools/grove/internal/shim"
	"github.com/spf13/cobra"
)

var uninstallYes bool

func newUninstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "uninstall <id> [version]",
		Short:   "Remove an installed tool version",
		Example: "  grove uninstall node 18.0.0\n  grove uninstall node --yes",
		Args:    cobra.RangeArgs(1, 2),
		RunE: withSession(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			toolID := args[0]
			tool, err := ctx.Session.Tool(ctx.Context, toolID)
			if err != nil {
				return fmt.Errorf("load plugin for %q: %w", toolID, err)
			}

			var resolvedVersion string
			if len(args) == 2 {
				resolvedVersion = args[1]
			} else {
				resolvedVersion, err = tool.ResolveVersion(ctx.Context, nil, true)
				if err != nil {
					return fmt.Errorf("resolve version for %q: %w", toolID, err)
				}
			}

			if !uninstallYes && !confirm(fmt.Sprintf("Uninstall %s@%s?", toolID, resolvedVersion)) {
				fmt.Println("Aborted.")
				return nil
			}

			removed, err := tool.Uninstall(ctx.Context, resolvedVersion)
			if err != nil {
				return fmt.Errorf("uninstall %s@%s: %w", toolID, resolvedVersion, err)
			}
			if !removed {
				fmt.Printf("%s@%s is not installed\n", toolID, resolvedVersion)
				return nil
			}

			exeNames, err := tool.ExeNames(ctx.Context, resolvedVersion)
			if err != nil {
				return fmt.Errorf("resolve exe names for %q: %w", toolID, err)
			}
			keep := map[string]bool{}
			for _, v := range tool.InstalledVersions() {
				vs := v.String()
				if vs == resolvedVersion {
					continue
				}
				names, err := tool.ExeNames(ctx.Context, vs)
				if err != nil {
					continue
				}
				for _, n := range names {
					keep[n] = true
				}
			}
			if _, err := shim.RemoveStale(ctx.Session.Store, toolID, keep); err != nil {
				return fmt.Errorf("remove stale shims for %q: %w", toolID, err)
			}
			for _, name := range exeNames {
				if err := shim.RemoveVersionAliases(ctx.Session.Store, name, resolvedVersion); err != nil {
					return fmt.Errorf("remove version aliases for %q: %w", name, err)
				}
			}

			if err := removeLockfileVersion(ctx, toolID, resolvedVersion); err != nil {
				return fmt.Errorf("update lockfile for %q: %w", toolID, err)
			}

			fmt.Printf("Uninstalled %s@%s\n", toolID, resolvedVersion)
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&uninstallYes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func init() {
	rootCmd.AddCommand(newUninstallCmd())
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return line == "y\n" || line == "Y\n" || line == "yes\n"
}

func removeLockfileVersion(ctx *CommandContext, toolID, resolvedVersion string) error {
	if !ctx.Session.Merged.Settings.Lockfile {
		return nil
	}
	path := filepath.Join(lockfileDir(ctx.Session), ".protolock")
	f, err := lockfile.Load(path)
	if err != nil {
		return err
	}
	lockfile.RemoveVersion(f, toolID, resolvedVersion)
	return lockfile.Save(path, f)
}
