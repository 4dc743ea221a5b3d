package main

import (
	"fmt"
	"os"

	"github.com/grove-tools/grove/internal/shim"
	"github.com/spf13/cobra"
)

// managerExePath returns the path shims should re-invoke, falling back to
// the bare command name if the running binary's own path can't be
// determined (e.g. under `go test`).
func managerExePath() string {
	exe, err := os.Executable()
	if err != nil {
		return "grove"
	}
	return exe
}

func newRegenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "regen",
		Short:   "Regenerate shims and bins for every installed version of every configured tool",
		Long:    `regen re-runs shim creation for every version already on disk, without reinstalling anything. Useful after upgrading grove itself, since shims re-invoke the manager binary by absolute path.`,
		Example: "  grove regen",
		Args:    cobra.NoArgs,
		RunE: withSession(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			if len(ctx.Session.Merged.Plugins) == 0 {
				fmt.Println("No tools configured.")
				return nil
			}

			var regenerated int
			for id := range ctx.Session.Merged.Plugins {
				tool, err := ctx.Session.Tool(ctx.Context, id)
				if err != nil {
					return fmt.Errorf("load plugin for %q: %w", id, err)
				}

				for _, v := range tool.InstalledVersions() {
					resolvedVersion := v.String()
					installDir := ctx.Session.Store.InstallDir(id, resolvedVersion)
					if _, err := shim.Create(ctx.Context, tool.Container(), ctx.Session.Store, managerExePath(), id, resolvedVersion, installDir, shim.Options{}); err != nil {
						return fmt.Errorf("regen shims for %s@%s: %w", id, resolvedVersion, err)
					}
					regenerated++
				}
			}

			fmt.Printf("Regenerated shims for %d install(s).\n", regenerated)
			return nil
		}),
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newRegenCmd())
}
