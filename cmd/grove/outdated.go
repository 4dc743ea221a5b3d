package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/grove-tools/grove/internal/groveconfig"
	"github.com/grove-tools/grove/internal/version"
	"github.com/spf13/cobra"
)

var (
	outdatedLatest        bool
	outdatedUpdate        bool
	outdatedIncludeGlobal bool
	outdatedOnlyLocal     bool
)

func newOutdatedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "outdated",
		Short:   "Show pinned tools whose resolvable version differs from the pin",
		Example: "  grove outdated\n  grove outdated --latest --update",
		Args:    cobra.NoArgs,
		RunE: withSession(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			view := groveconfig.ViewExceptGlobal
			if outdatedIncludeGlobal {
				view = groveconfig.ViewAll
			}
			if outdatedOnlyLocal {
				view = groveconfig.ViewLocalOnly
			}
			merged, err := groveconfig.Merge(ctx.Session.Layers, view)
			if err != nil {
				return fmt.Errorf("re-merge config for outdated view: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "TOOL\tPINNED\tRESOLVABLE")
			any := false

			for id, spec := range merged.Versions {
				tool, err := ctx.Session.Tool(ctx.Context, id)
				if err != nil {
					return fmt.Errorf("load plugin for %q: %w", id, err)
				}

				target := version.UnresolvedSpec{Kind: version.SpecAlias, Alias: "latest"}
				if !outdatedLatest {
					parsed, err := version.ParseUnresolved(spec.Req)
					if err != nil {
						return fmt.Errorf("parsing pinned spec for %q: %w", id, err)
					}
					target = parsed
				}

				resolvable, err := tool.ResolveVersion(ctx.Context, &target, false)
				if err != nil {
					return fmt.Errorf("resolve version for %q: %w", id, err)
				}
				if resolvable == spec.Req {
					continue
				}
				any = true
				fmt.Fprintf(w, "%s\t%s\t%s\n", id, spec.Req, resolvable)

				if outdatedUpdate {
					resolvedSpec := target
					if err := installOne(ctx, id, &resolvedSpec); err != nil {
						return fmt.Errorf("update %s: %w", id, err)
					}
				}
			}
			if !any {
				fmt.Println("Everything is up to date.")
				return nil
			}
			return w.Flush()
		}),
	}
	cmd.Flags().BoolVar(&outdatedLatest, "latest", false, "compare against the absolute latest version, ignoring each pin's own requirement")
	cmd.Flags().BoolVar(&outdatedUpdate, "update", false, "pin and install the resolvable version for each outdated tool")
	cmd.Flags().BoolVar(&outdatedIncludeGlobal, "include-global", false, "also check tools pinned only in the global config")
	cmd.Flags().BoolVar(&outdatedOnlyLocal, "only-local", false, "check only tools pinned in local config layers")
	return cmd
}

func init() {
	rootCmd.AddCommand(newOutdatedCmd())
}
