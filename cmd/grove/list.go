package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/grove-tools/grove/internal/resolve"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List installed tool versions",
		Example: "  grove list",
		Args:    cobra.NoArgs,
		RunE: withSession(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			ids := make([]string, 0, len(ctx.Session.Merged.Plugins))
			for id := range ctx.Session.Merged.Plugins {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			if len(ids) == 0 {
				fmt.Println("No plugins configured.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "TOOL\tVERSIONS")
			for _, id := range ids {
				tool, err := ctx.Session.Tool(ctx.Context, id)
				if err != nil {
					return fmt.Errorf("load plugin for %q: %w", id, err)
				}
				versions := tool.InstalledVersions()
				if len(versions) == 0 {
					fmt.Fprintf(w, "%s\t(none installed)\n", id)
					continue
				}
				strs := make([]string, len(versions))
				for i, v := range versions {
					strs[i] = v.String()
				}
				fmt.Fprintf(w, "%s\t%s\n", id, strings.Join(strs, ", "))
			}
			return w.Flush()
		}),
	}
	return cmd
}

func newListRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list-remote <id>",
		Short:   "List versions available for a tool from its remote catalog",
		Example: "  grove list-remote node",
		Args:    cobra.ExactArgs(1),
		RunE: withSession(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			toolID := args[0]
			tool, err := ctx.Session.Tool(ctx.Context, toolID)
			if err != nil {
				return fmt.Errorf("load plugin for %q: %w", toolID, err)
			}
			catalog, err := resolve.LoadCatalog(ctx.Context, tool.Container(), toolID, ctx.Session.Store.ToolDir(toolID), ctx.Session.Offline)
			if err != nil {
				return fmt.Errorf("load version catalog for %q: %w", toolID, err)
			}
			for _, v := range catalog.Versions {
				fmt.Println(v)
			}
			return nil
		}),
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newListRemoteCmd())
}
