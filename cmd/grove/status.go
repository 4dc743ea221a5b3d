package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show every pinned tool's configured spec, resolved version, and setup state",
		Example: "  grove status",
		Args:    cobra.NoArgs,
		RunE: withSession(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			ids := make([]string, 0, len(ctx.Session.Merged.Versions))
			for id := range ctx.Session.Merged.Versions {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			if len(ids) == 0 {
				fmt.Println("No tools pinned.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "TOOL\tPINNED\tRESOLVED\tSET UP")
			for _, id := range ids {
				spec := ctx.Session.Merged.Versions[id]
				tool, err := ctx.Session.Tool(ctx.Context, id)
				if err != nil {
					fmt.Fprintf(w, "%s\t%s\t<error: %v>\t?\n", id, spec.Req, err)
					continue
				}
				parsed, err := versionFromSpec(spec.Req)
				if err != nil {
					fmt.Fprintf(w, "%s\t%s\t<invalid spec>\t?\n", id, spec.Req)
					continue
				}
				resolved, err := tool.ResolveVersion(ctx.Context, parsed, false)
				if err != nil {
					fmt.Fprintf(w, "%s\t%s\t<unresolved: %v>\t?\n", id, spec.Req, err)
					continue
				}
				setUp := "no"
				if tool.IsSetup(resolved) {
					setUp = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, spec.Req, resolved, setUp)
			}
			return w.Flush()
		}),
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newStatusCmd())
}
