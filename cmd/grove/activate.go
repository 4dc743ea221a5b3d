package main

import (
	"fmt"
	"sort"

	"github.com/grove-tools/grove/internal/execflow"
	"github.com/grove-tools/grove/internal/groveenv"
	"github.com/spf13/cobra"
)

func newActivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate <shell>",
		Short: "Print a shell script that activates every pinned tool's environment",
		Long: `activate prints a script meant to be evaluated by the shell, e.g.:

  eval "$(grove activate bash)"

Re-running it re-activates cleanly: the PATH segment from a previous
activation is detected and replaced rather than grown unbounded.`,
		Example: `  eval "$(grove activate zsh)"`,
		Args:    cobra.ExactArgs(1),
		RunE: withSession(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			shell := args[0]
			if !supportedShell(shell) {
				return newUsageError("unsupported shell %q", shell)
			}

			ids := make([]string, 0, len(ctx.Session.Merged.Versions))
			for id := range ctx.Session.Merged.Versions {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			tcs := make([]execflow.ToolContext, 0, len(ids))
			for _, id := range ids {
				tool, err := ctx.Session.Tool(ctx.Context, id)
				if err != nil {
					return fmt.Errorf("load plugin for %q: %w", id, err)
				}
				tcs = append(tcs, tool)
			}

			items, err := execflow.PrepareAll(ctx.Context, tcs, nil, execflow.Params{
				ActivateEnvironment: true,
				DetectVersion:       true,
				VersionEnvVars:      true,
			})
			if err != nil {
				return err
			}

			composed, err := groveenv.Compose(ctx.Session.Merged, "")
			if err != nil {
				return fmt.Errorf("compose global env: %w", err)
			}
			workflow := execflow.NewWorkflow(composed)
			workflow.CollectAll(items, ids)

			printShellActivation(shell, workflow.ResetAndJoinPaths(ctx.Session.Store), workflow.EnvPairs())
			return nil
		}),
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newActivateCmd())
}

func printShellActivation(shell, path string, pairs []execflow.EnvPair) {
	switch shell {
	case "fish":
		fmt.Printf("set -gx PATH %s\n", path)
		for _, p := range pairs {
			if p.Unset {
				fmt.Printf("set -e %s\n", p.Key)
			} else {
				fmt.Printf("set -gx %s %s\n", p.Key, p.Value)
			}
		}
	case "pwsh", "powershell":
		fmt.Printf("$env:PATH = \"%s\"\n", path)
		for _, p := range pairs {
			if p.Unset {
				fmt.Printf("Remove-Item Env:%s -ErrorAction SilentlyContinue\n", p.Key)
			} else {
				fmt.Printf("$env:%s = \"%s\"\n", p.Key, p.Value)
			}
		}
	default: // bash, zsh
		fmt.Printf("export PATH=\"%s\"\n", path)
		for _, p := range pairs {
			if p.Unset {
				fmt.Printf("unset %s\n", p.Key)
			} else {
				fmt.Printf("export %s=\"%s\"\n", p.Key, p.Value)
			}
		}
	}
}
