package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grove-tools/grove/internal/buildreq"
)

var (
	diagnoseJSON  bool
	diagnoseShell string
)

type diagnoseIssue struct {
	Tool    string `json:"tool,omitempty"`
	Message string `json:"message"`
}

func newDiagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "diagnose",
		Short:   "Check the environment for common setup problems",
		Example: "  grove diagnose\n  grove diagnose --json",
		Args:    cobra.NoArgs,
		RunE: withSession(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			var issues []diagnoseIssue

			if _, err := os.Stat(ctx.Session.Store.Home); err != nil {
				issues = append(issues, diagnoseIssue{Message: fmt.Sprintf("proto_home %q is not accessible: %v", ctx.Session.Store.Home, err)})
			}

			for id, spec := range ctx.Session.Merged.Versions {
				if _, ok := ctx.Session.Merged.Plugins[id]; !ok {
					issues = append(issues, diagnoseIssue{Tool: id, Message: fmt.Sprintf("pinned to %q but no plugin is configured", spec.Req)})
					continue
				}
				if _, err := versionFromSpec(spec.Req); err != nil {
					issues = append(issues, diagnoseIssue{Tool: id, Message: fmt.Sprintf("invalid pinned spec %q: %v", spec.Req, err)})
				}
			}

			if ctx.Session.Offline && len(ctx.Session.Merged.Plugins) > 0 {
				for id := range ctx.Session.Merged.Plugins {
					if _, err := os.Stat(ctx.Session.Store.ToolDir(id)); err != nil {
						issues = append(issues, diagnoseIssue{Tool: id, Message: "offline, and no local cache exists yet"})
					}
				}
			}

			if diagnoseShell != "" && !supportedShell(diagnoseShell) {
				issues = append(issues, diagnoseIssue{Message: fmt.Sprintf("unsupported shell %q", diagnoseShell)})
			}

			for id := range ctx.Session.Merged.Plugins {
				tool, err := ctx.Session.Tool(ctx.Context, id)
				if err != nil {
					issues = append(issues, diagnoseIssue{Tool: id, Message: fmt.Sprintf("could not load plugin: %v", err)})
					continue
				}

				build, err := buildreq.Load(ctx.Context, tool.Container(), id)
				if err != nil {
					issues = append(issues, diagnoseIssue{Tool: id, Message: fmt.Sprintf("build_instructions call failed: %v", err)})
					continue
				}
				if build == nil {
					continue
				}

				results, _ := buildreq.CheckRequirements(ctx.Context, id, build)
				for _, result := range results {
					if !result.Passed {
						issues = append(issues, diagnoseIssue{Tool: id, Message: "build-from-source requirement not met: " + result.Message})
					}
				}
			}

			if diagnoseJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(issues); err != nil {
					return err
				}
			} else if len(issues) == 0 {
				fmt.Println("No problems found.")
			} else {
				for _, issue := range issues {
					if issue.Tool != "" {
						fmt.Printf("[%s] %s\n", issue.Tool, issue.Message)
					} else {
						fmt.Println(issue.Message)
					}
				}
			}

			if len(issues) > 0 {
				return fmt.Errorf("diagnose found %d issue(s)", len(issues))
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&diagnoseJSON, "json", false, "emit findings as JSON")
	cmd.Flags().StringVar(&diagnoseShell, "shell", "", "also check shell activation support for this shell")
	return cmd
}

func init() {
	rootCmd.AddCommand(newDiagnoseCmd())
}

func supportedShell(shell string) bool {
	switch shell {
	case "bash", "zsh", "fish", "pwsh", "powershell":
		return true
	default:
		return false
	}
}
