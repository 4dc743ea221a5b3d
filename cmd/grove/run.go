package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/grove-tools/grove/internal/execflow"
	"github.com/grove-tools/grove/internal/groveenv"
	"github.com/grove-tools/grove/internal/version"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <id> [version] [-- args...]",
		Short: "Run a tool's resolved version with its activated environment",
		Example: "  grove run node -- script.js\n" +
			"  grove run node 20.1.0 -- --version",
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: true,
		RunE: withSession(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			toolID, spec, passthrough, err := parseRunArgs(args)
			if err != nil {
				return err
			}

			tool, err := ctx.Session.Tool(ctx.Context, toolID)
			if err != nil {
				return fmt.Errorf("load plugin for %q: %w", toolID, err)
			}

			item, err := execflow.PrepareTool(ctx.Context, tool, spec, execflow.Params{
				ActivateEnvironment: true,
				DetectVersion:       true,
				PassthroughArgs:     passthrough,
				PreRunHook:          true,
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
			workflow.Collect(item)

			exePath, err := lookupOnPath(toolID, workflow.JoinPaths())
			if err != nil {
				return fmt.Errorf("locate %q on the activated PATH: %w", toolID, err)
			}

			runCmd := exec.CommandContext(ctx.Context, exePath, passthrough...)
			workflow.ApplyToCommand(runCmd)
			runCmd.Stdin = os.Stdin
			runCmd.Stdout = os.Stdout
			runCmd.Stderr = os.Stderr

			if err := runCmd.Run(); err != nil {
				if exitErr, ok := err.(*exec.ExitError); ok {
					os.Exit(exitErr.ExitCode())
				}
				return fmt.Errorf("run %s: %w", toolID, err)
			}
			return nil
		}),
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

// parseRunArgs splits `<id> [version] [-- args...]` per the run command's
// grammar: a leading `--` always separates passthrough args, so `id` is
// always args[0] and an optional bare second token before `--` is the
// version spec.
func parseRunArgs(args []string) (toolID string, spec *version.UnresolvedSpec, passthrough []string, err error) {
	toolID = args[0]
	rest := args[1:]

	sepIdx := -1
	for i, a := range rest {
		if a == "--" {
			sepIdx = i
			break
		}
	}

	var before []string
	if sepIdx == -1 {
		before = rest
	} else {
		before = rest[:sepIdx]
		passthrough = rest[sepIdx+1:]
	}

	if len(before) > 1 {
		return "", nil, nil, newUsageError("unexpected arguments %v before --", before[1:])
	}
	if len(before) == 1 {
		parsed, perr := version.ParseUnresolved(before[0])
		if perr != nil {
			return "", nil, nil, newUsageError("invalid version spec %q: %v", before[0], perr)
		}
		spec = &parsed
	}
	return toolID, spec, passthrough, nil
}

// lookupOnPath searches pathList (a PATH-shaped string) for name, the way
// exec.LookPath would against os.Getenv("PATH") — used here because the
// activated PATH hasn't been applied to the current process's environment.
func lookupOnPath(name, pathList string) (string, error) {
	for _, dir := range filepath.SplitList(pathList) {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: executable not found in PATH", name)
}
