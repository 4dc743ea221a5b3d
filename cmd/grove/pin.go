package main

import (
	"fmt"

	"github.com/grove-tools/grove/internal/groveconfig"
	"github.com/grove-tools/grove/internal/version"
	"github.com/spf13/cobra"
)

var (
	pinGlobal bool
	pinLocal  bool
	pinUser   bool
)

func newPinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pin <id> <spec>",
		Short:   "Pin a tool's version in a config file",
		Example: "  grove pin node 20.1.0 --local\n  grove pin go 1.22.0 --global",
		Args:    cobra.ExactArgs(2),
		RunE: withSession(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			toolID, specText := args[0], args[1]
			if _, err := version.ParseUnresolved(specText); err != nil {
				return newUsageError("invalid version spec %q: %v", specText, err)
			}

			location := "local"
			switch {
			case pinGlobal:
				location = "global"
			case pinUser:
				location = "user"
			}
			path := pinTargetPath(ctx.Session, location)
			if path == "" {
				return newUsageError("cannot pin %q: no config layer found for location %q", toolID, location)
			}

			if err := groveconfig.PinVersion(path, toolID, "", specText); err != nil {
				return fmt.Errorf("pin %s: %w", toolID, err)
			}
			fmt.Printf("Pinned %s to %s in %s\n", toolID, specText, path)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&pinGlobal, "global", false, "pin in the global config")
	cmd.Flags().BoolVar(&pinLocal, "local", false, "pin in the nearest local config (default)")
	cmd.Flags().BoolVar(&pinUser, "user", false, "pin in the user-level config")
	return cmd
}

func init() {
	rootCmd.AddCommand(newPinCmd())
}
