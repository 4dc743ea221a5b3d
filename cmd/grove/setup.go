package main

import "github.com/spf13/cobra"

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "setup",
		Short:   "Install every tool pinned across the merged config",
		Long:    `setup is an alias for "install" with no arguments: it installs every tool currently pinned, one at a time, stopping at the first failure.`,
		Example: "  grove setup",
		Args:    cobra.NoArgs,
		RunE: withSession(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			return installAll(ctx)
		}),
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newSetupCmd())
}
