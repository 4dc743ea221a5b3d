package main

import (
	"fmt"

	"github.com/grove-tools/grove/internal/buildinfo"
	"github.com/spf13/cobra"
)

var versionFull bool

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "version",
		Short:   "Print the grove version",
		Example: "  grove version\n  grove version --full",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.Get()
			if versionFull {
				fmt.Println(info.Full())
			} else {
				fmt.Println(info.String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&versionFull, "full", false, "include commit, build date, Go version, and platform")
	return cmd
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
