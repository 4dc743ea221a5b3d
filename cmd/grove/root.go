package main

import (
	"os"

	"github.com/grove-tools/grove/internal/logging"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	quiet    bool
)

// rootCmd is the application entry point.
var rootCmd = &cobra.Command{
	Use:   "grove",
	Short: "A pluggable version manager for developer toolchains",
	Long: `grove installs, pins, and runs language and tool versions across a
project, driven by WebAssembly plugins that know how to resolve, download,
and activate a given toolchain.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logging.Setup(logLevel, quiet)
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all log output, errors included")
}
