package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/grove-tools/grove/internal/groveconfig"
	"github.com/grove-tools/grove/internal/session"
	"github.com/spf13/cobra"
)

// usageError marks a failure as a CLI usage mistake (spec.md §6 exit code 2)
// rather than a tool-level failure (exit code 1).
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func newUsageError(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// exitCodeFor maps a command error to spec.md §6's exit codes: 0 ok, 1
// tool-failure, 2 usage.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var usage *usageError
	if errors.As(err, &usage) {
		return 2
	}
	return 1
}

// CommandContext carries the per-invocation session every subcommand needs.
// Eliminates repetitive session initialization across CLI commands.
type CommandContext struct {
	Session *session.Session
	Context context.Context
}

// CommandHandler is a function that executes with an opened session.
// Commands focus on business logic, not session setup.
type CommandHandler func(*CommandContext, *cobra.Command, []string) error

// withSession wraps a command handler with session initialization: resolve
// proto_home, discover and merge .prototools layers, open plugin loader/http
// client, and guarantee the session is closed (every plugin container it
// opened torn down) before the command returns.
func withSession(handler CommandHandler) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}

		sess, err := session.Open(session.Options{
			Cwd:       cwd,
			ProtoHome: protoHome(),
			Mode:      os.Getenv("PROTO_ENV"),
			View:      groveconfig.ViewAll,
			Offline:   os.Getenv("PROTO_OFFLINE_HOSTS") != "" || os.Getenv("CI") != "",
		})
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		defer sess.Close(cmd.Context())

		ctx := &CommandContext{Session: sess, Context: cmd.Context()}
		return handler(ctx, cmd, args)
	}
}

// protoHome resolves the store root per spec.md §6: PROTO_HOME, then
// PROTO_ROOT, then ~/.proto.
func protoHome() string {
	if v := os.Getenv("PROTO_HOME"); v != "" {
		return v
	}
	if v := os.Getenv("PROTO_ROOT"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".proto"
	}
	return home + "/.proto"
}
