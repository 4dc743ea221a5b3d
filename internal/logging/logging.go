// Package logging sets up the CLI's slog logger.
//
// Grounded on the teacher's cmd/reglet/root.go setupLogging/parseLogLevel:
// a text handler on stderr (friendlier for a terminal than JSON), a
// string log-level flag, and a --quiet flag that overrides it to
// effectively silent.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default slog logger for the process. level is the
// raw --log-level flag value; quiet, when true, suppresses all output
// regardless of level (spec.md's CLI carries no such flag explicitly, but
// every subcommand still wants the ambient --quiet/--log-level pair the
// teacher's commands share).
func Setup(level string, quiet bool) {
	lvl := ParseLevel(level)
	if quiet {
		lvl = slog.LevelError + 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)
}

// ParseLevel converts a case-insensitive level name to an slog.Level,
// defaulting to Info for anything unrecognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
