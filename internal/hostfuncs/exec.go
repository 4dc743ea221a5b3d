package hostfuncs

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

type execRequestWire struct {
	Command       string            `json:"command"`
	Args          []string          `json:"args"`
	Env           map[string]string `json:"env,omitempty"`
	WorkingDir    string            `json:"working_dir,omitempty"`
	Stream        bool              `json:"stream"`
	SetExecutable bool              `json:"set_executable"`
}

type execResponseWire struct {
	ExitCode int          `json:"exit_code"`
	Stdout   string       `json:"stdout"`
	Stderr   string       `json:"stderr"`
	Command  string       `json:"command"`
	Error    *ErrorDetail `json:"error,omitempty"`
}

// hasPathSeparator reports whether command names a path rather than a
// bare executable to be resolved via PATH, per spec.md §4.5.
func hasPathSeparator(command string) bool {
	return strings.ContainsAny(command, "/\\")
}

// ExecCommand implements exec_command(reqPtr) -> resPtr.
func (h *Host) ExecCommand(ctx context.Context, mod api.Module, stack []uint64) {
	var req execRequestWire
	if err := readRequest(mod, stack[0], &req); err != nil {
		stack[0] = hostWriteResponse(ctx, mod, execResponseWire{Error: toErrorDetail(err)})
		return
	}

	command := req.Command
	if hasPathSeparator(command) {
		command = h.Paths.FromVirtual(command)
		if req.SetExecutable {
			if err := os.Chmod(command, 0o755); err != nil {
				stack[0] = hostWriteResponse(ctx, mod, execResponseWire{Error: toErrorDetail(err)})
				return
			}
		}
	}
	// Bare command names are resolved via PATH by exec.Command itself.

	cmd := exec.CommandContext(ctx, command, req.Args...)
	if req.WorkingDir != "" {
		cmd.Dir = h.Paths.FromVirtual(req.WorkingDir)
	}
	cmd.Env = h.Env.Environ()
	for k, v := range req.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	if req.Stream {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	exitCode := 0
	var errDetail *ErrorDetail
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			errDetail = toErrorDetail(err)
		}
	}

	slog.DebugContext(ctx, "hostfuncs: exec_command", "command", req.Command, "exit_code", exitCode)

	stack[0] = hostWriteResponse(ctx, mod, execResponseWire{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Command:  req.Command,
		Error:    errDetail,
	})
}
