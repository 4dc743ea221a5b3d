package hostfuncs

import (
	"context"
	"runtime"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

type getEnvVarRequestWire struct {
	Name string `json:"name"`
}

type getEnvVarResponseWire struct {
	Value string `json:"value"`
}

// GetEnvVar implements get_env_var(reqPtr) -> resPtr.
func (h *Host) GetEnvVar(ctx context.Context, mod api.Module, stack []uint64) {
	var req getEnvVarRequestWire
	if err := readRequest(mod, stack[0], &req); err != nil {
		stack[0] = hostWriteResponse(ctx, mod, getEnvVarResponseWire{})
		return
	}
	stack[0] = hostWriteResponse(ctx, mod, getEnvVarResponseWire{Value: h.Env.Get(req.Name)})
}

type setEnvVarRequestWire struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// pathListSeparator is ':' on every OS this host surface targets except
// Windows, where PATH entries are ';'-delimited.
func pathListSeparator() byte {
	if runtime.GOOS == "windows" {
		return ';'
	}
	return ':'
}

// SetEnvVar implements set_env_var(reqPtr) — no response payload beyond
// acknowledging receipt. Setting PATH splits on the host's list separator,
// translates each entry through from_virtual, and appends to the existing
// PATH rather than replacing it, per spec.md §4.5.
func (h *Host) SetEnvVar(ctx context.Context, mod api.Module, stack []uint64) {
	var req setEnvVarRequestWire
	if err := readRequest(mod, stack[0], &req); err != nil {
		stack[0] = hostWriteResponse(ctx, mod, map[string]any{})
		return
	}

	if req.Name == "PATH" {
		sep := string(pathListSeparator())
		entries := strings.Split(req.Value, sep)
		var merged []string
		current := h.Env.Get("PATH")
		if current != "" {
			merged = strings.Split(current, sep)
		}
		for _, e := range entries {
			if e == "" {
				continue
			}
			merged = append(merged, h.Paths.FromVirtual(e))
		}
		h.Env.Set("PATH", strings.Join(merged, sep))
	} else {
		h.Env.Set(req.Name, req.Value)
	}

	stack[0] = hostWriteResponse(ctx, mod, map[string]any{})
}
