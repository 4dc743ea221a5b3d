package hostfuncs

import (
	"context"
	"log/slog"

	"github.com/tetratelabs/wazero/api"
)

// logRequestWire mirrors `host_log`'s {message, data?, target} contract.
type logRequestWire struct {
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Target  string         `json:"target"`
}

// HostLog implements host_log(reqPtr) — no guest response, fire-and-forget.
func HostLog(ctx context.Context, mod api.Module, stack []uint64) {
	var req logRequestWire
	if err := readRequest(mod, stack[0], &req); err != nil {
		slog.ErrorContext(ctx, "hostfuncs: failed to read host_log request", "error", err)
		return
	}

	plugin, _ := PluginNameFromContext(ctx)
	attrs := []any{"plugin", plugin}
	if callID, ok := CallIDFromContext(ctx); ok {
		attrs = append(attrs, "call_id", callID)
	}
	for k, v := range req.Data {
		attrs = append(attrs, k, v)
	}

	switch req.Target {
	case "stderr":
		slog.WarnContext(ctx, req.Message, attrs...)
	case "tracing", "":
		slog.InfoContext(ctx, req.Message, attrs...)
	default: // "stdout"
		slog.InfoContext(ctx, req.Message, attrs...)
	}
}
