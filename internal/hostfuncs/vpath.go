package hostfuncs

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

type pathRequestWire struct {
	Path string `json:"path"`
}

type pathResponseWire struct {
	Path string `json:"path"`
}

// ToVirtualPath implements to_virtual_path(reqPtr) -> resPtr.
func (h *Host) ToVirtualPath(ctx context.Context, mod api.Module, stack []uint64) {
	var req pathRequestWire
	if err := readRequest(mod, stack[0], &req); err != nil {
		stack[0] = hostWriteResponse(ctx, mod, pathResponseWire{})
		return
	}
	stack[0] = hostWriteResponse(ctx, mod, pathResponseWire{Path: h.Paths.ToVirtual(req.Path).String()})
}

// FromVirtualPath implements from_virtual_path(reqPtr) -> resPtr.
func (h *Host) FromVirtualPath(ctx context.Context, mod api.Module, stack []uint64) {
	var req pathRequestWire
	if err := readRequest(mod, stack[0], &req); err != nil {
		stack[0] = hostWriteResponse(ctx, mod, pathResponseWire{})
		return
	}
	stack[0] = hostWriteResponse(ctx, mod, pathResponseWire{Path: h.Paths.FromVirtual(req.Path)})
}
