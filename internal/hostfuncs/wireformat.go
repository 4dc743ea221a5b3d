package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero/api"
)

// ErrorDetail is the structured error shape carried in every wire response,
// mirroring the teacher's hostfuncs.ErrorDetail.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

func toErrorDetail(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	return &ErrorDetail{Message: err.Error(), Type: "internal"}
}

// packPtrLen / unpackPtrLen match the SDK ABI: a single i64 carrying a
// 32-bit guest pointer in the high word and a 32-bit length in the low
// word.
func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

func unpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32)
	length = uint32(packed)
	return ptr, length
}

// readRequest reads and JSON-decodes a guest-supplied argument.
func readRequest(mod api.Module, packed uint64, v any) error {
	ptr, length := unpackPtrLen(packed)
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return fmt.Errorf("failed to read request from guest memory at %d (len %d)", ptr, length)
	}
	return json.Unmarshal(data, v)
}

// hostWriteResponse marshals a response, allocates guest memory via the
// module's exported `allocate`, copies the bytes in, and returns the
// packed ptr+len the guest call site expects as its single result.
func hostWriteResponse(ctx context.Context, mod api.Module, response any) uint64 {
	data, err := json.Marshal(response)
	if err != nil {
		slog.ErrorContext(ctx, "hostfuncs: failed to marshal response", "error", err)
		data, _ = json.Marshal(map[string]any{"error": &ErrorDetail{Message: err.Error(), Type: "internal"}})
	}

	allocate := mod.ExportedFunction("allocate")
	if allocate == nil {
		slog.ErrorContext(ctx, "hostfuncs: guest does not export allocate()")
		return 0
	}
	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil || len(results) == 0 {
		slog.ErrorContext(ctx, "hostfuncs: allocate() call failed", "error", err)
		return 0
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit

	if !mod.Memory().Write(ptr, data) {
		slog.ErrorContext(ctx, "hostfuncs: failed to write response into guest memory", "ptr", ptr)
		return 0
	}
	return packPtrLen(ptr, uint32(len(data)))
}
