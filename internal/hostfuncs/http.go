package hostfuncs

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tetratelabs/wazero/api"
)

type sendRequestWire struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

type sendResponseWire struct {
	Status     int          `json:"status"`
	BodyOffset uint32       `json:"body_offset"`
	BodyLength uint32       `json:"body_length"`
	Error      *ErrorDetail `json:"error,omitempty"`
}

var requestTimeout = 30 * time.Second

// httpClient is a package-level retryablehttp client: 3 attempts with
// exponential backoff on transient errors/5xx, no retry on 4xx, matching
// spec.md §7's recovery policy.
var httpClient = func() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.Logger = nil
	return c
}()

// SendRequest implements send_request(reqPtr) -> resPtr. The response body
// is written directly into guest memory and referenced by offset+length
// rather than re-encoded into the JSON envelope.
func (h *Host) SendRequest(ctx context.Context, mod api.Module, stack []uint64) {
	var req sendRequestWire
	if err := readRequest(mod, stack[0], &req); err != nil {
		stack[0] = hostWriteResponse(ctx, mod, sendResponseWire{Error: toErrorDetail(err)})
		return
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = strings.NewReader(req.Body)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(reqCtx, method, req.URL, bodyReader)
	if err != nil {
		stack[0] = hostWriteResponse(ctx, mod, sendResponseWire{Error: toErrorDetail(err)})
		return
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		stack[0] = hostWriteResponse(ctx, mod, sendResponseWire{Error: toErrorDetail(err)})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		stack[0] = hostWriteResponse(ctx, mod, sendResponseWire{Error: toErrorDetail(err)})
		return
	}

	allocate := mod.ExportedFunction("allocate")
	if allocate == nil {
		stack[0] = hostWriteResponse(ctx, mod, sendResponseWire{Error: &ErrorDetail{Message: "guest does not export allocate()", Type: "internal"}})
		return
	}
	results, err := allocate.Call(ctx, uint64(len(body)))
	if err != nil || len(results) == 0 {
		stack[0] = hostWriteResponse(ctx, mod, sendResponseWire{Error: toErrorDetail(err)})
		return
	}
	ptr := uint32(results[0]) //nolint:gosec // G115
	if len(body) > 0 && !mod.Memory().Write(ptr, body) {
		stack[0] = hostWriteResponse(ctx, mod, sendResponseWire{Error: &ErrorDetail{Message: "failed to write response body into guest memory", Type: "internal"}})
		return
	}

	slog.DebugContext(ctx, "hostfuncs: send_request", "url", req.URL, "status", resp.StatusCode)

	stack[0] = hostWriteResponse(ctx, mod, sendResponseWire{
		Status:     resp.StatusCode,
		BodyOffset: ptr,
		BodyLength: uint32(len(body)),
	})
}
