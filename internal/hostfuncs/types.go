// Package hostfuncs implements the host function surface (component C5):
// the functions a WASM guest plugin may import to log, execute processes,
// perform HTTP requests, read/write environment variables, and round-trip
// virtual paths.
//
// Grounded on the teacher's internal/wasm/hostfuncs package (ptr/len
// wire-packing convention, one file per host function, a registry that
// builds a single wazero host module), generalized from reglet's
// capability-gated DNS/HTTP/TCP surface to the virtual-path-aware exec and
// environment surface spec.md §4.5 describes.
package hostfuncs

import (
	"context"

	"github.com/grove-tools/grove/internal/vpath"
)

type pluginNameKey struct{}

// WithPluginName tags a context with the plugin id so host functions can
// attribute log lines and errors to the calling guest.
func WithPluginName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, pluginNameKey{}, name)
}

// PluginNameFromContext recovers the plugin id set by WithPluginName.
func PluginNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(pluginNameKey{}).(string)
	return name, ok
}

type callIDKey struct{}

// WithCallID tags a context with a correlation id for one guest entry
// point call, so host functions (host_log in particular) can attribute
// log lines to the call that produced them for tracing across a
// plugin-call boundary.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey{}, id)
}

// CallIDFromContext recovers the correlation id set by WithCallID.
func CallIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callIDKey{}).(string)
	return id, ok
}

// Host bundles the dependencies every host function needs: the virtual
// path map for this plugin's container, and the environment snapshot
// get_env_var/set_env_var operate against.
type Host struct {
	Paths *vpath.Map
	Env   *EnvTable
}

// EnvTable is the mutable environment view exposed to get_env_var /
// set_env_var. It starts as a copy of the composed process environment
// for this tool invocation and is mutated in place by the guest.
type EnvTable struct {
	vars map[string]string
}

// NewEnvTable seeds a table from an initial `KEY=VALUE` slice, matching
// os.Environ()'s shape.
func NewEnvTable(environ []string) *EnvTable {
	t := &EnvTable{vars: map[string]string{}}
	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				t.vars[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return t
}

func (t *EnvTable) Get(name string) string { return t.vars[name] }

func (t *EnvTable) Set(name, value string) { t.vars[name] = value }

// Environ renders the table back to `KEY=VALUE` form for spawning a child
// process.
func (t *EnvTable) Environ() []string {
	out := make([]string, 0, len(t.vars))
	for k, v := range t.vars {
		out = append(out, k+"="+v)
	}
	return out
}
