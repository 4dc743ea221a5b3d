package hostfuncs

import (
	"context"

	"github.com/grove-tools/grove/internal/vpath"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// HostModuleName is the wazero host module guests import from.
const HostModuleName = "grove_host"

// Register builds the grove_host module for one plugin container instance,
// bound to that container's virtual path map and environment table.
func Register(ctx context.Context, runtime wazero.Runtime, paths *vpath.Map, env *EnvTable) (*Host, error) {
	h := &Host{Paths: paths, Env: env}

	builder := runtime.NewHostModuleBuilder(HostModuleName)

	unary := []api.ValueType{api.ValueTypeI64}
	unaryResult := []api.ValueType{api.ValueTypeI64}

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(HostLog), unary, nil).
		Export("host_log")

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.ExecCommand), unary, unaryResult).
		Export("exec_command")

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.SendRequest), unary, unaryResult).
		Export("send_request")

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.GetEnvVar), unary, unaryResult).
		Export("get_env_var")

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.SetEnvVar), unary, unaryResult).
		Export("set_env_var")

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.ToVirtualPath), unary, unaryResult).
		Export("to_virtual_path")

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.FromVirtualPath), unary, unaryResult).
		Export("from_virtual_path")

	if _, err := builder.Instantiate(ctx); err != nil {
		return nil, err
	}
	return h, nil
}
