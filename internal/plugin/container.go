// Package plugin implements the plugin container (component C4): the
// sandboxed WASM execution unit each tool holds exactly one of, exposing
// has_func/call_func/cache_func/call_func_without_output over a
// single-threaded guest entry point.
//
// Grounded on the teacher's internal/infrastructure/wasm Runtime/Plugin
// split (compiled-module caching, fresh-instance-per-call for thread
// safety, allocate/deallocate memory handshake) — collapsed into one type
// per container because each tool's virtual path map and environment
// table (component C5's dependencies) are per-container here, where the
// teacher's compliance plugins shared one capability-scoped runtime.
package plugin

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/grove-tools/grove/internal/hostfuncs"
	"github.com/grove-tools/grove/internal/vpath"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Container wraps one compiled plugin module for one tool id.
type Container struct {
	name    string
	runtime wazero.Runtime
	module  wazero.CompiledModule
	host    *hostfuncs.Host

	entry sync.Mutex // serializes guest calls: one at a time per container

	cacheMu sync.Mutex
	cache   map[string][]byte
}

// New compiles wasmBytes, registers the grove_host surface bound to paths
// and env, and returns a ready container for id.
func New(ctx context.Context, id string, wasmBytes []byte, paths *vpath.Map, env *hostfuncs.EnvTable) (*Container, error) {
	runtime := wazero.NewRuntime(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI for plugin %s: %w", id, err)
	}

	host, err := hostfuncs.Register(ctx, runtime, paths, env)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("register host functions for plugin %s: %w", id, err)
	}

	module, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("compile plugin %s: %w", id, err)
	}

	return &Container{
		name:    id,
		runtime: runtime,
		module:  module,
		host:    host,
		cache:   map[string][]byte{},
	}, nil
}

func (c *Container) Name() string { return c.name }

func (c *Container) Close(ctx context.Context) error {
	return c.runtime.Close(ctx)
}

func (c *Container) newInstance(ctx context.Context) (api.Module, error) {
	ctx = hostfuncs.WithPluginName(ctx, c.name)
	cfg := wazero.NewModuleConfig().WithRandSource(rand.Reader).WithSysWalltime().WithSysNanotime()
	instance, err := c.runtime.InstantiateModule(ctx, c.module, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate plugin %s: %w", c.name, err)
	}
	if initFn := instance.ExportedFunction("_initialize"); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			_ = instance.Close(ctx)
			return nil, fmt.Errorf("initialize plugin %s: %w", c.name, err)
		}
	}
	return instance, nil
}

// HasFunc reports whether the guest module exports name.
func (c *Container) HasFunc(ctx context.Context, name string) (bool, error) {
	instance, err := c.newInstance(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = instance.Close(ctx) }()
	return instance.ExportedFunction(name) != nil, nil
}

// CallFunc invokes name with input serialized to JSON, deserializing the
// guest's JSON result into output. Guest entry is serialized: only one
// call runs at a time per container.
func (c *Container) CallFunc(ctx context.Context, name string, input, output any) error {
	c.entry.Lock()
	defer c.entry.Unlock()
	return c.callFuncLocked(ctx, name, input, output)
}

func (c *Container) callFuncLocked(ctx context.Context, name string, input, output any) error {
	ctx = hostfuncs.WithCallID(ctx, uuid.NewString())
	instance, err := c.newInstance(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = instance.Close(ctx) }()

	fn := instance.ExportedFunction(name)
	if fn == nil {
		return fmt.Errorf("plugin %s does not export %s()", c.name, name)
	}

	inData, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal input for %s: %w", name, err)
	}

	inPtr, err := c.writeMemory(ctx, instance, inData)
	if err != nil {
		return fmt.Errorf("write input for %s: %w", name, err)
	}
	defer c.deallocate(ctx, instance, inPtr, uint32(len(inData)))

	results, err := fn.Call(ctx, uint64(inPtr), uint64(len(inData)))
	if err != nil {
		return fmt.Errorf("call %s(): %w", name, err)
	}
	if len(results) == 0 {
		return fmt.Errorf("%s() returned no results", name)
	}

	packed := results[0]
	ptr := uint32(packed >> 32)         //nolint:gosec // G115
	size := uint32(packed & 0xFFFFFFFF) //nolint:gosec // G115
	if ptr == 0 || size == 0 {
		if output != nil {
			return json.Unmarshal([]byte("{}"), output)
		}
		return nil
	}

	outData, err := c.readMemory(ctx, instance, ptr, size)
	if err != nil {
		return fmt.Errorf("read result of %s(): %w", name, err)
	}
	if output == nil {
		return nil
	}
	return json.Unmarshal(outData, output)
}

// CacheFunc memoizes CallFunc on (name, canonical_json(input)). Only safe
// for the pure/idempotent guest functions spec.md §4.4 lists (register_tool,
// detect_version_files, load_versions, download_prebuilt, locate_executables).
func (c *Container) CacheFunc(ctx context.Context, name string, input, output any) error {
	key, err := cacheKey(name, input)
	if err != nil {
		return err
	}

	c.cacheMu.Lock()
	cached, ok := c.cache[key]
	c.cacheMu.Unlock()

	if ok {
		if err := json.Unmarshal(cached, output); err == nil {
			return nil
		}
		// Corrupt cache entry: evict and recompute per spec.md §7.
		c.cacheMu.Lock()
		delete(c.cache, key)
		c.cacheMu.Unlock()
	}

	c.entry.Lock()
	defer c.entry.Unlock()

	if err := c.callFuncLocked(ctx, name, input, output); err != nil {
		return err
	}

	data, err := json.Marshal(output)
	if err != nil {
		return nil // cache miss is not fatal; the fresh result is already in output
	}
	c.cacheMu.Lock()
	c.cache[key] = data
	c.cacheMu.Unlock()
	return nil
}

// CallFuncWithoutOutput fires a hook (pre_install, post_run, ...) without
// waiting on or parsing a result.
func (c *Container) CallFuncWithoutOutput(ctx context.Context, name string, input any) error {
	c.entry.Lock()
	defer c.entry.Unlock()

	ctx = hostfuncs.WithCallID(ctx, uuid.NewString())
	instance, err := c.newInstance(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = instance.Close(ctx) }()

	fn := instance.ExportedFunction(name)
	if fn == nil {
		return nil // hooks are optional
	}

	inData, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal input for %s: %w", name, err)
	}
	inPtr, err := c.writeMemory(ctx, instance, inData)
	if err != nil {
		return fmt.Errorf("write input for %s: %w", name, err)
	}
	defer c.deallocate(ctx, instance, inPtr, uint32(len(inData)))

	_, err = fn.Call(ctx, uint64(inPtr), uint64(len(inData)))
	return err
}

func (c *Container) writeMemory(ctx context.Context, instance api.Module, data []byte) (uint32, error) {
	allocate := instance.ExportedFunction("allocate")
	if allocate == nil {
		return 0, fmt.Errorf("plugin %s does not export allocate()", c.name)
	}
	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil || len(results) == 0 {
		return 0, fmt.Errorf("allocate() failed: %w", err)
	}
	ptr := uint32(results[0]) //nolint:gosec // G115
	if len(data) > 0 && !instance.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("failed to write %d bytes at offset %d", len(data), ptr)
	}
	return ptr, nil
}

func (c *Container) readMemory(_ context.Context, instance api.Module, ptr, size uint32) ([]byte, error) {
	data, ok := instance.Memory().Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("failed to read %d bytes at offset %d", size, ptr)
	}
	out := make([]byte, size)
	copy(out, data)
	return out, nil
}

func (c *Container) deallocate(ctx context.Context, instance api.Module, ptr, size uint32) {
	defer func() { _ = recover() }()
	if fn := instance.ExportedFunction("deallocate"); fn != nil {
		_, _ = fn.Call(ctx, uint64(ptr), uint64(size))
	}
}

// cacheKey renders a stable key from name and a canonicalized (key-sorted)
// JSON encoding of input.
func cacheKey(name string, input any) (string, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", err
	}
	canon, err := canonicalJSON(generic)
	if err != nil {
		return "", err
	}
	return name + ":" + canon, nil
}

func canonicalJSON(v any) (string, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			inner, err := canonicalJSON(val[k])
			if err != nil {
				return "", err
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return "", err
			}
			parts[i] = string(kb) + ":" + inner
		}
		return "{" + joinComma(parts) + "}", nil
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			inner, err := canonicalJSON(item)
			if err != nil {
				return "", err
			}
			parts[i] = inner
		}
		return "[" + joinComma(parts) + "]", nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}
