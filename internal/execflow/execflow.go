// Package execflow implements the exec workflow (component C14): given a
// set of (tool, spec) pairs, it resolves/installs each tool as needed,
// collects the environment variables, PATH segments, and extra arguments
// every tool's plugin wants contributed, and applies the result to a child
// process.
//
// Grounded on the original implementation's crates/cli/src/workflows/exec_workflow.rs
// (ExecItem/ExecWorkflow/prepare_tool), reworked around this module's own
// already-built pieces: internal/orchestrator.RunAll drives the "for each
// tool in parallel" fan-out (component C13), internal/groveenv.Compose
// seeds the env (component C7), and internal/store supplies the
// `.last-used` and activate-marker paths.
package execflow

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"

	"github.com/grove-tools/grove/internal/detect"
	"github.com/grove-tools/grove/internal/groveerrors"
	"github.com/grove-tools/grove/internal/orchestrator"
	"github.com/grove-tools/grove/internal/version"
)

// PluginCaller is the subset of *plugin.Container a tool's activate/pre_run
// hooks need.
type PluginCaller interface {
	HasFunc(ctx context.Context, name string) (bool, error)
	CallFunc(ctx context.Context, name string, input, output any) error
}

// ToolContext is the per-tool surface exec workflow drives. The caller
// (the session layer, bound per requested tool to its own
// plugin, config layers, and store paths) supplies one per tool; exec
// workflow only ever reads resolved version strings and directory lists
// back out of it, so a caller unit test can fake it without a real plugin
// or WASM runtime.
type ToolContext interface {
	ToolID() string
	Plugin() PluginCaller

	// ResolveVersion returns the tool's resolved version string. provided
	// is the spec named by the caller (e.g. `proto run node 20.1.0`), or
	// nil when absent; when nil and detect is true the implementation
	// should fall back to version detection (component C9) before
	// resolving (component C8).
	ResolveVersion(ctx context.Context, provided *version.UnresolvedSpec, detect bool) (string, error)

	// IsSetup reports whether resolvedVersion is already installed.
	IsSetup(resolvedVersion string) bool

	// Install runs the install pipeline for resolvedVersion.
	Install(ctx context.Context, resolvedVersion string) error

	// AutoInstallEnabled reports this tool's merged `settings.auto_install`.
	AutoInstallEnabled() bool

	// ExesDirs and GlobalsDirs return the absolute directories
	// `locate_exes_dirs`/`locate_globals_dirs` report for resolvedVersion.
	ExesDirs(ctx context.Context, resolvedVersion string) ([]string, error)
	GlobalsDirs(ctx context.Context, resolvedVersion string) ([]string, error)

	// GlobalsDir and GlobalsPrefix feed the pre_run hook's input; ok is
	// false when the tool has no globals directory/prefix concept.
	GlobalsDir(ctx context.Context, resolvedVersion string) (dir string, ok bool, err error)
	GlobalsPrefix(ctx context.Context, resolvedVersion string) (prefix string, ok bool, err error)

	// TouchLastUsed marks resolvedVersion as just-used for auto-clean.
	TouchLastUsed(resolvedVersion string) error
}

// Params mirrors spec.md §4.14's ExecWorkflowParams.
type Params struct {
	ActivateEnvironment bool
	CheckProcessEnv     bool
	DetectVersion       bool
	PassthroughArgs     []string
	PreRunHook          bool
	VersionEnvVars      bool
}

// Item is one tool's contribution, collected into a Workflow.
type Item struct {
	Args  []string
	Env   map[string]*string // nil value means "unset this var"
	order []string
	Paths []string
}

func newItem() *Item {
	return &Item{Env: map[string]*string{}}
}

func (it *Item) setEnv(key string, value *string) {
	if _, seen := it.Env[key]; !seen {
		it.order = append(it.order, key)
	}
	it.Env[key] = value
}

// addPath appends path if it exists on disk and isn't already present,
// mirroring the original's "only add paths that exist" rule.
func (it *Item) addPath(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	for _, p := range it.Paths {
		if p == path {
			return
		}
	}
	it.Paths = append(it.Paths, path)
}

// ErrNotSetUp is wrapped into the returned error when a tool isn't
// installed and auto-install is disabled for it.
var ErrNotSetUp = errors.New("tool is not set up")

// PrepareTool resolves and (if necessary) installs tc's tool, then
// collects its env/PATH/arg contributions, following spec.md §4.14 steps
// 2-4. provided is the spec named explicitly for this tool (e.g. via CLI
// argument or `.prototools` pin), or nil.
func PrepareTool(ctx context.Context, tc ToolContext, provided *version.UnresolvedSpec, params Params) (*Item, error) {
	item := newItem()

	if provided == nil && !params.DetectVersion {
		return item, nil
	}

	resolvedVersion, err := tc.ResolveVersion(ctx, provided, params.DetectVersion)
	if err != nil {
		return nil, groveerrors.Wrap(groveerrors.KindVersionResolveFailed, tc.ToolID(), err)
	}

	if !tc.IsSetup(resolvedVersion) {
		if !tc.AutoInstallEnabled() {
			return nil, groveerrors.Wrap(groveerrors.KindRequirementsNotMet, tc.ToolID(), ErrNotSetUp)
		}
		if err := tc.Install(ctx, resolvedVersion); err != nil {
			return nil, groveerrors.Wrap(groveerrors.KindInstallFailed, tc.ToolID(), err)
		}
	}

	if params.VersionEnvVars {
		v := resolvedVersion
		item.setEnv(detect.EnvVarName(tc.ToolID()), &v)
	}

	if params.ActivateEnvironment {
		if err := collectActivateEnvironment(ctx, tc, resolvedVersion, item); err != nil {
			return nil, groveerrors.Wrap(groveerrors.KindPluginCallFailed, tc.ToolID(), err)
		}
	}

	if params.PreRunHook {
		if err := collectPreRunHook(ctx, tc, resolvedVersion, params.PassthroughArgs, item); err != nil {
			return nil, groveerrors.Wrap(groveerrors.KindPluginCallFailed, tc.ToolID(), err)
		}
	}

	exesDirs, err := tc.ExesDirs(ctx, resolvedVersion)
	if err != nil {
		return nil, groveerrors.Wrap(groveerrors.KindPluginCallFailed, tc.ToolID(), err)
	}
	for _, dir := range exesDirs {
		item.addPath(dir)
	}

	globalsDirs, err := tc.GlobalsDirs(ctx, resolvedVersion)
	if err != nil {
		return nil, groveerrors.Wrap(groveerrors.KindPluginCallFailed, tc.ToolID(), err)
	}
	for _, dir := range globalsDirs {
		item.addPath(dir)
	}

	if _, skip := os.LookupEnv("PROTO_SKIP_USED_AT"); !skip {
		if err := tc.TouchLastUsed(resolvedVersion); err != nil {
			return nil, groveerrors.Wrap(groveerrors.KindInstallFailed, tc.ToolID(), err)
		}
	}

	return item, nil
}

func collectActivateEnvironment(ctx context.Context, tc ToolContext, resolvedVersion string, item *Item) error {
	has, err := tc.Plugin().HasFunc(ctx, "activate_environment")
	if err != nil || !has {
		return err
	}

	var out activateEnvironmentOutput
	if err := tc.Plugin().CallFunc(ctx, "activate_environment", activateEnvironmentInput{
		Context: PluginContext{ToolID: tc.ToolID(), Version: resolvedVersion},
	}, &out); err != nil {
		return err
	}

	for _, key := range sortedKeys(out.Env) {
		v := out.Env[key]
		item.setEnv(key, &v)
	}
	for _, p := range out.Paths {
		item.addPath(p)
	}
	return nil
}

func collectPreRunHook(ctx context.Context, tc ToolContext, resolvedVersion string, passthroughArgs []string, item *Item) error {
	has, err := tc.Plugin().HasFunc(ctx, "pre_run")
	if err != nil || !has {
		return err
	}

	globalsDir, _, err := tc.GlobalsDir(ctx, resolvedVersion)
	if err != nil {
		return err
	}
	globalsPrefix, _, err := tc.GlobalsPrefix(ctx, resolvedVersion)
	if err != nil {
		return err
	}

	var out runHookOutput
	if err := tc.Plugin().CallFunc(ctx, "pre_run", runHookInput{
		Context:         PluginContext{ToolID: tc.ToolID(), Version: resolvedVersion},
		GlobalsDir:      globalsDir,
		GlobalsPrefix:   globalsPrefix,
		PassthroughArgs: passthroughArgs,
	}, &out); err != nil {
		return err
	}

	item.Args = append(item.Args, out.Args...)
	for _, key := range sortedKeys(out.Env) {
		v := out.Env[key]
		item.setEnv(key, &v)
	}
	for _, p := range out.Paths {
		item.addPath(p)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PrepareAll runs PrepareTool for every tool in tcs concurrently via
// internal/orchestrator, satisfying spec.md §4.14 step 2's "for each tool
// in parallel". specs maps tool id to its explicitly-provided spec (a
// CLI argument or `.prototools` pin); a tool absent from specs is resolved
// purely by detection when params.DetectVersion is set.
func PrepareAll(ctx context.Context, tcs []ToolContext, specs map[string]version.UnresolvedSpec, params Params) (map[string]*Item, error) {
	items := make(map[string]*Item, len(tcs))
	var mu sync.Mutex
	tasks := make([]orchestrator.Task, len(tcs))

	for i, tc := range tcs {
		tc := tc
		tasks[i] = orchestrator.Task{
			ToolID: tc.ToolID(),
			Run: func(ctx context.Context) error {
				var provided *version.UnresolvedSpec
				if spec, ok := specs[tc.ToolID()]; ok {
					provided = &spec
				}
				item, err := PrepareTool(ctx, tc, provided, params)
				if err != nil {
					return err
				}
				mu.Lock()
				items[tc.ToolID()] = item
				mu.Unlock()
				return nil
			},
		}
	}

	_, err := orchestrator.RunAll(ctx, tasks)
	return items, err
}
