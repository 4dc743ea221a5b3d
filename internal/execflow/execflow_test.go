package execflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/grove-tools/grove/internal/detect"
	"github.com/grove-tools/grove/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlugin struct {
	hasFuncs map[string]bool
	funcs    map[string]any
	calls    []string
}

func (f *fakePlugin) HasFunc(_ context.Context, name string) (bool, error) {
	return f.hasFuncs[name], nil
}

func (f *fakePlugin) CallFunc(_ context.Context, name string, _ any, output any) error {
	f.calls = append(f.calls, name)
	switch out := output.(type) {
	case *activateEnvironmentOutput:
		*out = f.funcs[name].(activateEnvironmentOutput)
	case *runHookOutput:
		*out = f.funcs[name].(runHookOutput)
	}
	return nil
}

type fakeTool struct {
	id          string
	plugin      *fakePlugin
	resolved    string
	setUp       bool
	autoInstall bool
	installed   bool
	installErr  error
	exesDirs    []string
	globalsDirs []string
	globalsDir  string
	globalsPfx  string
	lastUsedAt  string
}

func (f *fakeTool) ToolID() string       { return f.id }
func (f *fakeTool) Plugin() PluginCaller { return f.plugin }

func (f *fakeTool) ResolveVersion(_ context.Context, provided *version.UnresolvedSpec, _ bool) (string, error) {
	if provided != nil {
		return f.resolved, nil
	}
	return f.resolved, nil
}

func (f *fakeTool) IsSetup(string) bool { return f.setUp }

func (f *fakeTool) Install(_ context.Context, resolvedVersion string) error {
	if f.installErr != nil {
		return f.installErr
	}
	f.installed = true
	f.setUp = true
	return nil
}

func (f *fakeTool) AutoInstallEnabled() bool { return f.autoInstall }

func (f *fakeTool) ExesDirs(context.Context, string) ([]string, error)    { return f.exesDirs, nil }
func (f *fakeTool) GlobalsDirs(context.Context, string) ([]string, error) { return f.globalsDirs, nil }

func (f *fakeTool) GlobalsDir(context.Context, string) (string, bool, error) {
	return f.globalsDir, f.globalsDir != "", nil
}

func (f *fakeTool) GlobalsPrefix(context.Context, string) (string, bool, error) {
	return f.globalsPfx, f.globalsPfx != "", nil
}

func (f *fakeTool) TouchLastUsed(resolvedVersion string) error {
	f.lastUsedAt = resolvedVersion
	return nil
}

func semverSpec(v version.Version) *version.UnresolvedSpec {
	return &version.UnresolvedSpec{Kind: version.SpecSemantic, Version: v}
}

func TestPrepareTool_SkipsWhenNoSpecAndNoDetect(t *testing.T) {
	tool := &fakeTool{id: "node", plugin: &fakePlugin{}}
	item, err := PrepareTool(context.Background(), tool, nil, Params{})
	require.NoError(t, err)
	assert.Empty(t, item.Args)
	assert.Empty(t, item.Paths)
}

func TestPrepareTool_AutoInstallsWhenNotSetUp(t *testing.T) {
	tool := &fakeTool{id: "node", plugin: &fakePlugin{}, resolved: "20.1.0", setUp: false, autoInstall: true}
	item, err := PrepareTool(context.Background(), tool, semverSpec(version.Version{}), Params{})
	require.NoError(t, err)
	assert.NotNil(t, item)
	assert.True(t, tool.installed)
}

func TestPrepareTool_FailsWhenNotSetUpAndAutoInstallDisabled(t *testing.T) {
	tool := &fakeTool{id: "node", plugin: &fakePlugin{}, resolved: "20.1.0", setUp: false, autoInstall: false}
	_, err := PrepareTool(context.Background(), tool, semverSpec(version.Version{}), Params{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotSetUp)
}

func TestPrepareTool_PropagatesInstallFailure(t *testing.T) {
	boom := errors.New("network down")
	tool := &fakeTool{id: "node", plugin: &fakePlugin{}, resolved: "20.1.0", setUp: false, autoInstall: true, installErr: boom}
	_, err := PrepareTool(context.Background(), tool, semverSpec(version.Version{}), Params{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestPrepareTool_SetsVersionEnvVar(t *testing.T) {
	tool := &fakeTool{id: "node", plugin: &fakePlugin{}, resolved: "20.1.0", setUp: true}
	item, err := PrepareTool(context.Background(), tool, semverSpec(version.Version{}), Params{VersionEnvVars: true})
	require.NoError(t, err)
	v, ok := item.Env[detect.EnvVarName("node")]
	require.True(t, ok)
	require.NotNil(t, v)
	assert.Equal(t, "20.1.0", *v)
}

func TestPrepareTool_CollectsActivateEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), []byte("x"), 0o644))

	tool := &fakeTool{
		id:       "node",
		resolved: "20.1.0",
		setUp:    true,
		plugin: &fakePlugin{
			hasFuncs: map[string]bool{"activate_environment": true},
			funcs: map[string]any{
				"activate_environment": activateEnvironmentOutput{
					Env:   map[string]string{"NODE_ENV": "production"},
					Paths: []string{dir},
				},
			},
		},
	}

	item, err := PrepareTool(context.Background(), tool, semverSpec(version.Version{}), Params{ActivateEnvironment: true})
	require.NoError(t, err)
	v, ok := item.Env["NODE_ENV"]
	require.True(t, ok)
	assert.Equal(t, "production", *v)
	assert.Contains(t, item.Paths, dir)
}

func TestPrepareTool_CollectsPreRunHookArgsEnvPaths(t *testing.T) {
	dir := t.TempDir()

	tool := &fakeTool{
		id:         "node",
		resolved:   "20.1.0",
		setUp:      true,
		globalsDir: "/home/x/.npm-global",
		globalsPfx: "npm-global",
		plugin: &fakePlugin{
			hasFuncs: map[string]bool{"pre_run": true},
			funcs: map[string]any{
				"pre_run": runHookOutput{
					Args:  []string{"--verbose"},
					Env:   map[string]string{"NPM_CONFIG_PREFIX": "npm-global"},
					Paths: []string{dir},
				},
			},
		},
	}

	item, err := PrepareTool(context.Background(), tool, semverSpec(version.Version{}), Params{PreRunHook: true, PassthroughArgs: []string{"run", "build"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"--verbose"}, item.Args)
	v, ok := item.Env["NPM_CONFIG_PREFIX"]
	require.True(t, ok)
	assert.Equal(t, "npm-global", *v)
	assert.Contains(t, item.Paths, dir)
}

func TestPrepareTool_SkipsNonexistentPaths(t *testing.T) {
	tool := &fakeTool{
		id:          "node",
		resolved:    "20.1.0",
		setUp:       true,
		exesDirs:    []string{"/path/does/not/exist"},
		globalsDirs: nil,
	}
	tool.plugin = &fakePlugin{}

	item, err := PrepareTool(context.Background(), tool, semverSpec(version.Version{}), Params{})
	require.NoError(t, err)
	assert.Empty(t, item.Paths)
}

func TestPrepareTool_TouchesLastUsedUnlessSkipped(t *testing.T) {
	tool := &fakeTool{id: "node", plugin: &fakePlugin{}, resolved: "20.1.0", setUp: true}
	_, err := PrepareTool(context.Background(), tool, semverSpec(version.Version{}), Params{})
	require.NoError(t, err)
	assert.Equal(t, "20.1.0", tool.lastUsedAt)

	t.Setenv("PROTO_SKIP_USED_AT", "1")
	tool2 := &fakeTool{id: "node", plugin: &fakePlugin{}, resolved: "20.1.0", setUp: true}
	_, err = PrepareTool(context.Background(), tool2, semverSpec(version.Version{}), Params{})
	require.NoError(t, err)
	assert.Empty(t, tool2.lastUsedAt)
}

func TestPrepareAll_RunsToolsConcurrentlyAndCollectsAll(t *testing.T) {
	node := &fakeTool{id: "node", plugin: &fakePlugin{}, resolved: "20.1.0", setUp: true}
	zig := &fakeTool{id: "zig", plugin: &fakePlugin{}, resolved: "0.13.0", setUp: true}

	items, err := PrepareAll(context.Background(), []ToolContext{node, zig}, map[string]version.UnresolvedSpec{
		"node": {Kind: version.SpecSemantic},
		"zig":  {Kind: version.SpecSemantic},
	}, Params{VersionEnvVars: true})
	require.NoError(t, err)
	require.Len(t, items, 2)
	nodeVer, _ := items["node"].Env[detect.EnvVarName("node")]
	require.NotNil(t, nodeVer)
	assert.Equal(t, "20.1.0", *nodeVer)
}

func TestPrepareAll_PartialFailureStillReturnsError(t *testing.T) {
	node := &fakeTool{id: "node", plugin: &fakePlugin{}, resolved: "20.1.0", setUp: true}
	broken := &fakeTool{id: "zig", plugin: &fakePlugin{}, resolved: "0.13.0", setUp: false, autoInstall: false}

	_, err := PrepareAll(context.Background(), []ToolContext{node, broken}, nil, Params{DetectVersion: true})
	require.Error(t, err)
}
