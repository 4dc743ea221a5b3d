// Package session wires the already-built components (config layering,
// env composition, version detect/resolve, plugin loading, install,
// shims) into one per-invocation object the CLI layer drives: load
// `.prototools` layers once, then hand out a Tool per requested tool id
// that satisfies internal/execflow.ToolContext.
//
// Grounded on the teacher's internal/infrastructure/container.Container —
// the one object every reglet CLI command builds via withContainer and
// then asks for a named service — generalized here from "service
// registry" to "per-tool plugin+config handle".
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/grove-tools/grove/internal/detect"
	"github.com/grove-tools/grove/internal/execflow"
	"github.com/grove-tools/grove/internal/groveconfig"
	"github.com/grove-tools/grove/internal/groveenv"
	"github.com/grove-tools/grove/internal/hostfuncs"
	"github.com/grove-tools/grove/internal/install"
	"github.com/grove-tools/grove/internal/ploader"
	"github.com/grove-tools/grove/internal/plugin"
	"github.com/grove-tools/grove/internal/resolve"
	"github.com/grove-tools/grove/internal/shim"
	"github.com/grove-tools/grove/internal/store"
	"github.com/grove-tools/grove/internal/version"
	"github.com/grove-tools/grove/internal/vpath"
	"github.com/hashicorp/go-retryablehttp"
)

// Session holds one invocation's loaded config layers and every tool
// container created from them so far.
type Session struct {
	Store      *store.Store
	Layers     []groveconfig.Layer
	Merged     *groveconfig.Merged
	HTTPClient *retryablehttp.Client
	Offline    bool

	loader     *ploader.Loader
	cwd        string
	workDir    string
	containers map[string]*plugin.Container
}

// Options configures Open.
type Options struct {
	Cwd       string // directory the CLI was invoked from
	ProtoHome string // PROTO_HOME/PROTO_ROOT; resolved by the caller
	Mode      string // env var name whose value selects `.prototools.<mode>`
	View      groveconfig.View
	Offline   bool
}

// Open discovers and merges config layers from opts.Cwd up to the user's
// home directory (or proto_home, whichever is reached first), per
// spec.md §3's CWD-first discovery order.
func Open(opts Options) (*Session, error) {
	st := store.New(opts.ProtoHome)

	endDir, err := os.UserHomeDir()
	if err != nil {
		endDir = opts.ProtoHome
	}

	layers, err := groveconfig.LoadLayers(opts.Cwd, endDir, opts.ProtoHome, opts.Mode)
	if err != nil {
		return nil, fmt.Errorf("session: load config layers: %w", err)
	}

	view := opts.View
	merged, err := groveconfig.Merge(layers, view)
	if err != nil {
		return nil, fmt.Errorf("session: merge config layers: %w", err)
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 2
	httpClient.Logger = nil

	return &Session{
		Store:      st,
		Layers:     layers,
		Merged:     merged,
		HTTPClient: httpClient,
		Offline:    opts.Offline,
		loader:     ploader.New(st.PluginsDir()),
		cwd:        opts.Cwd,
		workDir:    opts.Cwd,
		containers: map[string]*plugin.Container{},
	}, nil
}

// plugin lazily loads and compiles toolID's plugin container, caching it
// for the lifetime of the session (one container per tool id, per
// spec.md §5's "the WASM runtime is single-threaded per instance").
func (s *Session) plugin(ctx context.Context, toolID string) (*plugin.Container, error) {
	if c, ok := s.containers[toolID]; ok {
		return c, nil
	}

	locator, ok := s.Merged.Plugins[toolID]
	if !ok {
		return nil, fmt.Errorf("session: no plugin configured for tool %q", toolID)
	}

	wasmPath, err := s.loader.Load(ctx, toolID, locator, s.Offline)
	if err != nil {
		return nil, fmt.Errorf("session: load plugin for %q: %w", toolID, err)
	}
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("session: read plugin artifact for %q: %w", toolID, err)
	}

	composed, err := groveenv.Compose(s.Merged, toolID)
	if err != nil {
		return nil, fmt.Errorf("session: compose env for %q: %w", toolID, err)
	}
	envTable := hostfuncs.NewEnvTable(composed.Environ())
	paths := vpath.New(s.cwd, userHomeDir(), s.Store.Home, s.workDir)

	container, err := plugin.New(ctx, toolID, wasmBytes, paths, envTable)
	if err != nil {
		return nil, fmt.Errorf("session: start plugin container for %q: %w", toolID, err)
	}

	if err := container.ValidateConfig(ctx, s.Merged.Tools[toolID].Config); err != nil {
		_ = container.Close(ctx)
		return nil, fmt.Errorf("session: %w", err)
	}

	s.containers[toolID] = container
	return container, nil
}

// Close releases every plugin container the session opened.
func (s *Session) Close(ctx context.Context) {
	for _, c := range s.containers {
		_ = c.Close(ctx)
	}
}

// Tool returns the execflow.ToolContext for toolID, loading its plugin
// container on first use.
func (s *Session) Tool(ctx context.Context, toolID string) (*Tool, error) {
	c, err := s.plugin(ctx, toolID)
	if err != nil {
		return nil, err
	}
	return &Tool{id: toolID, session: s, container: c}, nil
}

func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

// Tool adapts one tool id's plugin container and this session's merged
// config/store into the execflow.ToolContext surface.
type Tool struct {
	id           string
	session      *Session
	container    *plugin.Container
	lastChecksum string // set by Install, read back by the CLI for lockfile.Enforce
}

// ChecksumValue returns the checksum the most recent Install recorded for
// the lockfile (component C11), empty if Install hasn't run or the install
// had no checksum_url to verify against.
func (t *Tool) ChecksumValue() string { return t.lastChecksum }

func (t *Tool) ToolID() string                { return t.id }
func (t *Tool) Plugin() execflow.PluginCaller { return t.container }
func (t *Tool) AutoInstallEnabled() bool      { return t.session.Merged.Settings.AutoInstall }

// Container returns the tool's underlying plugin container, typed
// concretely so callers needing a wider PluginCaller surface (e.g.
// internal/resolve's catalog loading, which also calls CacheFunc) can pass
// it directly without an adapter.
func (t *Tool) Container() *plugin.Container { return t.container }

func (t *Tool) userAliases() map[string]string {
	if tc, ok := t.session.Merged.Tools[t.id]; ok {
		return tc.Aliases
	}
	return nil
}

// installedVersions lists this tool's on-disk install directories —
// authoritative for is_setup/resolve-with-manifest, since each install
// directory's own presence is what the install pipeline actually creates
// and removes (manifest.json is a redundant index over the same set).
// InstalledVersions lists this tool's installed versions, newest first.
func (t *Tool) InstalledVersions() []version.Version {
	return t.installedVersions()
}

func (t *Tool) installedVersions() []version.Version {
	entries, err := os.ReadDir(t.session.Store.ToolDir(t.id))
	if err != nil {
		return nil
	}
	var out []version.Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		resolved, err := version.ParseResolved(e.Name())
		if err != nil || resolved.Kind == version.SpecAlias || resolved.Kind == version.SpecCanary {
			continue
		}
		out = append(out, resolved.Version)
	}
	sort.Slice(out, func(i, j int) bool { return out[j].LessThan(out[i]) })
	return out
}

func (t *Tool) ResolveVersion(ctx context.Context, provided *version.UnresolvedSpec, detectFirst bool) (string, error) {
	spec := provided
	if spec == nil {
		if !detectFirst {
			return "", fmt.Errorf("session: no version spec provided for %q and detection disabled", t.id)
		}
		lookupEnv := func(name string) (string, bool) { return os.LookupEnv(name) }
		result, err := detect.Detect(ctx, t.container, t.id, t.session.Layers, t.session.Merged.Settings.DetectStrategy, lookupEnv)
		if err != nil {
			return "", fmt.Errorf("session: detect version for %q: %w", t.id, err)
		}
		spec = &result.Spec
	}

	catalog, err := resolve.LoadCatalog(ctx, t.container, t.id, t.session.Store.ToolDir(t.id), t.session.Offline)
	if err != nil {
		return "", fmt.Errorf("session: load version catalog for %q: %w", t.id, err)
	}

	resolved, err := resolve.Resolve(ctx, t.container, catalog, *spec, resolve.Options{
		ToolID:       t.id,
		UserAliases:  t.userAliases(),
		Installed:    t.installedVersions(),
		ShortCircuit: true,
	})
	if err != nil {
		return "", err
	}
	return resolved.String(), nil
}

func (t *Tool) IsSetup(resolvedVersion string) bool {
	info, err := os.Stat(t.session.Store.InstallDir(t.id, resolvedVersion))
	return err == nil && info.IsDir()
}

// Install runs the C10 state machine's PreInstallHook through
// LocateLink/Pin-adjacent stages for one resolved version: the
// pre_install hook, the download/verify/unpack pipeline (internal/install),
// shim creation, the post_install hook, and shell profile sync, in the
// order spec.md §4.10's diagram lays them out.
func (t *Tool) Install(ctx context.Context, resolvedVersion string) error {
	installDir := t.session.Store.InstallDir(t.id, resolvedVersion)

	if err := t.callInstallHook(ctx, "pre_install", installDir, resolvedVersion); err != nil {
		return err
	}

	result, err := install.Install(ctx, t.container, t.session.HTTPClient, install.Options{
		ToolID:     t.id,
		Version:    resolvedVersion,
		InstallDir: installDir,
		TempDir:    t.session.Store.TempDir(),
		Offline:    t.session.Offline,
	})
	if err != nil {
		return err
	}
	t.lastChecksum = result.ChecksumValue

	if _, err := shim.Create(ctx, t.container, t.session.Store, managerExePath(), t.id, resolvedVersion, installDir, shim.Options{}); err != nil {
		return fmt.Errorf("session: create shims for %q: %w", t.id, err)
	}

	if err := t.callInstallHook(ctx, "post_install", installDir, resolvedVersion); err != nil {
		return err
	}

	if err := t.syncShellProfile(ctx); err != nil {
		return fmt.Errorf("session: sync shell profile for %q: %w", t.id, err)
	}
	return nil
}

// callInstallHook fires pre_install/post_install: fire-and-forget per
// spec.md §4.4 (no output is read back), but a genuine call failure still
// propagates rather than being swallowed.
func (t *Tool) callInstallHook(ctx context.Context, name, installDir, resolvedVersion string) error {
	has, err := t.container.HasFunc(ctx, name)
	if err != nil {
		return fmt.Errorf("session: check %s hook for %q: %w", name, t.id, err)
	}
	if !has {
		return nil
	}
	if err := t.container.CallFuncWithoutOutput(ctx, name, installHookInput{
		ToolID:     t.id,
		Version:    resolvedVersion,
		InstallDir: installDir,
	}); err != nil {
		return fmt.Errorf("session: %s hook for %q: %w", name, t.id, err)
	}
	return nil
}

// syncShellProfile runs the sync_shell_profile hook, if the plugin
// declares one, and applies its result to the user's shell profile.
func (t *Tool) syncShellProfile(ctx context.Context) error {
	has, err := t.container.HasFunc(ctx, "sync_shell_profile")
	if err != nil {
		return fmt.Errorf("check sync_shell_profile hook: %w", err)
	}
	if !has {
		return nil
	}

	var out syncShellProfileOutput
	if err := t.container.CallFunc(ctx, "sync_shell_profile", syncShellProfileInput{
		Context: pluginContext{ToolID: t.id},
	}, &out); err != nil {
		return fmt.Errorf("call sync_shell_profile: %w", err)
	}
	return applyShellProfileSync(t.id, userHomeDir(), out)
}

// managerExePath returns the path shims should re-invoke, falling back to
// the bare command name if the running binary's own path can't be
// determined (e.g. under `go test`).
func managerExePath() string {
	exe, err := os.Executable()
	if err != nil {
		return "grove"
	}
	return exe
}

func (t *Tool) locateInput(resolvedVersion string) locateDirsInput {
	return locateDirsInput{ToolID: t.id, Version: resolvedVersion}
}

type locateDirsInput struct {
	ToolID  string `json:"tool_id"`
	Version string `json:"version"`
}

type locateExesDirsOutput struct {
	Dirs []string `json:"dirs"`
}

type locateGlobalsDirsOutput struct {
	Dirs   []string `json:"dirs"`
	Dir    string   `json:"dir,omitempty"`
	Prefix string   `json:"prefix,omitempty"`
}

func (t *Tool) ExesDirs(ctx context.Context, resolvedVersion string) ([]string, error) {
	has, err := t.container.HasFunc(ctx, "locate_exes_dirs")
	if err != nil {
		return nil, err
	}
	if !has {
		return []string{filepath.Join(t.session.Store.InstallDir(t.id, resolvedVersion), "bin")}, nil
	}
	var out locateExesDirsOutput
	if err := t.container.CallFunc(ctx, "locate_exes_dirs", t.locateInput(resolvedVersion), &out); err != nil {
		return nil, err
	}
	return out.Dirs, nil
}

func (t *Tool) GlobalsDirs(ctx context.Context, resolvedVersion string) ([]string, error) {
	has, err := t.container.HasFunc(ctx, "locate_globals_dirs")
	if err != nil || !has {
		return nil, err
	}
	var out locateGlobalsDirsOutput
	if err := t.container.CallFunc(ctx, "locate_globals_dirs", t.locateInput(resolvedVersion), &out); err != nil {
		return nil, err
	}
	return out.Dirs, nil
}

func (t *Tool) GlobalsDir(ctx context.Context, resolvedVersion string) (string, bool, error) {
	dirs, err := t.GlobalsDirs(ctx, resolvedVersion)
	if err != nil || len(dirs) == 0 {
		return "", false, err
	}
	return dirs[0], true, nil
}

func (t *Tool) GlobalsPrefix(ctx context.Context, resolvedVersion string) (string, bool, error) {
	has, err := t.container.HasFunc(ctx, "locate_globals_dirs")
	if err != nil || !has {
		return "", false, err
	}
	var out locateGlobalsDirsOutput
	if err := t.container.CallFunc(ctx, "locate_globals_dirs", t.locateInput(resolvedVersion), &out); err != nil {
		return "", false, err
	}
	return out.Prefix, out.Prefix != "", nil
}

func (t *Tool) TouchLastUsed(resolvedVersion string) error {
	return execflow.TouchLastUsedNow(t.session.Store, t.id, resolvedVersion)
}

// ExeNames returns the exe names this tool resolves to at resolvedVersion,
// for uninstall's bin-alias cleanup (shim.RemoveVersionAliases).
func (t *Tool) ExeNames(ctx context.Context, resolvedVersion string) ([]string, error) {
	return shim.ExeNames(ctx, t.container, t.id, resolvedVersion)
}

// Uninstall removes resolvedVersion's install directory via the plugin's
// uninstall hook (if any) and returns whether anything was removed.
func (t *Tool) Uninstall(ctx context.Context, resolvedVersion string) (bool, error) {
	installDir := t.session.Store.InstallDir(t.id, resolvedVersion)
	return install.Uninstall(ctx, t.container, installDir, t.id)
}
