// Package shim implements the shim & bin layout (component C12): per
// spec.md §4.12, every executable a plugin's `locate_executables` reports
// gets a dynamic launcher under `<proto_home>/shims` (always re-resolves
// the active version at run time) and, unless disabled, a version-pinned
// symlink/copy plus `-<major>`/`-<major>.<minor>` aliases under
// `<proto_home>/bin`.
//
// Grounded on _examples/original_source/crates/core/src/flow/locate.rs's
// resolve_bin_locations/resolve_shim_locations (the exes-map-with-
// primary/secondary-fallback resolution this package's resolveExes
// reproduces) and tool.rs's create_shims (the unless-disabled / alias
// shape); the actual launcher bodies are this module's own text/template-
// free string formatting, since proto_shim's compiled-binary shims have no
// Go equivalent in the dependency closure — see DESIGN.md.
package shim

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/grove-tools/grove/internal/groveerrors"
	"github.com/grove-tools/grove/internal/store"
	"github.com/grove-tools/grove/internal/version"
)

// PluginCaller is the subset of internal/plugin.Container's surface this
// package calls into.
type PluginCaller interface {
	CacheFunc(ctx context.Context, name string, input, output any) error
}

// ExecutableConfig mirrors the plugin wire contract's locate_executables
// per-exe configuration.
type ExecutableConfig struct {
	ExePath        string            `json:"exe_path,omitempty"`
	ExeLinkPath    string            `json:"exe_link_path,omitempty"`
	NoBin          bool              `json:"no_bin,omitempty"`
	NoShim         bool              `json:"no_shim,omitempty"`
	Primary        bool              `json:"primary,omitempty"`
	ParentExeName  string            `json:"parent_exe_name,omitempty"`
	ShimBeforeArgs []string          `json:"shim_before_args,omitempty"`
	ShimAfterArgs  []string          `json:"shim_after_args,omitempty"`
	ShimEnvVars    map[string]string `json:"shim_env_vars,omitempty"`
}

type locateExecutablesInput struct {
	ToolID  string `json:"tool_id"`
	Version string `json:"version"`
}

// locateExecutablesOutput mirrors LocateExecutablesOutput, including the
// deprecated primary/secondary fields a plugin may still return instead of
// the exes map.
type locateExecutablesOutput struct {
	Exes      map[string]ExecutableConfig `json:"exes,omitempty"`
	ExesDir   string                      `json:"exes_dir,omitempty"`
	Primary   *ExecutableConfig           `json:"primary,omitempty"`
	Secondary map[string]ExecutableConfig `json:"secondary,omitempty"`
}

// resolveExes implements locate.rs's exes-map-with-fallback resolution:
// prefer the exes map; if it is empty, synthesize entries from the
// deprecated primary (named after toolID) and secondary fields.
func resolveExes(out locateExecutablesOutput, toolID string) map[string]ExecutableConfig {
	if len(out.Exes) > 0 {
		return out.Exes
	}
	exes := map[string]ExecutableConfig{}
	if out.Primary != nil {
		cfg := *out.Primary
		cfg.Primary = true
		exes[toolID] = cfg
	}
	for name, cfg := range out.Secondary {
		exes[name] = cfg
	}
	return exes
}

// Options toggles two install-wide disables for shims and bins,
// independent of a plugin's own per-exe no_bin/no_shim flags. No CLI flag
// or config setting sets them; every caller passes the zero value.
type Options struct {
	NoShim bool
	NoBin  bool
}

// Entry describes one created (or would-be) shim/bin pair for progress
// reporting and registry bookkeeping.
type Entry struct {
	Name       string
	ShimPath   string
	BinPath    string
	AliasPaths []string
}

// Result is Create's summary.
type Result struct {
	ExeNames []string // every resolved exe name, owned by this tool, for uninstall bookkeeping
	Created  []Entry
}

// Create resolves toolID@version's executables and writes shims/bins for
// them under st, updating the shared registry.json. managerExe is the
// absolute path the shim re-invokes (normally os.Executable()'s result);
// callers pass it explicitly so tests don't depend on the real binary.
func Create(ctx context.Context, plugin PluginCaller, st *store.Store, managerExe, toolID, resolvedVersion, installDir string, opts Options) (*Result, error) {
	var out locateExecutablesOutput
	if err := plugin.CacheFunc(ctx, "locate_executables", locateExecutablesInput{ToolID: toolID, Version: resolvedVersion}, &out); err != nil {
		return nil, groveerrors.Wrap(groveerrors.KindPluginCallFailed, toolID, err)
	}
	exes := resolveExes(out, toolID)

	names := make([]string, 0, len(exes))
	for name := range exes {
		names = append(names, name)
	}
	sort.Strings(names)

	major, minor, hasVersion := versionParts(resolvedVersion)

	reg, err := loadRegistry(st.RegistryJSONPath())
	if err != nil {
		return nil, groveerrors.Wrap(groveerrors.KindInstallFailed, toolID, err)
	}

	result := &Result{ExeNames: names}
	registryChanged := false

	for _, name := range names {
		cfg := exes[name]
		entryIdx := -1
		entryFor := func() *Entry {
			if entryIdx == -1 {
				result.Created = append(result.Created, Entry{Name: name})
				entryIdx = len(result.Created) - 1
			}
			return &result.Created[entryIdx]
		}

		if !cfg.NoShim && !opts.NoShim {
			shimPath := st.ShimPath(shimFileName(name))
			if err := writeShim(shimPath, managerExe, toolID); err != nil {
				return nil, groveerrors.Wrap(groveerrors.KindInstallFailed, toolID, err)
			}
			if reg[name] != toolID {
				reg[name] = toolID
				registryChanged = true
			}
			entryFor().ShimPath = shimPath
		}

		if cfg.NoBin || opts.NoBin {
			continue
		}
		rel := cfg.ExeLinkPath
		if rel == "" {
			rel = cfg.ExePath
		}
		if rel == "" {
			continue
		}
		target := filepath.Join(installDir, filepath.FromSlash(rel))
		binPath := st.BinPath(binFileName(name))
		if err := linkBin(binPath, target); err != nil {
			return nil, groveerrors.Wrap(groveerrors.KindInstallFailed, toolID, err)
		}
		entry := entryFor()
		entry.BinPath = binPath

		for _, alias := range versionAliases(name, major, minor, hasVersion) {
			aliasPath := st.BinPath(alias)
			if err := linkBin(aliasPath, target); err != nil {
				return nil, groveerrors.Wrap(groveerrors.KindInstallFailed, toolID, err)
			}
			entry.AliasPaths = append(entry.AliasPaths, aliasPath)
		}
	}

	if registryChanged {
		if err := saveRegistry(st.RegistryJSONPath(), reg); err != nil {
			return nil, groveerrors.Wrap(groveerrors.KindInstallFailed, toolID, err)
		}
	}

	return result, nil
}

// RemoveStale deletes the shim and bin files of every name owned by toolID
// in the registry that is not in keepNames, per spec.md §4.12's uninstall
// rule: "shims for names still served by another installed version are
// preserved." `-<major>`/`-<major>.<minor>` alias files are left in place;
// RemoveVersionAliases removes those. The caller computes
// keepNames by unioning resolveExes across every install this tool still
// has on disk.
func RemoveStale(st *store.Store, toolID string, keepNames map[string]bool) ([]string, error) {
	reg, err := loadRegistry(st.RegistryJSONPath())
	if err != nil {
		return nil, err
	}

	var removed []string
	changed := false
	for name, owner := range reg {
		if owner != toolID || keepNames[name] {
			continue
		}
		if err := removeShimAndBin(st, name); err != nil {
			return removed, err
		}
		delete(reg, name)
		changed = true
		removed = append(removed, name)
	}

	if changed {
		if err := saveRegistry(st.RegistryJSONPath(), reg); err != nil {
			return removed, err
		}
	}
	sort.Strings(removed)
	return removed, nil
}

func removeShimAndBin(st *store.Store, name string) error {
	paths := []string{
		st.ShimPath(shimFileName(name)),
		st.BinPath(binFileName(name)),
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// RemoveVersionAliases removes name's `-<major>`/`-<major>.<minor>` bin
// aliases for one specific uninstalled version. The registry only tracks
// the dynamic shim->tool mapping (per spec.md §4.12), not per-version bin
// aliases, so the uninstall caller — which already knows exactly which
// version it removed — calls this directly rather than routing alias
// cleanup through RemoveStale.
func RemoveVersionAliases(st *store.Store, name, removedVersion string) error {
	major, minor, ok := versionParts(removedVersion)
	if !ok {
		return nil
	}
	for _, alias := range versionAliases(name, major, minor, true) {
		p := st.BinPath(alias)
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// ExeNames returns the exe names toolID@resolvedVersion resolves to,
// without writing any shim/bin files — for uninstall callers that need to
// know which bin aliases to remove for a specific version.
func ExeNames(ctx context.Context, plugin PluginCaller, toolID, resolvedVersion string) ([]string, error) {
	var out locateExecutablesOutput
	if err := plugin.CacheFunc(ctx, "locate_executables", locateExecutablesInput{ToolID: toolID, Version: resolvedVersion}, &out); err != nil {
		return nil, groveerrors.Wrap(groveerrors.KindPluginCallFailed, toolID, err)
	}
	exes := resolveExes(out, toolID)
	names := make([]string, 0, len(exes))
	for name := range exes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// versionParts extracts major/minor from a resolved version string for
// alias naming; aliases and the canary channel have no numeric parts.
func versionParts(resolvedVersion string) (major, minor uint64, ok bool) {
	spec, err := version.ParseResolved(resolvedVersion)
	if err != nil || spec.Kind == version.SpecAlias || spec.Kind == version.SpecCanary {
		return 0, 0, false
	}
	return spec.Version.Major(), spec.Version.Minor(), true
}
