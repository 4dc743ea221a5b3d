// Package resolve implements the version resolver (component C8): matching
// an UnresolvedVersionSpec against a plugin's version catalog and the
// effective alias tables, producing a fully-specified ResolvedSpec.
//
// Grounded on _examples/original_source/crates/core/src/resolver.rs
// (VersionManifest::find_version / get_version_from_alias — the original's
// descending-scan, alias-recursion algorithm this package ports) and the
// teacher's cache-to-disk pattern in plugins_pull.go, adapted here to the
// 24-hour remote-versions.json cache spec.md §4.4 describes for
// load_versions.
package resolve

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/grove-tools/grove/internal/groveerrors"
	wasmplugin "github.com/grove-tools/grove/internal/plugin"
)

// gitCatalogSource is implemented by *internal/plugin.Container; LoadCatalog
// type-asserts to it to discover a register_tool-declared git_url without
// widening PluginCaller's narrow surface for every other caller.
type gitCatalogSource interface {
	RegisterTool(ctx context.Context) (wasmplugin.RegisterToolOutput, error)
}

// catalogTTL is the cache lifetime for a plugin's load_versions result.
const catalogTTL = 24 * time.Hour

// Catalog is the decoded result of a plugin's load_versions call.
type Catalog struct {
	Versions []string          `json:"versions"`
	Latest   string            `json:"latest,omitempty"`
	Canary   string            `json:"canary,omitempty"`
	Aliases  map[string]string `json:"aliases,omitempty"`
}

// loadVersionsInput is the load_versions({initial}) request payload.
type loadVersionsInput struct {
	Initial string `json:"initial"`
}

// PluginCaller is the subset of *plugin.Container the resolver needs;
// satisfied structurally so tests can substitute a fake.
type PluginCaller interface {
	HasFunc(ctx context.Context, name string) (bool, error)
	CallFunc(ctx context.Context, name string, input, output any) error
	CacheFunc(ctx context.Context, name string, input, output any) error
}

// LoadCatalog returns the tool's version catalog, preferring a cache file
// under cacheDir (named remote-versions.json) younger than 24
// hours. When offline is true, a cache file of any age is used
// unconditionally; if none exists, InternetConnectionRequired is returned.
func LoadCatalog(ctx context.Context, plugin PluginCaller, toolID, cacheDir string, offline bool) (*Catalog, error) {
	cachePath := filepath.Join(cacheDir, "remote-versions.json")

	if info, err := os.Stat(cachePath); err == nil {
		if offline || time.Since(info.ModTime()) < catalogTTL {
			var cat Catalog
			if data, readErr := os.ReadFile(cachePath); readErr == nil {
				if json.Unmarshal(data, &cat) == nil {
					return &cat, nil
				}
			}
		}
	} else if offline {
		return nil, groveerrors.New(groveerrors.KindInternetConnectionRequired, "load version catalog for "+toolID+" while offline with no cache")
	}

	cat, err := loadVersionsOrGitTags(ctx, plugin, toolID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cacheDir, 0o755); err == nil {
		if data, err := json.Marshal(cat); err == nil {
			_ = os.WriteFile(cachePath, data, 0o644)
		}
	}

	return cat, nil
}

// loadVersionsOrGitTags calls the plugin's load_versions hook, falling back
// to internal/resolve.GitTagCatalog when register_tool declares a git_url
// instead (SPEC_FULL.md supplement #4).
func loadVersionsOrGitTags(ctx context.Context, plugin PluginCaller, toolID string) (*Catalog, error) {
	source, ok := plugin.(gitCatalogSource)
	if ok {
		info, err := source.RegisterTool(ctx)
		if err == nil && info.GitURL != "" {
			return GitTagCatalog(ctx, toolID, info.GitURL, info.GitTagPattern)
		}
	}

	var cat Catalog
	if err := plugin.CallFunc(ctx, "load_versions", loadVersionsInput{}, &cat); err != nil {
		return nil, groveerrors.Wrap(groveerrors.KindVersionResolveFailed, "load_versions for "+toolID, err)
	}
	return &cat, nil
}
