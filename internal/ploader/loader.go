// Package ploader implements the plugin loader (component C3): given a
// tool id and its PluginLocator, resolve and return the absolute path to a
// cached plugin WASM artifact, handling File/Url/GitHub/Registry locator
// kinds, TTL-based caching, and offline fallback.
//
// Grounded on the teacher's plugins_pull.go command (OCI pull via
// oras-go/v2, the one dependency of reglet-dev-reglet's go.mod this
// exercise found no exercised call site for) and its retryablehttp-based
// download flow used elsewhere in the corpus for artifact fetches.
package ploader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grove-tools/grove/internal/groveconfig"
	"github.com/hashicorp/go-retryablehttp"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/oci"
	"oras.land/oras-go/v2/registry/remote"
)

// urlTTL is the cache lifetime for Url and GitHub-resolved locators.
const urlTTL = 30 * 24 * time.Hour

// Loader resolves plugin locators to cached, absolute filesystem paths.
type Loader struct {
	pluginsDir string
	client     *retryablehttp.Client
	ghClient   *retryablehttp.Client
}

// New creates a loader that caches artifacts under pluginsDir
// (<proto_home>/plugins per spec.md §6).
func New(pluginsDir string) *Loader {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	return &Loader{pluginsDir: pluginsDir, client: client, ghClient: client}
}

// Load resolves locator for id to an absolute artifact path. offline
// forces cache-only behavior when a cached artifact already exists,
// regardless of TTL, per spec.md §4.3.
func (l *Loader) Load(ctx context.Context, id string, locator groveconfig.PluginLocator, offline bool) (string, error) {
	switch locator.Kind {
	case groveconfig.LocatorFile:
		return locator.Path, nil
	case groveconfig.LocatorURL:
		return l.loadURL(ctx, id, locator.URL, offline)
	case groveconfig.LocatorGitHub:
		return l.loadGitHub(ctx, id, locator, offline)
	case groveconfig.LocatorRegistry:
		return l.loadRegistry(ctx, id, locator, offline)
	default:
		return "", fmt.Errorf("ploader: unknown locator kind for %s", id)
	}
}

func (l *Loader) loadURL(ctx context.Context, id, url string, offline bool) (string, error) {
	isLatestChannel := !containsVersionSegment(url)
	path := l.cachePath(id, url, isLatestChannel)

	if info, err := os.Stat(path); err == nil {
		if offline {
			return path, nil
		}
		if !isLatestChannel {
			return path, nil // versioned URLs are effectively immutable
		}
		if time.Since(info.ModTime()) < urlTTL {
			return path, nil
		}
	} else if offline {
		return "", fmt.Errorf("ploader: %s not cached and offline mode is active", id)
	}

	if err := l.download(ctx, url, path); err != nil {
		return "", fmt.Errorf("ploader: downloading %s from %s: %w", id, url, err)
	}
	return path, nil
}

func (l *Loader) loadGitHub(ctx context.Context, id string, locator groveconfig.PluginLocator, offline bool) (string, error) {
	tag := locator.Tag
	if tag == "" {
		tag = "latest"
	}

	assetURL, err := l.resolveGitHubAsset(ctx, locator.Repo, tag)
	if err != nil {
		cachePath := l.cachePath(id, locator.Repo+"@"+tag, tag == "latest")
		if offline {
			if _, statErr := os.Stat(cachePath); statErr == nil {
				return cachePath, nil
			}
		}
		return "", fmt.Errorf("ploader: resolving GitHub release asset for %s@%s: %w", locator.Repo, tag, err)
	}

	return l.loadURL(ctx, id, assetURL, offline)
}

// githubRelease is the subset of the GitHub releases API response needed
// to pick an asset.
type githubRelease struct {
	Assets []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

func (l *Loader) resolveGitHubAsset(ctx context.Context, repo, tag string) (string, error) {
	var apiURL string
	if tag == "latest" {
		apiURL = fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", repo)
	} else {
		apiURL = fmt.Sprintf("https://api.github.com/repos/%s/releases/tags/%s", repo, tag)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := l.ghClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GitHub API returned %d for %s", resp.StatusCode, apiURL)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", err
	}
	if len(release.Assets) == 0 {
		return "", fmt.Errorf("release %s@%s has no assets", repo, tag)
	}

	for _, asset := range release.Assets {
		if strings.HasSuffix(asset.Name, ".wasm") {
			return asset.BrowserDownloadURL, nil
		}
	}
	return release.Assets[0].BrowserDownloadURL, nil
}

func (l *Loader) loadRegistry(ctx context.Context, id string, locator groveconfig.PluginLocator, offline bool) (string, error) {
	ref := locator.Registry + "/" + locator.Ref
	path := l.cachePath(id, ref, false)

	if _, err := os.Stat(path); err == nil && offline {
		return path, nil
	}

	repo, err := remote.NewRepository(locator.Registry)
	if err != nil {
		return "", fmt.Errorf("ploader: opening registry %s: %w", locator.Registry, err)
	}

	store, err := oci.New(filepath.Join(l.pluginsDir, ".oci-"+sanitizeID(id)))
	if err != nil {
		return "", fmt.Errorf("ploader: preparing OCI store for %s: %w", id, err)
	}

	desc, err := oras.Copy(ctx, repo, locator.Ref, store, locator.Ref, oras.DefaultCopyOptions)
	if err != nil {
		return "", fmt.Errorf("ploader: pulling %s from %s: %w", locator.Ref, locator.Registry, err)
	}

	data, err := firstLayerBlob(ctx, store, desc)
	if err != nil {
		return "", fmt.Errorf("ploader: reading pulled artifact for %s: %w", id, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func firstLayerBlob(ctx context.Context, store *oci.Store, desc v1.Descriptor) ([]byte, error) {
	if desc.MediaType != v1.MediaTypeImageManifest {
		rc, err := store.Fetch(ctx, desc)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	}

	rc, err := store.Fetch(ctx, desc)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var manifest v1.Manifest
	if err := json.NewDecoder(rc).Decode(&manifest); err != nil {
		return nil, err
	}
	if len(manifest.Layers) == 0 {
		return nil, fmt.Errorf("manifest has no layers")
	}

	layerRC, err := store.Fetch(ctx, manifest.Layers[0])
	if err != nil {
		return nil, err
	}
	defer func() { _ = layerRC.Close() }()
	return io.ReadAll(layerRC)
}

func (l *Loader) download(ctx context.Context, url, path string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// cachePath computes <plugins_dir>/<sanitized-id>{-latest-|-}{hash}{ext},
// per spec.md §4.3.
func (l *Loader) cachePath(id, cacheKeySource string, latestChannel bool) string {
	sum := sha256.Sum256([]byte(cacheKeySource))
	hash := hex.EncodeToString(sum[:])[:16]
	marker := "-"
	if latestChannel {
		marker = "-latest-"
	}
	ext := filepath.Ext(cacheKeySource)
	if ext == "" || len(ext) > 8 {
		ext = ".wasm"
	}
	return filepath.Join(l.pluginsDir, sanitizeID(id)+marker+hash+ext)
}

// sanitizeID strips characters unsafe for a filesystem path component.
func sanitizeID(id string) string {
	r := strings.NewReplacer("/", "_", "@", "_", ".", "_", " ", "_")
	return r.Replace(id)
}

// containsVersionSegment is a best-effort check for whether a URL encodes
// a specific version (and is therefore immutable) vs. a latest-channel
// path like ".../download/latest/tool.wasm".
func containsVersionSegment(url string) bool {
	lower := strings.ToLower(url)
	if strings.Contains(lower, "/latest/") || strings.HasSuffix(lower, "/latest") {
		return false
	}
	for _, seg := range strings.Split(url, "/") {
		if len(seg) > 1 && (seg[0] == 'v' || seg[0] == 'V') && isDigit(seg[1]) {
			return true
		}
		if len(seg) > 0 && isDigit(seg[0]) && strings.Contains(seg, ".") {
			return true
		}
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
