// Package install implements the install pipeline (component C10): the
// per-tool state machine from spec.md §4.10 that takes a resolved version
// from download through checksum verification, archive unpack, and
// lockfile/manifest bookkeeping.
//
// Grounded on _examples/original_source/crates/core/src/flow/install.rs's
// install/install_from_prebuilt/verify_checksum/uninstall methods for state
// ordering and contracts; archive unpacking is adapted from
// _examples/sumicare-universal-asdf-plugin/plugins/asdf/archive.go (see
// archive.go in this package).
package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/grove-tools/grove/internal/groveerrors"
	"github.com/hashicorp/go-retryablehttp"
)

// PluginCaller is the subset of internal/plugin.Container's surface the
// install pipeline calls into.
type PluginCaller interface {
	HasFunc(ctx context.Context, name string) (bool, error)
	CallFunc(ctx context.Context, name string, input, output any) error
	CacheFunc(ctx context.Context, name string, input, output any) error
	CallFuncWithoutOutput(ctx context.Context, name string, input any) error
}

// OnChunk is invoked as a download streams, per spec.md §4.10's
// "stream bytes, call on_chunk" contract.
type OnChunk func(downloaded, total int64)

// Phase tags a point in the state machine for progress reporting.
type Phase int

const (
	PhaseNative Phase = iota
	PhaseDownload
	PhaseVerify
	PhaseUnpack
)

type Options struct {
	ToolID       string
	Version      string // the fully-resolved version string, for plugin calls and paths
	InstallDir   string
	TempDir      string
	Force        bool
	Offline      bool
	OnChunk      OnChunk
	OnPhase      func(Phase)
}

// Result reports what Install did.
type Result struct {
	Installed     bool // false only when already installed and !force
	InstallDir    string
	ChecksumValue string // "sha256:<hex>" of the verified download, for the lockfile record; empty when no checksum was published
}

type downloadPrebuiltInput struct {
	ToolID  string `json:"tool_id"`
	Version string `json:"version"`
}
type downloadPrebuiltOutput struct {
	DownloadURL       string `json:"download_url"`
	DownloadName      string `json:"download_name,omitempty"`
	ChecksumURL       string `json:"checksum_url,omitempty"`
	ChecksumName      string `json:"checksum_name,omitempty"`
	ChecksumPublicKey string `json:"checksum_public_key,omitempty"`
	ArchivePrefix     string `json:"archive_prefix,omitempty"`
}

type nativeInstallInput struct {
	ToolID     string `json:"tool_id"`
	Version    string `json:"version"`
	InstallDir string `json:"install_dir"`
}
type nativeInstallOutput struct {
	Installed   bool   `json:"installed"`
	SkipInstall bool   `json:"skip_install"`
	Error       string `json:"error,omitempty"`
}

type verifyChecksumInput struct {
	ChecksumFile string `json:"checksum_file"`
	DownloadFile string `json:"download_file"`
}
type verifyChecksumOutput struct {
	Verified bool `json:"verified"`
}

type unpackArchiveInput struct {
	InputFile string `json:"input_file"`
	OutputDir string `json:"output_dir"`
}

// Install runs the state machine described in spec.md §4.10 for one tool
// version. The caller is responsible for the preceding ResolveSpec and
// LockfileEnforce steps (components C8/C11) and the following
// LocateLink/Pin/hook/ManifestAdd steps (components C11/C12/C14), which
// depend on state Install doesn't own (shims, config layers). Install
// covers CheckInstalled through Unpack: the part of the pipeline that is
// purely "get bytes onto disk and verify them."
func Install(ctx context.Context, plugin PluginCaller, httpClient *retryablehttp.Client, opts Options) (*Result, error) {
	if !opts.Force {
		if info, err := os.Stat(opts.InstallDir); err == nil && info.IsDir() {
			return &Result{Installed: false, InstallDir: opts.InstallDir}, nil
		}
	} else {
		_ = os.RemoveAll(opts.InstallDir)
	}

	if opts.Offline {
		return nil, groveerrors.New(groveerrors.KindInternetConnectionRequired, "install "+opts.ToolID+" while offline").WithTool(opts.ToolID)
	}

	lock, err := AcquireDirLock(ctx, opts.InstallDir+".lock")
	if err != nil {
		return nil, groveerrors.Wrap(groveerrors.KindInstallFailed, opts.ToolID, err)
	}
	defer lock.Release()

	if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
		return nil, groveerrors.Wrap(groveerrors.KindInstallFailed, opts.ToolID, err)
	}

	hasNative, err := plugin.HasFunc(ctx, "native_install")
	if err != nil {
		return nil, groveerrors.Wrap(groveerrors.KindPluginCallFailed, opts.ToolID, err)
	}
	if hasNative {
		if opts.OnPhase != nil {
			opts.OnPhase(PhaseNative)
		}
		var out nativeInstallOutput
		if err := plugin.CallFunc(ctx, "native_install", nativeInstallInput{
			ToolID: opts.ToolID, Version: opts.Version, InstallDir: opts.InstallDir,
		}, &out); err != nil {
			return nil, groveerrors.Wrap(groveerrors.KindPluginCallFailed, opts.ToolID, err)
		}
		if out.Installed {
			return &Result{Installed: true, InstallDir: opts.InstallDir}, nil
		}
		if !out.SkipInstall {
			return nil, groveerrors.Newf(groveerrors.KindInstallFailed, "native install failed for %s: %s", opts.ToolID, out.Error).WithTool(opts.ToolID)
		}
	}

	checksum, err := installFromPrebuilt(ctx, plugin, httpClient, opts)
	if err != nil {
		_ = os.RemoveAll(opts.InstallDir)
		return nil, err
	}

	return &Result{Installed: true, InstallDir: opts.InstallDir, ChecksumValue: checksum}, nil
}

func installFromPrebuilt(ctx context.Context, plugin PluginCaller, httpClient *retryablehttp.Client, opts Options) (checksum string, err error) {
	var out downloadPrebuiltOutput
	if err := plugin.CacheFunc(ctx, "download_prebuilt", downloadPrebuiltInput{ToolID: opts.ToolID, Version: opts.Version}, &out); err != nil {
		return "", groveerrors.Wrap(groveerrors.KindPluginCallFailed, opts.ToolID, err)
	}

	downloadName := out.DownloadName
	if downloadName == "" {
		downloadName = filepath.Base(out.DownloadURL)
	}
	downloadFile := filepath.Join(opts.TempDir, downloadName)

	if opts.OnPhase != nil {
		opts.OnPhase(PhaseDownload)
	}
	if err := downloadToFile(ctx, httpClient, out.DownloadURL, downloadFile, opts.OnChunk); err != nil {
		return "", groveerrors.Wrap(groveerrors.KindInstallFailed, opts.ToolID, err)
	}

	if out.ChecksumURL != "" {
		checksumName := out.ChecksumName
		if checksumName == "" {
			checksumName = filepath.Base(out.ChecksumURL)
		}
		checksumFile := filepath.Join(opts.TempDir, checksumName)

		if opts.OnPhase != nil {
			opts.OnPhase(PhaseVerify)
		}
		if err := downloadToFile(ctx, httpClient, out.ChecksumURL, checksumFile, nil); err != nil {
			return "", groveerrors.Wrap(groveerrors.KindInstallFailed, opts.ToolID, err)
		}

		verified, err := verifyChecksumDelegated(ctx, plugin, checksumFile, downloadFile, out.ChecksumPublicKey, opts.ToolID)
		if err != nil {
			return "", err
		}
		if !verified {
			return "", groveerrors.Newf(groveerrors.KindChecksumMismatch, "checksum verification failed for %s", opts.ToolID).WithTool(opts.ToolID)
		}
		digest, err := digestFile(downloadFile, "sha256")
		if err != nil {
			return "", groveerrors.Wrap(groveerrors.KindInstallFailed, opts.ToolID, err)
		}
		checksum = "sha256:" + digest
	}

	if opts.OnPhase != nil {
		opts.OnPhase(PhaseUnpack)
	}
	if err := unpackInstall(ctx, plugin, downloadFile, opts.InstallDir, out.ArchivePrefix, opts.ToolID); err != nil {
		return "", err
	}

	return checksum, nil
}

func verifyChecksumDelegated(ctx context.Context, plugin PluginCaller, checksumFile, downloadFile, publicKey, toolID string) (bool, error) {
	hasHook, err := plugin.HasFunc(ctx, "verify_checksum")
	if err != nil {
		return false, groveerrors.Wrap(groveerrors.KindPluginCallFailed, toolID, err)
	}
	if hasHook {
		var out verifyChecksumOutput
		if err := plugin.CallFunc(ctx, "verify_checksum", verifyChecksumInput{ChecksumFile: checksumFile, DownloadFile: downloadFile}, &out); err != nil {
			return false, groveerrors.Wrap(groveerrors.KindPluginCallFailed, toolID, err)
		}
		return out.Verified, nil
	}

	ok, err := verifyChecksum(downloadFile, checksumFile, publicKey)
	if err != nil {
		return false, groveerrors.Wrap(groveerrors.KindChecksumMismatch, toolID, err)
	}
	return ok, nil
}

func unpackInstall(ctx context.Context, plugin PluginCaller, downloadFile, installDir, archivePrefix, toolID string) error {
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return groveerrors.Wrap(groveerrors.KindInstallFailed, toolID, err)
	}

	hasUnpackHook, err := plugin.HasFunc(ctx, "unpack_archive")
	if err != nil {
		return groveerrors.Wrap(groveerrors.KindPluginCallFailed, toolID, err)
	}
	if hasUnpackHook {
		return plugin.CallFuncWithoutOutput(ctx, "unpack_archive", unpackArchiveInput{InputFile: downloadFile, OutputDir: installDir})
	}

	if isArchiveFile(downloadFile) {
		ext, err := unpack(downloadFile, installDir, archivePrefix)
		if err != nil {
			return groveerrors.Wrap(groveerrors.KindInstallFailed, toolID, err)
		}
		if ext == "gz" {
			name := filepath.Base(downloadFile)
			unpackedPath := filepath.Join(installDir, name[:len(name)-len(".gz")])
			if info, statErr := os.Stat(unpackedPath); statErr == nil && !info.IsDir() {
				_ = os.Chmod(unpackedPath, info.Mode()|0o111)
			}
		}
		return nil
	}

	installPath := filepath.Join(installDir, toolID)
	if err := os.Rename(downloadFile, installPath); err != nil {
		return groveerrors.Wrap(groveerrors.KindInstallFailed, toolID, err)
	}
	if info, statErr := os.Stat(installPath); statErr == nil {
		_ = os.Chmod(installPath, info.Mode()|0o111)
	}
	return nil
}

// Uninstall removes a tool's install directory, deferring to the plugin's
// native_uninstall if it declares one.
func Uninstall(ctx context.Context, plugin PluginCaller, installDir, toolID string) (bool, error) {
	if _, err := os.Stat(installDir); os.IsNotExist(err) {
		return false, nil
	}

	hasNative, err := plugin.HasFunc(ctx, "native_uninstall")
	if err != nil {
		return false, groveerrors.Wrap(groveerrors.KindPluginCallFailed, toolID, err)
	}
	if hasNative {
		var out nativeInstallOutput
		if err := plugin.CallFunc(ctx, "native_uninstall", nativeInstallInput{ToolID: toolID}, &out); err != nil {
			return false, groveerrors.Wrap(groveerrors.KindPluginCallFailed, toolID, err)
		}
		if !out.Installed && !out.SkipInstall {
			return false, groveerrors.Newf(groveerrors.KindInstallFailed, "native uninstall failed for %s: %s", toolID, out.Error).WithTool(toolID)
		}
	}

	if err := os.RemoveAll(installDir); err != nil {
		return false, groveerrors.Wrap(groveerrors.KindInstallFailed, toolID, err)
	}
	return true, nil
}

func downloadToFile(ctx context.Context, client *retryablehttp.Client, url, path string, onChunk OnChunk) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("install: unexpected status %d downloading %s", resp.StatusCode, url)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	var written, total int64
	total = resp.ContentLength
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				f.Close()
				_ = os.Remove(tmp)
				return writeErr
			}
			written += int64(n)
			if onChunk != nil {
				onChunk(written, total)
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				f.Close()
				_ = os.Remove(tmp)
				return readErr
			}
			break
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
