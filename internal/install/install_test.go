package install

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlugin struct {
	funcs                  map[string]bool
	onCallFunc             func(name string, input, output any) error
	onCallFuncWithoutOutput func(name string, input any) error
}

func (f *fakePlugin) HasFunc(_ context.Context, name string) (bool, error) {
	return f.funcs[name], nil
}
func (f *fakePlugin) CallFunc(_ context.Context, name string, input, output any) error {
	return f.onCallFunc(name, input, output)
}
func (f *fakePlugin) CacheFunc(_ context.Context, name string, input, output any) error {
	return f.onCallFunc(name, input, output)
}
func (f *fakePlugin) CallFuncWithoutOutput(_ context.Context, name string, input any) error {
	if f.onCallFuncWithoutOutput == nil {
		return nil
	}
	return f.onCallFuncWithoutOutput(name, input)
}

func buildTestArchive(t *testing.T, path string) []byte {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gzw := gzip.NewWriter(f)
	tw := tar.NewWriter(gzw)
	content := []byte("#!/bin/sh\necho hi\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "tool-1.0.0/bin/tool", Mode: 0o755, Size: int64(len(content))}))
	_, err = tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestInstall_DownloadsVerifiesAndUnpacksPrebuiltArchive(t *testing.T) {
	srcDir := t.TempDir()
	archivePath := filepath.Join(srcDir, "tool-1.0.0.tar.gz")
	archiveBytes := buildTestArchive(t, archivePath)
	sum := sha256.Sum256(archiveBytes)
	checksumLine := hex.EncodeToString(sum[:]) + "  tool-1.0.0.tar.gz\n"

	mux := http.NewServeMux()
	mux.HandleFunc("/tool-1.0.0.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archiveBytes)
	})
	mux.HandleFunc("/tool-1.0.0.tar.gz.sha256", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, checksumLine)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	plugin := &fakePlugin{
		funcs: map[string]bool{},
		onCallFunc: func(name string, input, output any) error {
			switch name {
			case "download_prebuilt":
				out := output.(*downloadPrebuiltOutput)
				out.DownloadURL = server.URL + "/tool-1.0.0.tar.gz"
				out.ChecksumURL = server.URL + "/tool-1.0.0.tar.gz.sha256"
				out.ArchivePrefix = "tool-1.0.0"
				return nil
			}
			return fmt.Errorf("unexpected call: %s", name)
		},
	}

	dir := t.TempDir()
	installDir := filepath.Join(dir, "install")
	tempDir := filepath.Join(dir, "temp")

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 0

	result, err := Install(context.Background(), plugin, client, Options{
		ToolID:     "tool",
		Version:    "1.0.0",
		InstallDir: installDir,
		TempDir:    tempDir,
	})
	require.NoError(t, err)
	assert.True(t, result.Installed)

	data, err := os.ReadFile(filepath.Join(installDir, "bin", "tool"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "echo hi")
}

func TestInstall_ChecksumMismatchFailsAndCleansUp(t *testing.T) {
	srcDir := t.TempDir()
	archivePath := filepath.Join(srcDir, "tool-1.0.0.tar.gz")
	archiveBytes := buildTestArchive(t, archivePath)

	mux := http.NewServeMux()
	mux.HandleFunc("/tool-1.0.0.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archiveBytes)
	})
	mux.HandleFunc("/tool-1.0.0.tar.gz.sha256", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "deadbeef  tool-1.0.0.tar.gz\n")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	plugin := &fakePlugin{
		funcs: map[string]bool{},
		onCallFunc: func(name string, input, output any) error {
			out := output.(*downloadPrebuiltOutput)
			out.DownloadURL = server.URL + "/tool-1.0.0.tar.gz"
			out.ChecksumURL = server.URL + "/tool-1.0.0.tar.gz.sha256"
			return nil
		},
	}

	dir := t.TempDir()
	installDir := filepath.Join(dir, "install")
	tempDir := filepath.Join(dir, "temp")

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 0

	_, err := Install(context.Background(), plugin, client, Options{
		ToolID:     "tool",
		Version:    "1.0.0",
		InstallDir: installDir,
		TempDir:    tempDir,
	})
	require.Error(t, err)

	_, statErr := os.Stat(installDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestInstall_AlreadyInstalledSkipsWithoutForce(t *testing.T) {
	dir := t.TempDir()
	installDir := filepath.Join(dir, "install")
	require.NoError(t, os.MkdirAll(installDir, 0o755))

	plugin := &fakePlugin{funcs: map[string]bool{}, onCallFunc: func(string, any, any) error {
		t.Fatal("should not call plugin when already installed")
		return nil
	}}

	client := retryablehttp.NewClient()
	client.Logger = nil

	result, err := Install(context.Background(), plugin, client, Options{
		ToolID:     "tool",
		InstallDir: installDir,
		TempDir:    filepath.Join(dir, "temp"),
	})
	require.NoError(t, err)
	assert.False(t, result.Installed)
}

func TestInstall_NativeInstallTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	installDir := filepath.Join(dir, "install")
	tempDir := filepath.Join(dir, "temp")

	plugin := &fakePlugin{
		funcs: map[string]bool{"native_install": true},
		onCallFunc: func(name string, input, output any) error {
			if name != "native_install" {
				return fmt.Errorf("unexpected call: %s", name)
			}
			out := output.(*nativeInstallOutput)
			out.Installed = true
			return nil
		},
	}

	client := retryablehttp.NewClient()
	client.Logger = nil

	result, err := Install(context.Background(), plugin, client, Options{
		ToolID:     "tool",
		InstallDir: installDir,
		TempDir:    tempDir,
	})
	require.NoError(t, err)
	assert.True(t, result.Installed)
}

func TestUninstall_RemovesInstallDir(t *testing.T) {
	dir := t.TempDir()
	installDir := filepath.Join(dir, "install")
	require.NoError(t, os.MkdirAll(installDir, 0o755))

	plugin := &fakePlugin{funcs: map[string]bool{}}
	removed, err := Uninstall(context.Background(), plugin, installDir, "tool")
	require.NoError(t, err)
	assert.True(t, removed)

	_, statErr := os.Stat(installDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUninstall_MissingDirReturnsFalse(t *testing.T) {
	plugin := &fakePlugin{funcs: map[string]bool{}}
	removed, err := Uninstall(context.Background(), plugin, filepath.Join(t.TempDir(), "missing"), "tool")
	require.NoError(t, err)
	assert.False(t, removed)
}
