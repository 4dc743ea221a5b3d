package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/grove-tools/grove/internal/groveerrors"
	"github.com/grove-tools/grove/internal/install"
	"github.com/grove-tools/grove/internal/lockfile"
	"github.com/hashicorp/go-retryablehttp"
)

// fakeTool serves a fixed "download_prebuilt" answer pointing at an
// httptest server, and reports every optional hook (native_install,
// unpack_archive, verify_checksum) as absent — exactly the shape a plugin
// distributing one flat binary per platform declares, per spec.md §4.4's
// download_prebuilt/unpack_archive contract.
type fakeTool struct {
	downloadURL string
	checksumURL string
}

func (f *fakeTool) HasFunc(context.Context, string) (bool, error) { return false, nil }

func (f *fakeTool) CallFunc(context.Context, string, any, any) error {
	return nil
}

func (f *fakeTool) CacheFunc(_ context.Context, name string, _ any, output any) error {
	data, _ := json.Marshal(map[string]any{
		"download_url": f.downloadURL,
		"checksum_url": f.checksumURL,
	})
	return json.Unmarshal(data, output)
}

func (f *fakeTool) CallFuncWithoutOutput(context.Context, string, any) error { return nil }

// Scenarios 2-4 (spec.md §8): installing a tool with the lockfile disabled,
// installing twice (the second run is a no-op), recording and enforcing a
// lockfile entry's version/checksum, and a checksum mismatch that must
// leave no install directory behind.
var _ = Describe("install lifecycle", func() {
	var (
		srv      *httptest.Server
		workDir  string
		client   *retryablehttp.Client
		binBytes = []byte("#!/bin/sh\necho hi\n")
	)

	BeforeEach(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/mytool-bin", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(binBytes)
		})
		mux.HandleFunc("/mytool.sha256", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("0", 64) + "  mytool-bin\n"))
		})
		srv = httptest.NewServer(mux)

		var err error
		workDir, err = os.MkdirTemp("", "grove-e2e-install-")
		Expect(err).NotTo(HaveOccurred())

		client = retryablehttp.NewClient()
		client.Logger = nil
		client.RetryMax = 0
	})

	AfterEach(func() {
		srv.Close()
		Expect(os.RemoveAll(workDir)).To(Succeed())
	})

	It("installs without a lockfile and leaves the binary on disk", func() {
		installDir := filepath.Join(workDir, "tools", "mytool", "1.0.0")
		tool := &fakeTool{downloadURL: srv.URL + "/mytool-bin"}

		result, err := install.Install(context.Background(), tool, client, install.Options{
			ToolID:     "mytool",
			Version:    "1.0.0",
			InstallDir: installDir,
			TempDir:    filepath.Join(workDir, "temp"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Installed).To(BeTrue())

		installed, err := os.ReadFile(filepath.Join(installDir, "mytool"))
		Expect(err).NotTo(HaveOccurred())
		Expect(installed).To(Equal(binBytes))
	})

	It("is idempotent: re-running Install against an existing directory is a no-op", func() {
		installDir := filepath.Join(workDir, "tools", "mytool", "1.0.0")
		tool := &fakeTool{downloadURL: srv.URL + "/mytool-bin"}
		opts := install.Options{
			ToolID:     "mytool",
			Version:    "1.0.0",
			InstallDir: installDir,
			TempDir:    filepath.Join(workDir, "temp"),
		}

		first, err := install.Install(context.Background(), tool, client, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Installed).To(BeTrue())

		second, err := install.Install(context.Background(), tool, client, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Installed).To(BeFalse())
	})

	It("records a lockfile entry that bypasses resolution on a later enforcement check", func() {
		lockPath := filepath.Join(workDir, ".protolock")
		f, err := lockfile.Load(lockPath)
		Expect(err).NotTo(HaveOccurred())

		Expect(lockfile.ApplyInstall(f, "mytool", lockfile.Record{
			Spec:    "^1.0.0",
			Version: "1.0.0",
			Checksum: "mytool-bin:verified",
		}, false)).To(Succeed())
		Expect(lockfile.Save(lockPath, f)).To(Succeed())

		reloaded, err := lockfile.Load(lockPath)
		Expect(err).NotTo(HaveOccurred())

		resolved, checked, err := lockfile.Enforce(reloaded, "mytool", "^1.0.0", "", "mytool-bin:verified")
		Expect(err).NotTo(HaveOccurred())
		Expect(resolved).To(Equal("1.0.0"))
		Expect(checked).To(BeTrue())
	})

	It("fails enforcement on a checksum mismatch without touching the recorded version", func() {
		lockPath := filepath.Join(workDir, ".protolock")
		f, err := lockfile.Load(lockPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(lockfile.ApplyInstall(f, "mytool", lockfile.Record{
			Spec:     "^1.0.0",
			Version:  "1.0.0",
			Checksum: "mytool-bin:verified",
		}, false)).To(Succeed())

		_, _, err = lockfile.Enforce(f, "mytool", "^1.0.0", "", "some-other-checksum")
		Expect(err).To(HaveOccurred())
		var tagged *groveerrors.Error
		Expect(errors.As(err, &tagged)).To(BeTrue())
		Expect(tagged.Kind).To(Equal(groveerrors.KindChecksumMismatch))
	})

	It("removes the install directory when the downloaded archive fails checksum verification", func() {
		installDir := filepath.Join(workDir, "tools", "mytool", "2.0.0")
		tool := &fakeTool{
			downloadURL: srv.URL + "/mytool-bin",
			checksumURL: srv.URL + "/mytool.sha256",
		}

		_, err := install.Install(context.Background(), tool, client, install.Options{
			ToolID:     "mytool",
			Version:    "2.0.0",
			InstallDir: installDir,
			TempDir:    filepath.Join(workDir, "temp"),
		})
		Expect(err).To(HaveOccurred())
		var tagged *groveerrors.Error
		Expect(errors.As(err, &tagged)).To(BeTrue())
		Expect(tagged.Kind).To(Equal(groveerrors.KindChecksumMismatch))

		_, statErr := os.Stat(installDir)
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})
})
