package e2e

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/grove-tools/grove/internal/groveconfig"
)

// Scenario 1 (spec.md §8): a two-file hierarchy (project root + nested
// subdirectory) merges with the deeper file's values winning, while keys
// the deeper file never mentions still fall through from the shallower
// one — merge monotonicity, not override-everything.
var _ = Describe("config hierarchy merge", func() {
	var root, nested string

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "grove-e2e-root-")
		Expect(err).NotTo(HaveOccurred())
		nested = filepath.Join(root, "services", "api")
		Expect(os.MkdirAll(nested, 0o755)).To(Succeed())

		writeToml(filepath.Join(root, ".prototools"), `
node = "18.0.0"
go = "1.21.0"

[settings]
auto_install = true
`)
		writeToml(filepath.Join(nested, ".prototools"), `
node = "20.1.0"

[env]
API_PORT = "8080"
`)
	})

	AfterEach(func() {
		Expect(os.RemoveAll(root)).To(Succeed())
	})

	It("lets the deepest layer win for keys it sets, without erasing shallower-only keys", func() {
		layers, err := groveconfig.LoadLayers(nested, root, filepath.Join(root, "home"), "")
		Expect(err).NotTo(HaveOccurred())

		merged, err := groveconfig.Merge(layers, groveconfig.ViewAll)
		Expect(err).NotTo(HaveOccurred())

		Expect(merged.Versions).To(HaveKey("node"))
		Expect(merged.Versions["node"].Req).To(Equal("20.1.0"))

		Expect(merged.Versions).To(HaveKey("go"))
		Expect(merged.Versions["go"].Req).To(Equal("1.21.0"))

		Expect(merged.Settings.AutoInstall).To(BeTrue())

		entry, ok := merged.Env.Get("API_PORT")
		Expect(ok).To(BeTrue())
		Expect(entry.Value).To(Equal("8080"))
	})

	It("is monotone: merging from the project root alone drops the nested-only keys", func() {
		layers, err := groveconfig.LoadLayers(root, root, filepath.Join(root, "home"), "")
		Expect(err).NotTo(HaveOccurred())

		merged, err := groveconfig.Merge(layers, groveconfig.ViewAll)
		Expect(err).NotTo(HaveOccurred())

		Expect(merged.Versions["node"].Req).To(Equal("18.0.0"))
		_, ok := merged.Env.Get("API_PORT")
		Expect(ok).To(BeFalse())
	})
})

func writeToml(path, content string) {
	ExpectWithOffset(1, os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
}
