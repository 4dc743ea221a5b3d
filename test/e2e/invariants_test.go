package e2e

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/grove-tools/grove/internal/version"
	"github.com/grove-tools/grove/internal/vpath"
)

// Invariants (spec.md §8): path round-trip and version parser stability.
var _ = Describe("path round-trip invariant", func() {
	var m *vpath.Map

	BeforeEach(func() {
		m = vpath.New("/home/dev/project", "/home/dev", "/home/dev/.grove", "/home/dev/.grove/workspace")
	})

	DescribeTable("from_virtual(to_virtual(p).virtual) == p for a host path under a known root",
		func(hostPath string) {
			translated := m.ToVirtual(hostPath)
			Expect(translated.IsTranslated()).To(BeTrue())
			Expect(m.FromVirtual(translated.Virtual)).To(Equal(hostPath))
		},
		Entry("project root itself", "/home/dev/project"),
		Entry("nested project file", "/home/dev/project/src/main.go"),
		Entry("user home file", "/home/dev/.bashrc"),
		Entry("grove home file", "/home/dev/.grove/tools/node/20.1.0"),
		Entry("workspace file", "/home/dev/.grove/workspace/build/out.bin"),
	)

	It("leaves an unmapped path unchanged by FromVirtual", func() {
		Expect(m.FromVirtual("/etc/hosts")).To(Equal("/etc/hosts"))
	})
})

var _ = Describe("version parser stability invariant", func() {
	DescribeTable("parse(render(parse(s))) == parse(s)",
		func(spec string) {
			first, err := version.ParseUnresolved(spec)
			Expect(err).NotTo(HaveOccurred())

			rendered := first.String()
			second, err := version.ParseUnresolved(rendered)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Kind).To(Equal(first.Kind))
			Expect(second.String()).To(Equal(first.String()))
		},
		Entry("plain semantic version", "1.2.3"),
		Entry("leading v stripped consistently", "v1.2.3"),
		Entry("prerelease and build metadata", "1.2.3-rc.1+build.5"),
		Entry("alias", "latest"),
		Entry("canary", "canary"),
		Entry("caret requirement", "^1.2"),
		Entry("range requirement", ">=1.2,<2"),
		Entry("or-composed requirement", "^1 || ^2"),
	)
})
