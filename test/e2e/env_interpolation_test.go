package e2e

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/grove-tools/grove/internal/groveconfig"
	"github.com/grove-tools/grove/internal/groveenv"
)

func merged(global map[string]string, toolEnv map[string]string) *groveconfig.Merged {
	m := &groveconfig.Merged{
		Tools: map[string]groveconfig.MergedToolConfig{},
	}
	env := mergedOrderedEnv(global)
	m.Env = env
	if toolEnv != nil {
		entries := map[string]groveconfig.EnvEntry{}
		for k, v := range toolEnv {
			entries[k] = groveconfig.EnvEntry{Value: v}
		}
		m.Tools["mytool"] = groveconfig.MergedToolConfig{Env: entries}
	}
	return m
}

// Scenario 6 (spec.md §8): `${NAME}` references resolve against the
// process environment first, then the composition built so far; bare
// `$NAME` is left untouched; a non-empty process-env value for a key wins
// outright over whatever the config files say.
var _ = Describe("environment composition and interpolation", func() {
	AfterEach(func() {
		Expect(os.Unsetenv("GROVE_E2E_HOST")).To(Succeed())
	})

	It("resolves ${NAME} against an already-composed key", func() {
		m := merged(map[string]string{
			"API_HOST": "localhost",
			"API_URL":  "http://${API_HOST}:8080",
		}, nil)

		composed, err := groveenv.Compose(m, "")
		Expect(err).NotTo(HaveOccurred())

		v, ok := composed.Get("API_URL")
		Expect(ok).To(BeTrue())
		Expect(*v).To(Equal("http://localhost:8080"))
	})

	It("leaves bare $NAME references untouched", func() {
		m := merged(map[string]string{
			"SHELL_STYLE_REF": "$HOME/bin",
		}, nil)

		composed, err := groveenv.Compose(m, "")
		Expect(err).NotTo(HaveOccurred())

		v, ok := composed.Get("SHELL_STYLE_REF")
		Expect(ok).To(BeTrue())
		Expect(*v).To(Equal("$HOME/bin"))
	})

	It("lets a non-empty process environment value win outright over the config value", func() {
		Expect(os.Setenv("GROVE_E2E_HOST", "from-process")).To(Succeed())

		m := merged(map[string]string{
			"GROVE_E2E_HOST": "from-config",
		}, nil)

		composed, err := groveenv.Compose(m, "")
		Expect(err).NotTo(HaveOccurred())

		v, ok := composed.Get("GROVE_E2E_HOST")
		Expect(ok).To(BeTrue())
		Expect(*v).To(Equal("from-process"))
	})

	It("layers a tool-scoped env table over the global one for that tool only", func() {
		m := merged(
			map[string]string{"SHARED": "global-value"},
			map[string]string{"SHARED": "tool-value", "TOOL_ONLY": "yes"},
		)

		toolComposed, err := groveenv.Compose(m, "mytool")
		Expect(err).NotTo(HaveOccurred())
		v, _ := toolComposed.Get("SHARED")
		Expect(*v).To(Equal("tool-value"))
		v, _ = toolComposed.Get("TOOL_ONLY")
		Expect(*v).To(Equal("yes"))

		untouched, err := groveenv.Compose(m, "")
		Expect(err).NotTo(HaveOccurred())
		v, _ = untouched.Get("SHARED")
		Expect(*v).To(Equal("global-value"))
		_, ok := untouched.Get("TOOL_ONLY")
		Expect(ok).To(BeFalse())
	})
})

func mergedOrderedEnv(values map[string]string) *groveconfig.OrderedEnv {
	layer := &groveconfig.Layer{
		Exists: true,
		Content: &groveconfig.FileConfig{
			Env: func() map[string]groveconfig.EnvEntry {
				out := map[string]groveconfig.EnvEntry{}
				for k, v := range values {
					out[k] = groveconfig.EnvEntry{Value: v}
				}
				return out
			}(),
		},
	}
	m, err := groveconfig.Merge([]groveconfig.Layer{*layer}, groveconfig.ViewAll)
	Expect(err).NotTo(HaveOccurred())
	return m.Env
}
