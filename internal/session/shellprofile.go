package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// applyShellProfileSync implements the ShellProfileSync stage of spec.md
// §4.10: per the Non-goals, this is append-once, never a rewrite. If
// check_var is already set in the process environment the user's shell has
// already picked up a prior sync and there's nothing to do; otherwise a
// marker-guarded block is appended to the profile exactly once, even across
// repeated installs in environments where check_var itself never gets set
// (e.g. CI).
func applyShellProfileSync(toolID, home string, out syncShellProfileOutput) error {
	if out.SkipSync || out.CheckVar == "" {
		return nil
	}
	if _, ok := os.LookupEnv(out.CheckVar); ok {
		return nil
	}
	if len(out.ExportVars) == 0 && len(out.ExtendPath) == 0 {
		return nil
	}
	if home == "" {
		return nil
	}

	path := filepath.Join(home, profileFileName())
	marker := fmt.Sprintf("# grove shell profile sync: %s", toolID)

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if strings.Contains(string(existing), marker) {
		return nil
	}

	var b strings.Builder
	b.WriteString("\n" + marker + "\n")

	keys := make([]string, 0, len(out.ExportVars))
	for k := range out.ExportVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "export %s=%q\n", k, out.ExportVars[k])
	}
	for _, p := range out.ExtendPath {
		fmt.Fprintf(&b, "export PATH=%q:$PATH\n", p)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

// profileFileName picks the shell profile grove appends to, based on the
// user's login shell; bash is the fallback for shells this mapping doesn't
// recognize.
func profileFileName() string {
	switch filepath.Base(os.Getenv("SHELL")) {
	case "zsh":
		return ".zshrc"
	case "fish":
		return filepath.Join(".config", "fish", "config.fish")
	default:
		return ".bashrc"
	}
}
