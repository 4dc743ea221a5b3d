// Package groveenv implements env composition (component C7): folding
// env-file contents, the global `env` table, and a tool-scoped `env` table
// into one ordered, interpolated environment view.
//
// Grounded on spec.md §4.7 and the indirect github.com/subosito/gotenv
// dependency pulled in by spf13/viper — given a direct job here parsing
// `env.file` entries, the one corpus library already on the parse-.env
// concern.
package groveenv

import (
	"os"
	"sort"
	"strings"

	"github.com/grove-tools/grove/internal/groveconfig"
	"github.com/subosito/gotenv"
)

// Composed is an ordered view of Option<String> values: a nil Value means
// "unset this var in the child process" per spec.md §4.7.
type Composed struct {
	order  []string
	values map[string]*string
}

func newComposed() *Composed {
	return &Composed{values: map[string]*string{}}
}

func (c *Composed) set(key string, value *string) {
	if _, seen := c.values[key]; !seen {
		c.order = append(c.order, key)
	}
	c.values[key] = value
}

// Keys returns assembled keys in insertion order.
func (c *Composed) Keys() []string { return append([]string(nil), c.order...) }

// Get returns the value for key (nil meaning "unset").
func (c *Composed) Get(key string) (*string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Environ renders the composition to `KEY=VALUE` pairs suitable for
// exec.Cmd.Env, dropping unset entries.
func (c *Composed) Environ() []string {
	out := make([]string, 0, len(c.order))
	for _, k := range c.order {
		if v := c.values[k]; v != nil {
			out = append(out, k+"="+*v)
		}
	}
	return out
}

// readFile reads the file at path and returns readers via gotenv.
func readFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return gotenv.StrictParse(f)
}

// Compose builds the composed environment for toolID (empty string for no
// tool context) from a merged config view, following the five steps of
// spec.md §4.7.
func Compose(merged *groveconfig.Merged, toolID string) (*Composed, error) {
	var files []groveconfig.EnvFileRef
	files = append(files, merged.EnvFiles...)
	var toolEnv map[string]groveconfig.EnvEntry
	if toolID != "" {
		if tc, ok := merged.Tools[toolID]; ok {
			files = append(files, tc.EnvFiles...)
			toolEnv = tc.Env
		}
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].Weight < files[j].Weight })

	composed := newComposed()

	for _, ref := range files {
		values, err := readFile(ref.Path)
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := values[k]
			composed.set(k, &v)
		}
	}

	applyEnvTable(composed, merged.Env.Keys(), func(k string) (groveconfig.EnvEntry, bool) { return merged.Env.Get(k) })

	if toolEnv != nil {
		keys := make([]string, 0, len(toolEnv))
		for k := range toolEnv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		applyEnvTable(composed, keys, func(k string) (groveconfig.EnvEntry, bool) { e, ok := toolEnv[k]; return e, ok })
	}

	delete(composed.values, "file")
	for i, k := range composed.order {
		if k == "file" {
			composed.order = append(composed.order[:i], composed.order[i+1:]...)
			break
		}
	}

	interpolate(composed)

	return composed, nil
}

func applyEnvTable(composed *Composed, keys []string, get func(string) (groveconfig.EnvEntry, bool)) {
	for _, k := range keys {
		entry, ok := get(k)
		if !ok {
			continue
		}
		switch {
		case entry.IsState && !entry.State:
			composed.set(k, nil)
		case entry.IsState && entry.State:
			v := "true"
			composed.set(k, &v)
		default:
			v := entry.Value
			composed.set(k, &v)
		}
	}
}

// interpolate resolves `${NAME}` references using the process environment
// first, then already-assembled composition values; bare `$NAME` is left
// untouched. A key already set non-empty in the process env wins over the
// config value outright (the config value is dropped before interpolation
// would even matter).
func interpolate(composed *Composed) {
	for _, key := range composed.order {
		if procVal, ok := os.LookupEnv(key); ok && procVal != "" {
			v := procVal
			composed.values[key] = &v
			continue
		}
		v := composed.values[key]
		if v == nil {
			continue
		}
		resolved := interpolateString(*v, composed)
		composed.values[key] = &resolved
	}
}

func interpolateString(s string, composed *Composed) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end == -1 {
				b.WriteByte(s[i])
				i++
				continue
			}
			name := s[i+2 : i+2+end]
			b.WriteString(lookupForInterpolation(name, composed))
			i += 2 + end + 1
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func lookupForInterpolation(name string, composed *Composed) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	if v, ok := composed.values[name]; ok && v != nil {
		return *v
	}
	return ""
}
