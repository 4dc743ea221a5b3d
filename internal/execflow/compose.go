package execflow

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/grove-tools/grove/internal/groveenv"
	"github.com/grove-tools/grove/internal/store"
)

// Workflow accumulates every tool's Item into one ordered env/PATH/args
// view, per spec.md §4.14 steps 1 and 5-6.
type Workflow struct {
	Args  []string
	order []string
	env   map[string]*string
	paths []string
}

// NewWorkflow seeds the workflow's env from the global `env` table, via
// groveenv's already-composed view (component C7), before any tool's
// contribution is collected.
func NewWorkflow(seed *groveenv.Composed) *Workflow {
	w := &Workflow{env: map[string]*string{}}
	if seed != nil {
		for _, key := range seed.Keys() {
			v, _ := seed.Get(key)
			w.setEnv(key, v)
		}
	}
	return w
}

func (w *Workflow) setEnv(key string, value *string) {
	if _, seen := w.env[key]; !seen {
		w.order = append(w.order, key)
	}
	w.env[key] = value
}

// Collect folds one tool's Item into the workflow, in first-seen order for
// PATH entries (spec.md §4.14 step 3's "deduped preserving first-seen
// order").
func (w *Workflow) Collect(item *Item) {
	if item == nil {
		return
	}
	w.Args = append(w.Args, item.Args...)
	for _, key := range item.order {
		w.setEnv(key, item.Env[key])
	}
	for _, p := range item.Paths {
		w.addPath(p)
	}
}

func (w *Workflow) addPath(path string) {
	for _, p := range w.paths {
		if p == path {
			return
		}
	}
	w.paths = append(w.paths, path)
}

// CollectAll folds every entry of items (as produced by PrepareAll) into
// the workflow, in toolOrder so PATH precedence matches the order the
// caller asked for the tools in (e.g. `.prototools`'s declared order)
// rather than whatever order the parallel fan-out happened to settle in.
func (w *Workflow) CollectAll(items map[string]*Item, toolOrder []string) {
	for _, id := range toolOrder {
		w.Collect(items[id])
	}
}

// EnvPair is one entry of the workflow's accumulated env, in first-seen
// order, for callers (e.g. `grove activate`) that need to print every
// variable rather than apply them to a child process. Unset is true for a
// variable a tool's hooks explicitly asked to remove from the environment.
type EnvPair struct {
	Key   string
	Value string
	Unset bool
}

// EnvPairs returns the workflow's accumulated env entries in first-seen
// order.
func (w *Workflow) EnvPairs() []EnvPair {
	pairs := make([]EnvPair, 0, len(w.order))
	for _, key := range w.order {
		if v := w.env[key]; v != nil {
			pairs = append(pairs, EnvPair{Key: key, Value: *v})
		} else {
			pairs = append(pairs, EnvPair{Key: key, Unset: true})
		}
	}
	return pairs
}

// JoinPaths returns the tool-owned PATH segment followed by the process's
// existing PATH, or "" if no tool contributed any path.
func (w *Workflow) JoinPaths() string {
	if len(w.paths) == 0 {
		return ""
	}
	list := append([]string(nil), w.paths...)
	list = append(list, processPaths()...)
	return joinPathList(list)
}

// ResetPaths builds the PATH list for `proto activate`, wrapping the
// tool-owned segment with sentinel marker paths so a later re-activation
// can find and strip the previous segment rather than grow PATH
// unbounded, per spec.md §4.14 step 5.
func (w *Workflow) ResetPaths(st *store.Store) []string {
	start := st.ActivateStartMarker()
	stop := st.ActivateStopMarker()

	reset := make([]string, 0, len(w.paths)+2)
	reset = append(reset, start)
	reset = append(reset, w.paths...)
	reset = append(reset, stop)

	seen := make(map[string]bool, len(reset))
	for _, p := range reset {
		seen[p] = true
	}

	inActivated := false
	for _, p := range processPaths() {
		switch {
		case p == start:
			inActivated = true
			continue
		case p == stop:
			inActivated = false
			continue
		case inActivated || seen[p]:
			continue
		}
		reset = append(reset, p)
		seen[p] = true
	}

	return reset
}

// ResetAndJoinPaths is ResetPaths joined into one PATH string.
func (w *Workflow) ResetAndJoinPaths(st *store.Store) string {
	return joinPathList(w.ResetPaths(st))
}

func processPaths() []string {
	current := os.Getenv("PATH")
	if current == "" {
		return nil
	}
	return filepath.SplitList(current)
}

func joinPathList(list []string) string {
	return strings.Join(list, string(os.PathListSeparator))
}

// ApplyToCommand sets cmd's PATH, env vars (removing "unset" entries), and
// appends args, per spec.md §4.14 step 6.
func (w *Workflow) ApplyToCommand(cmd *exec.Cmd) {
	env := os.Environ()
	removed := make(map[string]bool)

	if path := w.JoinPaths(); path != "" {
		w.setEnv("PATH", &path)
	}

	for _, key := range w.order {
		if v := w.env[key]; v == nil {
			removed[key] = true
		}
	}

	filtered := make([]string, 0, len(env))
	for _, kv := range env {
		key := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			key = kv[:idx]
		}
		if !removed[key] && !w.has(key) {
			filtered = append(filtered, kv)
		}
	}

	for _, key := range w.order {
		if v := w.env[key]; v != nil {
			filtered = append(filtered, key+"="+*v)
		}
	}

	cmd.Env = filtered
	cmd.Args = append(cmd.Args, w.Args...)
}

func (w *Workflow) has(key string) bool {
	_, ok := w.env[key]
	return ok
}

// TouchLastUsedNow writes the current time to the tool's `.last-used`
// marker, unless PROTO_SKIP_USED_AT is set (internal/store's layout;
// the auto-clean sweep reads this file's mtime).
func TouchLastUsedNow(st *store.Store, toolID, resolvedVersion string) error {
	if _, skip := os.LookupEnv("PROTO_SKIP_USED_AT"); skip {
		return nil
	}
	path := st.LastUsedPath(toolID, resolvedVersion)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(time.Now().UTC().Format(time.RFC3339)), 0o644)
}
