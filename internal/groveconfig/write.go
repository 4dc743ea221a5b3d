package groveconfig

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// PinVersion writes `id = "spec"` (or `"backend:id" = "spec"` when backend is
// non-empty) into the top level of the .prototools file at path, creating
// the file if it doesn't exist yet. Other top-level keys and tables are
// round-tripped through the same raw-map decode LoadFile uses, so comments
// are not preserved — consistent with groveconfig's existing
// comment-free-decode simplification (see DESIGN.md's "TOML ordered-map
// simplification" note).
func PinVersion(path, id, backend, spec string) error {
	raw := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	key := id
	if backend != "" {
		key = backend + ":" + id
	}
	raw[key] = spec

	out, err := toml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
