// Package lockfile implements the `.protolock` reproducibility file
// (component C11): one record per (tool id, spec, backend) recording the
// resolved version and checksum, with keep-higher-unless-update merge
// semantics on install and exact-version removal on uninstall.
//
// Grounded on spec.md §4.11's TOML shape and the teacher's atomic
// temp-file-then-rename write pattern used elsewhere in the corpus for
// config persistence, using github.com/pelletier/go-toml/v2 (the same
// decoder internal/groveconfig uses) for (de)serialization.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/grove-tools/grove/internal/groveerrors"
	"github.com/grove-tools/grove/internal/version"
	"github.com/pelletier/go-toml/v2"
)

// Record is one `[[tools.<id>]]` entry.
type Record struct {
	Spec     string `toml:"spec"`
	Version  string `toml:"version"`
	Checksum string `toml:"checksum,omitempty"`
	Backend  string `toml:"backend,omitempty"`
	Source   string `toml:"source,omitempty"`
}

// File is the decoded `.protolock` document: tool id -> records, in
// insertion order for determinism (see Save's sorted-key write contract).
type File struct {
	Tools map[string][]Record `toml:"tools"`
}

// Load reads path, returning an empty File if it does not exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &File{Tools: map[string][]Record{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, groveerrors.Wrap(groveerrors.KindConfigParse, "", err)
	}
	if f.Tools == nil {
		f.Tools = map[string][]Record{}
	}
	return &f, nil
}

// Save writes f to path atomically (temp file + rename), with tool ids
// sorted and a trailing newline, per spec.md §6's "keys sorted by id"
// contract. Records within an id keep their slice (insertion) order.
func Save(path string, f *File) error {
	ids := make([]string, 0, len(f.Tools))
	for id := range f.Tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []byte
	for i, id := range ids {
		section := struct {
			Tools map[string][]Record `toml:"tools"`
		}{Tools: map[string][]Record{id: f.Tools[id]}}
		data, err := toml.Marshal(section)
		if err != nil {
			return err
		}
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, data...)
	}
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// findMatch returns the index of the record matching (spec, backend) for
// id, or -1.
func findMatch(records []Record, spec, backend string) int {
	for i, r := range records {
		if r.Spec == spec && r.Backend == backend {
			return i
		}
	}
	return -1
}

// ApplyInstall implements the §4.11 "on install" merge rule: keep the
// higher version unless update is true, in which case overwrite
// (including checksum); append if no record matches (spec, backend).
func ApplyInstall(f *File, id string, rec Record, update bool) error {
	records := f.Tools[id]
	idx := findMatch(records, rec.Spec, rec.Backend)
	if idx == -1 {
		f.Tools[id] = append(records, rec)
		return nil
	}

	existing := records[idx]
	if update {
		records[idx] = rec
		f.Tools[id] = records
		return nil
	}

	higher, err := isHigherVersion(rec.Version, existing.Version)
	if err != nil {
		return err
	}
	if higher {
		records[idx] = rec
	}
	f.Tools[id] = records
	return nil
}

// Enforce implements the §4.11 "on install (enforcement)" rule: if a
// record matches (spec, backend) and carries a version, that version is
// authoritative (bypassing resolution); if it also carries a checksum, it
// must match verifiedChecksum exactly or ChecksumMismatch is raised.
func Enforce(f *File, id, spec, backend, verifiedChecksum string) (resolvedVersion string, checksumChecked bool, err error) {
	records := f.Tools[id]
	idx := findMatch(records, spec, backend)
	if idx == -1 {
		return "", false, nil
	}
	rec := records[idx]
	if rec.Version == "" {
		return "", false, nil
	}
	if rec.Checksum != "" {
		if verifiedChecksum == "" {
			return rec.Version, false, nil
		}
		if rec.Checksum != verifiedChecksum {
			return "", true, groveerrors.Newf(groveerrors.KindChecksumMismatch, "lockfile checksum %s does not match downloaded %s for %s", rec.Checksum, verifiedChecksum, id).WithTool(id)
		}
		return rec.Version, true, nil
	}
	return rec.Version, false, nil
}

// RemoveVersion deletes the record for id matching exactly version,
// across all (spec, backend) entries, per the "on uninstall" rule.
func RemoveVersion(f *File, id, ver string) {
	records := f.Tools[id]
	out := records[:0]
	for _, r := range records {
		if r.Version != ver {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		delete(f.Tools, id)
		return
	}
	f.Tools[id] = out
}

// DeleteIfDisabled implements the "disable toggle" rule: best-effort
// removal of the lockfile when the effective config sets lockfile=false.
func DeleteIfDisabled(path string, lockfileEnabled bool) error {
	if lockfileEnabled {
		return nil
	}
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func isHigherVersion(a, b string) (bool, error) {
	if b == "" {
		return true, nil
	}
	if a == "" {
		return false, nil
	}
	av, err := version.ParseResolved(a)
	if err != nil {
		return false, fmt.Errorf("lockfile: parsing version %q: %w", a, err)
	}
	bv, err := version.ParseResolved(b)
	if err != nil {
		return false, fmt.Errorf("lockfile: parsing version %q: %w", b, err)
	}
	if av.Kind != bv.Kind {
		return false, nil
	}
	return av.Version.Compare(bv.Version) > 0, nil
}
