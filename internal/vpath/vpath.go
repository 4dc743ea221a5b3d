// Package vpath implements the virtual path map (component C2): the
// translation layer between real host filesystem paths and the
// guest-visible paths a WASM plugin is allowed to see under WASI.
//
// Grounded on the host/guest path-translation helpers in the original
// tool's warpgate::host (from_virtual_path/to_virtual_path) and modeled,
// on the Go side, after the plugin container's ownership style in
// infrastructure/wasm/plugin.go.
package vpath

import (
	"path/filepath"
	"sort"
	"strings"
)

// Mapping pairs one host root with the guest-visible prefix a plugin sees
// it as.
type Mapping struct {
	HostPrefix  string
	GuestPrefix string
}

// Map holds the full set of host<->guest root mappings for one plugin
// manifest, sorted by descending host-prefix length so the longest match
// wins on ties (spec.md §4.2).
type Map struct {
	mappings []Mapping
}

// New builds a Map from the four standard roots (spec.md §4.2): CWD,
// user home, manager home, and global workspace directory.
func New(cwd, userHome, protoHome, workspaceDir string) *Map {
	m := &Map{
		mappings: []Mapping{
			{HostPrefix: clean(cwd), GuestPrefix: "/cwd"},
			{HostPrefix: clean(userHome), GuestPrefix: "/userhome"},
			{HostPrefix: clean(protoHome), GuestPrefix: "/proto"},
			{HostPrefix: clean(workspaceDir), GuestPrefix: "/workspace"},
		},
	}
	sort.SliceStable(m.mappings, func(i, j int) bool {
		return len(m.mappings[i].HostPrefix) > len(m.mappings[j].HostPrefix)
	})
	return m
}

func clean(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

// VirtualPath carries both forms of a path once translated. Real is
// always populated; Virtual is only set when a host prefix matched.
type VirtualPath struct {
	Real    string
	Virtual string
}

// IsTranslated reports whether a guest-visible virtual form exists.
func (v VirtualPath) IsTranslated() bool { return v.Virtual != "" }

// String returns the form a plugin should see: the virtual path if one
// exists, otherwise the real path untranslated.
func (v VirtualPath) String() string {
	if v.Virtual != "" {
		return v.Virtual
	}
	return v.Real
}

// ToVirtual translates a host-absolute path into a VirtualPath. If no
// configured host prefix is a parent of hostPath, the result carries only
// the real path (tagged Real, per spec.md §4.2). Longest matching prefix
// wins.
func (m *Map) ToVirtual(hostPath string) VirtualPath {
	real := clean(hostPath)
	for _, mapping := range m.mappings {
		if mapping.HostPrefix == "" {
			continue
		}
		if real == mapping.HostPrefix {
			return VirtualPath{Real: real, Virtual: mapping.GuestPrefix}
		}
		if rest, ok := strings.CutPrefix(real, mapping.HostPrefix+string(filepath.Separator)); ok {
			return VirtualPath{Real: real, Virtual: filepath.ToSlash(mapping.GuestPrefix + "/" + rest)}
		}
	}
	return VirtualPath{Real: real}
}

// FromVirtual substitutes a known guest prefix back to its host-absolute
// form. Idempotent: a path that does not start with any guest prefix is
// returned unchanged (it is assumed already real).
func (m *Map) FromVirtual(anyPath string) string {
	slash := filepath.ToSlash(anyPath)
	for _, mapping := range m.mappings {
		if mapping.HostPrefix == "" {
			continue
		}
		if slash == mapping.GuestPrefix {
			return mapping.HostPrefix
		}
		if rest, ok := strings.CutPrefix(slash, mapping.GuestPrefix+"/"); ok {
			return filepath.Join(mapping.HostPrefix, filepath.FromSlash(rest))
		}
	}
	return anyPath
}
