// Package groveconfig implements the config file & layering component
// (C6): discovery of .prototools-equivalent files walking up from the
// working directory, per-file parsing with relative-path rewriting, and
// deep merge across layers with deepest-first precedence.
//
// Grounded on the layered-config domain model in
// github.com/felixgeelhaar/preflight (internal/domain/config/layer.go,
// merger.go) — the one repo in the corpus that already does multi-layer
// config merge — adapted from YAML to the TOML shape spec.md §3
// describes, using github.com/pelletier/go-toml/v2 for decoding.
package groveconfig

import "fmt"

// Location tags which tier of the discovery walk a layer came from.
type Location int

const (
	LocationLocal Location = iota
	LocationUser
	LocationGlobal
)

func (l Location) String() string {
	switch l {
	case LocationUser:
		return "user"
	case LocationGlobal:
		return "global"
	default:
		return "local"
	}
}

// PluginLocator is the tagged plugin-source union from spec.md §3.
type PluginLocator struct {
	Kind     LocatorKind
	Path     string // File
	URL      string // Url, and the resolved asset URL for GitHub
	Repo     string // GitHub: owner/repo
	Tag      string // GitHub: tag, empty or "latest" for latest-channel
	Registry string // Registry: backend name
	Ref      string // Registry: name/ref within that backend
}

type LocatorKind int

const (
	LocatorFile LocatorKind = iota
	LocatorURL
	LocatorGitHub
	LocatorRegistry
)

// ToolSpec is the value stored against each tool context in `versions`.
type ToolSpec struct {
	Req            string // unparsed UnresolvedVersionSpec text; parsed lazily by internal/version
	Backend        string // non-empty selects a non-native backend, e.g. "asdf"
	UpdateLockfile bool   // transient, not persisted
}

// ToolConfig holds the per-tool `[tools.<id>]` table.
type ToolConfig struct {
	Env      map[string]EnvEntry
	Aliases  map[string]string
	Config   map[string]any // opaque JSON-ish payload passed to the plugin verbatim
	Backend  string
	EnvFiles []EnvFileRef
}

// EnvEntry is the State(bool) | Value(string) sum from spec.md §3.
type EnvEntry struct {
	IsState bool
	State   bool
	Value   string
}

// EnvFileRef is one `env.file` declaration, with the weight spec.md §3
// defines: len(config_path_str)*10 + (5 if tool-scoped else 0).
type EnvFileRef struct {
	Path   string
	Weight int
}

// HTTPSettings mirrors `[settings.http]`.
type HTTPSettings struct {
	RootCert string
	Proxies  []string
}

// OfflineSettings mirrors `[settings.offline]`.
type OfflineSettings struct {
	CustomHosts []string
}

// BuildSettings mirrors `[settings.build]`.
type BuildSettings struct {
	Enabled bool
}

// RegistryBackend is one entry of `settings.registries`.
type RegistryBackend struct {
	Registry string
	Verify   bool
}

// Settings mirrors the `[settings]` table from spec.md §3.
type Settings struct {
	AutoInstall    bool
	AutoClean      bool
	DetectStrategy DetectStrategy
	PinLatest      string // "" means unset; else Global/Local/User
	HTTP           HTTPSettings
	Offline        OfflineSettings
	Build          BuildSettings
	Telemetry      bool
	BuiltinPlugins any // bool, or []string restricting to specific ids
	Lockfile       bool
	URLRewrites    map[string]string
	Registries     []RegistryBackend
}

// DetectStrategy selects among the three C9 strategies.
type DetectStrategy int

const (
	DetectFirstAvailable DetectStrategy = iota
	DetectOnlyPrototools
	DetectPreferPrototools
)

func ParseDetectStrategy(s string) (DetectStrategy, error) {
	switch s {
	case "", "first-available":
		return DetectFirstAvailable, nil
	case "only-prototools":
		return DetectOnlyPrototools, nil
	case "prefer-prototools":
		return DetectPreferPrototools, nil
	default:
		return 0, fmt.Errorf("unknown detect-strategy %q", s)
	}
}

// FileConfig is the parsed content of a single config-file layer.
type FileConfig struct {
	Versions map[string]ToolSpec
	Plugins  map[string]PluginLocator
	Tools    map[string]ToolConfig
	Env      map[string]EnvEntry
	Settings Settings
	EnvFiles []EnvFileRef
}

// Layer is one discovered config file, parsed or not (per the `exists`
// bit from spec.md §3).
type Layer struct {
	Dir      string
	Path     string
	Exists   bool
	Location Location
	Content  *FileConfig
}

// reservedPluginID is the one id that may never appear in `plugins`.
const reservedPluginID = "proto"
