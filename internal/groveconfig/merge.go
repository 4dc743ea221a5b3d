package groveconfig

// OrderedEnv keeps each key at the position where it was first inserted
// while letting later inserts overwrite its value. Merge folds layers root
// first, so a key of the `env` table sits at its shallowest occurrence and
// carries the deepest layer's value.
type OrderedEnv struct {
	order  []string
	values map[string]EnvEntry
}

func newOrderedEnv() *OrderedEnv {
	return &OrderedEnv{values: map[string]EnvEntry{}}
}

// Set records key=val, appending key to the order only the first time it
// is seen (i.e. at its earliest-merged, shallowest layer).
func (e *OrderedEnv) Set(key string, val EnvEntry) {
	if _, seen := e.values[key]; !seen {
		e.order = append(e.order, key)
	}
	e.values[key] = val
}

// Keys returns keys in insertion (first-merged-occurrence) order.
func (e *OrderedEnv) Keys() []string {
	return append([]string(nil), e.order...)
}

func (e *OrderedEnv) Get(key string) (EnvEntry, bool) {
	v, ok := e.values[key]
	return v, ok
}

func (e *OrderedEnv) Len() int { return len(e.order) }

// View selects which layers participate in a Merge call.
type View int

const (
	ViewAll View = iota
	ViewExceptGlobal
	ViewGlobalOnly
	ViewLocalOnly
)

// Merged is the result of deep-merging a set of config-file layers.
type Merged struct {
	Versions map[string]ToolSpec
	Plugins  map[string]PluginLocator
	Tools    map[string]MergedToolConfig
	Env      *OrderedEnv
	EnvFiles []EnvFileRef
	Settings Settings
}

// MergedToolConfig is a per-tool config table after merge.
type MergedToolConfig struct {
	Env      map[string]EnvEntry
	Aliases  map[string]string
	Config   map[string]any
	Backend  string
	EnvFiles []EnvFileRef
}

func filterLayers(layers []Layer, view View) []Layer {
	if view == ViewAll {
		return layers
	}
	var out []Layer
	for _, l := range layers {
		switch view {
		case ViewExceptGlobal:
			if l.Location != LocationGlobal {
				out = append(out, l)
			}
		case ViewGlobalOnly:
			if l.Location == LocationGlobal {
				out = append(out, l)
			}
		case ViewLocalOnly:
			if l.Location == LocationLocal {
				out = append(out, l)
			}
		}
	}
	return out
}

// Merge deep-merges layers (as returned by LoadLayers, ordered
// deepest-first) for the given view. Layers are folded in reverse order
// (root first, CWD last) so deeper layers overwrite, per spec.md §3.
func Merge(layers []Layer, view View) (*Merged, error) {
	filtered := filterLayers(layers, view)

	m := &Merged{
		Versions: map[string]ToolSpec{},
		Plugins:  map[string]PluginLocator{},
		Tools:    map[string]MergedToolConfig{},
		Env:      newOrderedEnv(),
		Settings: Settings{URLRewrites: map[string]string{}},
	}

	var lockfileOwner string

	for i := len(filtered) - 1; i >= 0; i-- {
		layer := filtered[i]
		if !layer.Exists || layer.Content == nil {
			continue
		}
		c := layer.Content

		for k, v := range c.Versions {
			m.Versions[k] = v
		}
		for k, v := range c.Plugins {
			if k == reservedPluginID {
				return nil, &ReservedPluginIDError{File: layer.Path}
			}
			m.Plugins[k] = v
		}
		for id, tc := range c.Tools {
			mergeToolConfig(m, id, tc)
		}
		for k, v := range c.Env {
			m.Env.Set(k, v)
		}
		m.EnvFiles = append(m.EnvFiles, c.EnvFiles...)
		mergeSettings(&m.Settings, c.Settings)

		if c.Settings.Lockfile {
			if lockfileOwner != "" {
				return nil, &AlreadyLockedError{First: lockfileOwner, Second: layer.Path}
			}
			lockfileOwner = layer.Path
		}
	}

	return m, nil
}

func mergeToolConfig(m *Merged, id string, src ToolConfig) {
	dst, ok := m.Tools[id]
	if !ok {
		dst = MergedToolConfig{Env: map[string]EnvEntry{}, Aliases: map[string]string{}, Config: map[string]any{}}
	}
	for k, v := range src.Env {
		dst.Env[k] = v
	}
	for k, v := range src.Aliases {
		dst.Aliases[k] = v
	}
	for k, v := range src.Config {
		dst.Config[k] = v
	}
	if src.Backend != "" {
		dst.Backend = src.Backend
	}
	dst.EnvFiles = append(dst.EnvFiles, src.EnvFiles...)
	m.Tools[id] = dst
}

func mergeSettings(dst *Settings, src Settings) {
	if src.AutoInstall {
		dst.AutoInstall = true
	}
	if src.AutoClean {
		dst.AutoClean = true
	}
	if src.DetectStrategy != DetectFirstAvailable {
		dst.DetectStrategy = src.DetectStrategy
	}
	if src.PinLatest != "" {
		dst.PinLatest = src.PinLatest
	}
	if src.Telemetry {
		dst.Telemetry = true
	}
	if src.BuiltinPlugins != nil {
		dst.BuiltinPlugins = src.BuiltinPlugins
	}
	dst.Lockfile = dst.Lockfile || src.Lockfile
	if src.HTTP.RootCert != "" {
		dst.HTTP.RootCert = src.HTTP.RootCert
	}
	dst.HTTP.Proxies = append(dst.HTTP.Proxies, src.HTTP.Proxies...)
	dst.Offline.CustomHosts = append(dst.Offline.CustomHosts, src.Offline.CustomHosts...)
	if src.Build.Enabled {
		dst.Build.Enabled = true
	}
	for k, v := range src.URLRewrites {
		dst.URLRewrites[k] = v
	}
	dst.Registries = append(dst.Registries, src.Registries...)
}
