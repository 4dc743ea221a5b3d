package groveconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

var identifierPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

var knownTopLevelTables = map[string]bool{
	"plugins":  true,
	"tools":    true,
	"env":      true,
	"settings": true,
}

// LoadFile reads and parses one .prototools-shaped TOML file at path,
// rewriting relative paths against its directory and extracting env.file
// declarations into _env_files per spec.md §3.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	cfg := &FileConfig{
		Versions: map[string]ToolSpec{},
		Plugins:  map[string]PluginLocator{},
		Tools:    map[string]ToolConfig{},
		Env:      map[string]EnvEntry{},
	}

	for key, value := range raw {
		switch key {
		case "plugins":
			table, ok := value.(map[string]any)
			if !ok {
				return nil, &UnknownFieldError{File: path, Field: key}
			}
			if err := parsePlugins(path, dir, table, cfg); err != nil {
				return nil, err
			}
		case "tools":
			table, ok := value.(map[string]any)
			if !ok {
				return nil, &UnknownFieldError{File: path, Field: key}
			}
			if err := parseTools(path, table, cfg); err != nil {
				return nil, err
			}
		case "env":
			table, ok := value.(map[string]any)
			if !ok {
				return nil, &UnknownFieldError{File: path, Field: key}
			}
			entries, files, err := parseEnvTable(path, table, false)
			if err != nil {
				return nil, err
			}
			cfg.Env = entries
			cfg.EnvFiles = append(cfg.EnvFiles, files...)
		case "settings":
			table, ok := value.(map[string]any)
			if !ok {
				return nil, &UnknownFieldError{File: path, Field: key}
			}
			settings, err := parseSettings(path, dir, table)
			if err != nil {
				return nil, err
			}
			cfg.Settings = settings
		default:
			if _, isTable := value.(map[string]any); isTable {
				return nil, &UnknownFieldError{File: path, Field: key}
			}
			if !identifierPattern.MatchString(backendStrippedID(key)) {
				return nil, &UnknownFieldError{File: path, Field: key}
			}
			specText, ok := value.(string)
			if !ok {
				return nil, &UnknownFieldError{File: path, Field: key}
			}
			backend, id := splitToolContext(key)
			_ = id
			cfg.Versions[key] = ToolSpec{Req: specText, Backend: backend}
		}
	}

	for _, ref := range cfg.EnvFiles {
		if _, err := os.Stat(ref.Path); err != nil {
			return nil, &MissingEnvFileError{File: path, Path: ref.Path}
		}
	}

	return cfg, nil
}

// splitToolContext splits "backend:id" into (backend, id); a bare id
// returns ("", id).
func splitToolContext(key string) (backend, id string) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:]
		}
	}
	return "", key
}

func backendStrippedID(key string) string {
	_, id := splitToolContext(key)
	return id
}

func parsePlugins(file, dir string, table map[string]any, cfg *FileConfig) error {
	for id, raw := range table {
		if id == reservedPluginID {
			return &ReservedPluginIDError{File: file}
		}
		locator, err := parseLocator(file, dir, raw)
		if err != nil {
			return err
		}
		cfg.Plugins[id] = locator
	}
	return nil
}

func parseLocator(file, dir string, raw any) (PluginLocator, error) {
	s, isString := raw.(string)
	if !isString {
		return PluginLocator{}, &UnknownFieldError{File: file, Field: "plugins"}
	}
	switch {
	case hasScheme(s, "file://"):
		p := s[len("file://"):]
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		return PluginLocator{Kind: LocatorFile, Path: p}, nil
	case hasScheme(s, "https://"), hasScheme(s, "http://"):
		return PluginLocator{Kind: LocatorURL, URL: s}, nil
	case hasScheme(s, "github://"):
		return parseGitHubLocator(s[len("github://"):]), nil
	case hasScheme(s, "registry://"):
		return parseRegistryLocator(s[len("registry://"):]), nil
	default:
		// Bare path, relative to the file's directory.
		p := s
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		return PluginLocator{Kind: LocatorFile, Path: p}, nil
	}
}

func parseGitHubLocator(rest string) PluginLocator {
	repo, tag := rest, "latest"
	for i := 0; i < len(rest); i++ {
		if rest[i] == '@' {
			repo, tag = rest[:i], rest[i+1:]
			break
		}
	}
	return PluginLocator{Kind: LocatorGitHub, Repo: repo, Tag: tag}
}

// parseRegistryLocator splits "registry://<backend>/<ref>" into the
// registries-table backend name and the plugin ref within it. A missing
// backend segment defaults to the first configured registries entry,
// resolved later once settings are available.
func parseRegistryLocator(rest string) PluginLocator {
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return PluginLocator{Kind: LocatorRegistry, Registry: rest[:i], Ref: rest[i+1:]}
		}
	}
	return PluginLocator{Kind: LocatorRegistry, Ref: rest}
}

func hasScheme(s, scheme string) bool {
	return len(s) >= len(scheme) && s[:len(scheme)] == scheme
}

func parseTools(file string, table map[string]any, cfg *FileConfig) error {
	for id, raw := range table {
		section, ok := raw.(map[string]any)
		if !ok {
			return &UnknownFieldError{File: file, Field: "tools." + id}
		}
		tc := ToolConfig{Aliases: map[string]string{}, Config: map[string]any{}}
		for key, value := range section {
			switch key {
			case "env":
				envTable, ok := value.(map[string]any)
				if !ok {
					return &UnknownFieldError{File: file, Field: "tools." + id + ".env"}
				}
				entries, files, err := parseEnvTable(file, envTable, true)
				if err != nil {
					return err
				}
				tc.Env = entries
				tc.EnvFiles = files
			case "aliases":
				aliasTable, ok := value.(map[string]any)
				if !ok {
					return &UnknownFieldError{File: file, Field: "tools." + id + ".aliases"}
				}
				for k, v := range aliasTable {
					if s, ok := v.(string); ok {
						tc.Aliases[k] = s
					}
				}
			case "config":
				configTable, ok := value.(map[string]any)
				if !ok {
					return &UnknownFieldError{File: file, Field: "tools." + id + ".config"}
				}
				tc.Config = configTable
			case "backend":
				if s, ok := value.(string); ok {
					tc.Backend = s
				}
			default:
				return &UnknownFieldError{File: file, Field: "tools." + id + "." + key}
			}
		}
		cfg.Tools[id] = tc
	}
	return nil
}

// parseEnvTable splits an `[env]` or `[tools.<id>.env]` table into
// EnvEntry values plus any `file` declaration, resolving a relative file
// path against the config file's directory and computing the weight
// spec.md §3 defines: len(config file path)*10 + (5 if tool-scoped).
func parseEnvTable(file string, table map[string]any, toolScoped bool) (map[string]EnvEntry, []EnvFileRef, error) {
	entries := map[string]EnvEntry{}
	var files []EnvFileRef
	for key, value := range table {
		if key == "file" {
			paths, err := envFilePaths(value)
			if err != nil {
				return nil, nil, &UnknownFieldError{File: file, Field: "env.file"}
			}
			for _, p := range paths {
				if !filepath.IsAbs(p) {
					p = filepath.Join(filepath.Dir(file), p)
				}
				weight := len(file) * 10
				if toolScoped {
					weight += 5
				}
				files = append(files, EnvFileRef{Path: p, Weight: weight})
			}
			continue
		}
		switch v := value.(type) {
		case bool:
			entries[key] = EnvEntry{IsState: true, State: v}
		case string:
			entries[key] = EnvEntry{Value: v}
		case int64:
			entries[key] = EnvEntry{Value: strconv.FormatInt(v, 10)}
		default:
			return nil, nil, &UnknownFieldError{File: file, Field: "env." + key}
		}
	}
	return entries, files, nil
}

func envFilePaths(value any) ([]string, error) {
	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []any:
		paths := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("env.file entries must be strings")
			}
			paths = append(paths, s)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("env.file must be a string or list of strings")
	}
}

func parseSettings(file, dir string, table map[string]any) (Settings, error) {
	s := Settings{URLRewrites: map[string]string{}}
	for key, value := range table {
		switch key {
		case "auto-install":
			s.AutoInstall, _ = value.(bool)
		case "auto-clean":
			s.AutoClean, _ = value.(bool)
		case "detect-strategy":
			str, _ := value.(string)
			strategy, err := ParseDetectStrategy(str)
			if err != nil {
				return s, &UnknownFieldError{File: file, Field: "settings.detect-strategy"}
			}
			s.DetectStrategy = strategy
		case "pin-latest":
			s.PinLatest, _ = value.(string)
		case "telemetry":
			s.Telemetry, _ = value.(bool)
		case "lockfile":
			s.Lockfile, _ = value.(bool)
		case "builtin-plugins":
			s.BuiltinPlugins = value
		case "url-rewrites":
			if table, ok := value.(map[string]any); ok {
				for k, v := range table {
					if str, ok := v.(string); ok {
						s.URLRewrites[k] = str
					}
				}
			}
		case "http":
			if table, ok := value.(map[string]any); ok {
				if cert, ok := table["root-cert"].(string); ok && cert != "" {
					if !filepath.IsAbs(cert) {
						cert = filepath.Join(dir, cert)
					}
					s.HTTP.RootCert = cert
				}
				if proxies, ok := table["proxies"].([]any); ok {
					for _, p := range proxies {
						if str, ok := p.(string); ok {
							s.HTTP.Proxies = append(s.HTTP.Proxies, str)
						}
					}
				}
			}
		case "offline":
			if table, ok := value.(map[string]any); ok {
				if hosts, ok := table["custom-hosts"].([]any); ok {
					for _, h := range hosts {
						if str, ok := h.(string); ok {
							s.Offline.CustomHosts = append(s.Offline.CustomHosts, str)
						}
					}
				}
			}
		case "build":
			if table, ok := value.(map[string]any); ok {
				if enabled, ok := table["enabled"].(bool); ok {
					s.Build.Enabled = enabled
				}
			}
		case "registries":
			if list, ok := value.([]any); ok {
				for _, item := range list {
					table, ok := item.(map[string]any)
					if !ok {
						continue
					}
					rb := RegistryBackend{}
					if name, ok := table["registry"].(string); ok {
						rb.Registry = name
					}
					if verify, ok := table["verify"].(bool); ok {
						rb.Verify = verify
					}
					s.Registries = append(s.Registries, rb)
				}
			}
		default:
			return s, &UnknownFieldError{File: file, Field: "settings." + key}
		}
	}
	return s, nil
}
