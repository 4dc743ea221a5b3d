package groveconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_VersionsAndPlugins(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".prototools", `
node = "20.1.0"
"asdf:python" = "3.12"

[plugins]
local-tool = "./tools/local.wasm"
remote-tool = "https://example.com/tool.wasm"
gh-tool = "github://acme/tool@v2"
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "20.1.0", cfg.Versions["node"].Req)
	assert.Equal(t, "asdf", cfg.Versions["asdf:python"].Backend)

	require.Contains(t, cfg.Plugins, "local-tool")
	assert.Equal(t, LocatorFile, cfg.Plugins["local-tool"].Kind)
	assert.Equal(t, filepath.Join(dir, "tools/local.wasm"), cfg.Plugins["local-tool"].Path)

	assert.Equal(t, LocatorURL, cfg.Plugins["remote-tool"].Kind)

	gh := cfg.Plugins["gh-tool"]
	assert.Equal(t, LocatorGitHub, gh.Kind)
	assert.Equal(t, "acme/tool", gh.Repo)
	assert.Equal(t, "v2", gh.Tag)
}

func TestLoadFile_RejectsReservedPluginID(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".prototools", `
[plugins]
proto = "./x.wasm"
`)
	_, err := LoadFile(path)
	require.Error(t, err)
	var reserved *ReservedPluginIDError
	assert.ErrorAs(t, err, &reserved)
}

func TestLoadFile_RejectsUnknownTopLevelField(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".prototools", `
"not-a-valid-key!" = "1.0"
`)
	_, err := LoadFile(path)
	require.Error(t, err)
	var unknown *UnknownFieldError
	assert.ErrorAs(t, err, &unknown)
}

func TestLoadFile_MissingEnvFileIsError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".prototools", `
[env]
file = "missing.env"
`)
	_, err := LoadFile(path)
	require.Error(t, err)
	var missing *MissingEnvFileError
	assert.ErrorAs(t, err, &missing)
}

func TestLoadFile_EnvFileWeightIsToolScopedHeavier(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shared.env", "FOO=bar\n")
	path := writeFile(t, dir, ".prototools", `
[env]
file = "shared.env"

[tools.node.env]
file = "shared.env"
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.EnvFiles, 1)
	require.Len(t, cfg.Tools["node"].EnvFiles, 1)
	assert.Greater(t, cfg.Tools["node"].EnvFiles[0].Weight, cfg.EnvFiles[0].Weight)
}

func TestLoadFile_EnvEntryStateVsValue(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".prototools", `
[env]
ENABLE_FOO = true
NAME = "value"
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.Env["ENABLE_FOO"].IsState)
	assert.True(t, cfg.Env["ENABLE_FOO"].State)
	assert.False(t, cfg.Env["NAME"].IsState)
	assert.Equal(t, "value", cfg.Env["NAME"].Value)
}

func TestLoadFile_SettingsParsed(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".prototools", `
[settings]
auto-install = true
detect-strategy = "prefer-prototools"
lockfile = true

[settings.offline]
custom-hosts = ["internal.example.com"]
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.Settings.AutoInstall)
	assert.Equal(t, DetectPreferPrototools, cfg.Settings.DetectStrategy)
	assert.True(t, cfg.Settings.Lockfile)
	assert.Equal(t, []string{"internal.example.com"}, cfg.Settings.Offline.CustomHosts)
}

func TestParseRegistryLocator(t *testing.T) {
	loc := parseRegistryLocator("npm/left-pad")
	assert.Equal(t, LocatorRegistry, loc.Kind)
	assert.Equal(t, "npm", loc.Registry)
	assert.Equal(t, "left-pad", loc.Ref)

	bare := parseRegistryLocator("left-pad")
	assert.Equal(t, "", bare.Registry)
	assert.Equal(t, "left-pad", bare.Ref)
}
