package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grove-tools/grove/internal/groveconfig"
	"github.com/grove-tools/grove/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTool(t *testing.T, installedDirs ...string) *Tool {
	home := t.TempDir()
	st := store.New(home)
	for _, v := range installedDirs {
		require.NoError(t, os.MkdirAll(st.InstallDir("node", v), 0o755))
	}
	return &Tool{
		id: "node",
		session: &Session{
			Store:  st,
			Merged: &groveconfig.Merged{Tools: map[string]groveconfig.MergedToolConfig{}},
		},
	}
}

func TestInstalledVersions_SortsDescending(t *testing.T) {
	tool := newTestTool(t, "18.0.0", "20.1.0", "19.5.2")
	versions := tool.installedVersions()
	require.Len(t, versions, 3)
	assert.Equal(t, "20.1.0", versions[0].String())
	assert.Equal(t, "19.5.2", versions[1].String())
	assert.Equal(t, "18.0.0", versions[2].String())
}

func TestInstalledVersions_IgnoresNonVersionEntries(t *testing.T) {
	tool := newTestTool(t, "20.1.0")
	stray := filepath.Join(tool.session.Store.ToolDir("node"), "manifest.json")
	require.NoError(t, os.WriteFile(stray, []byte("{}"), 0o644))

	versions := tool.installedVersions()
	require.Len(t, versions, 1)
	assert.Equal(t, "20.1.0", versions[0].String())
}

func TestInstalledVersions_EmptyWhenToolDirMissing(t *testing.T) {
	tool := newTestTool(t)
	assert.Empty(t, tool.installedVersions())
}

func TestIsSetup_ReflectsInstallDirPresence(t *testing.T) {
	tool := newTestTool(t, "20.1.0")
	assert.True(t, tool.IsSetup("20.1.0"))
	assert.False(t, tool.IsSetup("99.0.0"))
}

func TestAutoInstallEnabled_ReflectsMergedSettings(t *testing.T) {
	tool := newTestTool(t)
	assert.False(t, tool.AutoInstallEnabled())
	tool.session.Merged.Settings.AutoInstall = true
	assert.True(t, tool.AutoInstallEnabled())
}

func TestUserAliases_ReturnsToolTableWhenPresent(t *testing.T) {
	tool := newTestTool(t)
	tool.session.Merged.Tools["node"] = groveconfig.MergedToolConfig{Aliases: map[string]string{"lts": "20.1.0"}}
	assert.Equal(t, map[string]string{"lts": "20.1.0"}, tool.userAliases())
}

func TestUserAliases_NilWhenToolAbsent(t *testing.T) {
	tool := newTestTool(t)
	assert.Nil(t, tool.userAliases())
}
