package shim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistry_MissingFileReturnsEmpty(t *testing.T) {
	reg, err := loadRegistry(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)
	assert.Empty(t, reg)
}

func TestSaveLoadRegistry_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg := Registry{"node": "node", "npx": "node", "zig": "zig"}

	require.NoError(t, saveRegistry(path, reg))

	loaded, err := loadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, reg, loaded)
}

func TestSaveRegistry_SortsKeysDeterministically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, saveRegistry(path, Registry{"zig": "zig", "node": "node"}))

	data1, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, saveRegistry(path, Registry{"node": "node", "zig": "zig"}))
	data2, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, data1, data2)
}
