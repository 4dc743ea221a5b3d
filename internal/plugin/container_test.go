package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSON_KeyOrderIndependent(t *testing.T) {
	a, err := canonicalJSON(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	b, err := canonicalJSON(map[string]any{"a": 2, "b": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, `{"a":2,"b":1}`, a)
}

func TestCacheKey_SameInputDifferentFieldOrderMatches(t *testing.T) {
	k1, err := cacheKey("load_versions", map[string]any{"initial": "latest", "extra": true})
	require.NoError(t, err)
	k2, err := cacheKey("load_versions", map[string]any{"extra": true, "initial": "latest"})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestCacheKey_DifferentFuncNameDiffers(t *testing.T) {
	k1, _ := cacheKey("load_versions", map[string]any{"initial": "latest"})
	k2, _ := cacheKey("resolve_version", map[string]any{"initial": "latest"})
	assert.NotEqual(t, k1, k2)
}
