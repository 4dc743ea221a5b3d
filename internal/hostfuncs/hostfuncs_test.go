package hostfuncs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackUnpackPtrLen_RoundTrips(t *testing.T) {
	packed := packPtrLen(1234, 5678)
	ptr, length := unpackPtrLen(packed)
	assert.Equal(t, uint32(1234), ptr)
	assert.Equal(t, uint32(5678), length)
}

func TestHasPathSeparator(t *testing.T) {
	assert.True(t, hasPathSeparator("/proto/tools/node/bin/node"))
	assert.True(t, hasPathSeparator(`C:\proto\node.exe`))
	assert.False(t, hasPathSeparator("node"))
}

func TestEnvTable_SeedAndRoundTrip(t *testing.T) {
	tbl := NewEnvTable([]string{"FOO=bar", "PATH=/usr/bin"})
	assert.Equal(t, "bar", tbl.Get("FOO"))
	tbl.Set("BAZ", "qux")
	assert.Equal(t, "qux", tbl.Get("BAZ"))
	assert.Contains(t, tbl.Environ(), "BAZ=qux")
}
