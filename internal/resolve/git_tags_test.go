package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogFromTags_SkipsNonVersionTagsAndPicksLatest(t *testing.T) {
	cat, err := catalogFromTags([]string{"v1.0.0", "v1.2.0^{}", "nightly", "v1.1.0"}, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1.0.0", "1.1.0", "1.2.0"}, cat.Versions)
	assert.Equal(t, "1.2.0", cat.Latest)
	assert.Equal(t, "1.2.0", cat.Aliases["latest"])
}

func TestCatalogFromTags_AppliesTagPatternCaptureGroup(t *testing.T) {
	cat, err := catalogFromTags(
		[]string{"@moonrepo/cli@1.0.0", "@moonrepo/cli@1.2.0", "some-other-tag"},
		`^@moonrepo/cli@((\d+)\.(\d+)\.(\d+))`,
	)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1.0.0", "1.2.0"}, cat.Versions)
	assert.Equal(t, "1.2.0", cat.Latest)
}

func TestCatalogFromTags_DedupesRepeatedVersions(t *testing.T) {
	cat, err := catalogFromTags([]string{"v1.0.0", "1.0.0"}, "")
	require.NoError(t, err)
	assert.Len(t, cat.Versions, 1)
}
