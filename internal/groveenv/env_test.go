package groveenv

import (
	"os"
	"testing"

	"github.com/grove-tools/grove/internal/groveconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose_InterpolatesBracedNamesOnly(t *testing.T) {
	t.Setenv("PARENT", "xyz")

	layer := groveconfig.Layer{
		Dir: "/root", Path: "/root/.prototools", Exists: true,
		Content: &groveconfig.FileConfig{
			Env: map[string]groveconfig.EnvEntry{
				"FIRST":  {Value: "abc"},
				"SECOND": {Value: "123"},
				"THIRD":  {Value: "value-${FIRST}-${SECOND}-${PARENT}"},
				"FOURTH": {Value: "ignores-$FIRST-$PARENT"},
			},
		},
	}
	m, err := groveconfig.Merge([]groveconfig.Layer{layer}, groveconfig.ViewAll)
	require.NoError(t, err)

	composed, err := Compose(m, "")
	require.NoError(t, err)

	third, ok := composed.Get("THIRD")
	require.True(t, ok)
	require.NotNil(t, third)
	assert.Equal(t, "value-abc-123-xyz", *third)

	fourth, ok := composed.Get("FOURTH")
	require.True(t, ok)
	require.NotNil(t, fourth)
	assert.Equal(t, "ignores-$FIRST-$PARENT", *fourth)
}

func TestCompose_StateFalseUnsetsVar(t *testing.T) {
	layer := groveconfig.Layer{
		Dir: "/root", Path: "/root/.prototools", Exists: true,
		Content: &groveconfig.FileConfig{
			Env: map[string]groveconfig.EnvEntry{
				"DISABLE_TELEMETRY": {IsState: true, State: false},
				"ENABLE_FOO":        {IsState: true, State: true},
			},
		},
	}
	m, err := groveconfig.Merge([]groveconfig.Layer{layer}, groveconfig.ViewAll)
	require.NoError(t, err)

	composed, err := Compose(m, "")
	require.NoError(t, err)

	v, ok := composed.Get("DISABLE_TELEMETRY")
	require.True(t, ok)
	assert.Nil(t, v)

	enable, ok := composed.Get("ENABLE_FOO")
	require.True(t, ok)
	require.NotNil(t, enable)
	assert.Equal(t, "true", *enable)
}

func TestCompose_ProcessEnvWinsOverConfigValue(t *testing.T) {
	t.Setenv("SHARED_VAR", "from-process")

	layer := groveconfig.Layer{
		Dir: "/root", Path: "/root/.prototools", Exists: true,
		Content: &groveconfig.FileConfig{
			Env: map[string]groveconfig.EnvEntry{"SHARED_VAR": {Value: "from-config"}},
		},
	}
	m, err := groveconfig.Merge([]groveconfig.Layer{layer}, groveconfig.ViewAll)
	require.NoError(t, err)

	composed, err := Compose(m, "")
	require.NoError(t, err)

	v, ok := composed.Get("SHARED_VAR")
	require.True(t, ok)
	require.NotNil(t, v)
	assert.Equal(t, "from-process", *v)
	_ = os.Getenv("SHARED_VAR")
}
