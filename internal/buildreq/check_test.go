package buildreq

import (
	"context"
	"testing"

	"github.com/grove-tools/grove/internal/groveerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRequirements_NilBuildIsNoRequirements(t *testing.T) {
	results, err := CheckRequirements(context.Background(), "mytool", nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestCheckRequirements_CommandExistsOnPath_Fails(t *testing.T) {
	build := &BuildInstructionsOutput{
		Requirements: []Requirement{{Kind: RequirementCommandExistsOnPath, Command: "definitely-not-a-real-command-xyz"}},
	}
	results, err := CheckRequirements(context.Background(), "mytool", build)
	require.Error(t, err)
	var tagged *groveerrors.Error
	require.ErrorAs(t, err, &tagged)
	assert.Equal(t, groveerrors.KindRequirementsNotMet, tagged.Kind)
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
}

func TestCheckRequirements_CommandExistsOnPath_Passes(t *testing.T) {
	build := &BuildInstructionsOutput{
		Requirements: []Requirement{{Kind: RequirementCommandExistsOnPath, Command: "sh"}},
	}
	results, err := CheckRequirements(context.Background(), "mytool", build)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)
}

func TestCheckRequirements_ManualInterceptAlwaysPasses(t *testing.T) {
	build := &BuildInstructionsOutput{
		Requirements: []Requirement{{Kind: RequirementManualIntercept, URL: "https://example.com/notes"}},
	}
	results, err := CheckRequirements(context.Background(), "mytool", build)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)
}

func TestCheckRequirements_UnknownKindPassesAsInformational(t *testing.T) {
	build := &BuildInstructionsOutput{
		Requirements: []Requirement{{Kind: "some_future_kind"}},
	}
	results, err := CheckRequirements(context.Background(), "mytool", build)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)
}

func TestCheckRequirements_MultipleRequirementsAllReported(t *testing.T) {
	build := &BuildInstructionsOutput{
		Requirements: []Requirement{
			{Kind: RequirementCommandExistsOnPath, Command: "sh"},
			{Kind: RequirementCommandExistsOnPath, Command: "definitely-not-a-real-command-xyz"},
		},
	}
	results, err := CheckRequirements(context.Background(), "mytool", build)
	require.Error(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Passed)
	assert.False(t, results[1].Passed)
}
