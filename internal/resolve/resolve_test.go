package resolve

import (
	"context"
	"testing"

	"github.com/grove-tools/grove/internal/groveerrors"
	"github.com/grove-tools/grove/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlugin is a minimal PluginCaller double: resolveVersion nil means
// "no resolve_version hook exported".
type fakePlugin struct {
	resolveVersion func(resolveVersionInput) resolveVersionOutput
}

func (f *fakePlugin) HasFunc(_ context.Context, name string) (bool, error) {
	return name == "resolve_version" && f.resolveVersion != nil, nil
}

func (f *fakePlugin) CallFunc(_ context.Context, name string, input, output any) error {
	if name == "resolve_version" {
		in := input.(resolveVersionInput)
		out := f.resolveVersion(in)
		*output.(*resolveVersionOutput) = out
	}
	return nil
}

func (f *fakePlugin) CacheFunc(ctx context.Context, name string, input, output any) error {
	return f.CallFunc(ctx, name, input, output)
}

func mustParse(t *testing.T, s string) version.UnresolvedSpec {
	t.Helper()
	spec, err := version.ParseUnresolved(s)
	require.NoError(t, err)
	return spec
}

func TestResolve_ShortCircuitsFullyQualifiedSemantic(t *testing.T) {
	p := &fakePlugin{}
	spec := mustParse(t, "1.2.3")
	resolved, err := Resolve(context.Background(), p, nil, spec, Options{ToolID: "node", ShortCircuit: true})
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", resolved.Version.String())
}

func TestResolve_ShortCircuitsCanary(t *testing.T) {
	p := &fakePlugin{}
	spec := mustParse(t, "canary")
	resolved, err := Resolve(context.Background(), p, nil, spec, Options{ToolID: "node", ShortCircuit: true})
	require.NoError(t, err)
	assert.Equal(t, version.SpecCanary, resolved.Kind)
}

func TestResolve_RequirementPicksHighestDescending(t *testing.T) {
	p := &fakePlugin{}
	catalog := &Catalog{Versions: []string{"1.0.0", "1.2.0", "1.2.5", "2.0.0"}}
	spec := mustParse(t, "~1.2")
	resolved, err := Resolve(context.Background(), p, catalog, spec, Options{ToolID: "node"})
	require.NoError(t, err)
	assert.Equal(t, "1.2.5", resolved.Version.String())
}

func TestResolve_RequirementExcludesPrereleaseUnlessRequested(t *testing.T) {
	p := &fakePlugin{}
	catalog := &Catalog{Versions: []string{"1.2.0", "1.3.0-beta.1"}}
	spec := mustParse(t, "^1")
	resolved, err := Resolve(context.Background(), p, catalog, spec, Options{ToolID: "node"})
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", resolved.Version.String())
}

func TestResolve_AliasRecursesThroughUserThenCatalogAliases(t *testing.T) {
	p := &fakePlugin{}
	catalog := &Catalog{
		Versions: []string{"1.2.3", "2.0.0"},
		Aliases:  map[string]string{"stable": "1.2.3"},
	}
	spec := mustParse(t, "lts")
	opts := Options{ToolID: "node", UserAliases: map[string]string{"lts": "stable"}}
	resolved, err := Resolve(context.Background(), p, catalog, spec, opts)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", resolved.Version.String())
}

func TestResolve_UnknownAliasFails(t *testing.T) {
	p := &fakePlugin{}
	catalog := &Catalog{Versions: []string{"1.0.0"}}
	spec := mustParse(t, "nonexistent-alias")
	_, err := Resolve(context.Background(), p, catalog, spec, Options{ToolID: "node"})
	require.Error(t, err)
	var tagged *groveerrors.Error
	require.ErrorAs(t, err, &tagged)
	assert.Equal(t, groveerrors.KindUnknownAlias, tagged.Kind)
}

func TestResolve_CyclicAliasFails(t *testing.T) {
	p := &fakePlugin{}
	catalog := &Catalog{Aliases: map[string]string{"a": "b", "b": "a"}}
	spec := mustParse(t, "a")
	_, err := Resolve(context.Background(), p, catalog, spec, Options{ToolID: "node"})
	require.Error(t, err)
}

func TestResolve_NoMatchReturnsVersionResolveFailed(t *testing.T) {
	p := &fakePlugin{}
	catalog := &Catalog{Versions: []string{"1.0.0"}}
	spec := mustParse(t, "^5")
	_, err := Resolve(context.Background(), p, catalog, spec, Options{ToolID: "node"})
	require.Error(t, err)
	var tagged *groveerrors.Error
	require.ErrorAs(t, err, &tagged)
	assert.Equal(t, groveerrors.KindVersionResolveFailed, tagged.Kind)
}

func TestResolve_PluginResolveVersionHookCandidateSubstitution(t *testing.T) {
	p := &fakePlugin{
		resolveVersion: func(in resolveVersionInput) resolveVersionOutput {
			return resolveVersionOutput{Candidate: "~1.2"}
		},
	}
	catalog := &Catalog{Versions: []string{"1.2.0", "1.2.9"}}
	spec := mustParse(t, "lts-ish")
	resolved, err := Resolve(context.Background(), p, catalog, spec, Options{ToolID: "node"})
	require.NoError(t, err)
	assert.Equal(t, "1.2.9", resolved.Version.String())
}

func TestResolve_PluginResolveVersionHookExactVersion(t *testing.T) {
	p := &fakePlugin{
		resolveVersion: func(in resolveVersionInput) resolveVersionOutput {
			return resolveVersionOutput{Version: "3.4.5"}
		},
	}
	spec := mustParse(t, "lts-ish")
	resolved, err := Resolve(context.Background(), p, nil, spec, Options{ToolID: "node"})
	require.NoError(t, err)
	assert.Equal(t, "3.4.5", resolved.Version.String())
}

func TestResolve_WithManifestRestrictsToInstalled(t *testing.T) {
	p := &fakePlugin{}
	catalog := &Catalog{Versions: []string{"1.0.0", "1.1.0", "1.2.0"}}
	v110, err := version.NewVersion(version.FamilySemantic, "1.1.0")
	require.NoError(t, err)
	spec := mustParse(t, "^1")
	resolved, err := Resolve(context.Background(), p, catalog, spec, Options{
		ToolID: "node", WithManifest: true, Installed: []version.Version{v110},
	})
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", resolved.Version.String())
}
