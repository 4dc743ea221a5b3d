package resolve

import (
	"context"
	"testing"

	wasmplugin "github.com/grove-tools/grove/internal/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// registerAwarePlugin extends fakePlugin with RegisterTool, so it can
// satisfy gitCatalogSource for loadVersionsOrGitTags's dispatch tests.
type registerAwarePlugin struct {
	fakePlugin
	gitURL        string
	loadVersions  func() Catalog
	loadVersionsN int
}

func (p *registerAwarePlugin) RegisterTool(context.Context) (wasmplugin.RegisterToolOutput, error) {
	return wasmplugin.RegisterToolOutput{GitURL: p.gitURL}, nil
}

func (p *registerAwarePlugin) CallFunc(ctx context.Context, name string, input, output any) error {
	if name == "load_versions" {
		p.loadVersionsN++
		*output.(*Catalog) = p.loadVersions()
		return nil
	}
	return p.fakePlugin.CallFunc(ctx, name, input, output)
}

func TestLoadVersionsOrGitTags_UsesLoadVersionsWhenNoGitURLDeclared(t *testing.T) {
	p := &registerAwarePlugin{loadVersions: func() Catalog { return Catalog{Versions: []string{"1.0.0"}} }}
	cat, err := loadVersionsOrGitTags(context.Background(), p, "node")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0"}, cat.Versions)
	assert.Equal(t, 1, p.loadVersionsN)
}

func TestLoadVersionsOrGitTags_GitURLDeclaredSkipsLoadVersions(t *testing.T) {
	p := &registerAwarePlugin{
		gitURL: "not-a-real-repository-url",
		loadVersions: func() Catalog {
			t.Fatal("load_versions should not be called when git_url is declared")
			return Catalog{}
		},
	}
	_, _ = loadVersionsOrGitTags(context.Background(), p, "node")
	assert.Equal(t, 0, p.loadVersionsN)
}

func TestLoadVersionsOrGitTags_PlainPluginCallerSkipsGitFallback(t *testing.T) {
	// fakePlugin (from resolve_test.go) has no RegisterTool method, so it
	// can't satisfy gitCatalogSource at all — load_versions always runs.
	p := &fakePlugin{}
	_, err := loadVersionsOrGitTags(context.Background(), p, "node")
	require.NoError(t, err) // fakePlugin.CallFunc no-ops on unknown names, leaving an empty Catalog
}
