package resolve

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"github.com/grove-tools/grove/internal/groveerrors"
	"github.com/grove-tools/grove/internal/version"
)

// GitTagCatalog builds a Catalog from a git repository's tags, for plugins
// whose register_tool declares a git_url instead of implementing
// load_versions — SPEC_FULL.md's supplement #4.
//
// Grounded on _examples/original_source/crates/core/src/resolver.rs's
// load_git_tags (the `git ls-remote --tags --sort version:refname <url>`
// invocation and refs/tags/ stripping) and
// create_version_manifest_from_tags (the highest-tag-wins "latest" alias).
// tagPattern, when non-empty, is a regexp whose first capture group extracts
// the version from a tag (e.g. "@moonrepo/cli@1.0.0" -> "1.0.0"); empty
// means the whole tag is the version.
func GitTagCatalog(ctx context.Context, toolID, url, tagPattern string) (*Catalog, error) {
	tags, err := listGitTags(ctx, url)
	if err != nil {
		return nil, groveerrors.Wrap(groveerrors.KindVersionResolveFailed, toolID, err)
	}
	cat, err := catalogFromTags(tags, tagPattern)
	if err != nil {
		return nil, groveerrors.Wrap(groveerrors.KindVersionResolveFailed, toolID, err)
	}
	return cat, nil
}

// catalogFromTags is GitTagCatalog's pure tag-list-to-Catalog step, split
// out so it's testable without shelling out to git.
func catalogFromTags(tags []string, tagPattern string) (*Catalog, error) {
	var pattern *regexp.Regexp
	if tagPattern != "" {
		compiled, err := regexp.Compile(tagPattern)
		if err != nil {
			return nil, err
		}
		pattern = compiled
	}

	cat := &Catalog{Aliases: map[string]string{}}
	seen := map[string]bool{}
	var latest version.Version
	haveLatest := false

	for _, tag := range tags {
		raw := strings.TrimSuffix(tag, "^{}") // dereferenced annotated-tag marker
		if pattern != nil {
			m := pattern.FindStringSubmatch(raw)
			if len(m) < 2 {
				continue
			}
			raw = m[1]
		}

		v, err := version.NewVersion(version.FamilySemantic, raw)
		if err != nil {
			continue // non-version tags are skipped, matching the original
		}
		if seen[v.String()] {
			continue
		}
		seen[v.String()] = true
		cat.Versions = append(cat.Versions, v.String())
		if !haveLatest || v.Compare(latest) > 0 {
			latest, haveLatest = v, true
		}
	}

	sort.Slice(cat.Versions, func(i, j int) bool {
		vi, _ := version.NewVersion(version.FamilySemantic, cat.Versions[i])
		vj, _ := version.NewVersion(version.FamilySemantic, cat.Versions[j])
		return vi.LessThan(vj)
	})

	if haveLatest {
		cat.Latest = latest.String()
		cat.Aliases["latest"] = latest.String()
	}
	return cat, nil
}

func listGitTags(ctx context.Context, url string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-remote", "--tags", "--sort", "version:refname", url)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}

	var tags []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) < 2 {
			continue
		}
		ref := strings.TrimPrefix(parts[1], "refs/tags/")
		ref = strings.TrimSuffix(ref, "^{}") // dereferenced annotated-tag marker
		tags = append(tags, ref)
	}
	return tags, nil
}
