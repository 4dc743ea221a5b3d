package resolve

import (
	"context"
	"sort"
	"strings"

	"github.com/grove-tools/grove/internal/groveerrors"
	"github.com/grove-tools/grove/internal/version"
)

// Options configures one Resolve call.
type Options struct {
	// ToolID names the tool whose catalog/aliases are in play, used only
	// for error tagging.
	ToolID string
	// UserAliases is the effective `tools.<id>.aliases` table, consulted
	// before the plugin's own aliases.
	UserAliases map[string]string
	// Installed lists locally-installed versions for this tool, used to
	// restrict Req candidates when WithManifest is set.
	Installed []version.Version
	// WithManifest restricts Req matching to Installed versions.
	WithManifest bool
	// ShortCircuit returns Canary/fully-qualified specs verbatim without
	// consulting the plugin or catalog (the default per spec.md §4.8).
	ShortCircuit bool
}

// resolveVersionInput/Output mirror the optional resolve_version plugin
// hook from spec.md §4.4.
type resolveVersionInput struct {
	Initial string `json:"initial"`
}
type resolveVersionOutput struct {
	Candidate string `json:"candidate"`
	Version   string `json:"version"`
}

// Resolve implements the C8 algorithm: short-circuit, optional plugin
// resolve_version hook, alias recursion, then Req/partial matching against
// the catalog.
func Resolve(ctx context.Context, plugin PluginCaller, catalog *Catalog, spec version.UnresolvedSpec, opts Options) (version.ResolvedSpec, error) {
	if opts.ShortCircuit {
		if spec.Kind == version.SpecCanary {
			return version.ResolvedSpec{Kind: version.SpecCanary}, nil
		}
		// ParseUnresolved only ever tags a spec Semantic/Calendar once it has
		// a full major.minor.patch triple (partials fall through to
		// SpecRequirement instead), so these two kinds are always
		// fully-qualified here.
		if spec.Kind == version.SpecSemantic || spec.Kind == version.SpecCalendar {
			return version.ResolvedSpec{Kind: spec.Kind, Version: spec.Version}, nil
		}
	}

	initial := spec.String()
	hasHook, err := plugin.HasFunc(ctx, "resolve_version")
	if err != nil {
		return version.ResolvedSpec{}, groveerrors.Wrap(groveerrors.KindPluginCallFailed, opts.ToolID, err)
	}
	if hasHook {
		var out resolveVersionOutput
		if err := plugin.CallFunc(ctx, "resolve_version", resolveVersionInput{Initial: initial}, &out); err != nil {
			return version.ResolvedSpec{}, groveerrors.Wrap(groveerrors.KindPluginCallFailed, opts.ToolID, err)
		}
		if out.Version != "" {
			resolved, err := version.ParseResolved(out.Version)
			if err != nil {
				return version.ResolvedSpec{}, groveerrors.Wrap(groveerrors.KindVersionParse, opts.ToolID, err)
			}
			return resolved, nil
		}
		if out.Candidate != "" {
			substituted, err := version.ParseUnresolved(out.Candidate)
			if err != nil {
				return version.ResolvedSpec{}, groveerrors.Wrap(groveerrors.KindVersionParse, opts.ToolID, err)
			}
			spec = substituted
		}
	}

	return resolveAgainstCatalog(catalog, spec, opts, map[string]bool{})
}

func resolveAgainstCatalog(catalog *Catalog, spec version.UnresolvedSpec, opts Options, visitedAliases map[string]bool) (version.ResolvedSpec, error) {
	switch spec.Kind {
	case version.SpecCanary:
		return version.ResolvedSpec{Kind: version.SpecCanary}, nil

	case version.SpecAlias:
		return resolveAlias(catalog, spec.Alias, opts, visitedAliases)

	case version.SpecRequirement:
		return resolveRequirement(catalog, spec.Req, opts)

	case version.SpecSemantic, version.SpecCalendar:
		if isFullyQualified(spec) {
			return version.ResolvedSpec{Kind: spec.Kind, Version: spec.Version}, nil
		}
		// Partial Semantic/Calendar: treat as a "~X[.Y]" range per spec.md §4.8 step 5.
		req := partialAsRequirement(spec.Version)
		return resolveRequirement(catalog, req, opts)

	default:
		return version.ResolvedSpec{}, groveerrors.Newf(groveerrors.KindVersionResolveFailed, "unrecognized spec kind for %s", opts.ToolID)
	}
}

// resolveAlias looks up alias in user aliases, then plugin aliases,
// recursing on alias-of-alias chains with cycle detection.
func resolveAlias(catalog *Catalog, alias string, opts Options, visited map[string]bool) (version.ResolvedSpec, error) {
	if visited[alias] {
		return version.ResolvedSpec{}, groveerrors.Newf(groveerrors.KindUnknownAlias, "cyclic alias chain at %q for %s", alias, opts.ToolID)
	}
	visited[alias] = true

	target, ok := opts.UserAliases[alias]
	if !ok && catalog != nil {
		target, ok = catalog.Aliases[alias]
	}
	if !ok {
		if catalog != nil && strings.EqualFold(alias, "latest") && catalog.Latest != "" {
			target, ok = catalog.Latest, true
		}
	}
	if !ok {
		return version.ResolvedSpec{}, groveerrors.Newf(groveerrors.KindUnknownAlias, "unknown alias %q for %s", alias, opts.ToolID).WithTool(opts.ToolID)
	}

	next, err := version.ParseUnresolved(target)
	if err != nil {
		return version.ResolvedSpec{}, groveerrors.Wrap(groveerrors.KindVersionParse, opts.ToolID, err)
	}
	if next.Kind == version.SpecAlias {
		return resolveAlias(catalog, next.Alias, opts, visited)
	}
	return resolveAgainstCatalog(catalog, next, opts, visited)
}

// resolveRequirement iterates candidate versions in descending order,
// returning the first that satisfies any OR branch of req. Pre-release
// candidates are excluded unless req explicitly names one.
func resolveRequirement(catalog *Catalog, req version.Requirement, opts Options) (version.ResolvedSpec, error) {
	if catalog == nil {
		return version.ResolvedSpec{}, groveerrors.New(groveerrors.KindVersionResolveFailed, "no catalog available for "+opts.ToolID)
	}

	candidates := catalog.Versions
	if opts.WithManifest {
		candidates = installedStrings(opts.Installed)
	}

	parsed := make([]version.Version, 0, len(candidates))
	for _, c := range candidates {
		v, err := parseCatalogVersion(c)
		if err != nil {
			continue
		}
		if v.Prerelease() != "" && !requirementAllowsPrerelease(req) {
			continue
		}
		parsed = append(parsed, v)
	}

	sort.Slice(parsed, func(i, j int) bool { return parsed[j].LessThan(parsed[i]) })

	for _, v := range parsed {
		ok, err := req.Matches(v)
		if err != nil {
			return version.ResolvedSpec{}, groveerrors.Wrap(groveerrors.KindVersionResolveFailed, opts.ToolID, err)
		}
		if ok {
			return version.ResolvedSpec{Kind: kindForVersion(v), Version: v}, nil
		}
	}

	return version.ResolvedSpec{}, groveerrors.Newf(groveerrors.KindVersionResolveFailed, "no version of %s satisfies %s", opts.ToolID, req.String()).WithTool(opts.ToolID)
}

func requirementAllowsPrerelease(req version.Requirement) bool {
	for _, branch := range req.Branches {
		if strings.Contains(branch, "-") {
			return true
		}
	}
	return false
}

func installedStrings(vs []version.Version) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

func parseCatalogVersion(s string) (version.Version, error) {
	family := version.FamilySemantic
	if looksLikeCalendar(s) {
		family = version.FamilyCalendar
	}
	return version.NewVersion(family, strings.TrimPrefix(strings.TrimPrefix(s, "v"), "V"))
}

func looksLikeCalendar(s string) bool {
	return strings.Count(s, "-") >= 2 && !strings.Contains(s, ".")
}

func kindForVersion(v version.Version) version.SpecKind {
	if v.Family == version.FamilyCalendar {
		return version.SpecCalendar
	}
	return version.SpecSemantic
}

func isFullyQualified(spec version.UnresolvedSpec) bool {
	return spec.Kind == version.SpecSemantic || spec.Kind == version.SpecCalendar
}

// partialAsRequirement widens a partial version (only major, or
// major.minor already folded into Version with zeroed trailing fields by
// the grammar) into the equivalent "~X[.Y]" tilde-range requirement.
func partialAsRequirement(v version.Version) version.Requirement {
	branch := "~" + v.Core()
	return version.ParseRequirement([]string{branch})
}
