package version

import "strings"

// SpecKind tags which arm of the version-spec sum a Spec value holds, per
// spec.md §3's "Version spec" tagged sum.
type SpecKind int

const (
	SpecSemantic SpecKind = iota
	SpecCalendar
	SpecAlias
	SpecCanary
	SpecRequirement
)

// UnresolvedSpec is the parsed form of whatever a user types for a tool
// pin: a fully-specified version, an alias, the canary channel, or an
// AND/OR requirement range. Req is only populated when Kind ==
// SpecRequirement; Version is only populated for Semantic/Calendar; Alias
// is only populated for SpecAlias.
type UnresolvedSpec struct {
	Kind    SpecKind
	Version Version
	Req     Requirement
	Alias   string
}

// ResolvedSpec is a fully-specified version spec: either a concrete
// Semantic/Calendar version, an alias awaiting plugin resolution, or the
// canary channel. It never holds a Requirement (ResolvedSpec by
// definition no longer admits ranges).
type ResolvedSpec struct {
	Kind    SpecKind
	Version Version
	Alias   string
}

const canaryLiteral = "canary"

// isAliasLike reports whether s cannot possibly be version grammar and
// must instead be a bare alias name (e.g. "latest", "stable", "lts/gallium").
// The grammar only ever emits letters inside pre-release/build segments
// (after a '-' or '+') or as the leading 'v'/'V' strip; an input that opens
// with a letter other than v/V, or contains no digits at all, is an alias.
func isAliasLike(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "*" {
		return false
	}
	first := rune(trimmed[0])
	if first == 'v' || first == 'V' {
		// Could still be "v" + alias text (rare) but the grammar strips a
		// single leading v/V, so re-check the remainder.
		trimmed = trimmed[1:]
		if trimmed == "" {
			return true
		}
		first = rune(trimmed[0])
	}
	if first >= '0' && first <= '9' {
		return false
	}
	switch first {
	case '=', '~', '^', '>', '<', '*':
		return false
	}
	return true
}

// ParseUnresolved implements parse_unresolved from spec.md §4.1: it accepts
// the full grammar (exact versions, partial versions widened to a range,
// AND/OR requirement composition, calendar dates, aliases, and the bare
// canary literal).
func ParseUnresolved(s string) (UnresolvedSpec, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "*" {
		return UnresolvedSpec{Kind: SpecRequirement, Req: Requirement{}}, nil
	}
	if strings.EqualFold(trimmed, canaryLiteral) {
		return UnresolvedSpec{Kind: SpecCanary}, nil
	}
	if isAliasLike(trimmed) {
		return UnresolvedSpec{Kind: SpecAlias, Alias: trimmed}, nil
	}

	if !strings.Contains(trimmed, "|") && !hasClauseSeparator(trimmed) {
		fields, err := grammarParseFields(strings.TrimPrefix(strings.TrimPrefix(trimmed, "v"), "V"))
		if err != nil {
			return UnresolvedSpec{}, err
		}
		if fields.reqOp == "" && fields.hasMinor && fields.hasPatch {
			v, err := newVersionFromFields(fields)
			if err != nil {
				return UnresolvedSpec{}, err
			}
			kind := SpecSemantic
			if fields.wasCalver {
				kind = SpecCalendar
			}
			return UnresolvedSpec{Kind: kind, Version: v}, nil
		}
	}

	branches, err := grammarParseMulti(trimmed)
	if err != nil {
		return UnresolvedSpec{}, err
	}
	return UnresolvedSpec{Kind: SpecRequirement, Req: ParseRequirement(branches)}, nil
}

// ParseResolved implements parse_resolved from spec.md §4.1: it fails
// unless the input is a fully-specified SemVer/CalVer triple or an alias;
// bare partials, wildcards, and requirement ranges are rejected.
func ParseResolved(s string) (ResolvedSpec, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ResolvedSpec{}, &ParseError{Kind: ErrMissingMajor, Input: s}
	}
	if strings.EqualFold(trimmed, canaryLiteral) {
		return ResolvedSpec{Kind: SpecCanary}, nil
	}
	if isAliasLike(trimmed) {
		return ResolvedSpec{Kind: SpecAlias, Alias: trimmed}, nil
	}

	fields, err := grammarParseFields(strings.TrimPrefix(strings.TrimPrefix(trimmed, "v"), "V"))
	if err != nil {
		return ResolvedSpec{}, err
	}
	if fields.reqOp != "" || !fields.hasMinor || !fields.hasPatch {
		return ResolvedSpec{}, &ParseError{Kind: ErrMissingMajor, Input: s}
	}
	v, err := newVersionFromFields(fields)
	if err != nil {
		return ResolvedSpec{}, err
	}
	kind := SpecSemantic
	if fields.wasCalver {
		kind = SpecCalendar
	}
	return ResolvedSpec{Kind: kind, Version: v}, nil
}

// String renders the canonical form of an UnresolvedSpec. Re-parsing it
// with ParseUnresolved must round-trip without semantic change, per
// spec.md §3's invariant.
func (s UnresolvedSpec) String() string {
	switch s.Kind {
	case SpecCanary:
		return canaryLiteral
	case SpecAlias:
		return s.Alias
	case SpecRequirement:
		return s.Req.String()
	default:
		return s.Version.String()
	}
}

func (s ResolvedSpec) String() string {
	switch s.Kind {
	case SpecCanary:
		return canaryLiteral
	case SpecAlias:
		return s.Alias
	default:
		return s.Version.String()
	}
}

// IsLatest implements is_latest from spec.md §4.1: true for the literal
// alias "latest"; resolution against a plugin's declared latest version
// happens one layer up, in the resolver (C8), which matches the "latest"
// alias itself rather than calling this.
func (s UnresolvedSpec) IsLatest() bool {
	return s.Kind == SpecAlias && strings.EqualFold(s.Alias, "latest")
}

func (s ResolvedSpec) IsLatest() bool {
	return s.Kind == SpecAlias && strings.EqualFold(s.Alias, "latest")
}
