// Package version implements the lenient version grammar described in
// spec.md §4.1 (component C1): parsing SemVer, CalVer, aliases, and AND/OR
// requirement ranges into a small set of value types, plus family-aware
// ordering.
//
// The grammar itself (grammarParse/grammarParseMulti in grammar.go) is a
// line-for-line port of the character state machine in the original Rust
// tool's unresolved_parse.rs; everything above that — the Version,
// ResolvedSpec, and UnresolvedSpec types — is our own idiomatic Go modeling of spec.md §3's tagged-sum data model,
// using github.com/Masterminds/semver/v3 to do the triple parsing and
// requirement matching once the grammar has normalized the input.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is a parsed major.minor.patch triple with optional pre-release and
// build metadata. It backs both the Semantic and Calendar families; Family
// only changes how String() renders the separators and whether the value is
// eligible to compare against the other family.
type Version struct {
	Family Family
	inner  *semver.Version
}

// NewVersion parses s (already normalized to dot-separated form) into a
// Version of the given family.
func NewVersion(family Family, s string) (Version, error) {
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		// Fall back to the lenient constructor for inputs with missing
		// minor/patch components, which StrictNewVersion rejects but the
		// grammar may still hand us (e.g. a bare "5" after widening).
		v, err = semver.NewVersion(s)
		if err != nil {
			return Version{}, &ParseError{Kind: ErrInvalidCharacter, Input: s}
		}
	}
	return Version{Family: family, inner: v}, nil
}

// newVersionFromFields builds a Version directly from the grammar's
// structured output for an exact (non-requirement) Semantic or Calendar
// spec, sidestepping the date-separator/pre-release-prefix ambiguity that
// re-parsing a flattened canonical string would have for a CalVer value
// carrying a pre-release or build suffix.
func newVersionFromFields(f grammarFields) (Version, error) {
	family := FamilySemantic
	major := f.major
	if f.wasCalver {
		family = FamilyCalendar
		year := f.major
		if year == "" {
			year = "0"
		}
		if len(year) < 4 {
			n, err := strconv.Atoi(year)
			if err != nil {
				return Version{}, &ParseError{Kind: ErrInvalidCharacter}
			}
			major = strconv.Itoa(n + 2000)
		} else {
			major = year
		}
	}

	minor, patch := "0", "0"
	if f.hasMinor {
		minor = f.minor
	}
	if f.hasPatch {
		patch = f.patch
	}

	core := fmt.Sprintf("%s.%s.%s", major, minor, patch)
	if f.pre != "" {
		core += "-" + f.pre
	}
	if f.build != "" {
		core += "+" + f.build
	}
	return NewVersion(family, core)
}

func (v Version) Major() uint64      { return v.inner.Major() }
func (v Version) Minor() uint64      { return v.inner.Minor() }
func (v Version) Patch() uint64      { return v.inner.Patch() }
func (v Version) Prerelease() string { return v.inner.Prerelease() }
func (v Version) Metadata() string   { return v.inner.Metadata() }

// Core renders the version with no pre/build suffix, using the family's
// natural separator (dots for Semantic, dashes for Calendar).
func (v Version) Core() string {
	sep := "."
	if v.Family == FamilyCalendar {
		sep = "-"
	}
	return fmt.Sprintf("%d%s%d%s%d", v.inner.Major(), sep, v.inner.Minor(), sep, v.inner.Patch())
}

func (v Version) String() string {
	out := v.Core()
	if p := v.inner.Prerelease(); p != "" {
		out += "-" + p
	}
	if m := v.inner.Metadata(); m != "" {
		out += "+" + m
	}
	return out
}

// Compare orders two versions of the same family. Comparing across families
// is a programmer error and always reports v < other (aliases/cross-family
// values are "incomparable" per spec.md §4.1; callers must not mix families
// in a sort).
func (v Version) Compare(other Version) int {
	if v.Family != other.Family {
		if v.Family < other.Family {
			return -1
		}
		return 1
	}
	return v.inner.Compare(other.inner)
}

func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }
func (v Version) Equal(other Version) bool    { return v.Family == other.Family && v.inner.Equal(other.inner) }

// semverValue exposes the underlying *semver.Version for packages (like
// resolve) that need to evaluate it against a Requirement.
func (v Version) semverValue() *semver.Version { return v.inner }

// Requirement is an AND/OR composition of comparator clauses, e.g.
// "^1.2" or ">=1.2,<2" or "^1 || ^2". Branches are stored pre-sorted
// highest-first (by natural/numeric string comparison), matching spec.md's
// "OR branches are re-sorted highest-first" canonicalization rule.
type Requirement struct {
	Branches []string
}

// ParseRequirement builds a Requirement from already-canonicalized,
// comma/||-composed text (as produced by grammarParseMulti).
func ParseRequirement(branches []string) Requirement {
	return Requirement{Branches: append([]string(nil), branches...)}
}

func (r Requirement) String() string {
	if len(r.Branches) == 0 {
		return "*"
	}
	return strings.Join(r.Branches, " || ")
}

// Matches reports whether the given resolved version satisfies at least one
// OR-branch of the requirement (each branch itself requiring all of its
// AND-joined comparator clauses to hold).
func (r Requirement) Matches(v Version) (bool, error) {
	text := r.String()
	if text == "*" {
		return true, nil
	}
	constraint, err := semver.NewConstraint(text)
	if err != nil {
		return false, fmt.Errorf("invalid requirement %q: %w", text, err)
	}
	return constraint.Check(v.semverValue()), nil
}
