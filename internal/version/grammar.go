package version

import (
	"strconv"
	"strings"
	"unicode"
)

// Family distinguishes the two version "shapes" the grammar recognizes.
// Both are stored internally as dot-separated major.minor.patch triples;
// Family only changes how the triple is rendered and whether two specs are
// allowed to be compared against each other (spec.md §4.1: "versions of the
// same family are ordered naturally; aliases are incomparable").
type Family int

const (
	// FamilyUnknown means the grammar could not settle on a family, which
	// only happens for a bare requirement clause with an explicit operator
	// (e.g. ">=1.2") where the family doesn't matter for rendering.
	FamilyUnknown Family = iota
	FamilySemantic
	FamilyCalendar
)

// grammarKind mirrors the Rust ParseKind enum the state machine in
// original_source's unresolved_parse.rs produces; it tells the caller
// whether the canonical string it returns is a bare exact version (Sem/Cal)
// or a requirement clause (Req) that needs further splitting on ",".
type grammarKind int

const (
	grammarUnknown grammarKind = iota
	grammarReq
	grammarCal
	grammarSem
)

type grammarPart int

const (
	partStart grammarPart = iota
	partReqPrefix
	partMajorYear
	partMinorMonth
	partPatchDay
	partPreID
	partBuildSuffix
)

// grammarFields holds the raw pieces the state machine extracted before
// the original tool's do_parse() collapses them into one canonical string.
// Keeping them structured lets spec.go build an exact Version directly for
// the Semantic/Calendar (non-requirement) case instead of re-parsing an
// ambiguous flattened string.
type grammarFields struct {
	kind                             grammarKind
	wasCalver                        bool
	reqOp, major, minor, patch       string
	pre, build                       string
	hasMinor, hasPatch               bool
}

// Render reproduces the exact canonical-string assembly from the original
// tool's do_parse(), including the implicit "~" prefix and the 2000-year
// widening for short CalVer years.
func (f grammarFields) Render(withinAnd bool) (string, error) {
	var output strings.Builder
	kind := f.kind

	if f.reqOp == "" {
		if !f.hasMinor || !f.hasPatch {
			kind = grammarReq
			if !withinAnd {
				output.WriteByte('~')
			}
		}
	} else {
		kind = grammarReq
		output.WriteString(f.reqOp)
	}

	separator := byte('.')
	if kind == grammarCal {
		separator = '-'
	}

	if f.wasCalver {
		year := f.major
		if year == "" {
			year = "0"
		}
		if len(year) < 4 {
			n, err := strconv.Atoi(year)
			if err != nil {
				return "", &ParseError{Kind: ErrInvalidCharacter}
			}
			n += 2000
			output.WriteString(strconv.Itoa(n))
		} else {
			output.WriteString(year)
		}
	} else if f.major == "" {
		return "", &ParseError{Kind: ErrMissingMajor}
	} else {
		output.WriteString(f.major)
	}

	if f.hasMinor {
		output.WriteByte(separator)
		output.WriteString(f.minor)
	}
	if f.hasPatch {
		output.WriteByte(separator)
		output.WriteString(f.patch)
	}
	if f.pre != "" {
		output.WriteByte('-')
		output.WriteString(f.pre)
	}
	if f.build != "" {
		output.WriteByte('+')
		output.WriteString(f.build)
	}

	return output.String(), nil
}

// grammarParseFields is a direct port of the character-at-a-time state
// machine used by the original tool (do_parse in unresolved_parse.rs) to
// normalize a single (non-OR, non-AND) version token, returning its
// structured pieces instead of an immediately-flattened string.
func grammarParseFields(input string) (grammarFields, error) {
	kind := grammarUnknown
	wasCalver := false
	part := partStart

	var reqOp, majorYear, minorMonth, patchDay, preID, buildID strings.Builder

	for _, ch := range input {
		switch {
		case ch == '=' || ch == '~' || ch == '^' || ch == '>' || ch == '<':
			if part != partStart && part != partReqPrefix {
				return grammarFields{}, &ParseError{Kind: ErrOpInMidString, Input: input, Char: ch}
			}
			part = partReqPrefix
			reqOp.WriteRune(ch)

		case ch == '*':
			// wildcard, ignored entirely

		case ch >= '0' && ch <= '9':
			var target *strings.Builder
			switch part {
			case partStart, partReqPrefix, partMajorYear:
				part = partMajorYear
				target = &majorYear
			case partMinorMonth:
				target = &minorMonth
			case partPatchDay:
				target = &patchDay
			case partPreID:
				target = &preID
			case partBuildSuffix:
				target = &buildID
			}
			// Trim leading zeros in the numeric parts (not pre/build).
			if target.Len() == 0 && ch == '0' &&
				(part == partMajorYear || part == partMinorMonth || part == partPatchDay) {
				// skip
			} else {
				target.WriteRune(ch)
			}

		case (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z'):
			switch part {
			case partPreID:
				preID.WriteRune(ch)
			case partBuildSuffix:
				buildID.WriteRune(ch)
			default:
				if ch == 'v' || ch == 'V' {
					continue
				}
				return grammarFields{}, &ParseError{Kind: ErrInvalidCharacter, Input: input, Char: ch}
			}

		case ch == '.' || ch == '-':
			if kind == grammarUnknown {
				if ch == '-' {
					kind = grammarCal
					wasCalver = true
				} else {
					kind = grammarSem
				}
			}

			if ch == '-' {
				switch kind {
				case grammarSem:
					switch part {
					case partMajorYear, partMinorMonth, partPatchDay:
						part = partPreID
					case partPreID:
						preID.WriteByte('-')
					case partBuildSuffix:
						buildID.WriteByte('-')
					}
				case grammarCal:
					switch part {
					case partMajorYear:
						part = partMinorMonth
					case partMinorMonth:
						part = partPatchDay
					case partPatchDay, partBuildSuffix:
						part = partPreID
					case partPreID:
						preID.WriteByte('-')
					}
				}
			} else { // '.'
				switch kind {
				case grammarSem:
					switch part {
					case partMajorYear:
						part = partMinorMonth
					case partMinorMonth:
						part = partPatchDay
					case partPatchDay:
						part = partPreID
					case partPreID:
						preID.WriteByte('.')
					case partBuildSuffix:
						buildID.WriteByte('.')
					}
				case grammarCal:
					switch part {
					case partMajorYear, partMinorMonth, partPatchDay:
						part = partBuildSuffix
					case partPreID:
						preID.WriteByte('.')
					case partBuildSuffix:
						buildID.WriteByte('.')
					}
				}
			}

		case ch == '_' || ch == '+':
			if ch == '+' {
				if kind != grammarSem {
					return grammarFields{}, &ParseError{Kind: ErrInvalidCharacter, Input: input, Char: ch}
				}
				part = partBuildSuffix
			} else {
				if kind != grammarCal {
					return grammarFields{}, &ParseError{Kind: ErrInvalidCharacter, Input: input, Char: ch}
				}
				part = partBuildSuffix
			}

		case ch == ' ':
			// skip

		default:
			return grammarFields{}, &ParseError{Kind: ErrInvalidCharacter, Input: input, Char: ch}
		}
	}

	if !wasCalver && majorYear.Len() == 0 {
		return grammarFields{}, &ParseError{Kind: ErrMissingMajor, Input: input}
	}

	return grammarFields{
		kind:      kind,
		wasCalver: wasCalver,
		reqOp:     reqOp.String(),
		major:     majorYear.String(),
		minor:     minorMonth.String(),
		patch:     patchDay.String(),
		pre:       preID.String(),
		build:     buildID.String(),
		hasMinor:  minorMonth.Len() > 0,
		hasPatch:  patchDay.Len() > 0,
	}, nil
}

// grammarParse keeps the original flattened-string entry point used by
// grammarParseMulti for the Req (comma/AND) branches, where only the
// canonical string form is needed for re-joining.
func grammarParse(input string, withinAnd bool) (string, grammarKind, error) {
	fields, err := grammarParseFields(input)
	if err != nil {
		return "", grammarUnknown, err
	}
	out, err := fields.Render(withinAnd)
	if err != nil {
		return "", grammarUnknown, err
	}
	kind := fields.kind
	if fields.reqOp != "" || !fields.hasMinor || !fields.hasPatch {
		kind = grammarReq
	}
	return out, kind, nil
}

// humanCompare is a lightweight "natural sort" comparator used to order OR
// branches highest-first, mirroring the original tool's use of
// human_sort::compare for the same purpose. It splits into runs of digits
// and non-digits and compares numeric runs numerically.
func humanCompare(a, b string) int {
	ar, br := splitRuns(a), splitRuns(b)
	for i := 0; i < len(ar) && i < len(br); i++ {
		if ar[i] == br[i] {
			continue
		}
		an, aErr := strconv.Atoi(ar[i])
		bn, bErr := strconv.Atoi(br[i])
		if aErr == nil && bErr == nil {
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
			continue
		}
		if ar[i] < br[i] {
			return -1
		}
		return 1
	}
	return len(ar) - len(br)
}

func splitRuns(s string) []string {
	var runs []string
	var cur strings.Builder
	var curDigit bool
	for i, ch := range s {
		isDigit := ch >= '0' && ch <= '9'
		if i > 0 && isDigit != curDigit {
			runs = append(runs, cur.String())
			cur.Reset()
		}
		cur.WriteRune(ch)
		curDigit = isDigit
	}
	if cur.Len() > 0 {
		runs = append(runs, cur.String())
	}
	return runs
}

// grammarParseMulti normalizes a full (possibly OR/AND composed) unresolved
// version string into a slice of canonical OR-branches, each of which is
// itself a comma-joined AND sequence. OR branches are sorted highest-first
// by natural-sort comparison before being re-joined, per spec.md §4.1.
func grammarParseMulti(input string) ([]string, error) {
	if strings.Contains(input, "||") {
		parts := strings.Split(input, "||")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		sortDescNatural(parts)

		var results []string
		for _, p := range parts {
			sub, err := grammarParseMulti(p)
			if err != nil {
				return nil, err
			}
			results = append(results, sub...)
		}
		return results, nil
	}

	if hasClauseSeparator(input) {
		clauses := splitClauses(input)
		rendered := make([]string, 0, len(clauses))
		for _, clause := range clauses {
			out, _, err := grammarParse(clause, true)
			if err != nil {
				return nil, err
			}
			rendered = append(rendered, out)
		}
		return []string{strings.Join(rendered, ",")}, nil
	}

	out, _, err := grammarParse(input, false)
	if err != nil {
		return nil, err
	}
	return []string{out}, nil
}

// hasClauseSeparator reports whether input composes more than one AND
// clause, via a literal comma or internal whitespace (spec.md §4.1: "space
// or comma in a requirement string means AND"). The original tool's parser
// only recognized commas; this is the one place SPEC_FULL.md's edge case
// ("`>=1.2.7 <1.3.0` equivalent to `>=1.2.7,<1.3.0`") goes beyond it.
func hasClauseSeparator(input string) bool {
	for _, r := range input {
		if r == ',' || unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

// splitClauses splits input into AND clauses on commas and/or whitespace,
// discarding empty fields so runs of separators collapse.
func splitClauses(input string) []string {
	return strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

func sortDescNatural(s []string) {
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && humanCompare(s[j-1], s[j]) < 0 {
			s[j-1], s[j] = s[j], s[j-1]
			j--
		}
	}
}
