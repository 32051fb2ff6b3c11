package depend

import (
	"fmt"
	"strings"

	"github.com/zhanhb/opkg-lede/pkg/version"
)

// ErrParseDepExpr is returned for a malformed atom; it carries the
// offending token so callers can report it (spec.md §4.2/§7,
// ErrorKind::ParseDepExpr).
type ErrParseDepExpr struct {
	Token string
	Cause string
}

func (e *ErrParseDepExpr) Error() string {
	return fmt.Sprintf("depend: malformed dependency atom %q: %s", e.Token, e.Cause)
}

// legacyAliases maps the deprecated single-character operators dpkg
// still accepts to their modern two-character equivalent.
var legacyAliases = map[string]string{
	"<": "<=",
	">": ">=",
}

var operators = []string{"<<", "<=", ">=", ">>", "="}

// ParseList splits the raw right-hand side of a Depends:/Conflicts:/...
// line on commas into compound dependencies, each of which splits on
// '|' into atoms. ensureAbstract is invoked for every referenced name so
// the caller's catalog gets a placeholder node even for names with no
// concrete versions yet (spec.md §4.2's "parsing also populates the
// catalog").
func ParseList(kind Kind, list string, ensureAbstract func(name string)) ([]Compound, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, nil
	}

	var compounds []Compound
	for _, entry := range splitTop(list, ',') {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		compound, err := parseCompound(kind, entry, ensureAbstract)
		if err != nil {
			return nil, err
		}
		compounds = append(compounds, compound)
	}
	return compounds, nil
}

func parseCompound(kind Kind, entry string, ensureAbstract func(name string)) (Compound, error) {
	rawAtoms := splitTop(entry, '|')
	compound := Compound{Kind: kind}

	for i, raw := range rawAtoms {
		raw = strings.TrimSpace(raw)
		isLast := i == len(rawAtoms)-1

		greedy := false
		if isLast && strings.HasSuffix(raw, "*") {
			greedy = true
			raw = strings.TrimSpace(strings.TrimSuffix(raw, "*"))
		}

		atom, err := parseAtom(raw)
		if err != nil {
			return Compound{}, err
		}
		ensureAbstract(atom.Target)
		compound.Possibilities = append(compound.Possibilities, atom)

		if greedy {
			compound.Kind = GreedyDepend
		}
	}

	if len(compound.Possibilities) == 0 {
		return Compound{}, &ErrParseDepExpr{Token: entry, Cause: "empty compound"}
	}

	return compound, nil
}

// parseAtom mirrors the teacher's ParseVersion: NAME optionally
// followed by "(OP VERSION)". Architecture-restriction brackets
// ("[i386]") are tolerated but dropped, as the original dependency
// grammar permits them even though this core does not act on them.
func parseAtom(raw string) (Atom, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Atom{}, &ErrParseDepExpr{Token: raw, Cause: "empty atom"}
	}

	// strip an architecture-restriction suffix like "[i386]" or "[!i386]"
	if idx := strings.IndexByte(raw, '['); idx >= 0 {
		raw = strings.TrimSpace(raw[:idx])
	}

	open := strings.IndexByte(raw, '(')
	if open < 0 {
		if !validName(raw) {
			return Atom{}, &ErrParseDepExpr{Token: raw, Cause: "invalid package name"}
		}
		return Atom{Target: raw}, nil
	}

	name := strings.TrimSpace(raw[:open])
	if !validName(name) {
		return Atom{}, &ErrParseDepExpr{Token: raw, Cause: "invalid package name"}
	}

	close := strings.LastIndexByte(raw, ')')
	if close < open {
		return Atom{}, &ErrParseDepExpr{Token: raw, Cause: "missing closing paren"}
	}
	inner := strings.TrimSpace(raw[open+1 : close])

	op, verStr, err := splitOperator(inner)
	if err != nil {
		return Atom{}, &ErrParseDepExpr{Token: raw, Cause: err.Error()}
	}

	constraint := operatorConstraint(op)
	triple, err := version.Parse(verStr)
	if err != nil {
		return Atom{}, &ErrParseDepExpr{Token: raw, Cause: "bad version: " + err.Error()}
	}

	return Atom{
		Target:     name,
		Constraint: constraint,
		Version:    triple,
		HasVersion: true,
	}, nil
}

func splitOperator(inner string) (op, ver string, err error) {
	if inner == "" {
		return "", "", fmt.Errorf("empty version expression")
	}
	for _, candidate := range operators {
		if strings.HasPrefix(inner, candidate) {
			op, ver = candidate, strings.TrimSpace(inner[len(candidate):])
			break
		}
	}
	if op == "" {
		alias, ok := legacyAliases[inner[:1]]
		if !ok {
			return "", "", fmt.Errorf("unrecognized operator in %q", inner)
		}
		op, ver = alias, strings.TrimSpace(inner[1:])
	}
	// a version never contains whitespace, so "(>~ 1.0)" is rejected
	// rather than read as ">" followed by the version "~ 1.0"
	if strings.ContainsAny(ver, " \t") {
		return "", "", fmt.Errorf("malformed version expression %q", inner)
	}
	return op, ver, nil
}

func operatorConstraint(op string) version.Constraint {
	switch op {
	case "<<":
		return version.Earlier
	case "<=":
		return version.EarlierEqual
	case "=":
		return version.Equal
	case ">=":
		return version.LaterEqual
	case ">>":
		return version.Later
	default:
		return version.None
	}
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '+' || r == '.' || r == '-':
		default:
			return false
		}
	}
	return true
}

// splitTop splits on sep outside of any "(...)" grouping, so that a
// version expression containing the separator (which never happens for
// ',' or '|' in practice, but keeps the parser honest) isn't chopped.
func splitTop(s string, sep byte) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		default:
			if s[i] == sep && depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}
