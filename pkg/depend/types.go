// Package depend models dependency and conflict expressions
// ("foo (>= 1.2) | bar") as compound, disjunctive dependencies over
// catalog package names, and parses the control-file grammar for them.
package depend

import (
	"strings"

	"github.com/zhanhb/opkg-lede/pkg/version"
)

// Kind is the relationship a compound dependency expresses.
type Kind int

const (
	Depend Kind = iota
	PreDepend
	Recommend
	Suggest
	GreedyDepend
	Conflicts
)

func (k Kind) String() string {
	switch k {
	case Depend:
		return "Depends"
	case PreDepend:
		return "Pre-Depends"
	case Recommend:
		return "Recommends"
	case Suggest:
		return "Suggests"
	case GreedyDepend:
		return "Depends" // greedy deps are surfaced from a Depends line
	case Conflicts:
		return "Conflicts"
	default:
		return "Unknown"
	}
}

// Atom is one possibility within a compound dependency: a target name
// with an optional version constraint. Target is stored as a plain
// name; the catalog resolves it to an AbstractPackage handle via
// EnsureAbstract, keeping this package free of any catalog dependency.
type Atom struct {
	Target     string
	Constraint version.Constraint
	Version    version.Triple
	HasVersion bool
}

// String renders the atom the way pkg_depend_str does: "name" or
// "name (>= 1.2)".
func (a Atom) String() string {
	if !a.HasVersion || a.Constraint == version.None {
		return a.Target
	}
	return a.Target + " (" + a.Constraint.String() + " " + a.Version.Display() + ")"
}

// Compound is a disjunction of atoms sharing one Kind: any single atom
// being satisfied satisfies the whole compound.
type Compound struct {
	Kind         Kind
	Possibilities []Atom
}

// String renders "a | b | c", matching pkg_depend_str's "space pipe space"
// joiner.
func (c Compound) String() string {
	parts := make([]string, len(c.Possibilities))
	for i, a := range c.Possibilities {
		parts[i] = a.String()
	}
	return strings.Join(parts, " | ")
}
