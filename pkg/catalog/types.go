// Package catalog is the hash-backed package graph: abstract package
// names (which may be virtual capabilities), the concrete versions that
// implement them, and the provider/replacer/reverse-dependency indices
// the selector and dependency walker traverse.
package catalog

import (
	"github.com/zhanhb/opkg-lede/pkg/control"
	"github.com/zhanhb/opkg-lede/pkg/depend"
	"github.com/zhanhb/opkg-lede/pkg/version"
)

// AbstractPackage is a name: a real package name, or a virtual capability
// introduced only through a Provides field. It persists for the lifetime
// of the Catalog once created.
type AbstractPackage struct {
	Name string

	Versions []*Package

	// ProvidedBy is the set of abstract packages with a concrete version
	// that declares Name in its Provides (always includes self if any
	// concrete version's real name is Name).
	ProvidedBy map[string]*AbstractPackage

	// ReplacedBy is the set of abstract packages that declare Name in
	// both their Replaces and Conflicts lists.
	ReplacedBy map[string]*AbstractPackage

	// DependedUponBy is the reverse index: abstract packages with a
	// concrete version naming Name in Depends/Pre-Depends/Recommends.
	DependedUponBy map[string]*AbstractPackage

	AggregateStatus control.Status

	// NeedDetail marks that a fuller parse pass of this name's owning
	// feed is required (see the detail-reload driver).
	NeedDetail bool
	// Marked is scratch state for the detail-reload driver; it must not
	// be read outside of one driver invocation.
	Marked bool

	// DepsChecked and PreDepsChecked are the walker's cycle-cutting
	// marks: once a top-level FetchUnsatisfied call visits this name it
	// sets the mark for the rest of that call's traversal, including any
	// nested pre-check recursion the selector performs while filtering
	// candidates. Catalog.ResetWalkMarks clears them before the next
	// independent top-level traversal.
	DepsChecked    bool
	PreDepsChecked bool
}

func newAbstractPackage(name string) *AbstractPackage {
	return &AbstractPackage{
		Name:           name,
		ProvidedBy:     map[string]*AbstractPackage{},
		ReplacedBy:     map[string]*AbstractPackage{},
		DependedUponBy: map[string]*AbstractPackage{},
	}
}

// Package is one concrete version+architecture record, either available
// from a feed (Source set) or recorded as installed (Destination set).
type Package struct {
	Name   string
	Parent *AbstractPackage

	Epoch    uint32
	Upstream string
	Revision string

	Architecture string
	ArchPriority int32

	Source      string
	Destination string

	Want   control.Want
	Status control.Status
	Flags  control.Flag

	// ProvidedByHand marks a package introduced by explicit path (e.g.
	// "opkg install ./foo.ipk"); the selector picks it ahead of every other
	// candidate, provided the caller's predicate accepts it.
	ProvidedByHand bool

	// Essential records the control file's "Essential: yes" field. It is
	// not consulted by the resolver core (opkg uses it to block removal,
	// out of this core's scope) — stored for completeness only.
	Essential bool

	Depends       []depend.Compound
	PreDepends    []depend.Compound
	Recommends    []depend.Compound
	Suggests      []depend.Compound
	GreedyDepends []depend.Compound
	Conflicts     []depend.Compound

	Provides []*AbstractPackage
	Replaces []*AbstractPackage

	Conffiles    []control.Conffile
	Alternatives []control.Alternative

	Description   string
	Maintainer    string
	Section       string
	Tags          string
	Filename      string
	Size          uint64
	InstalledSize uint64
	MD5Sum        string
	SHA256Sum     string
	ABIVersion    string
}

// Version returns the package's parsed version triple.
func (p *Package) Version() version.Triple {
	return version.Triple{Epoch: p.Epoch, Upstream: p.Upstream, Revision: p.Revision}
}

// AllCompounds returns every compound dependency attached to the package
// in the order the walker visits them: ordinary depends first, then
// pre-depends, recommends, suggests and finally greedy depends.
func (p *Package) AllCompounds() []depend.Compound {
	total := make([]depend.Compound, 0, len(p.Depends)+len(p.PreDepends)+len(p.Recommends)+len(p.Suggests)+len(p.GreedyDepends))
	total = append(total, p.Depends...)
	total = append(total, p.PreDepends...)
	total = append(total, p.Recommends...)
	total = append(total, p.Suggests...)
	total = append(total, p.GreedyDepends...)
	return total
}

func (p *Package) isInstalledStatus() bool {
	return p.Status == control.StatusInstalled || p.Status == control.StatusUnpacked
}

// key identifies a concrete package for de-duplication: (name, version,
// architecture) per the catalog's merge invariant.
type key struct {
	name, version, arch string
}

func keyOf(p *Package) key {
	return key{name: p.Name, version: p.Version().String(), arch: p.Architecture}
}
