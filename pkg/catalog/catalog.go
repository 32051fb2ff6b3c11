package catalog

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/zhanhb/opkg-lede/pkg/control"
	"github.com/zhanhb/opkg-lede/pkg/depend"
)

// Catalog is the process's package graph. It is an explicit value rather
// than a global: every operation takes the catalog it operates on, so
// tests (and, in principle, multiple roots) can hold independent graphs.
type Catalog struct {
	Arch ArchTable

	byName map[string]*AbstractPackage
	seen   map[key]*Package
}

// New creates an empty catalog using arch to resolve architecture
// priorities. A nil arch treats every architecture as unsupported.
func New(arch ArchTable) *Catalog {
	if arch == nil {
		arch = StaticArchTable{}
	}
	return &Catalog{
		Arch:   arch,
		byName: map[string]*AbstractPackage{},
		seen:   map[key]*Package{},
	}
}

// EnsureAbstract returns the AbstractPackage for name, creating it if this
// is the first time the name has been referenced (spec.md §3's
// "AbstractPackages are created on first reference by name").
func (c *Catalog) EnsureAbstract(name string) *AbstractPackage {
	if ap, ok := c.byName[name]; ok {
		return ap
	}
	ap := newAbstractPackage(name)
	// a freshly-created name has no concrete version attached yet: it was
	// referenced only through a Depends/Provides line, so the detail
	// driver must make sure a feed carrying its full record gets loaded.
	ap.NeedDetail = true
	c.byName[name] = ap
	return ap
}

// Lookup returns the AbstractPackage for name if it has been referenced,
// without creating one.
func (c *Catalog) Lookup(name string) (*AbstractPackage, bool) {
	ap, ok := c.byName[name]
	return ap, ok
}

// InsertConcrete attaches pkg to its parent AbstractPackage, merging with
// any existing record sharing the same (name, version, architecture). It
// registers pkg's Provides (synthesizing Provides=[name] when empty) and
// builds the reverse depended_upon_by index, per spec.md §4.4.
func (c *Catalog) InsertConcrete(ctx context.Context, pkg *Package, setStatus bool) *Package {
	log := logr.FromContextOrDiscard(ctx)

	pkg.Parent = c.EnsureAbstract(pkg.Name)
	pkg.Parent.NeedDetail = false

	k := keyOf(pkg)
	if existing, ok := c.seen[k]; ok {
		mergePackage(existing, pkg, setStatus)
		c.indexProvides(existing)
		c.indexDependedUponBy(existing)
		return existing
	}

	c.seen[k] = pkg
	pkg.Parent.Versions = append(pkg.Parent.Versions, pkg)
	if setStatus {
		c.updateAggregateStatus(pkg.Parent)
	}

	if len(pkg.Provides) == 0 {
		pkg.Provides = []*AbstractPackage{pkg.Parent}
	}
	c.indexProvides(pkg)
	c.indexDependedUponBy(pkg)

	log.V(3).Info("inserted package", "name", pkg.Name, "version", pkg.Version().String(), "arch", pkg.Architecture)
	return pkg
}

func (c *Catalog) indexProvides(pkg *Package) {
	pkg.Parent.ProvidedBy[pkg.Parent.Name] = pkg.Parent
	for _, provided := range pkg.Provides {
		provided.ProvidedBy[pkg.Parent.Name] = pkg.Parent
	}
	if len(pkg.Replaces) > 0 {
		for _, replaced := range pkg.Replaces {
			conflictsReplaced := false
			for _, compound := range pkg.Conflicts {
				for _, atom := range compound.Possibilities {
					if atom.Target == replaced.Name {
						conflictsReplaced = true
					}
				}
			}
			if conflictsReplaced {
				replaced.ReplacedBy[pkg.Parent.Name] = pkg.Parent
			}
		}
	}
}

func (c *Catalog) indexDependedUponBy(pkg *Package) {
	for _, list := range [][]depend.Compound{pkg.Depends, pkg.PreDepends, pkg.Recommends} {
		for _, compound := range list {
			for _, atom := range compound.Possibilities {
				target := c.EnsureAbstract(atom.Target)
				target.DependedUponBy[pkg.Parent.Name] = pkg.Parent
			}
		}
	}
}

// statusRank orders statuses by precedence for updateAggregateStatus:
// an abstract package counts as installed if any version is, even if a
// later-indexed version is merely unpacked or not installed at all.
func statusRank(s control.Status) int {
	switch s {
	case control.StatusInstalled:
		return 3
	case control.StatusUnpacked:
		return 2
	case control.StatusNotInstalled:
		return 1
	default:
		return 0
	}
}

func (c *Catalog) updateAggregateStatus(ap *AbstractPackage) {
	for _, v := range ap.Versions {
		if statusRank(v.Status) > statusRank(ap.AggregateStatus) {
			ap.AggregateStatus = v.Status
		}
	}
}

// mergePackage folds incoming into existing, per spec.md §4.4: newer
// parse wins for most fields, state flags OR-union except the
// non-volatile subset which existing keeps.
func mergePackage(existing, incoming *Package, setStatus bool) {
	preserved := existing.Flags & control.NonVolatile
	existing.Flags = (existing.Flags | incoming.Flags&^control.NonVolatile) | preserved
	existing.Essential = incoming.Essential

	if setStatus {
		existing.Want = incoming.Want
		existing.Status = incoming.Status
	}

	if incoming.Description != "" {
		existing.Description = incoming.Description
	}
	if incoming.Maintainer != "" {
		existing.Maintainer = incoming.Maintainer
	}
	if incoming.Section != "" {
		existing.Section = incoming.Section
	}
	if incoming.Filename != "" {
		existing.Filename = incoming.Filename
	}
	if incoming.MD5Sum != "" {
		existing.MD5Sum = incoming.MD5Sum
	}
	if incoming.SHA256Sum != "" {
		existing.SHA256Sum = incoming.SHA256Sum
	}
	if incoming.Size > 0 {
		existing.Size = incoming.Size
	}
	if incoming.InstalledSize > 0 {
		existing.InstalledSize = incoming.InstalledSize
	}
	if len(incoming.Depends) > 0 {
		existing.Depends = incoming.Depends
	}
	if len(incoming.PreDepends) > 0 {
		existing.PreDepends = incoming.PreDepends
	}
	if len(incoming.Recommends) > 0 {
		existing.Recommends = incoming.Recommends
	}
	if len(incoming.Suggests) > 0 {
		existing.Suggests = incoming.Suggests
	}
	if len(incoming.GreedyDepends) > 0 {
		existing.GreedyDepends = incoming.GreedyDepends
	}
	if len(incoming.Conflicts) > 0 {
		existing.Conflicts = incoming.Conflicts
	}
	if len(incoming.Provides) > 0 {
		existing.Provides = incoming.Provides
	}
	if len(incoming.Replaces) > 0 {
		existing.Replaces = incoming.Replaces
	}
	if len(incoming.Conffiles) > 0 {
		existing.Conffiles = incoming.Conffiles
	}
	if len(incoming.Alternatives) > 0 {
		existing.Alternatives = incoming.Alternatives
	}
}

// FetchInstalled scans an abstract name's versions for one currently
// installed or unpacked.
func (c *Catalog) FetchInstalled(name string) *Package {
	ap, ok := c.byName[name]
	if !ok {
		return nil
	}
	for _, v := range ap.Versions {
		if v.isInstalledStatus() {
			return v
		}
	}
	return nil
}

// FetchInstalledByDest scans for an installed version rooted at dest.
func (c *Catalog) FetchInstalledByDest(name, dest string) *Package {
	ap, ok := c.byName[name]
	if !ok {
		return nil
	}
	for _, v := range ap.Versions {
		if v.isInstalledStatus() && v.Destination == dest {
			return v
		}
	}
	return nil
}

// FetchAllAvailable enumerates every concrete package the catalog knows
// about, regardless of install state.
func (c *Catalog) FetchAllAvailable() []*Package {
	var out []*Package
	for _, ap := range c.byName {
		out = append(out, ap.Versions...)
	}
	return out
}

// ResetWalkMarks clears every abstract package's DepsChecked/
// PreDepsChecked mark. Callers must do this before starting a new
// top-level FetchUnsatisfied traversal; marks persist across the nested
// pre-check recursion the selector performs while filtering candidates
// for one traversal, which is what lets pre-checking terminate on cyclic
// catalogs without each nested call re-walking from scratch.
func (c *Catalog) ResetWalkMarks() {
	for _, ap := range c.byName {
		ap.DepsChecked = false
		ap.PreDepsChecked = false
	}
}

// FetchAllInstalled enumerates every concrete package currently installed
// or unpacked.
func (c *Catalog) FetchAllInstalled() []*Package {
	var out []*Package
	for _, ap := range c.byName {
		for _, v := range ap.Versions {
			if v.isInstalledStatus() {
				out = append(out, v)
			}
		}
	}
	return out
}
