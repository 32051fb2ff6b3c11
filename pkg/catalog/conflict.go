package catalog

import "github.com/zhanhb/opkg-lede/pkg/control"

// FetchConflicts implements spec.md §4.8: every installed-or-wanted
// concrete package that collides with pkg's Conflicts declarations,
// excluding anything pkg itself Replaces (which suppresses the spurious
// self-conflict of an upgrading package).
func (c *Catalog) FetchConflicts(pkg *Package) []*Package {
	var out []*Package
	for _, compound := range pkg.Conflicts {
		for _, atom := range compound.Possibilities {
			target, ok := c.Lookup(atom.Target)
			if !ok {
				continue
			}
			for _, cand := range target.Versions {
				if cand.Status != control.StatusInstalled && cand.Want != control.WantInstall {
					continue
				}
				if !atomSatisfied(atom, cand) {
					continue
				}
				if pkgReplacesName(pkg, cand.Name) {
					continue
				}
				out = append(out, cand)
			}
		}
	}
	return out
}

// PkgReplaces reports whether any abstract package in a.Replaces also
// appears in b.Provides.
func PkgReplaces(a, b *Package) bool {
	for _, replaced := range a.Replaces {
		for _, provided := range b.Provides {
			if replaced.Name == provided.Name {
				return true
			}
		}
	}
	return false
}

func pkgReplacesName(pkg *Package, name string) bool {
	for _, replaced := range pkg.Replaces {
		if replaced.Name == name {
			return true
		}
	}
	return false
}
