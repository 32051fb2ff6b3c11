package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-logr/logr"

	"github.com/zhanhb/opkg-lede/internal/oplog"
	"github.com/zhanhb/opkg-lede/pkg/control"
	"github.com/zhanhb/opkg-lede/pkg/depend"
)

// FetchUnsatisfied transitively expands pkg's dependency closure,
// returning every not-yet-installed package required to satisfy it and
// the human-readable names of any hard dependency nothing can satisfy.
// preCheck selects which of the two cycle-cutting marks (spec.md §3's
// deps_checked/predeps_checked) this traversal consults; callers must
// call ResetWalkMarks before a new, independent top-level traversal.
func (c *Catalog) FetchUnsatisfied(ctx context.Context, pkg *Package, preCheck bool) (unsatisfied []*Package, unresolved []string) {
	var acc []*Package
	unresolved = c.walk(ctx, pkg, &acc, preCheck)
	return acc, unresolved
}

func (c *Catalog) mark(ap *AbstractPackage, preCheck bool) bool {
	if preCheck {
		if ap.PreDepsChecked {
			return true
		}
		ap.PreDepsChecked = true
		return false
	}
	if ap.DepsChecked {
		return true
	}
	ap.DepsChecked = true
	return false
}

func (c *Catalog) alreadyChecked(ap *AbstractPackage, preCheck bool) bool {
	if preCheck {
		return ap.PreDepsChecked
	}
	return ap.DepsChecked
}

func (c *Catalog) walk(ctx context.Context, pkg *Package, unsatisfied *[]*Package, preCheck bool) []string {
	log := logr.FromContextOrDiscard(ctx)

	if pkg.Parent == nil {
		log.Error(fmt.Errorf("package has no parent"), "internal invariant violated", "pkg", pkg.Name)
		return nil
	}
	if c.mark(pkg.Parent, preCheck) {
		return nil
	}

	var unresolved []string

	for _, compound := range pkg.AllCompounds() {
		if compound.Kind == depend.GreedyDepend {
			c.walkGreedy(ctx, compound, unsatisfied, preCheck)
			continue
		}

		installedSatisfier := c.findSatisfier(ctx, compound, func(atom depend.Atom) Predicate {
			return func(cand *Package) bool {
				return cand.isInstalledStatus() && atomSatisfied(atom, cand)
			}
		})

		var satisfier *Package
		if installedSatisfier == nil {
			satisfier = c.findSatisfier(ctx, compound, func(atom depend.Atom) Predicate {
				return func(cand *Package) bool {
					return atomSatisfied(atom, cand)
				}
			})

			if satisfier != nil && (compound.Kind == depend.Recommend || compound.Kind == depend.Suggest) &&
				(satisfier.Want == control.WantDeinstall || satisfier.Want == control.WantPurge) {
				oplog.Notice(log, "ignoring recommendation at user request", "pkg", pkg.Name, "satisfier", satisfier.Name)
				satisfier = nil
			}
		} else {
			satisfier = installedSatisfier
		}

		if installedSatisfier != nil {
			continue
		}

		if satisfier == nil {
			switch compound.Kind {
			case depend.Recommend:
				oplog.Notice(log, "unsatisfied recommendation", "pkg", pkg.Name, "dep", compound.String())
			case depend.Suggest:
				oplog.Notice(log, "package suggests installing", "pkg", pkg.Name, "dep", compound.String())
			default:
				unresolved = append(unresolved, compound.String())
			}
			continue
		}

		if compound.Kind == depend.Suggest {
			oplog.Notice(log, "package suggests installing", "pkg", pkg.Name, "satisfier", satisfier.Name)
			continue
		}

		if satisfier != pkg && !packageInSlice(*unsatisfied, satisfier) {
			sub := c.walk(ctx, satisfier, unsatisfied, preCheck)
			*unsatisfied = append(*unsatisfied, satisfier)
			unresolved = append(unresolved, sub...)
		}
	}

	return unresolved
}

// walkGreedy considers every concrete version of every provider of a
// greedy-dependence atom, skipping one already want=INSTALL, already
// visited by this traversal's DepsChecked/PreDepsChecked mark, or
// already in unsatisfied (pkg_depends.c:127-130's three-part "not
// already" guard). The visited check matters beyond just avoiding
// repeat work: c.walk returns immediately without populating subAcc
// for an already-marked candidate, and an empty subAcc would otherwise
// make the "every sub-dependency wants install" check below pass
// vacuously for a candidate whose own unresolved dependency was
// already recorded on an earlier visit.
func (c *Catalog) walkGreedy(ctx context.Context, compound depend.Compound, unsatisfied *[]*Package, preCheck bool) {
	log := logr.FromContextOrDiscard(ctx)

	for _, atom := range compound.Possibilities {
		target, ok := c.Lookup(atom.Target)
		if !ok {
			continue
		}
		for _, providerName := range sortedNames(target.ProvidedBy) {
			provider := target.ProvidedBy[providerName]
			for _, cand := range provider.Versions {
				if cand.Want == control.WantInstall {
					continue
				}
				if c.alreadyChecked(cand.Parent, preCheck) {
					continue
				}
				if packageInSlice(*unsatisfied, cand) {
					continue
				}

				var subAcc []*Package
				subUnresolved := c.walk(ctx, cand, &subAcc, preCheck)

				if len(subUnresolved) == 0 {
					ok := true
					for _, p := range subAcc {
						if p.Want != control.WantInstall {
							ok = false
							break
						}
					}
					if ok {
						oplog.Notice(log, "adding satisfier for greedy dependence", "pkg", cand.Name)
						*unsatisfied = append(*unsatisfied, cand)
					}
				}
			}
		}
	}
}

// findSatisfier picks the best installation candidate across every atom
// of compound, stopping at the first atom whose candidate passes that
// atom's predicate (mirroring
// the source's "foreach possible satisfier" ordering: earlier atoms in
// the disjunction are tried first). predicateFor builds the predicate for
// a single atom's version constraint.
//
// BestInstallationCandidate only applies the predicate in its
// score-by-name pass (spec.md §4.5); its held/latest-installed/
// latest-matching fallbacks can return a candidate the predicate
// rejects. The original re-checks the returned package before trusting
// it as a satisfier (pkg_depends.c's constraint_fcn re-check), so this
// does the same here rather than trusting BestInstallationCandidate's
// result blindly.
func (c *Catalog) findSatisfier(ctx context.Context, compound depend.Compound, predicateFor func(depend.Atom) Predicate) *Package {
	for _, atom := range compound.Possibilities {
		target := c.EnsureAbstract(atom.Target)
		predicate := predicateFor(atom)
		cand := c.BestInstallationCandidate(ctx, target, predicate, true, nil)
		if cand != nil && predicate(cand) {
			return cand
		}
	}
	return nil
}

// dependenceSatisfiable reports whether cand's own dependency closure
// resolves with no unresolved names, using the pre-check mark so the
// recursive closure check terminates on a cyclic catalog (spec.md §4.5
// step 2; the mutation-based marks, not a fresh visited-set per call, are
// what make this particular recursive use safe against pathological
// self-referential candidate graphs — see DESIGN.md).
func (c *Catalog) dependenceSatisfiable(ctx context.Context, cand *Package) bool {
	_, unresolved := c.FetchUnsatisfied(ctx, cand, true)
	return len(unresolved) == 0
}

func atomSatisfied(atom depend.Atom, cand *Package) bool {
	return !atom.HasVersion || atom.Constraint.Satisfied(cand.Version(), atom.Version)
}

func packageInSlice(s []*Package, p *Package) bool {
	for _, c := range s {
		if c == p {
			return true
		}
	}
	return false
}

func sortedNames(m map[string]*AbstractPackage) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
