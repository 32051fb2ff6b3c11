package catalog

import (
	"context"
	"sort"

	"github.com/go-logr/logr"

	"github.com/zhanhb/opkg-lede/internal/oplog"
	"github.com/zhanhb/opkg-lede/pkg/control"
	"github.com/zhanhb/opkg-lede/pkg/version"
)

// Predicate decides which candidates compete in the selector's
// score-by-name pass. It does not filter the held, latest-installed or
// latest-matching fallbacks, so the selector can return a package the
// predicate rejects; callers that need the constraint re-check the result.
type Predicate func(*Package) bool

// AnyVersion is the predicate used when no version constraint applies.
func AnyVersion(*Package) bool { return true }

// BestInstallationCandidate implements the selector described in
// spec.md §4.5: given an abstract name, pick the single best concrete
// package across providers, architectures and held/preferred flags.
//
// cliArgs is the set of package names the user named directly on the
// command line; it contributes a scoring bonus matching the original's
// "was this package asked for by name" heuristic. quiet suppresses the
// architecture-priority tie-break pass used when multiple distinct
// providers are still in play.
//
// Step 2's dependency-closure check reuses the catalog's PreDepsChecked
// marks across the whole call tree of one resolution pass, including
// nested selector calls from the walker (see Catalog.dependenceSatisfiable
// and Catalog.ResetWalkMarks). Call ResetWalkMarks before starting an
// unrelated top-level query, the same discipline spec.md §3 requires for
// FetchUnsatisfied.
func (c *Catalog) BestInstallationCandidate(ctx context.Context, apkg *AbstractPackage, predicate Predicate, quiet bool, cliArgs []string) *Package {
	log := logr.FromContextOrDiscard(ctx)

	providers := c.gatherProviders(ctx, apkg)

	var matching []*Package
	wrongArchFound := false
	contributing := map[string]bool{}

	for _, provider := range providers {
		hadVersions := len(provider.Versions) > 0
		passedArch := false
		for _, v := range provider.Versions {
			v.ArchPriority = c.Arch.Priority(v.Architecture)
			if v.ArchPriority <= 0 {
				continue
			}
			passedArch = true
			if !c.dependenceSatisfiable(ctx, v) {
				continue
			}
			matching = append(matching, v)
			contributing[provider.Name] = true
		}
		if hadVersions && !passedArch {
			wrongArchFound = true
		}
	}

	if len(matching) == 0 {
		if wrongArchFound {
			log.Error(nil, "no package of matching architecture", "name", apkg.Name)
		}
		return nil
	}

	sort.Slice(matching, func(i, j int) bool {
		a, b := matching[i], matching[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if cmp := compareVersions(a, b); cmp != 0 {
			return cmp < 0
		}
		return a.Architecture < b.Architecture
	})

	var (
		goodPkgByName   *Package
		bestScore       int
		heldPkg         *Package
		heldCount       int
		latestInstalled *Package
		latestMatching  *Package
	)

	// The score-by-name pass is predicate-gated: only candidates the
	// caller's predicate accepts compete to become good_pkg_by_name.
	for _, cand := range matching {
		if predicate != nil && !predicate(cand) {
			continue
		}

		score := 1
		if cand.Name == apkg.Name {
			score++
		}
		for _, arg := range cliArgs {
			if arg == cand.Name {
				score++
				break
			}
		}
		if goodPkgByName == nil || score >= bestScore || cand.ProvidedByHand {
			goodPkgByName = cand
			bestScore = score
		}
		if cand.ProvidedByHand {
			break
		}
	}

	// held/latest-installed/latest-matching are computed over every
	// arch-eligible, closure-resolvable candidate, regardless of predicate.
	for _, cand := range matching {
		latestMatching = cand
		if cand.isInstalledStatus() {
			latestInstalled = cand
		}
		if cand.Flags&(control.FlagHold|control.FlagPrefer) != 0 {
			if heldPkg != nil {
				heldCount++
			}
			heldPkg = cand
		}
	}

	if heldCount > 0 {
		oplog.Notice(log, "multiple held or preferred packages found, using the last", "name", apkg.Name)
	}

	if goodPkgByName != nil {
		return goodPkgByName
	}
	if heldPkg != nil {
		return heldPkg
	}
	if latestInstalled != nil {
		return latestInstalled
	}

	if !quiet && len(contributing) > 1 {
		if best := priorizedMatching(matching); best != nil {
			return best
		}
	}

	if len(contributing) == 1 {
		return latestMatching
	}

	return nil
}

func (c *Catalog) gatherProviders(ctx context.Context, apkg *AbstractPackage) []*AbstractPackage {
	log := logr.FromContextOrDiscard(ctx)

	var out []*AbstractPackage
	seen := map[string]bool{}
	for _, provider := range apkg.ProvidedBy {
		chosen := provider
		if len(provider.ReplacedBy) > 0 {
			var replacer *AbstractPackage
			count := 0
			for _, r := range provider.ReplacedBy {
				if r.Name == provider.Name {
					continue
				}
				if _, already := apkg.ProvidedBy[r.Name]; already {
					continue
				}
				if replacer == nil {
					replacer = r
				}
				count++
			}
			if count > 1 {
				oplog.Notice(log, "multiple replacers found, using the first", "name", provider.Name)
			}
			if replacer != nil {
				chosen = replacer
			}
		}
		if !seen[chosen.Name] {
			seen[chosen.Name] = true
			out = append(out, chosen)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func priorizedMatching(matching []*Package) *Package {
	var best *Package
	for _, cand := range matching {
		if best == nil || cand.ArchPriority > best.ArchPriority {
			best = cand
		}
	}
	return best
}

func compareVersions(a, b *Package) int {
	return version.Compare(a.Version(), b.Version())
}
