package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhanhb/opkg-lede/pkg/control"
	"github.com/zhanhb/opkg-lede/pkg/depend"
	"github.com/zhanhb/opkg-lede/pkg/version"
)

func testCtx(t *testing.T) context.Context {
	return logr.NewContext(context.Background(), testr.New(t))
}

func newTestCatalog() *Catalog {
	return New(StaticArchTable{"all": 1})
}

// ensureFunc adapts Catalog.EnsureAbstract to depend.ParseList's
// ensureAbstract callback, which returns nothing (pkg/depend cannot
// import pkg/catalog, so it can't spell *AbstractPackage in its own
// signature).
func ensureFunc(c *Catalog) func(string) {
	return func(name string) { c.EnsureAbstract(name) }
}

func mustVersion(t *testing.T, s string) version.Triple {
	v, err := version.Parse(s)
	require.NoError(t, err)
	return v
}

func insert(t *testing.T, c *Catalog, ctx context.Context, name, ver, arch string, installed bool, mutate func(*Package)) *Package {
	v := mustVersion(t, ver)
	pkg := &Package{
		Name:         name,
		Epoch:        v.Epoch,
		Upstream:     v.Upstream,
		Revision:     v.Revision,
		Architecture: arch,
	}
	if installed {
		pkg.Status = control.StatusInstalled
		pkg.Want = control.WantInstall
		pkg.Destination = "/"
	} else {
		pkg.Status = control.StatusNotInstalled
	}
	if mutate != nil {
		mutate(pkg)
	}
	return c.InsertConcrete(ctx, pkg, true)
}

// TestSimpleSatisfaction is scenario S1: A depends B(>=2); two installed
// versions of B exist, and the newer one both satisfies the walker and
// wins selection.
func TestSimpleSatisfaction(t *testing.T) {
	ctx := testCtx(t)
	c := newTestCatalog()

	insert(t, c, ctx, "B", "2.1", "all", true, nil)
	insert(t, c, ctx, "B", "1.0", "all", true, nil)

	geTwo, err := depend.ParseList(depend.Depend, "B (>= 2)", ensureFunc(c))
	require.NoError(t, err)

	a := insert(t, c, ctx, "A", "1.0", "all", false, func(p *Package) {
		p.Depends = geTwo
	})

	unsatisfied, unresolved := c.FetchUnsatisfied(ctx, a, false)
	assert.Empty(t, unresolved)
	assert.Empty(t, unsatisfied) // B is already installed

	bAbstract, ok := c.Lookup("B")
	require.True(t, ok)
	geTwoTriple := mustVersion(t, "2")
	best := c.BestInstallationCandidate(ctx, bAbstract, func(p *Package) bool {
		return p.isInstalledStatus() && version.Compare(p.Version(), geTwoTriple) >= 0
	}, false, nil)
	require.NotNil(t, best)
	assert.Equal(t, "2.1", best.Upstream)
}

// TestVirtualProvider is scenario S2: mail-client depends on the virtual
// capability mta, which postfix provides and has installed.
func TestVirtualProvider(t *testing.T) {
	ctx := testCtx(t)
	c := newTestCatalog()

	mta := c.EnsureAbstract("mta")
	insert(t, c, ctx, "postfix", "3.0", "all", true, func(p *Package) {
		p.Provides = []*AbstractPackage{mta}
	})

	deps, err := depend.ParseList(depend.Depend, "mta", ensureFunc(c))
	require.NoError(t, err)

	mailClient := insert(t, c, ctx, "mail-client", "1.0", "all", false, func(p *Package) {
		p.Depends = deps
	})

	unsatisfied, unresolved := c.FetchUnsatisfied(ctx, mailClient, false)
	assert.Empty(t, unresolved)
	assert.Empty(t, unsatisfied)

	best := c.BestInstallationCandidate(ctx, mta, AnyVersion, false, nil)
	require.NotNil(t, best)
	assert.Equal(t, "postfix", best.Name)
	assert.Equal(t, "3.0", best.Upstream)
}

// TestReplaceConflictAutoUpgrade is scenario S3: new 2.0 replaces and
// conflicts old 1.0; selecting old's abstract package should substitute
// the replacer.
func TestReplaceConflictAutoUpgrade(t *testing.T) {
	ctx := testCtx(t)
	c := newTestCatalog()

	old := insert(t, c, ctx, "old", "1.0", "all", true, nil)

	oldAbstract := c.EnsureAbstract("old")
	conflicts, err := depend.ParseList(depend.Conflicts, "old", ensureFunc(c))
	require.NoError(t, err)

	insert(t, c, ctx, "new", "2.0", "all", false, func(p *Package) {
		p.Replaces = []*AbstractPackage{oldAbstract}
		p.Conflicts = conflicts
	})

	newAbstract, ok := c.Lookup("new")
	require.True(t, ok)
	assert.Contains(t, oldAbstract.ReplacedBy, newAbstract.Name)

	best := c.BestInstallationCandidate(ctx, oldAbstract, AnyVersion, false, nil)
	require.NotNil(t, best)
	assert.Equal(t, "new", best.Name)
	assert.Equal(t, "2.0", best.Upstream)

	// new both replaces and conflicts old: FetchConflicts suppresses the
	// self-conflict this upgrade relationship produces.
	assert.Empty(t, c.FetchConflicts(best))
	_ = old
}

// TestCycleTerminates is scenario S4: A depends B, B depends A, neither
// installed. The walk must terminate, and since the cycle-cutting mark
// is only consulted at the entry of each recursive frame (it does not
// special-case the original root package), both packages end up in
// unsatisfied: B's frame recurses into A, inserting A on the way out
// before A's own frame inserts B (pkg_depends.c:259-264's insert-after-
// recurse runs unconditionally, even when the recursive call hit the
// cycle cut and did nothing).
func TestCycleTerminates(t *testing.T) {
	ctx := testCtx(t)
	c := newTestCatalog()

	aDeps, err := depend.ParseList(depend.Depend, "B", ensureFunc(c))
	require.NoError(t, err)
	bDeps, err := depend.ParseList(depend.Depend, "A", ensureFunc(c))
	require.NoError(t, err)

	a := insert(t, c, ctx, "A", "1", "all", false, func(p *Package) { p.Depends = aDeps })
	insert(t, c, ctx, "B", "1", "all", false, func(p *Package) { p.Depends = bDeps })

	done := make(chan struct{})
	var unsatisfied []*Package
	var unresolved []string
	go func() {
		unsatisfied, unresolved = c.FetchUnsatisfied(ctx, a, false)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch_unsatisfied did not terminate on a cyclic catalog")
	}

	assert.Empty(t, unresolved)
	require.Len(t, unsatisfied, 2)
	assert.Equal(t, "A", unsatisfied[0].Name)
	assert.Equal(t, "B", unsatisfied[1].Name)
}

// TestUnsatisfiedVersionConstraint covers the walker re-checking the
// version constraint against whatever BestInstallationCandidate
// returns: A depends on B(>=2), but the catalog only has B@1, so the
// dependency must be reported unresolved rather than silently treated
// as satisfied by a candidate that fails the constraint.
func TestUnsatisfiedVersionConstraint(t *testing.T) {
	ctx := testCtx(t)
	c := newTestCatalog()

	insert(t, c, ctx, "B", "1", "all", false, nil)

	geTwo, err := depend.ParseList(depend.Depend, "B (>= 2)", ensureFunc(c))
	require.NoError(t, err)
	a := insert(t, c, ctx, "A", "1", "all", false, func(p *Package) {
		p.Depends = geTwo
	})

	unsatisfied, unresolved := c.FetchUnsatisfied(ctx, a, false)
	assert.Empty(t, unsatisfied)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "B (>= 2)", unresolved[0])
}

// TestGreedyDependence is scenario S5: app greedy-depends plugin*;
// plugin-x installs cleanly, plugin-y's own hard dependency is missing
// and must be skipped rather than failing the whole walk.
func TestGreedyDependence(t *testing.T) {
	ctx := testCtx(t)
	c := newTestCatalog()

	plugin := c.EnsureAbstract("plugin")
	pluginX := insert(t, c, ctx, "plugin-x", "1", "all", false, func(p *Package) {
		p.Provides = []*AbstractPackage{plugin}
	})
	missingDep, err := depend.ParseList(depend.Depend, "missing", ensureFunc(c))
	require.NoError(t, err)
	pluginY := insert(t, c, ctx, "plugin-y", "1", "all", false, func(p *Package) {
		p.Provides = []*AbstractPackage{plugin}
		p.Depends = missingDep
	})

	greedy, err := depend.ParseList(depend.Depend, "plugin*", ensureFunc(c))
	require.NoError(t, err)
	require.Len(t, greedy, 1)
	assert.Equal(t, depend.GreedyDepend, greedy[0].Kind)

	app := insert(t, c, ctx, "app", "1", "all", false, func(p *Package) {
		p.GreedyDepends = greedy
	})

	unsatisfied, unresolved := c.FetchUnsatisfied(ctx, app, false)
	assert.Empty(t, unresolved)
	assert.Contains(t, unsatisfied, pluginX)
	assert.NotContains(t, unsatisfied, pluginY)
}

// TestGreedyRevisitSkipsAlreadyCheckedCandidate covers walkGreedy's
// visited guard: plugin-y provides two distinct virtual capabilities,
// both greedy-depended-on by app, and plugin-y's own hard dependency is
// unresolvable. The first greedy compound's walk of plugin-y correctly
// records that unresolved dependency and skips adding it; the second
// compound reaches plugin-y again after its parent is already marked
// checked. Without skipping already-checked candidates, the second
// walk call returns immediately with an empty accumulator, and the
// "every sub-dependency wants install" check would pass vacuously and
// wrongly add plugin-y anyway.
func TestGreedyRevisitSkipsAlreadyCheckedCandidate(t *testing.T) {
	ctx := testCtx(t)
	c := newTestCatalog()

	capA := c.EnsureAbstract("cap-a")
	capB := c.EnsureAbstract("cap-b")
	missingDep, err := depend.ParseList(depend.Depend, "missing", ensureFunc(c))
	require.NoError(t, err)
	pluginY := insert(t, c, ctx, "plugin-y", "1", "all", false, func(p *Package) {
		p.Provides = []*AbstractPackage{capA, capB}
		p.Depends = missingDep
	})

	greedyA, err := depend.ParseList(depend.Depend, "cap-a*", ensureFunc(c))
	require.NoError(t, err)
	greedyB, err := depend.ParseList(depend.Depend, "cap-b*", ensureFunc(c))
	require.NoError(t, err)

	app := insert(t, c, ctx, "app", "1", "all", false, func(p *Package) {
		p.GreedyDepends = append(greedyA, greedyB...)
	})

	unsatisfied, unresolved := c.FetchUnsatisfied(ctx, app, false)
	assert.Empty(t, unresolved)
	assert.NotContains(t, unsatisfied, pluginY)
}

// TestUnresolvableHardDep is scenario S6: A depends on a name with no
// concrete package in the catalog at all.
func TestUnresolvableHardDep(t *testing.T) {
	ctx := testCtx(t)
	c := newTestCatalog()

	deps, err := depend.ParseList(depend.Depend, "ghost (>= 1)", ensureFunc(c))
	require.NoError(t, err)

	a := insert(t, c, ctx, "A", "1", "all", false, func(p *Package) { p.Depends = deps })

	unsatisfied, unresolved := c.FetchUnsatisfied(ctx, a, false)
	assert.Empty(t, unsatisfied)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "ghost (>= 1)", unresolved[0])
}

// TestInsertedPackageAppearsInParentVersions is property 1.
func TestInsertedPackageAppearsInParentVersions(t *testing.T) {
	ctx := testCtx(t)
	c := newTestCatalog()
	pkg := insert(t, c, ctx, "foo", "1.0", "all", false, nil)
	assert.Contains(t, pkg.Parent.Versions, pkg)
}

// TestProvidesIndexedOnSelfAndDeclared is property 2.
func TestProvidesIndexedOnSelfAndDeclared(t *testing.T) {
	ctx := testCtx(t)
	c := newTestCatalog()
	virtual := c.EnsureAbstract("virtual-cap")
	pkg := insert(t, c, ctx, "foo", "1.0", "all", false, func(p *Package) {
		p.Provides = []*AbstractPackage{virtual}
	})

	assert.Same(t, pkg.Parent, virtual.ProvidedBy["foo"])
	assert.Same(t, pkg.Parent, pkg.Parent.ProvidedBy["foo"])
	// self-provision is synthesized only when Provides was left empty;
	// here it was set explicitly, so it must not also claim "foo".
	assert.NotContains(t, pkg.Provides, pkg.Parent)
}

// TestArchPriorityBreaksTies is property 7: with quiet=false and
// multiple providers of distinct arch priority, the selector picks the
// maximum-priority eligible candidate once no provider wins outright.
func TestArchPriorityBreaksTies(t *testing.T) {
	ctx := testCtx(t)
	c := New(StaticArchTable{"mips": 10, "all": 5})

	virtual := c.EnsureAbstract("thing")
	lowArch := c.EnsureAbstract("provider-low")
	insert(t, c, ctx, "provider-low", "1.0", "all", false, func(p *Package) {
		p.Provides = []*AbstractPackage{virtual}
	})
	highArch := c.EnsureAbstract("provider-high")
	insert(t, c, ctx, "provider-high", "1.0", "mips", false, func(p *Package) {
		p.Provides = []*AbstractPackage{virtual}
	})

	best := c.BestInstallationCandidate(ctx, virtual, func(p *Package) bool { return false }, false, nil)
	require.NotNil(t, best)
	assert.Equal(t, "provider-high", best.Name)
	_, _ = lowArch, highArch
}

// TestSingleContributingProviderFallback covers the distinct-contributing
// count used by the step-7 guard and step-8 fallback: a virtual name can
// be gathered from two providers while only one actually contributes a
// concrete package to matching (the other has no version of an eligible
// architecture). The raw provider count is 2, but only one provider
// contributed, so the single-provider latestMatching fallback must still
// fire instead of returning nil.
func TestSingleContributingProviderFallback(t *testing.T) {
	ctx := testCtx(t)
	c := New(StaticArchTable{"all": 1})

	virtual := c.EnsureAbstract("thing")
	insert(t, c, ctx, "provider-wrong-arch", "1.0", "mips", false, func(p *Package) {
		p.Provides = []*AbstractPackage{virtual}
	})
	insert(t, c, ctx, "provider-real", "1.0", "all", false, func(p *Package) {
		p.Provides = []*AbstractPackage{virtual}
	})

	best := c.BestInstallationCandidate(ctx, virtual, func(p *Package) bool { return false }, false, nil)
	require.NotNil(t, best)
	assert.Equal(t, "provider-real", best.Name)
}

