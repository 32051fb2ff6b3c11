package catalog

import (
	"context"
	"fmt"
	"io"

	"github.com/go-logr/logr"

	"github.com/zhanhb/opkg-lede/internal/oplog"
	"github.com/zhanhb/opkg-lede/pkg/control"
	"github.com/zhanhb/opkg-lede/pkg/depend"
	"github.com/zhanhb/opkg-lede/pkg/version"
)

// LoadOptions configures one pass of Catalog.Load over a control-file
// stream: whether it is a feed (Source set) or a status file
// (Destination set, SetStatus true), which fields to parse, and whether
// this is a detail-reload pass that should silently drop stanzas for
// names the catalog does not currently need detail for.
type LoadOptions struct {
	Source      string
	Destination string
	SetStatus   bool
	Mask        control.FieldMask
	TTY         bool
	// DetailReload, when true, discards any stanza whose AbstractPackage
	// does not have NeedDetail set (spec.md §4.3's detail-reload
	// discard rule).
	DetailReload bool
}

// Load reads a control-file stream and inserts every completed stanza
// into the catalog as a concrete Package, per spec.md §4.3/§4.4. It
// returns after the stream is exhausted; a malformed individual stanza
// field is logged and skipped rather than aborting the whole load
// (spec.md §7's ParseStanza/MissingIdentity policy).
func (c *Catalog) Load(ctx context.Context, r io.Reader, opts LoadOptions) error {
	log := logr.FromContextOrDiscard(ctx)

	mask := opts.Mask
	if mask == 0 {
		mask = control.FieldAll
	}

	dec := control.NewDecoder(ctx, r, opts.TTY)
	for {
		st, err := dec.Decode(mask)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("loading control stream: %w", err)
		}

		if st.Architecture == "" {
			oplog.Notice(log, "discarding package with no architecture", "pkg", st.Package)
			continue
		}

		ap := c.EnsureAbstract(st.Package)
		if opts.DetailReload && !ap.NeedDetail {
			continue
		}

		pkg, err := c.buildPackage(st, opts)
		if err != nil {
			log.Error(err, "failed to build package record, skipping", "pkg", st.Package)
			continue
		}

		c.InsertConcrete(ctx, pkg, opts.SetStatus)
	}
}

func (c *Catalog) buildPackage(st *control.Stanza, opts LoadOptions) (*Package, error) {
	ver, err := version.Parse(st.Version)
	if err != nil {
		return nil, fmt.Errorf("bad version %q: %w", st.Version, err)
	}

	pkg := &Package{
		Name:          st.Package,
		Epoch:         ver.Epoch,
		Upstream:      ver.Upstream,
		Revision:      ver.Revision,
		Architecture:  st.Architecture,
		Source:        opts.Source,
		Destination:   opts.Destination,
		Want:          st.Want,
		Status:        st.Status,
		Flags:         st.Flags,
		Conffiles:     st.Conffiles,
		Alternatives:  st.Alternatives,
		Description:   st.Description,
		Maintainer:    st.Maintainer,
		Section:       st.Section,
		Tags:          st.Tags,
		Filename:      st.Filename,
		Size:          st.Size,
		InstalledSize: st.InstalledSize,
		MD5Sum:        st.MD5Sum,
		SHA256Sum:     st.SHA256Sum,
		ABIVersion:    st.ABIVersion,
	}
	if st.AutoInstalled {
		pkg.Flags |= control.FlagAutoInstalled
	}
	pkg.Essential = st.Essential

	ensureCallback := func(name string) { c.EnsureAbstract(name) }

	var parseErr error
	parse := func(kind depend.Kind, raw string) []depend.Compound {
		compounds, err := depend.ParseList(kind, raw, ensureCallback)
		if err != nil && parseErr == nil {
			parseErr = err
		}
		return compounds
	}

	pkg.Depends = parse(depend.Depend, st.Depends)
	pkg.PreDepends = parse(depend.PreDepend, st.PreDepends)
	pkg.Recommends = parse(depend.Recommend, st.Recommends)
	pkg.Suggests = parse(depend.Suggest, st.Suggests)
	pkg.Conflicts = parse(depend.Conflicts, st.Conflicts)

	var plainDepends []depend.Compound
	for _, compound := range pkg.Depends {
		if compound.Kind == depend.GreedyDepend {
			pkg.GreedyDepends = append(pkg.GreedyDepends, compound)
			continue
		}
		plainDepends = append(plainDepends, compound)
	}
	pkg.Depends = plainDepends

	if parseErr != nil {
		return nil, parseErr
	}

	for _, name := range splitCommaNames(st.Provides) {
		pkg.Provides = append(pkg.Provides, c.EnsureAbstract(name))
	}
	for _, name := range splitCommaNames(st.Replaces) {
		pkg.Replaces = append(pkg.Replaces, c.EnsureAbstract(name))
	}

	return pkg, nil
}

func splitCommaNames(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			name := trimSpace(s[start:i])
			if name != "" {
				out = append(out, name)
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}
