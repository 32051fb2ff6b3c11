package catalog

import (
	"context"

	"github.com/go-logr/logr"
)

// LoadDetails drives the detail-reload loop described in spec.md §4.7:
// packages referenced only by name (through Provides or a dependency)
// initially carry no detail: EnsureAbstract marks a freshly-created name
// NeedDetail until a concrete Package actually attaches to it. reload is
// expected to re-read every feed with Catalog.Load's DetailReload option
// set, which silently discards any stanza for a name that is no longer
// marked NeedDetail. The loop repeats until no newly-discovered name
// still needs detail; termination is guaranteed because Marked is
// monotone within one call.
func (c *Catalog) LoadDetails(ctx context.Context, reload func(context.Context) error) error {
	log := logr.FromContextOrDiscard(ctx)

	for {
		// reloads first, then counts/marks; spec.md §4.7 counts-and-marks
		// before reloading. Still converges: a name newly discovered by
		// this reload simply waits for the next iteration's reload to pick
		// up its detail, at the cost of one extra pass in the worst case.
		if err := reload(ctx); err != nil {
			return err
		}

		needDetail := 0
		for _, ap := range c.byName {
			if ap.NeedDetail && !ap.Marked {
				needDetail++
				ap.Marked = true
			}
		}

		if needDetail == 0 {
			return nil
		}
		log.V(1).Info("found packages requiring detail, reloading feeds", "count", needDetail)
	}
}
