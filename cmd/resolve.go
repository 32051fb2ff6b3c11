package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/zhanhb/opkg-lede/pkg/catalog"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [package...]",
	Short: "select installation candidates and print their unsatisfied dependency closure",
	Args:  cobra.MinimumNArgs(1),
	RunE:  resolve,
}

const (
	flagFeed   = "feed"
	flagStatus = "status"
	flagArch   = "arch"
)

func init() {
	resolveCmd.Flags().StringArray(flagFeed, nil, "path to a Packages feed file (repeatable); .gz/.xz decompressed automatically")
	resolveCmd.Flags().String(flagStatus, "", "path to the installed-status database")
	resolveCmd.Flags().StringArray(flagArch, nil, "architecture=priority pair (repeatable), e.g. arm_cortex-a7=10")
}

func resolve(cmd *cobra.Command, args []string) error {
	log := logr.FromContextOrDiscard(cmd.Context())

	feeds, _ := cmd.Flags().GetStringArray(flagFeed)
	status, _ := cmd.Flags().GetString(flagStatus)
	archPairs, _ := cmd.Flags().GetStringArray(flagArch)

	archTable, err := parseArchTable(archPairs)
	if err != nil {
		return err
	}

	cat := catalog.New(archTable)

	sources := make([]catalog.FeedSource, 0, len(feeds))
	for _, f := range feeds {
		sources = append(sources, catalog.FileFeedSource{Path: f})
	}

	if err := loadAll(cmd.Context(), cat, sources, catalog.LoadOptions{}); err != nil {
		return fmt.Errorf("loading feeds: %w", err)
	}

	if status != "" {
		statusSrc := catalog.FileFeedSource{Path: status}
		if err := cat.LoadFeed(cmd.Context(), statusSrc, catalog.LoadOptions{SetStatus: true, Destination: "/"}); err != nil {
			return fmt.Errorf("loading status database: %w", err)
		}
	}

	if err := cat.LoadDetails(cmd.Context(), func(ctx context.Context) error {
		return loadAll(ctx, cat, sources, catalog.LoadOptions{DetailReload: true})
	}); err != nil {
		return fmt.Errorf("reloading feeds for detail: %w", err)
	}

	for _, name := range args {
		cat.ResetWalkMarks()

		ap := cat.EnsureAbstract(name)
		best := cat.BestInstallationCandidate(cmd.Context(), ap, catalog.AnyVersion, false, args)
		if best == nil {
			fmt.Printf("%s: no installation candidate found\n", name)
			continue
		}
		fmt.Printf("%s: selected %s %s (%s)\n", name, best.Name, best.Version().Display(), best.Architecture)

		cat.ResetWalkMarks()
		unsatisfied, unresolved := cat.FetchUnsatisfied(cmd.Context(), best, false)
		for _, u := range unsatisfied {
			fmt.Printf("  requires %s %s\n", u.Name, u.Version().Display())
		}
		for _, u := range unresolved {
			log.Error(nil, "unresolved hard dependency", "pkg", name, "dep", u)
		}

		for _, c := range cat.FetchConflicts(best) {
			fmt.Printf("  conflicts with installed %s %s\n", c.Name, c.Version().Display())
		}
	}

	return nil
}

func loadAll(ctx context.Context, cat *catalog.Catalog, sources []catalog.FeedSource, opts catalog.LoadOptions) error {
	for _, src := range sources {
		if err := cat.LoadFeed(ctx, src, opts); err != nil {
			return err
		}
	}
	return nil
}

func parseArchTable(pairs []string) (catalog.StaticArchTable, error) {
	table := catalog.StaticArchTable{}
	for _, pair := range pairs {
		name, prio, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed --%s value %q, want name=priority", flagArch, pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(prio))
		if err != nil {
			return nil, fmt.Errorf("malformed --%s priority %q: %w", flagArch, pair, err)
		}
		table[strings.TrimSpace(name)] = int32(n)
	}
	if len(table) == 0 {
		table["all"] = 1
	}
	return table, nil
}
