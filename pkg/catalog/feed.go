package catalog

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/ulikunitz/xz"
)

// FeedSource opens a control-file stream for one feed or status database.
// This core owns parsing and cataloging, not transport: fetching a feed
// over HTTP (the original's download_list) is a collaborator's job, so
// the only implementation here reads from local disk, matching the
// on-disk half of the teacher's downloadIndex/NewIndex pair.
type FeedSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	// Name identifies the feed; LoadFeed records it as the Source of
	// every package it yields.
	Name() string
}

// FileFeedSource reads a Packages file straight off disk, transparently
// decompressing a ".gz" or ".xz" suffix the way the teacher's index
// loader picks between PackageFileGzip and PackageFileXZ.
type FileFeedSource struct {
	Path string
}

func (f FileFeedSource) Name() string { return f.Path }

func (f FileFeedSource) Open(ctx context.Context) (io.ReadCloser, error) {
	log := logr.FromContextOrDiscard(ctx)

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("opening feed %s: %w", f.Path, err)
	}

	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".gz":
		log.V(2).Info("decompressing gzip feed", "path", f.Path)
		gr, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("opening gzip feed %s: %w", f.Path, err)
		}
		return gzipReadCloser{gr, file}, nil
	case ".xz":
		log.V(2).Info("decompressing xz feed", "path", f.Path)
		xr, err := xz.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("opening xz feed %s: %w", f.Path, err)
		}
		return xzReadCloser{xr, file}, nil
	default:
		return file, nil
	}
}

type gzipReadCloser struct {
	*gzip.Reader
	file *os.File
}

func (g gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.file.Close(); err == nil {
		err = cerr
	}
	return err
}

type xzReadCloser struct {
	r    *xz.Reader
	file *os.File
}

func (x xzReadCloser) Read(p []byte) (int, error) { return x.r.Read(p) }
func (x xzReadCloser) Close() error                { return x.file.Close() }

// LoadFeed opens src and loads it into the catalog, tagging every
// resulting package with src.Name() as its Source.
func (c *Catalog) LoadFeed(ctx context.Context, src FeedSource, opts LoadOptions) error {
	rc, err := src.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	opts.Source = src.Name()
	return c.Load(ctx, rc, opts)
}
