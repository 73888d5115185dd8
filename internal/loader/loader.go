// Package loader pulls portal documents through the local store and the
// content client and hands commands and handlers decoded, ready-to-filter
// collections.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/derickschaefer/opendosm/internal/analytics"
	"github.com/derickschaefer/opendosm/internal/content"
	"github.com/derickschaefer/opendosm/internal/filter"
	"github.com/derickschaefer/opendosm/internal/model"
	"github.com/derickschaefer/opendosm/internal/store"
	"github.com/derickschaefer/opendosm/internal/util"
)

// ErrNotFound is returned when an essential document is missing upstream.
var ErrNotFound = content.ErrNotFound

// Fetcher retrieves raw documents. *content.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, ref content.Ref) ([]byte, error)
}

// Cache persists raw documents. *store.Store satisfies it.
type Cache interface {
	GetDocument(key string) (store.Document, bool, error)
	PutDocument(key string, body []byte) error
}

// Counter supplies download totals. *analytics.Client satisfies it.
type Counter interface {
	Enabled() bool
	Counts(ctx context.Context) ([]model.DownloadCount, error)
}

// Options mirrors the --no-cache and --refresh flags.
type Options struct {
	// NoCache skips cache reads; fetched documents are still written.
	NoCache bool
	// Refresh forces a fetch and overwrites the cached copy. A failed
	// fetch falls back to the cached copy when one exists.
	Refresh bool
	// CountsTTL bounds how long download totals are reused in-process.
	// Zero means DefaultCountsTTL.
	CountsTTL time.Duration
}

// DefaultCountsTTL is the download totals reuse window.
const DefaultCountsTTL = 5 * time.Minute

// Meta describes how a load was satisfied.
type Meta struct {
	CacheHit bool
	Warnings []string
}

func (m *Meta) merge(o Meta) {
	m.CacheHit = m.CacheHit || o.CacheHit
	m.Warnings = append(m.Warnings, o.Warnings...)
}

// Loader loads documents. The zero Cache and Counter are allowed.
type Loader struct {
	fetch   Fetcher
	cache   Cache
	counter Counter
	opts    Options
	log     *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	counted  time.Time
	memo     []model.DownloadCount
	memoized bool
}

// New creates a Loader. cache and counter may be nil.
func New(f Fetcher, cache Cache, counter Counter, opts Options, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	if opts.CountsTTL <= 0 {
		opts.CountsTTL = DefaultCountsTTL
	}
	l := &Loader{fetch: f, cache: cache, opts: opts, log: log, now: time.Now}
	if counter != nil && counter.Enabled() {
		l.counter = counter
	}
	return l
}

// raw returns the bytes of ref, from the cache when allowed.
func (l *Loader) raw(ctx context.Context, ref content.Ref) ([]byte, Meta, error) {
	key := ref.CacheKey()
	var cached *store.Document
	if l.cache != nil && !l.opts.NoCache {
		doc, found, err := l.cache.GetDocument(key)
		if err != nil {
			l.log.Warn("reading cached document", "key", key, "err", err)
		} else if found {
			if !l.opts.Refresh {
				l.log.Debug("cache hit", "key", key, "fetched_at", doc.FetchedAt)
				return doc.Body, Meta{CacheHit: true}, nil
			}
			cached = &doc
		}
	}

	b, err := l.fetch.Fetch(ctx, ref)
	if err != nil {
		if cached != nil && !errors.Is(err, content.ErrNotFound) && ctx.Err() == nil {
			msg := fmt.Sprintf("%s: using copy cached %s: %v", ref.Doc, cached.FetchedAt.Format("2006-01-02 15:04"), err)
			return cached.Body, Meta{CacheHit: true, Warnings: []string{msg}}, nil
		}
		return nil, Meta{}, err
	}
	if l.cache != nil {
		if err := l.cache.PutDocument(key, b); err != nil {
			l.log.Warn("caching document", "key", key, "err", err)
		}
	}
	return b, Meta{}, nil
}

func load[T any](ctx context.Context, l *Loader, ref content.Ref, decode func([]byte) (T, error)) (T, Meta, error) {
	var zero T
	b, meta, err := l.raw(ctx, ref)
	if err != nil {
		return zero, meta, err
	}
	v, err := decode(b)
	if err != nil {
		return zero, meta, fmt.Errorf("%s: %w", ref.Doc, err)
	}
	return v, meta, nil
}

// counts returns download totals, reusing a recent result. Failures are
// logged and reported as a warning; the caller proceeds with zero totals.
func (l *Loader) counts(ctx context.Context) ([]model.DownloadCount, Meta) {
	if l.counter == nil {
		return nil, Meta{}
	}
	l.mu.Lock()
	if l.memoized && l.now().Sub(l.counted) < l.opts.CountsTTL {
		counts := l.memo
		l.mu.Unlock()
		return counts, Meta{}
	}
	l.mu.Unlock()

	counts, err := l.counter.Counts(ctx)
	if err != nil {
		l.log.Warn("download counts unavailable", "err", err)
		return nil, Meta{Warnings: []string{fmt.Sprintf("download counts unavailable: %v", err)}}
	}
	l.mu.Lock()
	l.memo, l.counted, l.memoized = counts, l.now(), true
	l.mu.Unlock()
	return counts, Meta{}
}

// Downloaded records a successful download event in the reused totals so
// the next listing reflects it without refetching.
func (l *Loader) Downloaded(publicationID string, resourceID int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.memoized {
		return
	}
	l.memo = analytics.Increment(l.memo, publicationID, resourceID)
}

// ─── Pages ────────────────────────────────────────────────────────────────────

// Catalogue loads the catalogue index.
func (l *Loader) Catalogue(ctx context.Context, lang language.Tag) (*model.CatalogueIndex, Meta, error) {
	return load(ctx, l, content.Ref{Doc: content.DocCatalogue, Lang: lang}, content.DecodeCatalogue)
}

// Publications loads the publication listing and download totals in
// parallel. The result is sorted by release date, newest first.
func (l *Loader) Publications(ctx context.Context, lang language.Tag) ([]model.Publication, Meta, error) {
	var (
		pubs      []model.Publication
		counts    []model.DownloadCount
		pubMeta   Meta
		countMeta Meta
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pubs, pubMeta, err = load(gctx, l, content.Ref{Doc: content.DocPublications, Lang: lang}, content.DecodePublications)
		return err
	})
	g.Go(func() error {
		counts, countMeta = l.counts(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, Meta{}, err
	}
	pubMeta.merge(countMeta)
	return filter.SortByDateDesc(analytics.Enrich(pubs, counts)), pubMeta, nil
}

// Publication loads one publication with per-resource download totals.
func (l *Loader) Publication(ctx context.Context, id string, lang language.Tag) (*model.PublicationDetail, Meta, error) {
	var (
		detail    *model.PublicationDetail
		counts    []model.DownloadCount
		meta      Meta
		countMeta Meta
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		detail, meta, err = load(gctx, l, content.Ref{Doc: content.DocPublication, Lang: lang, ID: id}, content.DecodePublication)
		return err
	})
	g.Go(func() error {
		counts, countMeta = l.counts(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, Meta{}, err
	}
	meta.merge(countMeta)
	if detail.PublicationID == "" {
		detail.PublicationID = id
	}
	enriched := analytics.EnrichResources(*detail, counts)
	return &enriched, meta, nil
}

// TechnicalNotes loads the technical notes listing in document order.
func (l *Loader) TechnicalNotes(ctx context.Context, lang language.Tag) ([]model.Publication, Meta, error) {
	return load(ctx, l, content.Ref{Doc: content.DocTechnicalNotes, Lang: lang}, content.DecodePublications)
}

// Upcoming loads the release calendar.
func (l *Loader) Upcoming(ctx context.Context, lang language.Tag) ([]model.UpcomingPublication, Meta, error) {
	return load(ctx, l, content.Ref{Doc: content.DocUpcoming, Lang: lang}, content.DecodeUpcoming)
}

// NSDP loads the national summary data page download table.
func (l *Loader) NSDP(ctx context.Context, lang language.Tag) ([]model.NSDPItem, Meta, error) {
	return load(ctx, l, content.Ref{Doc: content.DocNSDP, Lang: lang}, content.DecodeNSDP)
}

// ─── Warm ─────────────────────────────────────────────────────────────────────

// Warm re-fetches every listing document for each language into the cache.
// Individual failures are collected; the returned count is the number of
// documents fetched.
func (l *Loader) Warm(ctx context.Context, langs []language.Tag) (int, error) {
	var refs []content.Ref
	for _, lang := range langs {
		for _, d := range content.Documents {
			if d == content.DocPublication {
				continue
			}
			refs = append(refs, content.Ref{Doc: d, Lang: lang})
		}
	}

	errs := make([]error, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	warm := &Loader{fetch: l.fetch, cache: l.cache, opts: Options{Refresh: true}, log: l.log, now: l.now}
	for i, ref := range refs {
		g.Go(func() error {
			_, meta, err := warm.raw(gctx, ref)
			switch {
			case err != nil:
				errs[i] = fmt.Errorf("%s: %w", ref.CacheKey(), err)
			case len(meta.Warnings) > 0:
				errs[i] = errors.New(meta.Warnings[0])
			}
			return nil
		})
	}
	_ = g.Wait()

	var me util.MultiError
	stored := 0
	for _, err := range errs {
		if err != nil {
			me.Add(err)
			continue
		}
		stored++
	}
	return stored, me.Err()
}
