// Package crawl contains the scheduling core: the recursive backward
// backfill, the watermark catch-up, and the cursor-feed missed-item
// detector. Controllers are task bodies; the provider clients, the sink,
// and the dispatch fabric are injected collaborators.
package crawl

import (
	"context"
	"time"

	"saturn/internal/domain"
	"saturn/internal/fabric"
)

// SeriesSource fetches one page of records for a window. An empty page
// is not an error; only transport or auth failures are.
type SeriesSource interface {
	FetchPage(ctx context.Context, key domain.SeriesKey, w domain.Window) ([]domain.Record, error)
}

// Sink is the idempotent persistence collaborator. Re-inserting records
// with the same natural key must neither duplicate nor error; the
// watermark is derived from the most recent persisted record, so the
// sink owns it and the crawl core only reads it.
type Sink interface {
	Insert(ctx context.Context, key domain.SeriesKey, records []domain.Record) error
	Watermark(ctx context.Context, key domain.SeriesKey) (time.Time, bool, error)
}

// FeedSource is a reverse-chronological, cursor-paginated feed with
// stable ids and no date filter.
type FeedSource interface {
	// ListPage returns ids most-recent-first plus the cursor for the
	// next page; next is empty when the feed is exhausted.
	ListPage(ctx context.Context, feed string, cursor string) (ids []string, next string, err error)

	// FetchItem retrieves one feed item by id.
	FetchItem(ctx context.Context, feed string, id string) (domain.Record, error)
}

// FeedSink persists feed items and lists recently stored ids.
type FeedSink interface {
	RecentIDs(ctx context.Context, feed string, limit int) ([]string, error)
	InsertItem(ctx context.Context, feed string, item domain.Record) error
}

// SourceMux routes each series type to the provider that serves it.
type SourceMux struct {
	sources map[domain.SeriesType]SeriesSource
}

var _ SeriesSource = (*SourceMux)(nil)

// NewSourceMux returns an empty mux.
func NewSourceMux() *SourceMux {
	return &SourceMux{sources: make(map[domain.SeriesType]SeriesSource)}
}

// Route binds series types to a source.
func (m *SourceMux) Route(src SeriesSource, series ...domain.SeriesType) {
	for _, s := range series {
		m.sources[s] = src
	}
}

// FetchPage delegates to the source registered for the key's series.
// An unrouted series is a programming error, surfaced as fatal.
func (m *SourceMux) FetchPage(ctx context.Context, key domain.SeriesKey, w domain.Window) ([]domain.Record, error) {
	src, ok := m.sources[key.Series]
	if !ok {
		return nil, fabric.Fatalf("crawl: no source routed for series %q", key.Series)
	}
	return src.FetchPage(ctx, key, w)
}
