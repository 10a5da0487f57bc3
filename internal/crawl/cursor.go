package crawl

import (
	"context"
	"fmt"
	"log/slog"
)

// recentLookback is how many recently persisted ids form the stopping
// oracle. It bounds the overlap search, it is not a duplicate index.
const recentLookback = 20

// CursorCatchUp finds items missing locally in a feed that is only
// exposed as a reverse-chronological cursor-paginated list. Correctness
// rests on the feed being strictly reverse-chronological with stable
// ids: once one locally known id is seen, everything older is assumed
// already persisted.
type CursorCatchUp struct {
	source FeedSource
	sink   FeedSink
	log    *slog.Logger
}

// NewCursorCatchUp wires a cursor catch-up detector.
func NewCursorCatchUp(source FeedSource, sink FeedSink, log *slog.Logger) *CursorCatchUp {
	return &CursorCatchUp{
		source: source,
		sink:   sink,
		log:    log.With("component", "cursor-catchup"),
	}
}

// MissedIDs walks the feed from its head until it overlaps local state
// or exhausts the cursor, and returns the not-yet-seen ids in discovery
// order (most recent first).
func (c *CursorCatchUp) MissedIDs(ctx context.Context, feed string) ([]string, error) {
	recent, err := c.sink.RecentIDs(ctx, feed, recentLookback)
	if err != nil {
		return nil, fmt.Errorf("crawl: listing recent ids for feed %s: %w", feed, err)
	}
	known := make(map[string]struct{}, len(recent))
	for _, id := range recent {
		known[id] = struct{}{}
	}

	ids, cursor, err := c.source.ListPage(ctx, feed, "")
	if err != nil {
		return nil, fmt.Errorf("crawl: listing feed %s: %w", feed, err)
	}
	mask := unknownMask(ids, known)

	// Keep paging while no overlap with local state has appeared and the
	// feed has more pages. pageMask tracks only the newest page: one
	// known id there stops the walk.
	pageMask := mask
	for allTrue(pageMask) && cursor != "" {
		var pageIDs []string
		pageIDs, cursor, err = c.source.ListPage(ctx, feed, cursor)
		if err != nil {
			return nil, fmt.Errorf("crawl: listing feed %s after cursor: %w", feed, err)
		}
		pageMask = unknownMask(pageIDs, known)
		ids = append(ids, pageIDs...)
		mask = append(mask, pageMask...)
	}

	var missed []string
	for i, id := range ids {
		if mask[i] {
			missed = append(missed, id)
		}
	}
	return missed, nil
}

// Run detects missed items and persists each one. Fetch-and-insert per
// item keeps the pass idempotent under re-delivery: items already stored
// are deduplicated by the sink.
func (c *CursorCatchUp) Run(ctx context.Context, feed string) error {
	missed, err := c.MissedIDs(ctx, feed)
	if err != nil {
		return err
	}

	for _, id := range missed {
		item, err := c.source.FetchItem(ctx, feed, id)
		if err != nil {
			return fmt.Errorf("crawl: fetching feed item %s/%s: %w", feed, id, err)
		}
		if err := c.sink.InsertItem(ctx, feed, item); err != nil {
			return fmt.Errorf("crawl: persisting feed item %s/%s: %w", feed, id, err)
		}
	}
	c.log.Info("feed pass done", "feed", feed, "missed", len(missed))
	return nil
}

// unknownMask marks ids absent from the known set.
func unknownMask(ids []string, known map[string]struct{}) []bool {
	mask := make([]bool, len(ids))
	for i, id := range ids {
		_, ok := known[id]
		mask[i] = !ok
	}
	return mask
}

func allTrue(mask []bool) bool {
	for _, m := range mask {
		if !m {
			return false
		}
	}
	return true
}
