package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"saturn/internal/domain"
)

// CatchUp brings one series from its persisted watermark to now. One
// page per invocation: large gaps close over several periodic triggers
// rather than in one run, keeping per-run work bounded.
type CatchUp struct {
	source SeriesSource
	sink   Sink
	now    func() time.Time
	log    *slog.Logger
}

// NewCatchUp wires a catch-up controller.
func NewCatchUp(source SeriesSource, sink Sink, log *slog.Logger) *CatchUp {
	return &CatchUp{
		source: source,
		sink:   sink,
		now:    time.Now,
		log:    log.With("component", "catchup"),
	}
}

// Run executes one catch-up pass for the key. A series with no watermark
// has never been backfilled; catch-up must not run ahead of backfill, so
// it skips.
func (c *CatchUp) Run(ctx context.Context, key domain.SeriesKey) error {
	log := c.log.With("series", key.String())

	watermark, ok, err := c.sink.Watermark(ctx, key)
	if err != nil {
		return fmt.Errorf("crawl: reading watermark for %s: %w", key, err)
	}
	if !ok {
		log.Info("catchup skipped", "reason", "no watermark, series not backfilled")
		return nil
	}

	w := domain.Window{Start: watermark, End: c.now()}
	if !w.Valid() {
		return nil
	}

	records, err := c.source.FetchPage(ctx, key, w)
	if err != nil {
		return fmt.Errorf("crawl: fetching %s %s: %w", key, w, err)
	}

	// Inclusive-boundary providers return the watermark record itself;
	// nothing at or before the watermark may be re-persisted.
	fresh := records[:0]
	for _, r := range records {
		if r.Date().After(watermark) {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 {
		log.Info("catchup done", "records", 0)
		return nil
	}

	if err := c.sink.Insert(ctx, key, fresh); err != nil {
		return fmt.Errorf("crawl: persisting %d records for %s: %w", len(fresh), key, err)
	}
	log.Info("catchup done", "records", len(fresh), "watermark", watermark)
	return nil
}
