package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"saturn/internal/domain"
	"saturn/internal/fabric"
)

// Decision is the outcome of one backfill step: stop the chain, or
// resubmit with the narrowed window.
type Decision struct {
	Continue bool
	Next     domain.Window
	// Reason names the stopping rule that fired, for logs.
	Reason string
}

// DecideBackfill applies the stopping rules of the backward walk to one
// fetched page. dates are the record dates as returned by the provider,
// unsorted and possibly duplicated or out of window; only their
// minimum matters.
//
// The chain stops when the provider has no more data (empty page), when
// the page shows no progress (nothing strictly older than the window
// end, which guards against providers that ignore the window), or when the
// next window would be too narrow to fetch. Otherwise the next step is
// [start, min(dates)): the data itself drives termination, and each
// step's end is strictly older than the last, so the walk is finite.
func DecideBackfill(w domain.Window, dates []time.Time, minStep time.Duration) Decision {
	if len(dates) == 0 {
		return Decision{Reason: "empty page"}
	}

	newEnd := dates[0]
	for _, d := range dates[1:] {
		if d.Before(newEnd) {
			newEnd = d
		}
	}
	if !newEnd.Before(w.End) {
		return Decision{Reason: "no progress"}
	}

	next := domain.Window{Start: w.Start, End: newEnd}
	if !next.Valid() || next.Exhausted(minStep) {
		return Decision{Reason: "horizon reached"}
	}
	return Decision{Continue: true, Next: next}
}

// Backfill walks one series' history from now back to its horizon in
// bounded steps, re-enqueuing itself through the fabric after each
// persisted page.
type Backfill struct {
	source SeriesSource
	sink   Sink
	queue  fabric.Queue
	log    *slog.Logger
}

// NewBackfill wires a backfill controller.
func NewBackfill(source SeriesSource, sink Sink, queue fabric.Queue, log *slog.Logger) *Backfill {
	return &Backfill{
		source: source,
		sink:   sink,
		queue:  queue,
		log:    log.With("component", "backfill"),
	}
}

// Run executes one step of the chain: fetch the window, persist the
// page, and resubmit the narrowed remainder unless a stopping rule
// fired. Persisting strictly precedes resubmission, so a crash in
// between repeats one idempotent page instead of dropping it.
func (b *Backfill) Run(ctx context.Context, key domain.SeriesKey, w domain.Window) error {
	log := b.log.With("series", key.String(), "window", w.String())

	if w.Inverted() {
		return fabric.Fatalf("crawl: inverted backfill window %s for %s", w, key)
	}
	minStep := stepFloor(key)
	if w.Exhausted(minStep) {
		log.Info("backfill done", "reason", "window exhausted")
		return nil
	}

	records, err := b.source.FetchPage(ctx, key, w)
	if err != nil {
		return fmt.Errorf("crawl: fetching %s %s: %w", key, w, err)
	}

	dates := make([]time.Time, len(records))
	for i, r := range records {
		dates[i] = r.Date()
	}
	decision := DecideBackfill(w, dates, minStep)

	if len(records) > 0 {
		if err := b.sink.Insert(ctx, key, records); err != nil {
			return fmt.Errorf("crawl: persisting %d records for %s: %w", len(records), key, err)
		}
	}

	if !decision.Continue {
		log.Info("backfill done", "reason", decision.Reason, "records", len(records))
		return nil
	}

	if err := b.queue.Submit(ctx, TaskBackfill, BackfillArgs{Key: key, Window: decision.Next}, laneFor(key)...); err != nil {
		return fmt.Errorf("crawl: resubmitting backfill for %s: %w", key, err)
	}
	log.Info("backfill step", "records", len(records), "next", decision.Next.String())
	return nil
}

// stepFloor is the smallest useful window span for a series: one day for
// everything except sub-daily candles, where one day still holds because
// candle providers key pages by day boundaries.
func stepFloor(_ domain.SeriesKey) time.Duration {
	return domain.Day
}
