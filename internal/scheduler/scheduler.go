// Package scheduler fires the periodic catch-up passes: every day at
// 05:00 UTC for intraday candles, news, and the editorial feeds, every
// Sunday for weekly candles, and on the first of the month for monthly
// candles and fundamentals.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"saturn/internal/crawl"
	"saturn/internal/domain"
	"saturn/internal/fabric"
	"saturn/internal/store"
)

// fireHour is the UTC hour all cadences fire at.
const fireHour = 5

// Scheduler submits catch-up tasks on a fixed cadence.
type Scheduler struct {
	store store.InstrumentStore
	queue fabric.Queue
	feeds []string
	now   func() time.Time
	log   *slog.Logger
}

// New creates a Scheduler that fans catch-up passes out over every
// tracked instrument plus the named cursor feeds.
func New(s store.InstrumentStore, queue fabric.Queue, feeds []string) *Scheduler {
	return &Scheduler{
		store: s,
		queue: queue,
		feeds: feeds,
		now:   time.Now,
		log:   slog.Default().With("component", "scheduler"),
	}
}

// Run blocks, firing cadences at their trigger times until ctx is
// cancelled. A failed pass is logged and the loop keeps going; the next
// trigger retries the same ground.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		fireAt, cadences := nextTrigger(s.now().UTC())
		s.log.Info("waiting for next trigger", "at", fireAt, "cadences", cadences)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(fireAt.Sub(s.now().UTC())):
		}

		for _, c := range cadences {
			if err := s.Fire(ctx, c); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Error("trigger pass failed", "cadence", c, "err", err)
			}
		}
	}
}

// Fire submits one full catch-up pass for a cadence: candle resolutions
// on that cycle for every instrument, the non-candle series of that
// cadence, and (daily only) a missed-item pass over each cursor feed.
func (s *Scheduler) Fire(ctx context.Context, cadence domain.Cadence) error {
	instruments, err := s.store.ListInstruments(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: listing instruments: %w", err)
	}

	submitted := 0
	for _, inst := range instruments {
		for _, res := range domain.CandleResolutionsFor(cadence) {
			key := domain.SeriesKey{
				InstrumentID: inst.ID,
				Symbol:       inst.Symbol,
				Series:       domain.SeriesCandles,
				Resolution:   res,
			}
			if err := crawl.SubmitCatchUp(ctx, s.queue, key); err != nil {
				return fmt.Errorf("scheduler: submitting %s: %w", key, err)
			}
			submitted++
		}

		for _, spec := range domain.SeriesFor(inst.Kind) {
			if spec.Type == domain.SeriesCandles || spec.Cadence != cadence {
				continue
			}
			key := domain.SeriesKey{
				InstrumentID: inst.ID,
				Symbol:       inst.Symbol,
				Series:       spec.Type,
			}
			if err := crawl.SubmitCatchUp(ctx, s.queue, key); err != nil {
				return fmt.Errorf("scheduler: submitting %s: %w", key, err)
			}
			submitted++
		}
	}

	if cadence == domain.CadenceDaily {
		for _, feed := range s.feeds {
			if err := crawl.SubmitCursorCatchUp(ctx, s.queue, feed); err != nil {
				return fmt.Errorf("scheduler: submitting feed %s: %w", feed, err)
			}
			submitted++
		}
	}

	s.log.Info("trigger pass submitted",
		"cadence", cadence,
		"instruments", len(instruments),
		"tasks", submitted,
	)
	return nil
}

// nextTrigger returns the earliest upcoming trigger time after now and
// every cadence that fires at it. On a Sunday that is also the first of
// the month, all three cadences share one instant.
func nextTrigger(now time.Time) (time.Time, []domain.Cadence) {
	candidates := []struct {
		at      time.Time
		cadence domain.Cadence
	}{
		{nextDaily(now), domain.CadenceDaily},
		{nextWeekly(now), domain.CadenceWeekly},
		{nextMonthly(now), domain.CadenceMonthly},
	}

	earliest := candidates[0].at
	for _, c := range candidates[1:] {
		if c.at.Before(earliest) {
			earliest = c.at
		}
	}
	var cadences []domain.Cadence
	for _, c := range candidates {
		if c.at.Equal(earliest) {
			cadences = append(cadences, c.cadence)
		}
	}
	return earliest, cadences
}

func nextDaily(now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), fireHour, 0, 0, 0, time.UTC)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

func nextWeekly(now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), fireHour, 0, 0, 0, time.UTC)
	days := (int(time.Sunday) - int(at.Weekday()) + 7) % 7
	at = at.AddDate(0, 0, days)
	if !at.After(now) {
		at = at.AddDate(0, 0, 7)
	}
	return at
}

func nextMonthly(now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), 1, fireHour, 0, 0, 0, time.UTC)
	if !at.After(now) {
		at = at.AddDate(0, 1, 0)
	}
	return at
}
