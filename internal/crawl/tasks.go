package crawl

import (
	"context"
	"encoding/json"

	"saturn/internal/domain"
	"saturn/internal/fabric"
)

// Task names understood by the worker.
const (
	TaskBackfill      = "series_backfill"
	TaskCatchUp       = "series_catchup"
	TaskCursorCatchUp = "feed_catchup"
)

// BackfillArgs is the envelope of one backfill step.
type BackfillArgs struct {
	Key    domain.SeriesKey `json:"key"`
	Window domain.Window    `json:"window"`
}

// CatchUpArgs is the envelope of one catch-up run.
type CatchUpArgs struct {
	Key domain.SeriesKey `json:"key"`
}

// CursorCatchUpArgs is the envelope of one feed pass.
type CursorCatchUpArgs struct {
	Feed string `json:"feed"`
}

// laneFor routes candle tasks to their own lane so bulk candle backfill
// does not starve the cheaper series.
func laneFor(key domain.SeriesKey) []fabric.SubmitOption {
	if key.Series == domain.SeriesCandles {
		return []fabric.SubmitOption{fabric.OnLane(fabric.LaneCandles)}
	}
	return nil
}

// SubmitBackfill enqueues the first step of a backfill chain.
func SubmitBackfill(ctx context.Context, queue fabric.Queue, key domain.SeriesKey, w domain.Window) error {
	return queue.Submit(ctx, TaskBackfill, BackfillArgs{Key: key, Window: w}, laneFor(key)...)
}

// SubmitCatchUp enqueues one catch-up run.
func SubmitCatchUp(ctx context.Context, queue fabric.Queue, key domain.SeriesKey) error {
	return queue.Submit(ctx, TaskCatchUp, CatchUpArgs{Key: key}, laneFor(key)...)
}

// SubmitCursorCatchUp enqueues one feed pass.
func SubmitCursorCatchUp(ctx context.Context, queue fabric.Queue, feed string) error {
	return queue.Submit(ctx, TaskCursorCatchUp, CursorCatchUpArgs{Feed: feed}, fabric.OnLane(fabric.LaneFeeds))
}

// RegisterHandlers binds the three controllers to their task names on a
// worker.
func RegisterHandlers(w *fabric.Worker, backfill *Backfill, catchup *CatchUp, cursor *CursorCatchUp) {
	w.Register(TaskBackfill, func(ctx context.Context, raw json.RawMessage) error {
		var args BackfillArgs
		if err := fabric.DecodeArgs(raw, &args); err != nil {
			return err
		}
		return backfill.Run(ctx, args.Key, args.Window)
	})
	w.Register(TaskCatchUp, func(ctx context.Context, raw json.RawMessage) error {
		var args CatchUpArgs
		if err := fabric.DecodeArgs(raw, &args); err != nil {
			return err
		}
		return catchup.Run(ctx, args.Key)
	})
	w.Register(TaskCursorCatchUp, func(ctx context.Context, raw json.RawMessage) error {
		var args CursorCatchUpArgs
		if err := fabric.DecodeArgs(raw, &args); err != nil {
			return err
		}
		return cursor.Run(ctx, args.Feed)
	})
}
