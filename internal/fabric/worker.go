package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"

	"saturn/internal/metrics"
)

// Worker pulls tasks from a Source and executes registered handlers.
// Transient handler errors are retried in place with fixed backoff;
// fatal errors and exhausted retries are logged at error level and
// dropped. Re-running an already-persisted step is safe.
type Worker struct {
	source   Source
	handlers map[string]Handler
	attempts uint
	backoff  time.Duration
	log      *slog.Logger
}

// NewWorker creates a worker over the given source.
func NewWorker(source Source, log *slog.Logger) *Worker {
	return &Worker{
		source:   source,
		handlers: make(map[string]Handler),
		attempts: 3,
		backoff:  5 * time.Second,
		log:      log.With("component", "fabric-worker"),
	}
}

// Register binds a handler to a task name. Must be called before Run.
func (w *Worker) Register(name string, h Handler) {
	w.handlers[name] = h
}

// Run processes tasks until ctx is cancelled. Source failures (e.g.
// Redis unreachable) back the loop off rather than killing it.
func (w *Worker) Run(ctx context.Context) error {
	for {
		task, err := w.source.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.log.Error("receive failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.backoff):
			}
			continue
		}
		w.execute(ctx, task)
	}
}

// execute runs one task with the fabric retry policy.
func (w *Worker) execute(ctx context.Context, task *Task) {
	log := w.log.With("task", task.Name, "id", task.ID, "lane", task.Lane)

	handler, ok := w.handlers[task.Name]
	if !ok {
		log.Error("no handler registered, dropping task")
		metrics.TasksProcessed.WithLabelValues(task.Name, "fatal_error").Inc()
		return
	}

	started := time.Now()
	err := retry.Do(
		func() error { return handler(ctx, task.Args) },
		retry.Attempts(w.attempts),
		retry.Delay(w.backoff),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool { return !IsFatal(err) && ctx.Err() == nil }),
		retry.LastErrorOnly(true),
	)

	switch {
	case err == nil:
		log.Info("task done", "elapsed", time.Since(started))
		metrics.TasksProcessed.WithLabelValues(task.Name, "ok").Inc()
	case IsFatal(err):
		log.Error("task failed fatally, dropped", "error", err)
		metrics.TasksProcessed.WithLabelValues(task.Name, "fatal_error").Inc()
	default:
		log.Error("task failed after retries, dropped", "error", err, "attempts", w.attempts)
		metrics.TasksProcessed.WithLabelValues(task.Name, "transient_error").Inc()
	}
}

// DecodeArgs unmarshals task args into v, wrapping failures as fatal:
// malformed args cannot be fixed by retrying.
func DecodeArgs(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return Fatal(fmt.Errorf("fabric: decoding args: %w", err))
	}
	return nil
}
