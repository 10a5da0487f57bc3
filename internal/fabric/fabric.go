// Package fabric is the at-least-once task execution substrate: named
// lanes backed by Redis lists, JSON task envelopes, and a worker loop
// that retries transient failures and drops fatal ones. Controllers are
// the bodies of tasks submitted here; a task may be re-delivered, so
// every handler must be idempotent.
package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Lane names, in worker polling order. Order is the priority hint:
// earlier lanes are drained first.
const (
	LaneDefault = "default"
	LaneCandles = "candles"
	LaneFeeds   = "feeds"
)

// Lanes is the default polling order.
var Lanes = []string{LaneDefault, LaneCandles, LaneFeeds}

// Task is one unit of work on a lane.
type Task struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Args        json.RawMessage `json:"args"`
	Lane        string          `json:"lane"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// Handler executes one task body. Returning a fatal error (see Fatal)
// drops the task; any other error is retried with bounded attempts.
type Handler func(ctx context.Context, args json.RawMessage) error

// Queue is the submission side of the fabric.
type Queue interface {
	// Submit enqueues a task at least once. Args is JSON-marshalled.
	Submit(ctx context.Context, name string, args any, opts ...SubmitOption) error
}

// Source is the worker side of the fabric.
type Source interface {
	// Receive blocks until a task is available or ctx is cancelled.
	Receive(ctx context.Context) (*Task, error)
}

// SubmitOption adjusts task submission.
type SubmitOption func(*Task)

// OnLane routes the task to the named lane instead of the default one.
func OnLane(lane string) SubmitOption {
	return func(t *Task) { t.Lane = lane }
}

// newTask builds a task envelope with marshalled args.
func newTask(name string, args any, opts ...SubmitOption) (*Task, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("fabric: marshalling args for %s: %w", name, err)
	}
	t := &Task{
		ID:          uuid.NewString(),
		Name:        name,
		Args:        raw,
		Lane:        LaneDefault,
		SubmittedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

// fatalError marks an error that retrying cannot fix (malformed input,
// unknown task name).
type fatalError struct {
	err error
}

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

// Fatal marks err as non-retryable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// Fatalf formats a non-retryable error.
func Fatalf(format string, args ...any) error {
	return &fatalError{err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether err is marked non-retryable.
func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}
