package ratelimit

import (
	"context"
	"sort"
	"time"

	"saturn/internal/metrics"
)

// Window is one sliding admission window: at most Capacity admissions per
// Period. Retry is how long a blocked caller sleeps before re-checking.
// Key names the shared log; unrelated limiters must use distinct keys.
type Window struct {
	Capacity int
	Period   time.Duration
	Retry    time.Duration
	Key      string
}

// WindowStatus is a read-side snapshot of one window.
type WindowStatus struct {
	Key      string        `json:"key"`
	Open     bool          `json:"open"`
	InUse    int64         `json:"in_use"`
	Capacity int           `json:"capacity"`
	Period   time.Duration `json:"period"`
	Retry    time.Duration `json:"retry"`
}

// Limiter admits callers only when every configured window has spare
// capacity. Windows are checked shortest period first so the cheap burst
// window rejects before the long quota window is consulted.
//
// The trim-check-push sequence is not atomic across the window set, so
// concurrent callers may briefly over-admit; the logs self-trim, so the
// limiter converges back to policy within one period. Store failures
// propagate; admission is never silently skipped.
type Limiter struct {
	name    string
	windows []Window
	store   Store
	now     func() time.Time
}

// New creates a Limiter over the given windows, ordered by period.
func New(name string, store Store, windows ...Window) *Limiter {
	sorted := make([]Window, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Period < sorted[j].Period })
	return &Limiter{
		name:    name,
		windows: sorted,
		store:   store,
		now:     time.Now,
	}
}

// Name returns the limiter identifier used in status reports and metrics.
func (l *Limiter) Name() string { return l.name }

// trim drops aged-out entries from the head of a window's log, stopping
// at the first entry still inside the period.
func (l *Limiter) trim(w Window) error {
	for {
		oldest, ok, err := l.store.Oldest(w.Key)
		if err != nil {
			return err
		}
		if !ok || l.now().Sub(oldest) <= w.Period {
			return nil
		}
		if err := l.store.DropOldest(w.Key); err != nil {
			return err
		}
	}
}

// tryAdmit reports whether the window has spare capacity after trimming.
func (l *Limiter) tryAdmit(w Window) (bool, error) {
	if err := l.trim(w); err != nil {
		return false, err
	}
	n, err := l.store.Len(w.Key)
	if err != nil {
		return false, err
	}
	return n < int64(w.Capacity), nil
}

// Acquire blocks until every window admits, then records the admission in
// all of them. Pushing happens only after all windows report open, so a
// caller blocked on one window does not consume capacity in another.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		blocked := -1
		for i, w := range l.windows {
			open, err := l.tryAdmit(w)
			if err != nil {
				return err
			}
			if !open {
				blocked = i
				break
			}
		}

		if blocked < 0 {
			now := l.now()
			for _, w := range l.windows {
				if err := l.store.Push(w.Key, now); err != nil {
					return err
				}
			}
			return nil
		}

		metrics.RateLimitWaits.WithLabelValues(l.name, l.windows[blocked].Key).Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.windows[blocked].Retry):
		}
	}
}

// Status reports every window after a read-side trim. It never blocks on
// admission.
func (l *Limiter) Status() ([]WindowStatus, error) {
	statuses := make([]WindowStatus, 0, len(l.windows))
	for _, w := range l.windows {
		if err := l.trim(w); err != nil {
			return nil, err
		}
		n, err := l.store.Len(w.Key)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, WindowStatus{
			Key:      w.Key,
			Open:     n < int64(w.Capacity),
			InUse:    n,
			Capacity: w.Capacity,
			Period:   w.Period,
			Retry:    w.Retry,
		})
	}
	return statuses, nil
}
