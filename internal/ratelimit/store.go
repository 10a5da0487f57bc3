// Package ratelimit implements the multi-window admission limiter that
// guards every outbound provider request. Each window keeps a timestamped
// log of past admissions in a shared store, so the configured capacity is
// enforced across all worker processes, not per process.
package ratelimit

import (
	"sync"
	"time"
)

// Store is the admission-log backend: an append/trim/peek list per named
// key. Implementations must be safe for concurrent callers; exact length
// precision under race is not required (see Limiter).
type Store interface {
	// Len returns the current length of the named log.
	Len(key string) (int64, error)

	// Oldest returns the timestamp at the head of the log. ok is false
	// when the log is empty.
	Oldest(key string) (t time.Time, ok bool, err error)

	// DropOldest removes the head entry. Dropping from an empty log is
	// not an error.
	DropOldest(key string) error

	// Push appends an admission timestamp to the tail of the log.
	Push(key string, t time.Time) error
}

// MemoryStore is an in-process Store for tests and single-node runs.
type MemoryStore struct {
	mu   sync.Mutex
	logs map[string][]time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]time.Time)}
}

// Len returns the length of the named log.
func (s *MemoryStore) Len(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.logs[key])), nil
}

// Oldest returns the head timestamp of the named log.
func (s *MemoryStore) Oldest(key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[key]
	if len(log) == 0 {
		return time.Time{}, false, nil
	}
	return log[0], true, nil
}

// DropOldest removes the head entry of the named log.
func (s *MemoryStore) DropOldest(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[key]
	if len(log) > 0 {
		s.logs[key] = log[1:]
	}
	return nil
}

// Push appends a timestamp to the named log.
func (s *MemoryStore) Push(key string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[key] = append(s.logs[key], t)
	return nil
}
