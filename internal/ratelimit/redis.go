package ratelimit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis"
)

// RedisStore backs admission logs with Redis lists, one list per window
// key. Timestamps are stored as unix seconds with fractional precision so
// heterogeneous workers agree on trim decisions. Entries are ephemeral:
// the limiter trims them as they age out, nothing else owns them.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Len returns LLEN of the named log.
func (s *RedisStore) Len(key string) (int64, error) {
	n, err := s.client.LLen(key).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: llen %s: %w", key, err)
	}
	return n, nil
}

// Oldest returns the head entry of the named log.
func (s *RedisStore) Oldest(key string) (time.Time, bool, error) {
	v, err := s.client.LIndex(key, 0).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ratelimit: lindex %s: %w", key, err)
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ratelimit: parsing log entry %q: %w", v, err)
	}
	return time.Unix(0, int64(secs*float64(time.Second))), true, nil
}

// DropOldest pops the head entry of the named log.
func (s *RedisStore) DropOldest(key string) error {
	err := s.client.LPop(key).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("ratelimit: lpop %s: %w", key, err)
	}
	return nil
}

// Push appends an admission timestamp to the named log.
func (s *RedisStore) Push(key string, t time.Time) error {
	secs := float64(t.UnixNano()) / float64(time.Second)
	if err := s.client.RPush(key, strconv.FormatFloat(secs, 'f', 6, 64)).Err(); err != nil {
		return fmt.Errorf("ratelimit: rpush %s: %w", key, err)
	}
	return nil
}
