package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"

	"saturn/internal/metrics"
)

const lanePrefix = "fabric:lane:"

// RedisQueue implements Queue and Source over Redis lists, one list per
// lane. LPUSH on submit, RPOP on receive gives FIFO per lane;
// at-least-once delivery comes from idempotent handlers, not from the
// queue itself.
type RedisQueue struct {
	client *redis.Client
	lanes  []string
	poll   time.Duration
}

var _ Queue = (*RedisQueue)(nil)
var _ Source = (*RedisQueue)(nil)

// NewRedisQueue wraps a Redis client. Lanes are polled in the given
// order; nil means the default lane set.
func NewRedisQueue(client *redis.Client, lanes []string) *RedisQueue {
	if lanes == nil {
		lanes = Lanes
	}
	return &RedisQueue{
		client: client,
		lanes:  lanes,
		poll:   250 * time.Millisecond,
	}
}

// Submit pushes a task envelope onto its lane.
func (q *RedisQueue) Submit(_ context.Context, name string, args any, opts ...SubmitOption) error {
	task, err := newTask(name, args, opts...)
	if err != nil {
		return err
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("fabric: marshalling task %s: %w", name, err)
	}
	if err := q.client.LPush(lanePrefix+task.Lane, data).Err(); err != nil {
		return fmt.Errorf("fabric: submitting %s to lane %s: %w", name, task.Lane, err)
	}
	metrics.TasksSubmitted.WithLabelValues(task.Lane).Inc()
	return nil
}

// Receive polls the lanes in priority order until a task arrives or ctx
// is cancelled.
func (q *RedisQueue) Receive(ctx context.Context) (*Task, error) {
	for {
		for _, lane := range q.lanes {
			data, err := q.client.RPop(lanePrefix + lane).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("fabric: polling lane %s: %w", lane, err)
			}
			task := &Task{}
			if err := json.Unmarshal([]byte(data), task); err != nil {
				return nil, fmt.Errorf("fabric: decoding task from lane %s: %w", lane, err)
			}
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.poll):
		}
	}
}
