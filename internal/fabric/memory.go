package fabric

import (
	"context"
)

// MemoryQueue is an in-process Queue/Source for tests and single-node
// runs. Lanes collapse into one FIFO channel.
type MemoryQueue struct {
	tasks chan *Task
}

var _ Queue = (*MemoryQueue)(nil)
var _ Source = (*MemoryQueue)(nil)

// NewMemoryQueue creates a MemoryQueue with the given buffer size.
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{tasks: make(chan *Task, size)}
}

// Submit enqueues a task; it blocks when the buffer is full.
func (q *MemoryQueue) Submit(ctx context.Context, name string, args any, opts ...SubmitOption) error {
	task, err := newTask(name, args, opts...)
	if err != nil {
		return err
	}
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next queued task.
func (q *MemoryQueue) Receive(ctx context.Context) (*Task, error) {
	select {
	case t := <-q.tasks:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of buffered tasks. Test helper.
func (q *MemoryQueue) Len() int { return len(q.tasks) }
