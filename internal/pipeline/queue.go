package pipeline

import (
	"context"
	"sync/atomic"
	"time"
)

// Queue is a bounded FIFO between a producer and one worker. Enqueueing never
// blocks: when the queue is full the new item is dropped and handed to the
// discard function.
type Queue[T any] struct {
	name     string
	ch       chan T
	discard  func(T)
	enqueued atomic.Uint64
	dropped  atomic.Uint64
	// pending counts items queued or still being handled by the worker.
	pending atomic.Int64
}

// NewQueue creates a queue holding at most capacity items. discard, when not
// nil, receives every item the queue drops or drains.
func NewQueue[T any](name string, capacity int, discard func(T)) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		name:    name,
		ch:      make(chan T, capacity),
		discard: discard,
	}
}

// TryEnqueue adds item without blocking. It returns false when the queue was
// full and the item was dropped.
func (q *Queue[T]) TryEnqueue(item T) bool {
	q.pending.Add(1)
	select {
	case q.ch <- item:
		q.enqueued.Add(1)
		return true
	default:
		q.pending.Add(-1)
		q.dropped.Add(1)
		q.drop(item)
		return false
	}
}

// Receive waits up to timeout for the next item. ok is false on timeout or
// when ctx is done.
func (q *Queue[T]) Receive(ctx context.Context, timeout time.Duration) (item T, ok bool) {
	// fast path: an item is ready
	select {
	case item = <-q.ch:
		return item, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item = <-q.ch:
		return item, true
	case <-timer.C:
	case <-ctx.Done():
	}
	return item, false
}

// Drain empties the queue, discarding every item, and returns how many were
// removed.
func (q *Queue[T]) Drain() int {
	n := 0
	for {
		select {
		case item := <-q.ch:
			q.drop(item)
			q.done()
			n++
		default:
			return n
		}
	}
}

// done marks a received item as finished.
func (q *Queue[T]) done() {
	q.pending.Add(-1)
}

func (q *Queue[T]) drop(item T) {
	if q.discard != nil {
		q.discard(item)
	}
}

// Name returns the queue name used in logs and metrics.
func (q *Queue[T]) Name() string { return q.name }

// Len returns the number of queued items.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Pending returns the number of items queued or in progress.
func (q *Queue[T]) Pending() int64 { return q.pending.Load() }

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return cap(q.ch) }

// Dropped returns how many items were rejected because the queue was full.
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }

// Enqueued returns how many items were accepted.
func (q *Queue[T]) Enqueued() uint64 { return q.enqueued.Load() }

// QueueStats is a point in time view of a queue.
type QueueStats struct {
	Name     string `json:"name"`
	Length   int    `json:"length"`
	Pending  int64  `json:"pending"`
	Capacity int    `json:"capacity"`
	Enqueued uint64 `json:"enqueued"`
	Dropped  uint64 `json:"dropped"`
}

// Stats returns the current queue counters.
func (q *Queue[T]) Stats() QueueStats {
	return QueueStats{
		Name:     q.name,
		Length:   q.Len(),
		Pending:  q.Pending(),
		Capacity: q.Cap(),
		Enqueued: q.Enqueued(),
		Dropped:  q.Dropped(),
	}
}
