// Package queue provides the bounded queues that back the job manager's
// shared streams: a blocking FIFO whose full-queue behavior backpressures
// producers, and a lossy ring that drops the oldest element instead of ever
// blocking a producer.
package queue

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// ErrClosed is returned by operations on a queue that has been closed.
var ErrClosed = errors.New("queue closed")

// Bounded is a bounded FIFO queue, safe for concurrent use. Enqueue blocks
// while the queue is full. Close terminates the queue without blocking;
// consumers observe termination through Stream, Dequeue, and TryDrain, and
// blocked producers are released with ErrClosed.
type Bounded[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
}

// NewBounded creates a Bounded queue holding up to capacity elements.
// A capacity below 1 is treated as 1.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Bounded[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue appends v, blocking while the queue is full. It returns ErrClosed
// if the queue has been closed, or ctx.Err() if ctx ends first.
func (q *Bounded[T]) Enqueue(ctx context.Context, v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- v:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes and returns the oldest element, blocking while the queue
// is empty. Elements still buffered when the queue closes are delivered
// before Dequeue starts returning ErrClosed.
func (q *Bounded[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T

	select {
	case v := <-q.ch:
		return v, nil
	case <-q.done:
		select {
		case v := <-q.ch:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Stream returns a lazy sequence over the queue's elements. The sequence
// terminates once the queue is closed and any buffered elements have been
// consumed. Multiple consumers may range concurrently; each element is
// delivered to exactly one of them.
func (q *Bounded[T]) Stream() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := q.Dequeue(context.Background())
			if err != nil {
				return
			}

			if !yield(v) {
				return
			}
		}
	}
}

// TryDrain removes and returns up to n buffered elements without blocking.
// It returns false only when the queue is closed; an open but empty queue
// yields an empty slice and true.
func (q *Bounded[T]) TryDrain(n int) ([]T, bool) {
	select {
	case <-q.done:
		return nil, false
	default:
	}

	out := make([]T, 0, min(n, cap(q.ch)))

	for len(out) < n {
		select {
		case v := <-q.ch:
			out = append(out, v)
		default:
			return out, true
		}
	}

	return out, true
}

// Close terminates the queue. It is idempotent and never blocks, regardless
// of how full the queue is or how slow its consumers are.
func (q *Bounded[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
