package queue

import (
	"context"
	"iter"
	"sync"
)

// Ring is a bounded queue that never blocks producers: when the ring is
// full, the oldest buffered element is dropped to admit the newest. Losing
// old elements is the accepted trade; stalling a producer is not.
type Ring[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
}

// NewRing creates a Ring holding up to capacity elements. A capacity below
// 1 is treated as 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Ring[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue appends v without blocking, dropping the oldest buffered element
// when the ring is full. Enqueue on a closed ring is a no-op.
func (r *Ring[T]) Enqueue(v T) {
	for {
		select {
		case <-r.done:
			return
		default:
		}

		select {
		case r.ch <- v:
			return
		default:
		}

		// Full: make room by discarding the oldest element. A concurrent
		// consumer may beat us to it, so loop rather than assume the next
		// send succeeds.
		select {
		case <-r.ch:
		default:
		}
	}
}

// Dequeue removes and returns the oldest element, blocking while the ring
// is empty. Elements still buffered when the ring closes are delivered
// before Dequeue starts returning ErrClosed.
func (r *Ring[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T

	select {
	case v := <-r.ch:
		return v, nil
	case <-r.done:
		select {
		case v := <-r.ch:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Stream returns a lazy sequence over the ring's elements, terminating once
// the ring is closed and drained. Each element is delivered to exactly one
// consumer.
func (r *Ring[T]) Stream() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := r.Dequeue(context.Background())
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
// It returns false only when the ring is closed; an open but empty ring
// yields an empty slice and true.
func (r *Ring[T]) TryDrain(n int) ([]T, bool) {
	select {
	case <-r.done:
		return nil, false
	default:
	}

	out := make([]T, 0, min(n, cap(r.ch)))

	for len(out) < n {
		select {
		case v := <-r.ch:
			out = append(out, v)
		default:
			return out, true
		}
	}

	return out, true
}

// Close terminates the ring. It is idempotent and never blocks.
func (r *Ring[T]) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}
