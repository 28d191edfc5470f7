// Package bus provides the unbounded multi-producer, single-consumer queue
// that connects sensor producers, the dispatcher and the persistence engine.
//
// Send never blocks: producers are physical sensors and must not stall. The
// price is that memory is not bounded. If the consumer falls behind for good,
// the queue grows until the process runs out of memory. Peak exposes the
// high-water mark so that this can be observed.
package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send after Close, and by Recv once a closed queue
// has been drained.
var ErrClosed = errors.New("bus: queue closed")

// Sender is the producer side of a queue.
type Sender[T any] interface {
	Send(v T) error
}

// Queue is an unbounded FIFO. Any number of goroutines may call Send; exactly
// one goroutine should call Recv.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool
	peak   int
	ready  chan struct{}
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Send appends v. It never blocks.
func (q *Queue[T]) Send(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, v)
	if n := len(q.items) - q.head; n > q.peak {
		q.peak = n
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Recv removes and returns the oldest item, blocking until one is available.
// It returns ctx.Err() if ctx is done first, and ErrClosed when the queue is
// closed and empty.
func (q *Queue[T]) Recv(ctx context.Context) (T, error) {
	for {
		if v, ok, err := q.pop(); ok || err != nil {
			return v, err
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryRecv returns the oldest item without blocking.
func (q *Queue[T]) TryRecv() (T, bool) {
	v, ok, _ := q.pop()
	return v, ok
}

func (q *Queue[T]) pop() (T, bool, error) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		if q.closed {
			return zero, false, ErrClosed
		}
		return zero, false, nil
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head > 1024 && q.head*2 > len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v, true, nil
}

// Close stops accepting new items. Items already queued can still be
// received. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Peak returns the largest number of items ever queued at once.
func (q *Queue[T]) Peak() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peak
}
