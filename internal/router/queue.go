package router

import (
	"sync"
)

// Queue is an unbounded FIFO safe for concurrent use. Send never blocks, so
// the receive activity is never stalled by a slow publisher.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	closed bool

	// Stats
	enqueued int64
	dequeued int64
	highMark int
}

// NewQueue creates a queue with the given initial capacity.
func NewQueue[T any](initialCapacity int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &Queue[T]{items: make([]T, 0, initialCapacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Send appends an item. Returns false if the queue is closed.
func (q *Queue[T]) Send(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	// Reclaim the consumed prefix before append would grow the backing array.
	if len(q.items) == cap(q.items) && q.head > 0 {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}

	q.items = append(q.items, item)
	q.enqueued++
	if l := len(q.items) - q.head; l > q.highMark {
		q.highMark = l
	}

	q.cond.Signal()
	return true
}

// Receive blocks until an item is available. It returns false once the
// queue is closed and empty.
func (q *Queue[T]) Receive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.items) && !q.closed {
		q.cond.Wait()
	}
	return q.popLocked()
}

// TryReceive returns an item if one is available without blocking.
func (q *Queue[T]) TryReceive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if q.head == len(q.items) {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	q.dequeued++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return item, true
}

// Close stops accepting items. Receivers drain what remains.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Len      int
	Enqueued int64
	Dequeued int64
	HighMark int
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:      len(q.items) - q.head,
		Enqueued: q.enqueued,
		Dequeued: q.dequeued,
		HighMark: q.highMark,
	}
}
