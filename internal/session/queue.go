package session

import (
	"sync"

	"github.com/roach88/cutline/internal/scene"
)

// item is either an engine event batch or a task.
type item struct {
	batch []scene.Event
	task  func()
}

// workQueue is a thread-safe unbounded FIFO of items.
//
// The signal channel enables context-aware waiting in Run. It is closed by
// Close, which wakes every waiter.
type workQueue struct {
	mu     sync.Mutex
	items  []item
	closed bool
	signal chan struct{} // buffered, size 1
}

func newWorkQueue() *workQueue {
	return &workQueue{
		items:  make([]item, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds it to the back of the queue. Returns false once closed.
func (q *workQueue) Enqueue(it item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, it)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front item without blocking.
func (q *workQueue) TryDequeue() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item{}, false
	}

	it := q.items[0]
	// Release the slot so the batch and closure can be collected.
	q.items[0] = item{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return it, true
}

// Wait returns a channel that signals when items may be available.
func (q *workQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued items.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *workQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further items and wakes waiters.
func (q *workQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
