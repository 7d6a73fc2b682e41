package engine

import (
	"sync"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
)

// request is one queued mutation. reply is nil for fire-and-forget
// mutations; otherwise it is buffered with room for exactly one Result.
type request struct {
	mutation reconcile.Mutation
	reply    chan Result
}

// mutationQueue is an unbounded FIFO shared by many producers and the single
// Run consumer.
//
// Unbounded so that a burst of stream events never blocks the stream reader
// goroutine behind a slow consumer. The signal channel lets Run wait with a
// select on ctx.Done().
type mutationQueue struct {
	mu     sync.Mutex
	items  []request
	closed bool
	signal chan struct{} // buffered, size 1; closed on Close
}

func newMutationQueue() *mutationQueue {
	return &mutationQueue{
		items:  make([]request, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends r. Returns false if the queue is closed.
func (q *mutationQueue) Enqueue(r request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, r)

	// Multiple signals coalesce into the one buffered slot.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front request without blocking.
func (q *mutationQueue) TryDequeue() (request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return request{}, false
	}
	r := q.items[0]
	// Clear the slot so the backing array does not pin snapshots.
	q.items[0] = request{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return r, true
}

// Wait returns a channel that fires when requests may be available and is
// closed once the queue is closed.
func (q *mutationQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued requests.
func (q *mutationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close was called.
func (q *mutationQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting requests and returns whatever was still queued.
func (q *mutationQueue) Close() []request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)

	rest := q.items
	q.items = nil
	return rest
}
