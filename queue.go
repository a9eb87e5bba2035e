package ledgergate

import "sync"

// pendingOp is one submitted operation waiting for the Run loop.
type pendingOp struct {
	req   Request
	reply chan opResult
}

type opResult struct {
	resp Response
	err  error
}

// opQueue is a thread-safe FIFO queue of pending operations.
//
// Submissions arrive from any goroutine; the Engine's single-writer Run loop
// dequeues. The queue is unbounded so concurrent callers never block each
// other; serialization happens at the dequeue side only.
//
// A buffered signal channel (size 1) coalesces wakeups and lets the Run loop
// wait with context awareness.
type opQueue struct {
	mu     sync.Mutex
	ops    []pendingOp
	closed bool
	signal chan struct{}
}

func newOpQueue(capacity int) *opQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &opQueue{
		ops:    make([]pendingOp, 0, capacity),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an operation to the back of the queue.
// Returns false if the queue is closed.
func (q *opQueue) Enqueue(p pendingOp) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.ops = append(q.ops, p)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
func (q *opQueue) TryDequeue() (pendingOp, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 {
		return pendingOp{}, false
	}

	p := q.ops[0]

	// Nil out the slot so the backing array doesn't retain the request's
	// payload and reply channel until reallocation.
	q.ops[0] = pendingOp{}

	if len(q.ops) == 1 {
		q.ops = q.ops[:0]
	} else {
		q.ops = q.ops[1:]
	}

	return p, true
}

// Wait returns a channel that signals when operations may be available.
func (q *opQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *opQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Close stops accepting submissions and wakes all waiters.
func (q *opQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
