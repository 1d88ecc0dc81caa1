package replica

import "sync"

// signal is one reason to re-read shared state.
type signal struct {
	Reason string
}

// signalQueue is a thread-safe FIFO of sync signals.
//
// Signals with the same reason coalesce while pending: a burst of watch
// notifications causes one read, not one per notification.
//
// Thread-safety is provided for external enqueuing (Notify, Resume, the
// Redis relay) while the Service's Run loop dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type signalQueue struct {
	mu      sync.Mutex
	signals []signal
	closed  bool
	wake    chan struct{} // Signals availability (buffered, size 1)
}

// newSignalQueue creates an empty queue.
func newSignalQueue() *signalQueue {
	return &signalQueue{
		signals: make([]signal, 0, 8),
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue adds s to the back of the queue unless an identical signal is
// already pending. Returns false if the queue is closed.
func (q *signalQueue) Enqueue(s signal) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	for _, pending := range q.signals {
		if pending == s {
			return true
		}
	}
	q.signals = append(q.signals, s)

	// Non-blocking: the buffer of 1 coalesces wakeups.
	select {
	case q.wake <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front signal without blocking.
func (q *signalQueue) TryDequeue() (signal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.signals) == 0 {
		return signal{}, false
	}

	s := q.signals[0]
	if len(q.signals) == 1 {
		q.signals = q.signals[:0]
	} else {
		q.signals = q.signals[1:]
	}
	return s, true
}

// Wait returns a channel that fires when signals may be available.
// The channel is closed by Close.
func (q *signalQueue) Wait() <-chan struct{} {
	return q.wake
}

// Len returns the number of pending signals.
func (q *signalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.signals)
}

// Close stops accepting signals and wakes any waiter.
func (q *signalQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.wake)
}
