package executor

import "sync"

// RenderQueue collects functions posted from worker goroutines and runs them on the render
// thread. It is the only point where pipeline results cross threads.
type RenderQueue struct {
	mu      sync.Mutex
	pending []func()
}

// NewRenderQueue returns an empty queue.
func NewRenderQueue() *RenderQueue {
	return &RenderQueue{}
}

// Post schedules fn to run at the next Drain. Safe to call from any goroutine.
func (q *RenderQueue) Post(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
}

// Len returns the number of pending functions.
func (q *RenderQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain runs every pending function in posting order on the calling goroutine and returns how
// many ran. Functions posted while draining run at the next Drain.
func (q *RenderQueue) Drain() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}
