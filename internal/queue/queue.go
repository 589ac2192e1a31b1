// Package queue buffers proposed actions while the session's arbiter is
// unreachable and hands them back in arrival order on resume.
package queue

import (
	"sync"
	"time"

	"github.com/aretw0/arbiter/pkg/domain"
)

// Queue is the pause buffer for one session. It has two modes: Active
// (callers forward actions immediately) and Paused (actions append to an
// ordered buffer). The buffer is bounded only by session lifetime unless an
// explicit limit is configured; the overflow policy is reject-new.
type Queue struct {
	mu     sync.Mutex
	paused bool
	buf    []domain.QueuedAction

	limit int
	clock func() time.Time
}

// Option configures the Queue.
type Option func(*Queue)

// WithLimit bounds the buffer; 0 means unbounded.
func WithLimit(n int) Option {
	return func(q *Queue) { q.limit = n }
}

// WithClock injects a time source for enqueue timestamps.
func WithClock(clock func() time.Time) Option {
	return func(q *Queue) { q.clock = clock }
}

// New creates an Active queue.
func New(opts ...Option) *Queue {
	q := &Queue{clock: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Paused reports whether actions should buffer instead of forward.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Depth returns the number of buffered actions.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Pause switches to buffering mode. Idempotent.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
}

// Enqueue appends a request to the buffer and returns its 1-based position.
// It returns domain.ErrQueueFull when a configured limit is reached. Callers
// must only enqueue while Paused; enqueueing while Active still works and
// simply parks the action until the next drain.
func (q *Queue) Enqueue(req domain.ActionRequest) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.limit > 0 && len(q.buf) >= q.limit {
		return 0, domain.ErrQueueFull
	}

	q.buf = append(q.buf, domain.QueuedAction{
		Request:    req,
		EnqueuedAt: q.clock(),
	})
	return len(q.buf), nil
}

// Drain switches back to Active and returns every buffered action in
// enqueuedAt order. The caller must replay the returned slice through the
// executor before accepting newly arriving actions.
func (q *Queue) Drain() []domain.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.paused = false
	drained := q.buf
	q.buf = nil
	return drained
}

// Snapshot returns a copy of the buffer without changing mode, for
// persistence and introspection.
func (q *Queue) Snapshot() []domain.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.QueuedAction(nil), q.buf...)
}

// Restore seeds the buffer from a persisted snapshot, keeping input order.
// It does not change the pause mode.
func (q *Queue) Restore(actions []domain.QueuedAction) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = append(q.buf, actions...)
}
