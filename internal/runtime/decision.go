package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/arbiter/pkg/domain"
)

// DecisionRouter connects inbound arbiter decisions with the workflow
// currently waiting on them. One waiter may exist per action ID.
type DecisionRouter struct {
	mu      sync.Mutex
	waiters map[string]chan domain.Decision
}

// NewDecisionRouter creates an empty router.
func NewDecisionRouter() *DecisionRouter {
	return &DecisionRouter{
		waiters: make(map[string]chan domain.Decision),
	}
}

// Deliver hands a decision to the waiting workflow. It returns
// domain.ErrDecisionSuperseded when nothing waits on the action, e.g.
// because the review window already auto-accepted it.
func (r *DecisionRouter) Deliver(d domain.Decision) error {
	r.mu.Lock()
	ch, ok := r.waiters[d.ActionID]
	if ok {
		delete(r.waiters, d.ActionID)
	}
	r.mu.Unlock()

	if !ok {
		return domain.ErrDecisionSuperseded
	}
	ch <- d
	return nil
}

// Waiting reports whether an action currently awaits a decision.
func (r *DecisionRouter) Waiting(actionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.waiters[actionID]
	return ok
}

// register installs a waiter channel for the action. The channel is
// buffered so Deliver never blocks on a racing timeout.
func (r *DecisionRouter) register(actionID string) chan domain.Decision {
	ch := make(chan domain.Decision, 1)
	r.mu.Lock()
	r.waiters[actionID] = ch
	r.mu.Unlock()
	return ch
}

// forget removes the waiter if it is still installed, returning the
// decision that squeezed in through a racing Deliver, if any.
func (r *DecisionRouter) forget(actionID string, ch chan domain.Decision) (domain.Decision, bool) {
	r.mu.Lock()
	if cur, ok := r.waiters[actionID]; ok && cur == ch {
		delete(r.waiters, actionID)
	}
	r.mu.Unlock()

	select {
	case d := <-ch:
		return d, true
	default:
		return domain.Decision{}, false
	}
}

// await blocks for a decision. A zero window waits indefinitely
// (manual-only); otherwise the wait auto-accepts when the window elapses.
func (r *DecisionRouter) await(ctx context.Context, actionID string, window time.Duration) (domain.Decision, error) {
	ch := r.register(actionID)

	var timeout <-chan time.Time
	if window > 0 {
		timer := time.NewTimer(window)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case d := <-ch:
		return d, nil
	case <-timeout:
		if d, ok := r.forget(actionID, ch); ok {
			return d, nil
		}
		return domain.Decision{ActionID: actionID, Verdict: domain.DecisionAccept}, nil
	case <-ctx.Done():
		if d, ok := r.forget(actionID, ch); ok {
			return d, nil
		}
		return domain.Decision{}, ctx.Err()
	}
}
