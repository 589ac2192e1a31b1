// Package correlator matches outbound randomized-result requests with their
// asynchronous responses by correlation ID.
//
// Decoupling "send" from "await" lets the executor fan out to many
// participants and still use sequential logic at the call site: each request
// returns a handle that completes with the matching response, a timeout at
// its expiry, or a cancellation when the owning workflow is torn down.
package correlator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/pkg/domain"
)

// DefaultTimeout bounds a roll request when the caller passes zero.
const DefaultTimeout = 30 * time.Second

// DefaultSweepInterval is how often Run checks for expired entries.
const DefaultSweepInterval = time.Second

// SendFunc delivers an outbound roll request to the target participant.
// It runs outside the registry lock and must not call back into the
// correlator synchronously.
type SendFunc func(domain.RollRequest)

// Correlator owns the pending-entry registry for one session. All methods
// are safe for concurrent use; the registry is the only shared state.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*Handle

	send          SendFunc
	clock         func() time.Time
	newID         func() string
	sweepInterval time.Duration
	logger        *slog.Logger
}

// Option configures the Correlator.
type Option func(*Correlator)

// WithClock injects a time source, used by tests to drive expiry.
func WithClock(clock func() time.Time) Option {
	return func(c *Correlator) { c.clock = clock }
}

// WithIDGenerator replaces the correlation ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(c *Correlator) { c.newID = newID }
}

// WithSweepInterval changes the expiry sweep cadence of Run.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Correlator) { c.sweepInterval = d }
}

// WithLogger configures a logger for swept and duplicate entries.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Correlator) { c.logger = logger }
}

// New creates a Correlator that delivers outbound requests through send.
func New(send SendFunc, opts ...Option) *Correlator {
	c := &Correlator{
		pending:       make(map[string]*Handle),
		send:          send,
		clock:         time.Now,
		newID:         uuid.NewString,
		sweepInterval: DefaultSweepInterval,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle tracks one outstanding correlation entry. It completes exactly
// once, via Resolve, the expiry sweep, or Cancel.
type Handle struct {
	correlationID string
	targetID      string
	spec          domain.RollSpec
	createdAt     time.Time
	expiresAt     time.Time

	done   chan struct{}
	once   sync.Once
	result domain.RollResult
	err    error
	state  domain.RollState
}

// CorrelationID returns the unique join key for this request.
func (h *Handle) CorrelationID() string { return h.correlationID }

// TargetID returns the participant the request was addressed to.
func (h *Handle) TargetID() string { return h.targetID }

// Spec returns the requested roll.
func (h *Handle) Spec() domain.RollSpec { return h.spec }

// ExpiresAt returns the deadline after which the sweep completes the handle
// with ErrRollTimeout.
func (h *Handle) ExpiresAt() time.Time { return h.expiresAt }

// Done is closed when the handle has completed.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the response or completion error. It must only be called
// after Done is closed; before that it returns the zero value.
func (h *Handle) Result() (domain.RollResult, error) {
	select {
	case <-h.done:
		return h.result, h.err
	default:
		return domain.RollResult{}, domain.ErrCorrelationNotFound
	}
}

// State returns the lifecycle state of the handle.
func (h *Handle) State() domain.RollState {
	select {
	case <-h.done:
		return h.state
	default:
		return domain.RollPending
	}
}

// Await blocks until the handle completes or the context is canceled.
func (h *Handle) Await(ctx context.Context) (domain.RollResult, error) {
	select {
	case <-ctx.Done():
		return domain.RollResult{}, ctx.Err()
	case <-h.done:
		return h.result, h.err
	}
}

// complete settles the handle exactly once.
func (h *Handle) complete(state domain.RollState, result domain.RollResult, err error) bool {
	settled := false
	h.once.Do(func() {
		h.state = state
		h.result = result
		h.err = err
		close(h.done)
		settled = true
	})
	return settled
}

// Ask describes one branch of a fan-out request.
type Ask struct {
	TargetID string
	Spec     domain.RollSpec
	Timeout  time.Duration
}

// Request registers a pending entry with a fresh correlation ID, sends the
// request outward and returns its handle.
func (c *Correlator) Request(targetID string, spec domain.RollSpec, timeout time.Duration) *Handle {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	now := c.clock()

	h := &Handle{
		correlationID: c.newID(),
		targetID:      targetID,
		spec:          spec,
		createdAt:     now,
		expiresAt:     now.Add(timeout),
		done:          make(chan struct{}),
	}

	c.mu.Lock()
	c.pending[h.correlationID] = h
	c.mu.Unlock()

	if c.send != nil {
		c.send(domain.RollRequest{
			CorrelationID: h.correlationID,
			TargetID:      targetID,
			Spec:          spec,
			CreatedAt:     now,
			ExpiresAt:     h.expiresAt,
		})
	}

	return h
}

// RequestMany issues one request per ask, each with a distinct correlation
// ID. The returned handles complete independently; use Join to wait for the
// whole fan-out.
func (c *Correlator) RequestMany(asks []Ask) []*Handle {
	handles := make([]*Handle, len(asks))
	for i, ask := range asks {
		handles[i] = c.Request(ask.TargetID, ask.Spec, ask.Timeout)
	}
	return handles
}

// Join waits until every handle has completed (resolved, expired or
// canceled) and returns their results in the input order. There is no
// ordering between branches, only this barrier. The only error returned is
// the context's.
func Join(ctx context.Context, handles []*Handle) ([]domain.RollResult, []error, error) {
	results := make([]domain.RollResult, len(handles))
	errs := make([]error, len(handles))
	for i, h := range handles {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-h.Done():
			results[i], errs[i] = h.Result()
		}
	}
	return results, errs, nil
}

// Resolve completes the matching pending entry with a response and removes
// it from the registry. Unknown or already-completed IDs are a no-op,
// tolerating duplicate delivery; the return value reports whether the
// response was consumed.
func (c *Correlator) Resolve(correlationID string, result domain.RollResult) bool {
	c.mu.Lock()
	h, ok := c.pending[correlationID]
	if ok {
		delete(c.pending, correlationID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("dropping roll response with no pending entry",
			"correlation_id", correlationID)
		return false
	}

	result.CorrelationID = correlationID
	return h.complete(domain.RollResolved, result, nil)
}

// Cancel removes a pending entry and settles its waiter with
// ErrRollCanceled. Used when the owning workflow is torn down so no entry
// leaks.
func (c *Correlator) Cancel(correlationID string) bool {
	c.mu.Lock()
	h, ok := c.pending[correlationID]
	if ok {
		delete(c.pending, correlationID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	return h.complete(domain.RollCanceled, domain.RollResult{}, domain.ErrRollCanceled)
}

// CancelAll cancels every pending entry, e.g. on session shutdown.
func (c *Correlator) CancelAll() {
	c.mu.Lock()
	handles := make([]*Handle, 0, len(c.pending))
	for id, h := range c.pending {
		handles = append(handles, h)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, h := range handles {
		h.complete(domain.RollCanceled, domain.RollResult{}, domain.ErrRollCanceled)
	}
}

// Sweep completes every entry whose expiry is at or before now with
// ErrRollTimeout and reports how many were swept.
func (c *Correlator) Sweep(now time.Time) int {
	c.mu.Lock()
	expired := make([]*Handle, 0)
	for id, h := range c.pending {
		if !h.expiresAt.After(now) {
			expired = append(expired, h)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, h := range expired {
		if h.complete(domain.RollExpired, domain.RollResult{}, domain.ErrRollTimeout) {
			c.logger.Debug("roll request expired",
				"correlation_id", h.correlationID,
				"target", h.targetID)
		}
	}
	return len(expired)
}

// Pending returns the number of outstanding entries.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Run sweeps expired entries on a timer until the context is canceled, so
// no handle waits forever.
func (c *Correlator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.CancelAll()
			return
		case <-ticker.C:
			c.Sweep(c.clock())
		}
	}
}
