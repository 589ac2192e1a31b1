package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbiter/internal/correlator"
	"github.com/aretw0/arbiter/internal/liveness"
	"github.com/aretw0/arbiter/internal/queue"
	"github.com/aretw0/arbiter/internal/runtime"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

// Session is the single authority for one play session. All mutating work
// funnels through one worker goroutine, so at most one workflow touches the
// session at a time; bookkeeping calls (Pong, ResolveRoll, Decide) are safe
// from any goroutine and synchronize with the components they feed.
type Session struct {
	id string

	queue   *queue.Queue
	monitor *liveness.Monitor
	rolls   *correlator.Correlator
	exec    *runtime.Executor

	transport ports.Transport
	journal   ports.QueueJournal
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	clock     func() time.Time
	newID     func() string

	inbox    chan domain.ActionRequest
	resumeCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	unlock ports.UnlockFunc
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Liveness returns the current arbiter liveness state.
func (s *Session) Liveness() domain.LivenessState { return s.monitor.State() }

// QueueDepth returns the number of actions parked in the pause buffer.
func (s *Session) QueueDepth() int { return s.queue.Depth() }

// Queued returns a copy of the pause buffer in replay order.
func (s *Session) Queued() []domain.QueuedAction { return s.queue.Snapshot() }

// Submit proposes an action. The returned Ack is immediate: accepted actions
// run on the session worker (the final outcome arrives as an action_result
// event), queued actions wait for the arbiter to come back, and rejected
// actions carry the refusal reason.
func (s *Session) Submit(ctx context.Context, req domain.ActionRequest) (domain.Ack, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Ack{}, domain.ErrSessionClosed
	}
	s.mu.Unlock()

	req.SessionID = s.id
	if req.ID == "" {
		req.ID = s.newID()
	}
	if req.ProposedAt.IsZero() {
		req.ProposedAt = s.clock()
	}

	if s.queue.Paused() {
		return s.park(ctx, req)
	}

	select {
	case s.inbox <- req:
		return domain.Ack{ActionID: req.ID, Status: domain.AckAccepted}, nil
	case <-s.ctx.Done():
		return domain.Ack{}, domain.ErrSessionClosed
	case <-ctx.Done():
		return domain.Ack{}, ctx.Err()
	}
}

// park buffers an action during an arbiter outage.
func (s *Session) park(ctx context.Context, req domain.ActionRequest) (domain.Ack, error) {
	pos, err := s.queue.Enqueue(req)
	if err != nil {
		return domain.Ack{
			ActionID: req.ID,
			Status:   domain.AckRejected,
			Reason:   err.Error(),
		}, err
	}

	if s.journal != nil {
		queued := domain.QueuedAction{Request: req, EnqueuedAt: s.clock()}
		if jerr := s.journal.AppendQueued(ctx, s.id, queued); jerr != nil {
			// The in-memory buffer stays authoritative.
			s.logger.Warn("queue journal append failed", "action_id", req.ID, "err", jerr)
		}
	}

	event := domain.Event{
		Type:   domain.EventActionQueued,
		Queued: &domain.QueuedEvent{ActionID: req.ID, Position: pos},
	}
	s.publish(ctx, event)
	if s.hooks.OnActionQueued != nil {
		s.hooks.OnActionQueued(ctx, &event)
	}

	return domain.Ack{ActionID: req.ID, Status: domain.AckQueued, Position: pos}, nil
}

// ResolveRoll delivers an arbiter's answer to a pending roll request.
func (s *Session) ResolveRoll(correlationID string, result domain.RollResult) error {
	if !s.rolls.Resolve(correlationID, result) {
		return domain.ErrCorrelationNotFound
	}
	return nil
}

// PendingRolls returns the number of unresolved roll requests.
func (s *Session) PendingRolls() int { return s.rolls.Pending() }

// Decide delivers the arbiter's ruling on a held action. It returns
// domain.ErrDecisionSuperseded when no workflow is waiting for the action,
// which covers both late decisions and unknown action IDs.
func (s *Session) Decide(d domain.Decision) error {
	return s.exec.Decisions().Deliver(d)
}

// Pong records a heartbeat response from the arbiter client.
func (s *Session) Pong(at time.Time) { s.monitor.Pong(at) }

// Tick sends one liveness probe and evaluates the silence window at now.
// The session also ticks itself on a timer; this entry point exists for
// hosts that drive their own scheduler and for tests.
func (s *Session) Tick(at time.Time) { s.monitor.Tick(at) }

// Close stops the worker, cancels pending rolls, and releases the
// distributed lock if one was taken. Idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	unlock := s.unlock
	s.mu.Unlock()

	s.cancel()
	<-s.done

	if unlock != nil {
		if err := unlock(ctx); err != nil {
			s.logger.Warn("failed to release session lock (will expire via TTL)",
				"session_id", s.id,
				"err", err,
			)
		}
	}
	return nil
}

// run is the session worker loop. Exactly one workflow executes at a time;
// a resume signal always drains the pause buffer before the next fresh
// action is taken.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.resumeCh:
			s.replay(ctx)
		case req := <-s.inbox:
			select {
			case <-s.resumeCh:
				s.replay(ctx)
			default:
			}
			s.execute(ctx, req)
		}
	}
}

// replay drains the pause buffer and runs every parked action in
// enqueuedAt order, then clears the journal.
func (s *Session) replay(ctx context.Context) {
	drained := s.queue.Drain()
	if len(drained) == 0 {
		return
	}

	s.logger.Info("replaying queued actions", "session_id", s.id, "count", len(drained))
	for _, queued := range drained {
		if ctx.Err() != nil {
			return
		}
		s.execute(ctx, queued.Request)
	}

	if s.journal != nil {
		if err := s.journal.ClearQueued(ctx, s.id); err != nil {
			s.logger.Warn("queue journal clear failed", "session_id", s.id, "err", err)
		}
	}
}

// execute runs one workflow to completion and publishes its outcome.
func (s *Session) execute(ctx context.Context, req domain.ActionRequest) {
	outcome := s.exec.Run(ctx, req)

	event := domain.Event{
		Type:   domain.EventActionResult,
		Result: &outcome,
	}
	s.publish(ctx, event)
	if s.hooks.OnOutcome != nil {
		s.hooks.OnOutcome(ctx, &event)
	}
}

// sendRoll is wired as the correlator's send function.
func (s *Session) sendRoll(req domain.RollRequest) {
	event := domain.Event{
		Type: domain.EventRollRequested,
		Roll: &req,
	}
	s.publish(s.ctx, event)
	if s.hooks.OnRollRequested != nil {
		s.hooks.OnRollRequested(s.ctx, &event)
	}
}

// sendPing is wired as the liveness monitor's probe function.
func (s *Session) sendPing(at time.Time) {
	s.publish(s.ctx, domain.Event{
		Type:      domain.EventHeartbeatPing,
		Heartbeat: &domain.HeartbeatEvent{SentAt: at},
	})
}

// onDisconnected pauses intake and announces the outage.
func (s *Session) onDisconnected(at time.Time) {
	s.queue.Pause()

	event := domain.Event{
		Type:     domain.EventArbiterDisconnected,
		Liveness: &domain.LivenessEvent{Phase: domain.LivenessDisconnected},
	}
	s.publish(s.ctx, event)
	if s.hooks.OnLivenessChange != nil {
		s.hooks.OnLivenessChange(s.ctx, &event)
	}
}

// onReconnected announces recovery and schedules the queue drain.
func (s *Session) onReconnected(at time.Time, outage time.Duration) {
	event := domain.Event{
		Type: domain.EventArbiterReconnected,
		Liveness: &domain.LivenessEvent{
			Phase:    domain.LivenessConnected,
			OutageMs: outage.Milliseconds(),
		},
	}
	s.publish(s.ctx, event)
	if s.hooks.OnLivenessChange != nil {
		s.hooks.OnLivenessChange(s.ctx, &event)
	}

	select {
	case s.resumeCh <- struct{}{}:
	default:
	}
}

func (s *Session) publish(ctx context.Context, event domain.Event) {
	event.SessionID = s.id
	event.Timestamp = s.clock()

	if s.transport == nil {
		return
	}
	if err := s.transport.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			"session_id", s.id,
			"type", event.Type,
			"err", err,
		)
	}
}
