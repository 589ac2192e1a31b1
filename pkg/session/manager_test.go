package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbiter/internal/adapters/memory"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/registry"
	"github.com/aretw0/arbiter/pkg/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type captureTransport struct {
	events chan domain.Event
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{events: make(chan domain.Event, 128)}
}

func (c *captureTransport) Publish(_ context.Context, event domain.Event) error {
	c.events <- event
	return nil
}

// waitFor reads events until one of the wanted type arrives, skipping
// heartbeat pings and anything else in between.
func waitFor(t *testing.T, c *captureTransport, want domain.EventType) domain.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case event := <-c.events:
			if event.Type == want {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func moveWorkflow() registry.Workflow {
	return registry.Workflow{
		ActionType: "move",
		Version:    1,
		Phases: []registry.Phase{{
			Name: "apply",
			Apply: func(run *registry.Run) error {
				to, ok := run.String("to")
				if !ok {
					return registry.Rejectf("missing destination")
				}
				run.Append(domain.StateChange{
					TargetID: run.Action.ProposerID,
					Field:    "position",
					NewValue: to,
				})
				return nil
			},
		}},
	}
}

type harness struct {
	manager   *session.Manager
	store     *memory.Store
	journal   *memory.Journal
	transport *captureTransport
	clock     *fakeClock
}

func newHarness(t *testing.T, opts ...session.Option) *harness {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.Register(moveWorkflow()))

	h := &harness{
		store:     memory.NewStore(),
		journal:   memory.NewJournal(),
		transport: newCaptureTransport(),
		clock:     newFakeClock(),
	}
	base := []session.Option{
		session.WithTransport(h.transport),
		session.WithJournal(h.journal),
		session.WithClock(h.clock.Now),
		session.WithPolicy(domain.PolicyTable{"move": domain.AuthorityAutomatic}),
	}
	h.manager = session.NewManager(reg, h.store, append(base, opts...)...)
	t.Cleanup(func() {
		require.NoError(t, h.manager.Shutdown(context.Background()))
	})
	return h
}

func moveRequest(id, to string) domain.ActionRequest {
	return domain.ActionRequest{
		ID:         id,
		ProposerID: "pc-1",
		ActionType: "move",
		Payload:    map[string]any{"to": to},
	}
}

func TestManager_OpenGetClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.manager.Get("table-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	s, err := h.manager.Open(ctx, "table-1")
	require.NoError(t, err)
	assert.Equal(t, "table-1", s.ID())

	again, err := h.manager.Open(ctx, "table-1")
	require.NoError(t, err)
	assert.Same(t, s, again)
	assert.Equal(t, []string{"table-1"}, h.manager.List())

	require.NoError(t, h.manager.Close(ctx, "table-1"))
	_, err = h.manager.Get("table-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = s.Submit(ctx, moveRequest("act-1", "b2"))
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestSession_SubmitRunsWorkflow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.manager.Open(ctx, "table-1")
	require.NoError(t, err)

	ack, err := s.Submit(ctx, moveRequest("act-1", "b2"))
	require.NoError(t, err)
	assert.Equal(t, domain.AckAccepted, ack.Status)

	event := waitFor(t, h.transport, domain.EventActionResult)
	require.NotNil(t, event.Result)
	assert.Equal(t, "act-1", event.Result.ActionID)
	assert.Equal(t, domain.OutcomeApplied, event.Result.Status)
	assert.Equal(t, "table-1", event.SessionID)

	records, err := h.store.Commits(ctx, "table-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "act-1", records[0].ActionID)
}

func TestSession_SubmitGeneratesMissingID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.manager.Open(ctx, "table-1")
	require.NoError(t, err)

	ack, err := s.Submit(ctx, moveRequest("", "c3"))
	require.NoError(t, err)
	assert.NotEmpty(t, ack.ActionID)
}

func TestSession_OutageQueuesAndReplaysInOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.manager.Open(ctx, "table-1")
	require.NoError(t, err)

	// Silence past the window declares the outage.
	s.Tick(h.clock.Advance(16 * time.Second))
	event := waitFor(t, h.transport, domain.EventArbiterDisconnected)
	require.NotNil(t, event.Liveness)
	assert.False(t, s.Liveness().Connected())

	ack1, err := s.Submit(ctx, moveRequest("act-1", "b2"))
	require.NoError(t, err)
	assert.Equal(t, domain.AckQueued, ack1.Status)
	assert.Equal(t, 1, ack1.Position)

	ack2, err := s.Submit(ctx, moveRequest("act-2", "c3"))
	require.NoError(t, err)
	assert.Equal(t, 2, ack2.Position)
	assert.Equal(t, 2, s.QueueDepth())

	journaled, err := h.journal.LoadQueued(ctx, "table-1")
	require.NoError(t, err)
	assert.Len(t, journaled, 2)

	s.Pong(h.clock.Advance(5 * time.Second))
	recon := waitFor(t, h.transport, domain.EventArbiterReconnected)
	require.NotNil(t, recon.Liveness)
	assert.Equal(t, int64(5000), recon.Liveness.OutageMs)

	first := waitFor(t, h.transport, domain.EventActionResult)
	second := waitFor(t, h.transport, domain.EventActionResult)
	assert.Equal(t, "act-1", first.Result.ActionID)
	assert.Equal(t, "act-2", second.Result.ActionID)

	assert.Eventually(t, func() bool {
		journaled, err := h.journal.LoadQueued(ctx, "table-1")
		return err == nil && len(journaled) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, s.QueueDepth())
}

func TestSession_QueueLimitRejectsOverflow(t *testing.T) {
	h := newHarness(t, session.WithQueueLimit(1))
	ctx := context.Background()

	s, err := h.manager.Open(ctx, "table-1")
	require.NoError(t, err)

	s.Tick(h.clock.Advance(16 * time.Second))
	waitFor(t, h.transport, domain.EventArbiterDisconnected)

	ack, err := s.Submit(ctx, moveRequest("act-1", "b2"))
	require.NoError(t, err)
	assert.Equal(t, domain.AckQueued, ack.Status)

	ack, err = s.Submit(ctx, moveRequest("act-2", "c3"))
	assert.ErrorIs(t, err, domain.ErrQueueFull)
	assert.Equal(t, domain.AckRejected, ack.Status)
	assert.NotEmpty(t, ack.Reason)
}

func TestManager_JournalRestoreResumesOutage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// A previous instance parked an action and crashed mid-outage.
	require.NoError(t, h.journal.AppendQueued(ctx, "table-1", domain.QueuedAction{
		Request:    moveRequest("act-1", "d4"),
		EnqueuedAt: h.clock.Now(),
	}))

	s, err := h.manager.Open(ctx, "table-1")
	require.NoError(t, err)
	assert.Equal(t, 1, s.QueueDepth())
	assert.False(t, s.Liveness().Connected())

	s.Pong(h.clock.Advance(time.Second))
	event := waitFor(t, h.transport, domain.EventActionResult)
	assert.Equal(t, "act-1", event.Result.ActionID)
}

func TestSession_ResolveRollUnknownCorrelation(t *testing.T) {
	h := newHarness(t)
	s, err := h.manager.Open(context.Background(), "table-1")
	require.NoError(t, err)

	err = s.ResolveRoll("nope", domain.RollResult{Total: 12})
	assert.ErrorIs(t, err, domain.ErrCorrelationNotFound)
}

func TestSession_DecideWithoutWaiter(t *testing.T) {
	h := newHarness(t)
	s, err := h.manager.Open(context.Background(), "table-1")
	require.NoError(t, err)

	err = s.Decide(domain.Decision{ActionID: "nope", Verdict: domain.DecisionAccept})
	assert.ErrorIs(t, err, domain.ErrDecisionSuperseded)
}
