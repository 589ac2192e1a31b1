package correlator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSend records outbound requests for assertions.
type captureSend struct {
	mu   sync.Mutex
	sent []domain.RollRequest
}

func (c *captureSend) send(req domain.RollRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, req)
}

func (c *captureSend) all() []domain.RollRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.RollRequest(nil), c.sent...)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestRequestResolve(t *testing.T) {
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	capture := &captureSend{}
	c := New(capture.send, WithClock(fixedClock(now)))

	h := c.Request("player-1", domain.RollSpec{
		Dice:    []domain.DiceSpec{{Sides: 20, Count: 1}},
		Purpose: "initiative",
	}, 10*time.Second)

	require.Equal(t, 1, c.Pending())
	sent := capture.all()
	require.Len(t, sent, 1)
	assert.Equal(t, h.CorrelationID(), sent[0].CorrelationID)
	assert.Equal(t, "player-1", sent[0].TargetID)
	assert.Equal(t, now.Add(10*time.Second), sent[0].ExpiresAt)
	assert.Equal(t, domain.RollPending, h.State())

	ok := c.Resolve(h.CorrelationID(), domain.RollResult{Total: 18})
	assert.True(t, ok)
	assert.Equal(t, 0, c.Pending())

	result, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 18, result.Total)
	assert.Equal(t, h.CorrelationID(), result.CorrelationID)
	assert.Equal(t, domain.RollResolved, h.State())
}

func TestResolve_DuplicateAndUnknownAreNoOps(t *testing.T) {
	c := New(nil)

	h := c.Request("player-1", domain.RollSpec{}, time.Minute)

	assert.True(t, c.Resolve(h.CorrelationID(), domain.RollResult{Total: 11}))
	// Duplicate delivery of the same response.
	assert.False(t, c.Resolve(h.CorrelationID(), domain.RollResult{Total: 99}))
	// Never-issued ID.
	assert.False(t, c.Resolve("no-such-id", domain.RollResult{Total: 1}))

	result, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, result.Total)
}

func TestSweep_ExpiresDueEntries(t *testing.T) {
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	c := New(nil, WithClock(fixedClock(now)))

	short := c.Request("player-1", domain.RollSpec{}, 5*time.Second)
	long := c.Request("player-2", domain.RollSpec{}, time.Minute)

	assert.Equal(t, 0, c.Sweep(now.Add(4*time.Second)))
	assert.Equal(t, 1, c.Sweep(now.Add(5*time.Second)))

	_, err := short.Await(context.Background())
	assert.ErrorIs(t, err, domain.ErrRollTimeout)
	assert.Equal(t, domain.RollExpired, short.State())
	assert.Equal(t, domain.RollPending, long.State())
	assert.Equal(t, 1, c.Pending())

	// A late response for the expired entry is dropped.
	assert.False(t, c.Resolve(short.CorrelationID(), domain.RollResult{Total: 20}))
}

func TestRequestMany_JoinBarrier(t *testing.T) {
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	c := New(nil, WithClock(fixedClock(now)))

	handles := c.RequestMany([]Ask{
		{TargetID: "p1", Spec: domain.RollSpec{Purpose: "dex_save"}, Timeout: 10 * time.Second},
		{TargetID: "p2", Spec: domain.RollSpec{Purpose: "dex_save"}, Timeout: 10 * time.Second},
		{TargetID: "p3", Spec: domain.RollSpec{Purpose: "dex_save"}, Timeout: 10 * time.Second},
	})
	require.Len(t, handles, 3)

	ids := map[string]bool{}
	for _, h := range handles {
		ids[h.CorrelationID()] = true
	}
	assert.Len(t, ids, 3, "correlation ids must be distinct")

	// Resolve out of order: branch 2, then branch 0; branch 1 expires.
	c.Resolve(handles[2].CorrelationID(), domain.RollResult{Total: 15})
	c.Resolve(handles[0].CorrelationID(), domain.RollResult{Total: 9})
	c.Sweep(now.Add(11 * time.Second))

	results, errs, err := Join(context.Background(), handles)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 9, results[0].Total)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], domain.ErrRollTimeout)
	assert.Equal(t, 15, results[2].Total)
	assert.NoError(t, errs[2])
	assert.Equal(t, 0, c.Pending())
}

func TestJoin_WaitsForLateBranch(t *testing.T) {
	c := New(nil)

	handles := c.RequestMany([]Ask{
		{TargetID: "p1", Timeout: time.Minute},
		{TargetID: "p2", Timeout: time.Minute},
	})

	c.Resolve(handles[0].CorrelationID(), domain.RollResult{Total: 3})

	joined := make(chan struct{})
	go func() {
		defer close(joined)
		_, _, _ = Join(context.Background(), handles)
	}()

	select {
	case <-joined:
		t.Fatal("join completed before every branch did")
	case <-time.After(20 * time.Millisecond):
	}

	c.Resolve(handles[1].CorrelationID(), domain.RollResult{Total: 4})

	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("join did not complete after the last branch")
	}
}

func TestCancel(t *testing.T) {
	c := New(nil)

	h := c.Request("player-1", domain.RollSpec{}, time.Minute)
	other := c.Request("player-2", domain.RollSpec{}, time.Minute)

	assert.True(t, c.Cancel(h.CorrelationID()))
	assert.False(t, c.Cancel(h.CorrelationID()))

	_, err := h.Await(context.Background())
	assert.ErrorIs(t, err, domain.ErrRollCanceled)
	assert.Equal(t, 1, c.Pending())

	c.CancelAll()
	_, err = other.Await(context.Background())
	assert.ErrorIs(t, err, domain.ErrRollCanceled)
	assert.Equal(t, 0, c.Pending())
}

func TestRun_SweepsOnTimer(t *testing.T) {
	c := New(nil, WithSweepInterval(5*time.Millisecond))

	h := c.Request("player-1", domain.RollSpec{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	_, err := h.Await(context.Background())
	assert.ErrorIs(t, err, domain.ErrRollTimeout)
}
