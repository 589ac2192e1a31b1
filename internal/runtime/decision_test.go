package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionRouter_DeliverToWaiter(t *testing.T) {
	r := NewDecisionRouter()

	type result struct {
		d   domain.Decision
		err error
	}
	got := make(chan result, 1)
	go func() {
		d, err := r.await(context.Background(), "a1", 0)
		got <- result{d, err}
	}()

	// Wait until the waiter is registered before delivering.
	require.Eventually(t, func() bool { return r.Waiting("a1") },
		time.Second, time.Millisecond)

	require.NoError(t, r.Deliver(domain.Decision{
		ActionID: "a1",
		Verdict:  domain.DecisionReject,
		Reason:   "not in range",
	}))

	res := <-got
	require.NoError(t, res.err)
	assert.Equal(t, domain.DecisionReject, res.d.Verdict)
	assert.Equal(t, "not in range", res.d.Reason)
	assert.False(t, r.Waiting("a1"))
}

func TestDecisionRouter_DeliverWithoutWaiter(t *testing.T) {
	r := NewDecisionRouter()
	err := r.Deliver(domain.Decision{ActionID: "ghost", Verdict: domain.DecisionAccept})
	assert.ErrorIs(t, err, domain.ErrDecisionSuperseded)
}

func TestDecisionRouter_WindowAutoAccepts(t *testing.T) {
	r := NewDecisionRouter()

	d, err := r.await(context.Background(), "a1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAccept, d.Verdict)
	assert.False(t, r.Waiting("a1"), "timed-out waiter must be removed")

	// A late ruling finds nobody waiting.
	err = r.Deliver(domain.Decision{ActionID: "a1", Verdict: domain.DecisionReject})
	assert.ErrorIs(t, err, domain.ErrDecisionSuperseded)
}

func TestDecisionRouter_ContextCancel(t *testing.T) {
	r := NewDecisionRouter()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := r.await(ctx, "a1", 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, r.Waiting("a1"))
}
