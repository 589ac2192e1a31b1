// Package liveness tracks whether a session's arbiter is reachable via
// periodic heartbeats and reports connectivity transitions.
//
// The monitor never fails terminally: every path ends in a state report.
// Transitions are idempotent, so an extended outage fires exactly one
// disconnect regardless of how many probes go unanswered.
package liveness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/pkg/domain"
)

// Reference timings. All are configurable via options.
const (
	DefaultInterval = 5 * time.Second
	DefaultWindow   = 15 * time.Second
	DefaultGrace    = 10 * time.Second
)

// PingFunc sends an outbound heartbeat probe to the arbiter client.
type PingFunc func(at time.Time)

// Transitions are the monitor's outbound edge. Both callbacks fire at most
// once per cycle, on the goroutine that detected the transition.
type Transitions struct {
	OnDisconnected func(at time.Time)
	OnReconnected  func(at time.Time, outage time.Duration)
}

// Monitor watches one arbiter. Probe evaluation and pong delivery may race
// from different goroutines; the state is guarded by a mutex.
type Monitor struct {
	mu         sync.Mutex
	state      domain.LivenessState
	graceUntil time.Time

	interval time.Duration
	window   time.Duration
	grace    time.Duration

	ping        PingFunc
	transitions Transitions
	clock       func() time.Time
	logger      *slog.Logger
}

// Option configures the Monitor.
type Option func(*Monitor)

// WithInterval sets the probe cadence.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithWindow sets how long a probe may go unanswered before the arbiter is
// declared disconnected.
func WithWindow(d time.Duration) Option {
	return func(m *Monitor) { m.window = d }
}

// WithGrace sets the post-reconnect window that absorbs flapping.
func WithGrace(d time.Duration) Option {
	return func(m *Monitor) { m.grace = d }
}

// WithClock injects a time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Monitor) { m.clock = clock }
}

// WithTransitions registers the disconnect/reconnect callbacks.
func WithTransitions(t Transitions) Option {
	return func(m *Monitor) { m.transitions = t }
}

// WithLogger configures a logger for transition events.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// New creates a Monitor that starts optimistic: the arbiter counts as
// connected until a full window elapses without a pong.
func New(ping PingFunc, opts ...Option) *Monitor {
	m := &Monitor{
		interval: DefaultInterval,
		window:   DefaultWindow,
		grace:    DefaultGrace,
		ping:     ping,
		clock:    time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state = domain.LivenessState{
		Phase:           domain.LivenessConnected,
		LastHeartbeatAt: m.clock(),
	}
	return m
}

// State returns a copy of the current liveness state.
func (m *Monitor) State() domain.LivenessState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pong records a heartbeat response. A pong while disconnected fires the
// single reconnect event carrying the outage duration and opens the grace
// window.
func (m *Monitor) Pong(at time.Time) {
	m.mu.Lock()

	if at.After(m.state.LastHeartbeatAt) {
		m.state.LastHeartbeatAt = at
	}

	var reconnected func(time.Time, time.Duration)
	var outage time.Duration
	now := m.clock()

	switch m.state.Phase {
	case domain.LivenessDisconnected:
		outage = now.Sub(m.state.DisconnectedSince)
		m.state.Phase = domain.LivenessConnected
		m.state.DisconnectedSince = time.Time{}
		m.graceUntil = now.Add(m.grace)
		reconnected = m.transitions.OnReconnected
	case domain.LivenessDegraded:
		m.state.Phase = domain.LivenessConnected
	}
	m.mu.Unlock()

	if reconnected != nil {
		m.logger.Info("arbiter reconnected", "outage", outage)
		reconnected(now, outage)
	}
}

// MarkDisconnected forces the disconnected phase without firing the
// OnDisconnected transition. Used when a restart restores a session whose
// outage was already declared; the next Pong still fires the reconnect.
func (m *Monitor) MarkDisconnected(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Phase = domain.LivenessDisconnected
	if m.state.DisconnectedSince.IsZero() {
		m.state.DisconnectedSince = at
	}
}

// Tick sends a probe and evaluates the window at now. Exposed so tests can
// drive the monitor without timers.
func (m *Monitor) Tick(now time.Time) {
	if m.ping != nil {
		m.ping(now)
	}
	m.evaluate(now)
}

func (m *Monitor) evaluate(now time.Time) {
	m.mu.Lock()

	if m.state.Phase == domain.LivenessDisconnected {
		// Already declared; repeated failed probes fire nothing more.
		m.mu.Unlock()
		return
	}

	silence := now.Sub(m.state.LastHeartbeatAt)
	inGrace := now.Before(m.graceUntil)
	var disconnected func(time.Time)

	switch {
	case silence > m.window && !inGrace:
		m.state.Phase = domain.LivenessDisconnected
		m.state.DisconnectedSince = now
		disconnected = m.transitions.OnDisconnected
	case inGrace && silence > m.interval:
		// Flap inside the grace window: a single missed probe degrades the
		// state instead of starting a second full cycle.
		m.state.Phase = domain.LivenessDegraded
	case silence <= m.interval:
		m.state.Phase = domain.LivenessConnected
	}
	m.mu.Unlock()

	if disconnected != nil {
		m.logger.Warn("arbiter disconnected", "last_heartbeat", m.State().LastHeartbeatAt)
		disconnected(now)
	}
}

// Run probes on a timer until the context is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(m.clock())
		}
	}
}
