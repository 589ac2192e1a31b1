package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/arbiter/internal/correlator"
	"github.com/aretw0/arbiter/internal/liveness"
	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/internal/queue"
	"github.com/aretw0/arbiter/internal/runtime"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/aretw0/arbiter/pkg/registry"
)

// DefaultLockTTL bounds how long a crashed replica keeps a session hostage.
const DefaultLockTTL = 30 * time.Second

// Manager owns the live sessions of one engine instance. Opening a session
// wires its queue, liveness monitor, roll correlator, and workflow executor
// together and starts the worker; closing it tears all of that down.
type Manager struct {
	registry *registry.Registry
	store    ports.CommitStore

	mu       sync.Mutex
	sessions map[string]*Session

	transport ports.Transport
	journal   ports.QueueJournal
	locker    ports.DistributedLocker
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	clock     func() time.Time
	newID     func() string
	seed      func() int64

	policy       domain.PolicyTable
	overrides    func() domain.Overrides
	reviewWindow time.Duration
	queueLimit   int
	lockTTL      time.Duration

	heartbeatInterval time.Duration
	heartbeatWindow   time.Duration
	heartbeatGrace    time.Duration
}

// Option configures the Manager.
type Option func(*Manager)

// WithTransport sets the outbound event sink shared by all sessions.
func WithTransport(t ports.Transport) Option {
	return func(m *Manager) { m.transport = t }
}

// WithJournal persists each session's pause buffer across engine restarts.
func WithJournal(j ports.QueueJournal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithLocker enables distributed session ownership.
func WithLocker(l ports.DistributedLocker) Option {
	return func(m *Manager) { m.locker = l }
}

// WithHooks registers lifecycle callbacks shared by all sessions.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(m *Manager) { m.hooks = h }
}

// WithLogger configures a logger for the Manager and its sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock injects a time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithIDGenerator injects the action and correlation ID source.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// WithSeed injects the seed source for auto-rolled dice.
func WithSeed(seed func() int64) Option {
	return func(m *Manager) { m.seed = seed }
}

// WithPolicy sets the authority classification table.
func WithPolicy(policy domain.PolicyTable) Option {
	return func(m *Manager) { m.policy = policy }
}

// WithOverrides injects a live view of per-session authority overrides.
func WithOverrides(overrides func() domain.Overrides) Option {
	return func(m *Manager) { m.overrides = overrides }
}

// WithReviewWindow sets how long a Reviewable action waits before
// auto-accepting.
func WithReviewWindow(d time.Duration) Option {
	return func(m *Manager) { m.reviewWindow = d }
}

// WithQueueLimit bounds each session's pause buffer; 0 means unbounded.
func WithQueueLimit(n int) Option {
	return func(m *Manager) { m.queueLimit = n }
}

// WithHeartbeat tunes the liveness probe interval, the silence window that
// declares a disconnect, and the post-reconnect grace period.
func WithHeartbeat(interval, window, grace time.Duration) Option {
	return func(m *Manager) {
		m.heartbeatInterval = interval
		m.heartbeatWindow = window
		m.heartbeatGrace = grace
	}
}

// WithLockTTL sets the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.lockTTL = ttl }
}

// NewManager creates a session manager over a workflow registry and the
// game's durable commit store.
func NewManager(reg *registry.Registry, store ports.CommitStore, opts ...Option) *Manager {
	m := &Manager{
		registry:          reg,
		store:             store,
		sessions:          make(map[string]*Session),
		logger:            logging.NewNop(),
		clock:             time.Now,
		newID:             uuid.NewString,
		reviewWindow:      runtime.DefaultReviewWindow,
		lockTTL:           DefaultLockTTL,
		heartbeatInterval: liveness.DefaultInterval,
		heartbeatWindow:   liveness.DefaultWindow,
		heartbeatGrace:    liveness.DefaultGrace,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open returns the session for the given ID, creating and starting it on
// first use. With a distributed locker configured, creation blocks until
// this instance owns the session.
func (m *Manager) Open(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	var unlock ports.UnlockFunc
	if m.locker != nil {
		var err error
		unlock, err = m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire session lock: %w", err)
		}
	}

	s, err := m.startSession(ctx, sessionID, unlock)
	if err != nil {
		if unlock != nil {
			if uerr := unlock(ctx); uerr != nil {
				m.logger.Warn("failed to release session lock", "session_id", sessionID, "err", uerr)
			}
		}
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.sessions[sessionID]; ok {
		// Lost the race to another Open; keep the first one.
		m.mu.Unlock()
		_ = s.Close(ctx)
		return existing, nil
	}
	m.sessions[sessionID] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns an already-open session.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// Close stops one session and forgets it.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	return s.Close(ctx)
}

// Shutdown closes every open session.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var firstErr error
	for _, s := range open {
		if err := s.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetPolicy replaces the authority table used by sessions opened from now
// on. Already-open sessions keep the table they started with.
func (m *Manager) SetPolicy(policy domain.PolicyTable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = policy
}

// Sessions returns the open sessions in no particular order.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	return open
}

// List returns the IDs of the open sessions.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Registry returns the shared workflow registry.
func (m *Manager) Registry() *registry.Registry { return m.registry }

// startSession wires one session's components and starts its goroutines.
func (m *Manager) startSession(ctx context.Context, sessionID string, unlock ports.UnlockFunc) (*Session, error) {
	m.mu.Lock()
	policy := m.policy
	m.mu.Unlock()

	workerCtx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:        sessionID,
		transport: m.transport,
		journal:   m.journal,
		hooks:     m.hooks,
		logger:    m.logger.With("session_id", sessionID),
		clock:     m.clock,
		newID:     m.newID,
		inbox:     make(chan domain.ActionRequest, 64),
		resumeCh:  make(chan struct{}, 1),
		ctx:       workerCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
		unlock:    unlock,
	}

	s.queue = queue.New(
		queue.WithLimit(m.queueLimit),
		queue.WithClock(m.clock),
	)
	s.monitor = liveness.New(s.sendPing,
		liveness.WithInterval(m.heartbeatInterval),
		liveness.WithWindow(m.heartbeatWindow),
		liveness.WithGrace(m.heartbeatGrace),
		liveness.WithClock(m.clock),
		liveness.WithLogger(s.logger),
		liveness.WithTransitions(liveness.Transitions{
			OnDisconnected: s.onDisconnected,
			OnReconnected:  s.onReconnected,
		}),
	)
	s.rolls = correlator.New(s.sendRoll,
		correlator.WithClock(m.clock),
		correlator.WithIDGenerator(m.newID),
		correlator.WithLogger(s.logger),
	)

	execOpts := []runtime.Option{
		runtime.WithReviewWindow(m.reviewWindow),
		runtime.WithPolicy(policy),
		runtime.WithLogger(s.logger),
	}
	if m.overrides != nil {
		execOpts = append(execOpts, runtime.WithOverrides(m.overrides))
	}
	if m.seed != nil {
		execOpts = append(execOpts, runtime.WithSeed(m.seed))
	}
	s.exec = runtime.New(m.registry, s.rolls, runtime.NewDecisionRouter(), m.store, execOpts...)

	if m.journal != nil {
		queued, err := m.journal.LoadQueued(ctx, sessionID)
		if err != nil {
			cancel()
			close(s.done)
			return nil, fmt.Errorf("failed to load queue journal: %w", err)
		}
		if len(queued) > 0 {
			// An outage was in progress when the previous instance
			// stopped; stay paused until the arbiter pongs.
			s.queue.Restore(queued)
			s.queue.Pause()
			s.monitor.MarkDisconnected(m.clock())
		}
	}

	go s.run(workerCtx)
	go s.monitor.Run(workerCtx)
	go s.rolls.Run(workerCtx)

	return s, nil
}
