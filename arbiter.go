package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/arbiter/internal/adapters/memory"
	"github.com/aretw0/arbiter/internal/logging"
	loamAdapter "github.com/aretw0/arbiter/pkg/adapters/loam"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/dsl"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/aretw0/arbiter/pkg/registry"
	"github.com/aretw0/arbiter/pkg/session"
)

// Engine is the high-level entry point for the Arbiter library. It wraps
// the session manager and the workflow registry behind the four inbound
// operations a host needs: Submit, ResolveRoll, SubmitDecision, and
// HeartbeatPong.
type Engine struct {
	registry *registry.Registry
	manager  *session.Manager
	source   ports.DefinitionSource
	store    ports.CommitStore
	logger   *slog.Logger
	Name     string

	workflows   []registry.Workflow
	policy      domain.PolicyTable
	hooks       domain.LifecycleHooks
	sessionOpts []session.Option
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithSource injects a custom DefinitionSource, bypassing the default
// loam initialization.
func WithSource(source ports.DefinitionSource) Option {
	return func(e *Engine) { e.source = source }
}

// WithStore sets the durable commit store. Defaults to the in-memory
// store, which is only suitable for tests and demos.
func WithStore(store ports.CommitStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithTransport sets the outbound event sink.
func WithTransport(t ports.Transport) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithTransport(t))
	}
}

// WithJournal persists pause buffers across engine restarts.
func WithJournal(j ports.QueueJournal) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithJournal(j))
	}
}

// WithLocker enables distributed session ownership.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithLocker(l))
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = hooks }
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithWorkflows registers programmatic workflows on top of whatever the
// definition source provides. Useful for workflows whose logic cannot be
// expressed as documents.
func WithWorkflows(workflows ...registry.Workflow) Option {
	return func(e *Engine) { e.workflows = append(e.workflows, workflows...) }
}

// WithPolicy overlays authority policy entries on top of the definition
// source's policy documents.
func WithPolicy(policy domain.PolicyTable) Option {
	return func(e *Engine) { e.policy = policy }
}

// WithSessionOptions forwards options to the session manager (heartbeat
// timings, review window, queue limit, clock, seed...).
func WithSessionOptions(opts ...session.Option) Option {
	return func(e *Engine) { e.sessionOpts = append(e.sessionOpts, opts...) }
}

// New initializes an Arbiter Engine. By default definitions load from a
// loam repository at defsPath; with WithSource the path can be empty.
// An engine with no definitions at all still runs: every action type is
// unregistered and therefore ManualOnly.
func New(defsPath string, opts ...Option) (*Engine, error) {
	eng := &Engine{registry: registry.New()}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.source == nil && defsPath != "" {
		absPath, err := filepath.Abs(defsPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		eng.Name = filepath.Base(absPath)

		source, err := loamAdapter.Open(absPath)
		if err != nil {
			return nil, err
		}
		eng.source = source
	} else if defsPath != "" {
		eng.Name = filepath.Base(defsPath)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("engine", eng.Name)
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
		eng.logger.Warn("no commit store configured, using in-memory store")
	}

	var loaded domain.PolicyTable
	if eng.source != nil {
		bundle, err := eng.loadBundle(context.Background())
		if err != nil {
			return nil, err
		}
		loaded = bundle.Policy
	}
	policy := eng.mergePolicy(loaded)
	for _, wf := range eng.workflows {
		if err := eng.registry.Register(wf); err != nil {
			return nil, fmt.Errorf("workflow %q: %w", wf.ActionType, err)
		}
	}

	managerOpts := []session.Option{
		session.WithPolicy(policy),
		session.WithHooks(eng.hooks),
		session.WithLogger(eng.logger),
	}
	managerOpts = append(managerOpts, eng.sessionOpts...)
	eng.manager = session.NewManager(eng.registry, eng.store, managerOpts...)

	return eng, nil
}

// loadBundle loads and compiles definitions, registering the workflows.
func (e *Engine) loadBundle(ctx context.Context) (*dsl.Bundle, error) {
	defs, err := e.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions: %w", err)
	}
	bundle, err := dsl.Build(defs)
	if err != nil {
		return nil, fmt.Errorf("failed to compile definitions: %w", err)
	}
	for _, wf := range bundle.Workflows {
		if err := e.registry.Register(wf); err != nil {
			return nil, fmt.Errorf("workflow %q: %w", wf.ActionType, err)
		}
	}
	return bundle, nil
}

// mergePolicy overlays the WithPolicy entries on top of a loaded table.
func (e *Engine) mergePolicy(loaded domain.PolicyTable) domain.PolicyTable {
	policy := make(domain.PolicyTable, len(loaded)+len(e.policy))
	for actionType, level := range loaded {
		policy[actionType] = level
	}
	for actionType, level := range e.policy {
		policy[actionType] = level
	}
	return policy
}

// Submit proposes an action into its session, opening the session on
// first use. The Ack is immediate; the outcome arrives as an event.
func (e *Engine) Submit(ctx context.Context, req domain.ActionRequest) (domain.Ack, error) {
	if req.SessionID == "" {
		return domain.Ack{}, fmt.Errorf("action needs a session ID")
	}
	s, err := e.manager.Open(ctx, req.SessionID)
	if err != nil {
		return domain.Ack{}, err
	}
	return s.Submit(ctx, req)
}

// ResolveRoll delivers a roll result by correlation ID. The session is
// found by scanning open sessions; unknown or already-settled correlations
// return domain.ErrCorrelationNotFound.
func (e *Engine) ResolveRoll(ctx context.Context, correlationID string, result domain.RollResult) error {
	for _, s := range e.manager.Sessions() {
		if err := s.ResolveRoll(correlationID, result); err == nil {
			return nil
		}
	}
	return domain.ErrCorrelationNotFound
}

// SubmitDecision delivers the arbiter's ruling on a held action.
func (e *Engine) SubmitDecision(ctx context.Context, actionID string, decision domain.Decision) error {
	decision.ActionID = actionID
	for _, s := range e.manager.Sessions() {
		if err := s.Decide(decision); err == nil {
			return nil
		}
	}
	return domain.ErrDecisionSuperseded
}

// HeartbeatPong records a heartbeat response from a session's arbiter.
func (e *Engine) HeartbeatPong(sessionID string, at time.Time) error {
	s, err := e.manager.Get(sessionID)
	if err != nil {
		return err
	}
	s.Pong(at)
	return nil
}

// Session opens (or returns) the session for the given ID.
func (e *Engine) Session(ctx context.Context, sessionID string) (*session.Session, error) {
	return e.manager.Open(ctx, sessionID)
}

// Liveness returns the arbiter liveness state of an open session.
func (e *Engine) Liveness(sessionID string) (domain.LivenessState, error) {
	s, err := e.manager.Get(sessionID)
	if err != nil {
		return domain.LivenessState{}, err
	}
	return s.Liveness(), nil
}

// Registry returns the workflow registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Manager returns the session manager, for adapters that need direct
// session access.
func (e *Engine) Manager() *session.Manager { return e.manager }

// Reload re-reads the definition source and re-registers its workflows.
// Registration keeps the newest version of each action type, so stale
// documents never downgrade a workflow. Policy changes take effect for
// sessions opened after the reload.
func (e *Engine) Reload(ctx context.Context) error {
	if e.source == nil {
		return fmt.Errorf("no definition source configured")
	}
	bundle, err := e.loadBundle(ctx)
	if err != nil {
		return err
	}
	e.manager.SetPolicy(e.mergePolicy(bundle.Policy))
	return nil
}

// Watch returns a channel that signals when the underlying definitions
// change. Returns an error if the source does not support watching.
func (e *Engine) Watch(ctx context.Context) (<-chan string, error) {
	if w, ok := e.source.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, fmt.Errorf("current definition source does not support watching")
}

// Shutdown closes every open session.
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.manager.Shutdown(ctx)
}
