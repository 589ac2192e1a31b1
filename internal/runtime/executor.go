// Package runtime drives workflows to completion: it classifies the action,
// exchanges correlated rolls with participants, gates the tentative outcome
// on the arbiter's authority, and produces one atomic set of state changes.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/arbiter/internal/authority"
	"github.com/aretw0/arbiter/internal/correlator"
	"github.com/aretw0/arbiter/internal/dice"
	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/aretw0/arbiter/pkg/registry"
)

// DefaultReviewWindow is the silence window after which a Reviewable
// outcome auto-accepts.
const DefaultReviewWindow = 5 * time.Second

// Executor runs one workflow at a time for its session. It owns no shared
// mutable state beyond what the correlator and decision router already
// serialize, so inbound bookkeeping (roll responses, decisions) may arrive
// concurrently while a workflow is suspended.
type Executor struct {
	registry   *registry.Registry
	correlator *correlator.Correlator
	decisions  *DecisionRouter
	store      ports.CommitStore

	policy    domain.PolicyTable
	overrides func() domain.Overrides

	reviewWindow time.Duration
	seed         func() int64
	logger       *slog.Logger
}

// Option configures the Executor.
type Option func(*Executor)

// WithReviewWindow sets the Reviewable auto-accept window.
func WithReviewWindow(d time.Duration) Option {
	return func(e *Executor) { e.reviewWindow = d }
}

// WithPolicy sets the global policy table.
func WithPolicy(policy domain.PolicyTable) Option {
	return func(e *Executor) { e.policy = policy }
}

// WithOverrides injects the session override lookup. The function is called
// once per action so live override edits take effect on the next run.
func WithOverrides(overrides func() domain.Overrides) Option {
	return func(e *Executor) { e.overrides = overrides }
}

// WithSeed replaces the auto-roll seed source, used by tests for
// deterministic fallbacks.
func WithSeed(seed func() int64) Option {
	return func(e *Executor) { e.seed = seed }
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// New creates an Executor.
func New(reg *registry.Registry, corr *correlator.Correlator, decisions *DecisionRouter, store ports.CommitStore, opts ...Option) *Executor {
	e := &Executor{
		registry:     reg,
		correlator:   corr,
		decisions:    decisions,
		store:        store,
		reviewWindow: DefaultReviewWindow,
		seed:         func() int64 { return time.Now().UnixNano() },
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decisions exposes the router so the session can feed inbound rulings.
func (e *Executor) Decisions() *DecisionRouter { return e.decisions }

// Run executes the workflow for one action request to completion. It never
// returns an error: every failure mode folds into the outcome, keeping the
// session process alive per the engine's error taxonomy.
func (e *Executor) Run(ctx context.Context, req domain.ActionRequest) domain.WorkflowOutcome {
	var overrides domain.Overrides
	if e.overrides != nil {
		overrides = e.overrides()
	}
	level := authority.Classify(req.ActionType, overrides, e.policy)

	wf, ok := e.registry.Lookup(req.ActionType)
	if !ok {
		// Outside the registered set the classification is moot: with no
		// executable semantics only the arbiter can adjudicate.
		if level != domain.AuthorityManualOnly {
			e.logger.Warn("policy grants autonomy to unregistered action type",
				"action_type", req.ActionType, "level", level)
		}
		return e.adjudicateUnregistered(ctx, req)
	}

	run := registry.NewRun(req, level)
	if failure := e.runPhases(ctx, wf, run, false); failure != nil {
		return *failure
	}
	return e.gate(ctx, wf, run)
}

// runPhases walks the phase sequence. computeOnly reuses recorded rolls
// instead of re-asking participants, which is how a modify decision
// recomputes. A nil return means every phase succeeded.
func (e *Executor) runPhases(ctx context.Context, wf registry.Workflow, run *registry.Run, computeOnly bool) *domain.WorkflowOutcome {
	for _, phase := range wf.Phases {
		run.EnterPhase(phase.Name)

		if phase.Skip != nil && phase.Skip(run) {
			continue
		}

		if phase.Rolls != nil && !computeOnly {
			asks := phase.Rolls(run)
			if len(asks) > 0 {
				outcomes, err := e.fanOut(ctx, asks)
				if err != nil {
					return e.failed(run, fmt.Errorf("phase %q: %w", phase.Name, err))
				}
				run.RecordRolls(outcomes)
			}
		}

		if phase.Apply != nil {
			if err := phase.Apply(run); err != nil {
				var rejection *registry.Rejection
				if errors.As(err, &rejection) {
					return e.rejected(run, rejection.Reason)
				}
				return e.failed(run, fmt.Errorf("phase %q: %w", phase.Name, err))
			}
		}
	}
	return nil
}

// fanOut issues the asks concurrently and joins on all of them, applying
// each branch's fallback to timeouts. Branch order is preserved; there is
// no ordering between branches, only the join barrier.
func (e *Executor) fanOut(ctx context.Context, asks []domain.RollAsk) ([]registry.RollOutcome, error) {
	corrAsks := make([]correlator.Ask, len(asks))
	for i, ask := range asks {
		corrAsks[i] = correlator.Ask{
			TargetID: ask.TargetID,
			Spec:     ask.Spec,
			Timeout:  ask.Timeout,
		}
	}

	handles := e.correlator.RequestMany(corrAsks)
	results, errs, err := correlator.Join(ctx, handles)
	if err != nil {
		// The workflow is going down with the context; reap its entries so
		// none leaks in the registry.
		for _, h := range handles {
			e.correlator.Cancel(h.CorrelationID())
		}
		return nil, err
	}

	outcomes := make([]registry.RollOutcome, len(asks))
	for i, ask := range asks {
		outcome := registry.RollOutcome{Ask: ask, Result: results[i], Err: errs[i]}

		switch {
		case errs[i] == nil:
			// Participant answered.
		case errors.Is(errs[i], domain.ErrRollTimeout):
			outcome.TimedOut = true
			fallback, err := e.applyFallback(ask, handles[i].CorrelationID())
			if err != nil {
				return nil, err
			}
			outcome.Result = fallback.result
			outcome.Err = fallback.err
		default:
			// Canceled entries mean the session is tearing the workflow down.
			return nil, errs[i]
		}
		outcomes[i] = outcome
	}
	return outcomes, nil
}

type fallbackResult struct {
	result domain.RollResult
	err    error
}

// applyFallback resolves one timed-out branch. The zero fallback aborts:
// a required response that never arrives must not be silently ignored.
func (e *Executor) applyFallback(ask domain.RollAsk, correlationID string) (fallbackResult, error) {
	switch ask.Fallback {
	case domain.FallbackAutoRoll:
		rolled, err := dice.Roll(ask.Spec, e.seed())
		if err != nil {
			return fallbackResult{}, fmt.Errorf("auto-roll fallback: %w", err)
		}
		rolled.CorrelationID = correlationID
		rolled.ParticipantID = ask.TargetID
		e.logger.Info("auto-rolled for unresponsive participant",
			"participant", ask.TargetID, "total", rolled.Total)
		return fallbackResult{result: rolled}, nil
	case domain.FallbackSkip:
		return fallbackResult{err: domain.ErrRollTimeout}, nil
	default:
		return fallbackResult{}, fmt.Errorf("%w: no response from %s", domain.ErrWorkflowAborted, ask.TargetID)
	}
}

// gate holds the tentative outcome against the action's authority level and
// commits on acceptance.
func (e *Executor) gate(ctx context.Context, wf registry.Workflow, run *registry.Run) domain.WorkflowOutcome {
	switch run.Authority {
	case domain.AuthorityAutomatic:
		return e.commit(ctx, run, "")

	case domain.AuthorityReviewable, domain.AuthorityManualOnly:
		window := e.reviewWindow
		if run.Authority == domain.AuthorityManualOnly {
			// No fallback: blocks until a human decides or the session ends.
			window = 0
		}
		decision, err := e.decisions.await(ctx, run.Action.ID, window)
		if err != nil {
			return *e.failed(run, fmt.Errorf("authority wait: %w", err))
		}
		return e.ruled(ctx, wf, run, decision)

	default:
		return *e.failed(run, fmt.Errorf("unknown authority level %q", run.Authority))
	}
}

// ruled applies an arbiter decision to a computed run.
func (e *Executor) ruled(ctx context.Context, wf registry.Workflow, run *registry.Run, decision domain.Decision) domain.WorkflowOutcome {
	switch decision.Verdict {
	case domain.DecisionAccept:
		return e.commit(ctx, run, domain.DecisionAccept)

	case domain.DecisionModify:
		run.ResetComputed(decision.Payload)
		if failure := e.runPhases(ctx, wf, run, true); failure != nil {
			return *failure
		}
		return e.commit(ctx, run, domain.DecisionModify)

	case domain.DecisionReject:
		reason := decision.Reason
		if reason == "" {
			reason = "rejected by arbiter"
		}
		return *e.rejected(run, reason)

	default:
		return *e.failed(run, fmt.Errorf("unknown decision verdict %q", decision.Verdict))
	}
}

// adjudicateUnregistered handles action types with no workflow: a pure
// manual-only wait whose accept applies no engine-computed changes.
func (e *Executor) adjudicateUnregistered(ctx context.Context, req domain.ActionRequest) domain.WorkflowOutcome {
	run := registry.NewRun(req, domain.AuthorityManualOnly)

	decision, err := e.decisions.await(ctx, req.ID, 0)
	if err != nil {
		return *e.failed(run, fmt.Errorf("authority wait: %w", err))
	}

	switch decision.Verdict {
	case domain.DecisionReject:
		reason := decision.Reason
		if reason == "" {
			reason = "rejected by arbiter"
		}
		return *e.rejected(run, reason)
	case domain.DecisionModify:
		// Modify asks the engine to recompute, and there is nothing to
		// recompute with.
		return *e.failed(run, fmt.Errorf("modify %q: %w", req.ActionType, domain.ErrUnknownWorkflow))
	default:
		// Accepted out-of-band; the arbiter adjudicated an action the
		// engine has no rules for, so no changes are computed.
		run.Notify(req.ProposerID, fmt.Sprintf("%s resolved by the arbiter", req.ActionType))
		return domain.WorkflowOutcome{
			ActionID:      req.ID,
			Status:        domain.OutcomeApplied,
			Notifications: run.Notifications(),
			Authority:     domain.AuthorityManualOnly,
			Decision:      decision.Verdict,
		}
	}
}

// commit applies the provisional changes as one transaction. A store
// failure yields a failed outcome with zero committed changes, preserving
// atomicity.
func (e *Executor) commit(ctx context.Context, run *registry.Run, decision domain.DecisionVerdict) domain.WorkflowOutcome {
	changes := run.Changes()
	if len(changes) > 0 && e.store != nil {
		if err := e.store.Commit(ctx, run.Action.SessionID, run.Action.ID, changes); err != nil {
			return *e.failed(run, fmt.Errorf("commit: %w", err))
		}
	}

	return domain.WorkflowOutcome{
		ActionID:      run.Action.ID,
		Status:        domain.OutcomeApplied,
		StateChanges:  changes,
		Notifications: run.Notifications(),
		Authority:     run.Authority,
		Decision:      decision,
	}
}

func (e *Executor) rejected(run *registry.Run, reason string) *domain.WorkflowOutcome {
	return &domain.WorkflowOutcome{
		ActionID:  run.Action.ID,
		Status:    domain.OutcomeRejected,
		Authority: run.Authority,
		Reason:    reason,
		Notifications: []domain.Notification{
			{Recipient: run.Action.ProposerID, Message: reason},
		},
	}
}

// failed discards all provisional state changes: the outcome indicates
// failure and commits nothing.
func (e *Executor) failed(run *registry.Run, err error) *domain.WorkflowOutcome {
	e.logger.Error("workflow failed", "action_id", run.Action.ID, "err", err)
	return &domain.WorkflowOutcome{
		ActionID:  run.Action.ID,
		Status:    domain.OutcomeFailed,
		Authority: run.Authority,
		Reason:    err.Error(),
	}
}
