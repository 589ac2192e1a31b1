package registry

import "github.com/aretw0/arbiter/pkg/domain"

// RollOutcome pairs one fan-out branch with what became of it. Exactly one
// of Result/Err is meaningful: a timed-out branch whose fallback was skip
// carries Err == domain.ErrRollTimeout and a zero Result.
type RollOutcome struct {
	Ask      domain.RollAsk
	Result   domain.RollResult
	Err      error
	TimedOut bool
}

// Run is the mutable execution context threaded through a workflow's
// phases. It accumulates state changes and notifications; the executor
// turns it into a WorkflowOutcome only when every phase succeeded, which
// keeps the commit all-or-nothing.
type Run struct {
	Action    domain.ActionRequest
	Payload   map[string]any
	Authority domain.AuthorityLevel

	phase   string
	rolls   map[string][]RollOutcome
	changes []domain.StateChange
	notes   []domain.Notification
}

// NewRun creates the context for one action. The payload starts as the
// request payload and is replaced wholesale by a modify decision.
func NewRun(action domain.ActionRequest, authority domain.AuthorityLevel) *Run {
	return &Run{
		Action:    action,
		Payload:   action.Payload,
		Authority: authority,
		rolls:     make(map[string][]RollOutcome),
	}
}

// EnterPhase marks the active phase. Called by the executor.
func (r *Run) EnterPhase(name string) { r.phase = name }

// PhaseName returns the active phase.
func (r *Run) PhaseName() string { return r.phase }

// RecordRolls stores fan-out outcomes under the active phase.
func (r *Run) RecordRolls(outcomes []RollOutcome) {
	r.rolls[r.phase] = outcomes
}

// Rolls returns the outcomes of the active phase's fan-out, in ask order.
func (r *Run) Rolls() []RollOutcome {
	return r.rolls[r.phase]
}

// RollsOf returns the outcomes recorded under an earlier phase.
func (r *Run) RollsOf(phase string) []RollOutcome {
	return r.rolls[phase]
}

// Append adds a state change to the provisional set.
func (r *Run) Append(change domain.StateChange) {
	r.changes = append(r.changes, change)
}

// Notify queues a notification; recipient may be empty for the session.
func (r *Run) Notify(recipient, message string) {
	r.notes = append(r.notes, domain.Notification{Recipient: recipient, Message: message})
}

// Changes returns the provisional state changes in append order.
func (r *Run) Changes() []domain.StateChange {
	return r.changes
}

// Notifications returns queued notifications in append order.
func (r *Run) Notifications() []domain.Notification {
	return r.notes
}

// ResetComputed drops provisional changes and notifications while keeping
// recorded rolls, so a modify decision can recompute without re-rolling.
func (r *Run) ResetComputed(payload map[string]any) {
	r.changes = nil
	r.notes = nil
	if payload != nil {
		r.Payload = payload
	}
}

// Number reads a numeric payload field, accepting the JSON decoder's
// float64 as well as int. ok is false when the field is absent or not a
// number.
func (r *Run) Number(field string) (float64, bool) {
	v, present := r.Payload[field]
	if !present {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// String reads a string payload field.
func (r *Run) String(field string) (string, bool) {
	v, present := r.Payload[field]
	if !present {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
