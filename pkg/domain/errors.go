package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionClosed is returned when submitting to a session being torn down.
var ErrSessionClosed = errors.New("session closed")

// ErrUnknownWorkflow is returned when a ruling requires executing a
// workflow that was never registered. Classification itself never fails;
// unregistered types are held manual-only, and this surfaces only when a
// modify verdict asks the engine to recompute.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// ErrCorrelationNotFound is returned by handle lookups for IDs that were
// never registered or have already completed.
var ErrCorrelationNotFound = errors.New("correlation not found")

// ErrRollTimeout marks a correlation entry completed by the expiry sweep.
var ErrRollTimeout = errors.New("roll request timed out")

// ErrRollCanceled marks a correlation entry torn down with its workflow.
var ErrRollCanceled = errors.New("roll request canceled")

// ErrWorkflowAborted is returned when a required roll is missing and the
// configured fallback is abort.
var ErrWorkflowAborted = errors.New("workflow aborted")

// ErrQueueFull is returned when an optional queue bound is configured and
// reached; the overflow policy is reject-new.
var ErrQueueFull = errors.New("action queue full")

// ErrDecisionSuperseded is returned when a decision arrives for an action
// that already resolved (e.g. after the review window auto-accepted).
var ErrDecisionSuperseded = errors.New("decision superseded")
