package domain

import "time"

// ActionRequest is a participant's proposal to perform an action inside a
// session. It is immutable once created and consumed exactly once by the
// workflow executor, either directly or after a stay in the pause queue.
type ActionRequest struct {
	ID         string         `json:"id"`
	ProposerID string         `json:"proposer_id"`
	SessionID  string         `json:"session_id"`
	ActionType string         `json:"action_type"`
	Payload    map[string]any `json:"payload,omitempty"`
	ProposedAt time.Time      `json:"proposed_at"`
}

// AckStatus is the immediate answer to a submitted action.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckQueued   AckStatus = "queued"
	AckRejected AckStatus = "rejected"
)

// Ack acknowledges an action submission. Position is only meaningful when
// Status == AckQueued (1-based position in the pause buffer). Reason is only
// set when Status == AckRejected.
type Ack struct {
	ActionID string    `json:"action_id"`
	Status   AckStatus `json:"status"`
	Position int       `json:"position,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

// QueuedAction wraps an ActionRequest buffered while the arbiter is
// unreachable. EnqueuedAt fixes the replay order: drains happen strictly in
// ascending EnqueuedAt, before any post-resume action.
type QueuedAction struct {
	Request    ActionRequest `json:"request"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// DecisionVerdict is the arbiter's ruling on a held action.
type DecisionVerdict string

const (
	DecisionAccept DecisionVerdict = "accept"
	DecisionModify DecisionVerdict = "modify"
	DecisionReject DecisionVerdict = "reject"
)

// Decision carries the arbiter's judgment for a Reviewable or ManualOnly
// action. Payload replaces the original action payload when the verdict is
// DecisionModify; Reason explains a DecisionReject.
type Decision struct {
	ActionID string          `json:"action_id"`
	Verdict  DecisionVerdict `json:"verdict"`
	Payload  map[string]any  `json:"payload,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}
