package domain

// StateChange is one field mutation produced by a workflow. Changes carry
// the old value so hosts can render diffs and stores can verify.
type StateChange struct {
	TargetID string `json:"target_id"`
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// Notification is a human-readable message addressed to one participant, or
// to the whole session when Recipient is empty.
type Notification struct {
	Recipient string `json:"recipient,omitempty"`
	Message   string `json:"message"`
}

// OutcomeStatus marks how a workflow ended.
type OutcomeStatus string

const (
	OutcomeApplied  OutcomeStatus = "applied"
	OutcomeRejected OutcomeStatus = "rejected"
	OutcomeFailed   OutcomeStatus = "failed"
)

// WorkflowOutcome is the single product of a completed workflow run. The
// StateChanges slice is committed atomically: a failed or rejected outcome
// carries none.
type WorkflowOutcome struct {
	ActionID      string          `json:"action_id"`
	Status        OutcomeStatus   `json:"status"`
	StateChanges  []StateChange   `json:"state_changes,omitempty"`
	Notifications []Notification  `json:"notifications,omitempty"`
	Authority     AuthorityLevel  `json:"authority,omitempty"`
	Decision      DecisionVerdict `json:"decision,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}
