package domain

import (
	"context"
	"time"
)

// EventType categorizes engine events pushed to the host layer.
type EventType string

const (
	EventActionQueued        EventType = "action_queued"
	EventActionResult        EventType = "action_result"
	EventRollRequested       EventType = "roll_request"
	EventArbiterDisconnected EventType = "arbiter_disconnected"
	EventArbiterReconnected  EventType = "arbiter_reconnected"
	EventHeartbeatPing       EventType = "heartbeat_ping"
)

// Event is the envelope for everything the engine emits outward. Exactly
// one of the payload pointers is set, matching Type.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	Queued    *QueuedEvent     `json:"queued,omitempty"`
	Result    *WorkflowOutcome `json:"result,omitempty"`
	Roll      *RollRequest     `json:"roll,omitempty"`
	Liveness  *LivenessEvent   `json:"liveness,omitempty"`
	Heartbeat *HeartbeatEvent  `json:"heartbeat,omitempty"`
}

// QueuedEvent reports an action buffered during an arbiter outage.
type QueuedEvent struct {
	ActionID string `json:"action_id"`
	Position int    `json:"position"`
}

// LivenessEvent reports a disconnect or reconnect transition. OutageMs is
// only set on reconnect.
type LivenessEvent struct {
	Phase    LivenessPhase `json:"phase"`
	OutageMs int64         `json:"outage_ms,omitempty"`
}

// HeartbeatEvent is an outbound ping the arbiter client must answer.
type HeartbeatEvent struct {
	SentAt time.Time `json:"sent_at"`
}

// LifecycleHooks defines optional callbacks for engine observability. Nil
// hooks are skipped. Hooks run on the session worker goroutine and must not
// block.
type LifecycleHooks struct {
	OnActionQueued   func(context.Context, *Event)
	OnOutcome        func(context.Context, *Event)
	OnRollRequested  func(context.Context, *Event)
	OnLivenessChange func(context.Context, *Event)
}
