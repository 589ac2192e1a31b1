package domain

import "time"

// LivenessPhase is the connectivity mode of the session's arbiter.
type LivenessPhase string

const (
	// LivenessConnected means probes are answered inside the window.
	LivenessConnected LivenessPhase = "connected"
	// LivenessDegraded is a drop inside the post-reconnect grace window:
	// treated as connected, no second disconnect cycle fires.
	LivenessDegraded LivenessPhase = "degraded"
	// LivenessDisconnected pauses the session's action intake.
	LivenessDisconnected LivenessPhase = "disconnected"
)

// LivenessState is the monitor's view of the arbiter, per session. It is
// mutated only by the liveness monitor and read by the queue engine.
type LivenessState struct {
	Phase             LivenessPhase `json:"phase"`
	LastHeartbeatAt   time.Time     `json:"last_heartbeat_at"`
	DisconnectedSince time.Time     `json:"disconnected_since,omitzero"`
}

// Connected reports whether actions may flow to the executor. Degraded
// counts as connected.
func (s LivenessState) Connected() bool {
	return s.Phase != LivenessDisconnected
}
