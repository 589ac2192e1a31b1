package domain

import "time"

// DiceSpec describes a homogeneous group of dice, e.g. 2d6.
type DiceSpec struct {
	Sides int `json:"sides" yaml:"sides"`
	Count int `json:"count" yaml:"count"`
}

// RollSpec is the request for one randomized result from one participant.
// Modifier is added to the dice total; Purpose is a free-form label shown to
// the participant ("initiative", "dex_save", ...).
type RollSpec struct {
	Dice     []DiceSpec `json:"dice" yaml:"dice"`
	Modifier int        `json:"modifier,omitempty" yaml:"modifier,omitempty"`
	Purpose  string     `json:"purpose,omitempty" yaml:"purpose,omitempty"`
}

// RollResult is a participant's answer to a roll request.
type RollResult struct {
	CorrelationID string `json:"correlation_id"`
	ParticipantID string `json:"participant_id,omitempty"`
	Total         int    `json:"total"`
	Values        []int  `json:"values,omitempty"`
	AutoRolled    bool   `json:"auto_rolled,omitempty"`
}

// RollState tracks the lifecycle of a pending correlation entry.
type RollState string

const (
	RollPending  RollState = "pending"
	RollResolved RollState = "resolved"
	RollExpired  RollState = "expired"
	RollCanceled RollState = "canceled"
)

// RollRequest is the outbound half of a correlated exchange. The
// CorrelationID is the sole join key with the inbound RollResult and is
// unique for the lifetime of the session.
type RollRequest struct {
	CorrelationID string    `json:"correlation_id"`
	TargetID      string    `json:"target_participant_id"`
	Spec          RollSpec  `json:"spec"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// RollAsk is one branch of a fan-out: who rolls what, how long they have,
// and what happens if they never answer.
type RollAsk struct {
	TargetID string        `json:"target_participant_id" yaml:"target"`
	Spec     RollSpec      `json:"spec" yaml:"spec"`
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Fallback RollFallback  `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// RollFallback tells the executor what to do when a required roll never
// arrives.
type RollFallback string

const (
	// FallbackAutoRoll rolls the spec engine-side with a seeded RNG.
	FallbackAutoRoll RollFallback = "auto_roll"
	// FallbackSkip treats the branch as absent and continues.
	FallbackSkip RollFallback = "skip"
	// FallbackAbort fails the workflow, discarding provisional changes.
	FallbackAbort RollFallback = "abort"
)
