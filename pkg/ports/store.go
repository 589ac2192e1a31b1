package ports

import (
	"context"

	"github.com/aretw0/arbiter/pkg/domain"
)

// CommitRecord is one applied outcome as the store remembers it.
type CommitRecord struct {
	ActionID string               `json:"action_id"`
	Changes  []domain.StateChange `json:"changes"`
}

// CommitStore is the external durable store the engine delegates to. The
// engine owns no persisted state itself; it issues exactly one Commit per
// completed workflow, and the store must treat that call as transactional:
// either every change in the slice is applied or none is.
type CommitStore interface {
	// Commit atomically applies the state changes of one workflow outcome.
	Commit(ctx context.Context, sessionID, actionID string, changes []domain.StateChange) error

	// Commits returns the applied records for a session in commit order.
	Commits(ctx context.Context, sessionID string) ([]CommitRecord, error)
}

// QueueJournal persists the pause buffer so a queued action survives an
// engine restart during an arbiter outage. Journal failures are
// non-fatal: the in-memory buffer remains authoritative.
type QueueJournal interface {
	// AppendQueued records a buffered action.
	AppendQueued(ctx context.Context, sessionID string, action domain.QueuedAction) error

	// LoadQueued returns the journal in enqueuedAt order.
	LoadQueued(ctx context.Context, sessionID string) ([]domain.QueuedAction, error)

	// ClearQueued empties the journal after a successful drain.
	ClearQueued(ctx context.Context, sessionID string) error
}
