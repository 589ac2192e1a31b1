// Package memory provides in-process implementations of the persistence
// ports, used by tests and by embedders that bring their own durable store.
package memory

import (
	"context"
	"sync"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

// Store implements ports.CommitStore in memory.
// Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	commits map[string][]ports.CommitRecord
}

// NewStore creates a new in-memory commit store.
func NewStore() *Store {
	return &Store{
		commits: make(map[string][]ports.CommitRecord),
	}
}

// Commit appends the record for one applied outcome. The whole slice lands
// under a single lock acquisition, so a concurrent reader never observes a
// partial commit.
func (s *Store) Commit(ctx context.Context, sessionID, actionID string, changes []domain.StateChange) error {
	copied := append([]domain.StateChange(nil), changes...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits[sessionID] = append(s.commits[sessionID], ports.CommitRecord{
		ActionID: actionID,
		Changes:  copied,
	})
	return nil
}

// Commits returns the applied records for a session in commit order.
func (s *Store) Commits(ctx context.Context, sessionID string) ([]ports.CommitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ports.CommitRecord(nil), s.commits[sessionID]...), nil
}

// Journal implements ports.QueueJournal in memory.
// Safe for concurrent use.
type Journal struct {
	mu     sync.RWMutex
	queued map[string][]domain.QueuedAction
}

// NewJournal creates a new in-memory queue journal.
func NewJournal() *Journal {
	return &Journal{
		queued: make(map[string][]domain.QueuedAction),
	}
}

// AppendQueued records a buffered action.
func (j *Journal) AppendQueued(ctx context.Context, sessionID string, action domain.QueuedAction) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.queued[sessionID] = append(j.queued[sessionID], action)
	return nil
}

// LoadQueued returns the journal in enqueuedAt order.
func (j *Journal) LoadQueued(ctx context.Context, sessionID string) ([]domain.QueuedAction, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]domain.QueuedAction(nil), j.queued[sessionID]...), nil
}

// ClearQueued empties the journal after a successful drain.
func (j *Journal) ClearQueued(ctx context.Context, sessionID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.queued, sessionID)
	return nil
}
