package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCommitStoreContract verifies that a CommitStore implementation adheres
// to the interface contract. Adapters call it from their own tests.
func RunCommitStoreContract(t *testing.T, store CommitStore) {
	ctx := context.Background()
	sessionID := "contract-session-" + time.Now().Format("20060102150405")

	t.Run("Commit and Commits", func(t *testing.T) {
		changes := []domain.StateChange{
			{TargetID: "goblin-1", Field: "hp", OldValue: 12, NewValue: 5},
			{TargetID: "goblin-1", Field: "status", OldValue: "ok", NewValue: "bloodied"},
		}
		require.NoError(t, store.Commit(ctx, sessionID, "action-1", changes))

		records, err := store.Commits(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "action-1", records[0].ActionID)
		assert.Len(t, records[0].Changes, 2)
	})

	t.Run("Commit order", func(t *testing.T) {
		require.NoError(t, store.Commit(ctx, sessionID, "action-2", []domain.StateChange{
			{TargetID: "pc-1", Field: "position", OldValue: "a1", NewValue: "b2"},
		}))

		records, err := store.Commits(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "action-1", records[0].ActionID)
		assert.Equal(t, "action-2", records[1].ActionID)
	})

	t.Run("Empty session", func(t *testing.T) {
		records, err := store.Commits(ctx, "never-used-"+sessionID)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

// RunQueueJournalContract verifies a QueueJournal implementation.
func RunQueueJournalContract(t *testing.T, journal QueueJournal) {
	ctx := context.Background()
	sessionID := "journal-session-" + time.Now().Format("20060102150405")
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	t.Run("Append and Load in order", func(t *testing.T) {
		for i, id := range []string{"a", "b", "c"} {
			require.NoError(t, journal.AppendQueued(ctx, sessionID, domain.QueuedAction{
				Request:    domain.ActionRequest{ID: id, SessionID: sessionID},
				EnqueuedAt: base.Add(time.Duration(i) * time.Second),
			}))
		}

		queued, err := journal.LoadQueued(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, queued, 3)
		assert.Equal(t, "a", queued[0].Request.ID)
		assert.Equal(t, "b", queued[1].Request.ID)
		assert.Equal(t, "c", queued[2].Request.ID)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, journal.ClearQueued(ctx, sessionID))

		queued, err := journal.LoadQueued(ctx, sessionID)
		require.NoError(t, err)
		assert.Empty(t, queued)
	})
}
