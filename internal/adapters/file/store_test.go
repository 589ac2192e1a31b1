package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbiter/internal/adapters/file"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

func TestFileStore_Contract(t *testing.T) {
	store := file.New(t.TempDir())
	ports.RunCommitStoreContract(t, store)
}

func TestFileJournal_Contract(t *testing.T) {
	store := file.New(t.TempDir())
	ports.RunQueueJournalContract(t, store)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := file.New(dir)
	require.NoError(t, store.Commit(ctx, "table-1", "act-1", []domain.StateChange{
		{TargetID: "pc-1", Field: "hp", NewValue: 5},
	}))
	require.NoError(t, store.AppendQueued(ctx, "table-1", domain.QueuedAction{
		Request: domain.ActionRequest{ID: "act-2", SessionID: "table-1"},
	}))

	reopened := file.New(dir)
	records, err := reopened.Commits(ctx, "table-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "act-1", records[0].ActionID)

	queued, err := reopened.LoadQueued(ctx, "table-1")
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "act-2", queued[0].Request.ID)
}

func TestFileStore_Sessions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := file.New(dir)

	require.NoError(t, store.Commit(ctx, "table-1", "act-1", nil))
	require.NoError(t, store.Commit(ctx, "table-2", "act-1", nil))

	sessions, err := store.Sessions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"table-1", "table-2"}, sessions)
}

func TestFileStore_NoLeftoverTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := file.New(dir)

	require.NoError(t, store.Commit(ctx, "table-1", "act-1", nil))

	matches, err := filepath.Glob(filepath.Join(dir, "tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
