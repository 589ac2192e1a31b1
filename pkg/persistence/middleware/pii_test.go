package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbiter/internal/adapters/memory"
	"github.com/aretw0/arbiter/pkg/domain"
)

func TestPIIMiddleware_MasksMatchingFields(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	store := NewPIIMiddleware([]string{"(?i)email", "secret"})(inner)

	original := []domain.StateChange{
		{TargetID: "pc-1", Field: "contact_email", OldValue: "a@b.example", NewValue: "c@d.example"},
		{TargetID: "pc-1", Field: "hp", NewValue: 5},
	}
	require.NoError(t, store.Commit(ctx, "table-1", "act-1", original))

	records, err := inner.Commits(ctx, "table-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "***", records[0].Changes[0].OldValue)
	assert.Equal(t, "***", records[0].Changes[0].NewValue)
	assert.Equal(t, 5, records[0].Changes[1].NewValue)

	// The caller's slice is untouched.
	assert.Equal(t, "c@d.example", original[0].NewValue)
}

func TestPIIMiddleware_MasksNestedMapValues(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	store := NewPIIMiddleware([]string{"password"})(inner)

	payload := map[string]any{
		"name": "Lyra",
		"credentials": map[string]any{
			"password": "hunter2",
		},
	}
	require.NoError(t, store.Commit(ctx, "table-1", "act-1", []domain.StateChange{
		{TargetID: "pc-1", Field: "profile", NewValue: payload},
	}))

	records, err := inner.Commits(ctx, "table-1")
	require.NoError(t, err)
	stored := records[0].Changes[0].NewValue.(map[string]any)
	assert.Equal(t, "Lyra", stored["name"])
	assert.Equal(t, "***", stored["credentials"].(map[string]any)["password"])

	// Original payload keeps the plaintext.
	assert.Equal(t, "hunter2", payload["credentials"].(map[string]any)["password"])
}
