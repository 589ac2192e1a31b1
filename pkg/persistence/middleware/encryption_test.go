package middleware

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbiter/internal/adapters/memory"
	"github.com/aretw0/arbiter/pkg/domain"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptionMiddleware_RoundTrip(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	key := testKey(t)
	store := NewEncryptionMiddleware(EncryptionConfig{ActiveKey: key})(inner)

	changes := []domain.StateChange{
		{TargetID: "pc-1", Field: "hp", OldValue: 12, NewValue: 5},
		{TargetID: "pc-1", Field: "position", NewValue: "B4"},
	}
	require.NoError(t, store.Commit(ctx, "table-1", "act-1", changes))

	// The wrapped store only ever sees the envelope.
	raw, err := inner.Commits(ctx, "table-1")
	require.NoError(t, err)
	require.Len(t, raw, 1)
	require.Len(t, raw[0].Changes, 1)
	assert.Equal(t, envelopeField, raw[0].Changes[0].Field)
	assert.NotContains(t, raw[0].Changes[0].NewValue, "B4")

	// Reads through the middleware restore the plaintext changes.
	records, err := store.Commits(ctx, "table-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "act-1", records[0].ActionID)
	require.Len(t, records[0].Changes, 2)
	assert.Equal(t, "hp", records[0].Changes[0].Field)
	assert.Equal(t, "B4", records[0].Changes[1].NewValue)
}

func TestEncryptionMiddleware_WrongKeyFails(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()

	writer := NewEncryptionMiddleware(EncryptionConfig{ActiveKey: testKey(t)})(inner)
	require.NoError(t, writer.Commit(ctx, "table-1", "act-1", []domain.StateChange{
		{TargetID: "pc-1", Field: "hp", NewValue: 5},
	}))

	reader := NewEncryptionMiddleware(EncryptionConfig{ActiveKey: testKey(t)})(inner)
	_, err := reader.Commits(ctx, "table-1")
	assert.ErrorContains(t, err, "failed to decrypt")
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	oldKey := testKey(t)

	writer := NewEncryptionMiddleware(EncryptionConfig{ActiveKey: oldKey})(inner)
	require.NoError(t, writer.Commit(ctx, "table-1", "act-1", []domain.StateChange{
		{TargetID: "pc-1", Field: "hp", NewValue: 5},
	}))

	// New active key, old key demoted to fallback: old records stay readable.
	rotated := NewEncryptionMiddleware(EncryptionConfig{
		ActiveKey:    testKey(t),
		FallbackKeys: [][]byte{oldKey},
	})(inner)

	records, err := rotated.Commits(ctx, "table-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "hp", records[0].Changes[0].Field)
}

func TestEncryptionMiddleware_RejectsPlainRecords(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	require.NoError(t, inner.Commit(ctx, "table-1", "act-1", []domain.StateChange{
		{TargetID: "pc-1", Field: "hp", NewValue: 5},
	}))

	store := NewEncryptionMiddleware(EncryptionConfig{ActiveKey: testKey(t)})(inner)
	_, err := store.Commits(ctx, "table-1")
	assert.ErrorContains(t, err, "missing the encrypted envelope")
}

func TestEncryptionMiddleware_ShortKeyPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewEncryptionMiddleware(EncryptionConfig{ActiveKey: []byte("too-short")})
	})
}
