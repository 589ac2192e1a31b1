package api_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbiter/api"
)

func TestSpec_LoadsAndValidates(t *testing.T) {
	doc, err := api.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Arbiter API", doc.Info.Title)
	for _, path := range []string{
		"/sessions/{sessionId}/actions",
		"/sessions/{sessionId}/rolls",
		"/sessions/{sessionId}/decisions",
		"/sessions/{sessionId}/heartbeat",
		"/sessions/{sessionId}/events",
	} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}
}
