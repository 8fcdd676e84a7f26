package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarker_ClaimOncePerIdentity(t *testing.T) {
	ctx := context.Background()
	marker := NewMarker(NewMemoryStore(), "jobs", time.Minute)

	identity := Identity("catalog_sync", "3")

	claimed, err := marker.Claim(ctx, identity)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = marker.Claim(ctx, identity)
	require.NoError(t, err)
	assert.False(t, claimed)

	other := Identity("catalog_sync", "4")
	claimed, err = marker.Claim(ctx, other)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestMarker_ClearAllowsReclaim(t *testing.T) {
	ctx := context.Background()
	marker := NewMarker(NewMemoryStore(), "jobs", time.Minute)

	identity := Identity("autoupdate")

	claimed, err := marker.Claim(ctx, identity)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, marker.Clear(ctx, identity))

	claimed, err = marker.Claim(ctx, identity)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestIdentity_Stable(t *testing.T) {
	assert.Equal(t, Identity("a", "b"), Identity("a", "b"))
	assert.NotEqual(t, Identity("a", "b"), Identity("b", "a"))
	assert.NotEqual(t, Identity("ab"), Identity("a", "b"))
}
