package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDedup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDedup()
	defer store.Close()

	seen, err := store.Seen(ctx, "email-user1-abc")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkSeen(ctx, "email-user1-abc", 0))

	seen, err = store.Seen(ctx, "email-user1-abc")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMemoryDedupExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDedup()
	defer store.Close()

	require.NoError(t, store.MarkSeen(ctx, "ephemeral", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	seen, err := store.Seen(ctx, "ephemeral")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisDedup(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewRedisDedup(&RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	seen, err := store.Seen(ctx, "vm-user1-123")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkSeen(ctx, "vm-user1-123", time.Hour))

	seen, err = store.Seen(ctx, "vm-user1-123")
	require.NoError(t, err)
	assert.True(t, seen)

	// expiry is honored
	mr.FastForward(2 * time.Hour)
	seen, err = store.Seen(ctx, "vm-user1-123")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisDedupRequiresConfig(t *testing.T) {
	_, err := NewRedisDedup(nil)
	assert.Error(t, err)
}
