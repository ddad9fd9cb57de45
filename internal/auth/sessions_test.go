package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return s, client
}

func TestRedisSessionStore_Lifecycle(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "s1", 7, time.Now().Add(time.Hour)))
	require.NoError(t, store.Create(ctx, "s2", 7, time.Now().Add(time.Hour)))

	ok, err := store.Exists(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	active, err := store.Active(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), active)

	require.NoError(t, store.Revoke(ctx, "s1"))
	ok, err = store.Exists(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	active, err = store.Active(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
}

func TestRedisSessionStore_RevokeIsIdempotent(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisSessionStore(client)
	ctx := context.Background()

	assert.NoError(t, store.Revoke(ctx, "missing"))

	require.NoError(t, store.Create(ctx, "s1", 1, time.Now().Add(time.Hour)))
	require.NoError(t, store.Revoke(ctx, "s1"))
	assert.NoError(t, store.Revoke(ctx, "s1"))
}

func TestRedisSessionStore_Expiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "s1", 3, time.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)

	ok, err := store.Exists(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSessionStore_RejectsExpired(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisSessionStore(client)

	err := store.Create(context.Background(), "s1", 1, time.Now().Add(-time.Second))
	assert.Error(t, err)
}
