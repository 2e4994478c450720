package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Dial(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestDialFailsWithoutServer(t *testing.T) {
	_, err := Dial(context.Background(), Options{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestTokenStore(t *testing.T) {
	mr, client := newClient(t)
	store := NewTokenStore(client, 30*time.Minute)
	ctx := context.Background()

	_, err := store.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, store.Put(ctx, 7, Session{AccessToken: "abc", RefreshID: "r1"}))
	got, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, Session{AccessToken: "abc", RefreshID: "r1"}, got)
	assert.True(t, mr.Exists("login:user:token:7"))

	require.NoError(t, store.Put(ctx, 7, Session{AccessToken: "def", RefreshID: "r2"}))
	got, _ = store.Get(ctx, 7)
	assert.Equal(t, "def", got.AccessToken)
	assert.Equal(t, "r2", got.RefreshID)

	mr.FastForward(20 * time.Minute)
	require.NoError(t, store.Extend(ctx, 7))
	mr.FastForward(20 * time.Minute)
	_, err = store.Get(ctx, 7)
	assert.NoError(t, err)

	require.NoError(t, store.Delete(ctx, 7))
	require.NoError(t, store.Delete(ctx, 7))
	_, err = store.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenStoreExpires(t *testing.T) {
	mr, client := newClient(t)
	store := NewTokenStore(client, time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, 1, Session{AccessToken: "x", RefreshID: "y"}))
	assert.Greater(t, mr.TTL("login:user:token:1"), time.Duration(0))
	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestReactionCache(t *testing.T) {
	mr, client := newClient(t)
	cache := NewReactionCache(client)
	ctx := context.Background()

	_, _, ok, err := cache.Get(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, 3, 5, 2))
	likes, dislikes, ok, err := cache.Get(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), likes)
	assert.Equal(t, int64(2), dislikes)
	assert.Greater(t, mr.TTL("reaction:cnt:poll:3"), time.Duration(0))

	require.NoError(t, cache.Invalidate(ctx, 3, 0))
	_, _, ok, err = cache.Get(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReactionCachePartialHashIsMiss(t *testing.T) {
	mr, client := newClient(t)
	cache := NewReactionCache(client)
	mr.HSet("reaction:cnt:poll:9", "likes", "4")
	_, _, ok, err := cache.Get(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, ok)
}
