package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	r, err := NewRedis("redis://"+mr.Addr(), "")
	if err != nil {
		mr.Close()
		t.Fatalf("NewRedis: %v", err)
	}
	return r, mr
}

func TestRedisGetMissing(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer mr.Close()
	defer r.Close()

	val, ok, err := r.Get(context.Background(), "catalog:https://api.llama.fi/protocols")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestRedisSetAndGet(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer mr.Close()
	defer r.Close()

	ctx := context.Background()
	require.NoError(t, r.Set(ctx, "k", []byte(`[{"id":"1"}]`), time.Hour))

	val, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"1"}]`, string(val))
	assert.True(t, mr.Exists(redisKeyPrefix+"k"), "key is namespaced")
}

func TestRedisExpiry(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer mr.Close()
	defer r.Close()

	ctx := context.Background()
	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))

	mr.FastForward(2 * time.Minute)

	_, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSetNonPositiveTTLDeletes(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer mr.Close()
	defer r.Close()

	ctx := context.Background()
	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, r.Set(ctx, "k", []byte("v"), 0))

	_, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisDown(t *testing.T) {
	r, mr := setupTestRedis(t)
	defer r.Close()

	mr.Close()

	ctx := context.Background()
	_, ok, err := r.Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, r.Ping(ctx))
}

func TestNewRedisBadURL(t *testing.T) {
	_, err := NewRedis("not-a-url", "")
	assert.Error(t, err)
}
