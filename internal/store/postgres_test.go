package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real database only when TEST_DATABASE_URL is set.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := New(ctx, url)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	_, err = s.pool.Exec(ctx, `TRUNCATE response_cache`)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreSetAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "catalog:x")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "catalog:x", []byte(`[1]`), time.Hour))
	require.NoError(t, s.Set(ctx, "catalog:x", []byte(`[2]`), time.Hour))

	val, ok, err := s.Get(ctx, "catalog:x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[2]`, string(val))
}

func TestStoreExpiryAndPurge(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "fees:x", []byte(`{}`), time.Minute))

	now = now.Add(2 * time.Minute)
	_, ok, err := s.Get(ctx, "fees:x")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStoreSetNonPositiveTTLDeletes(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte(`{}`), time.Hour))
	require.NoError(t, s.Set(ctx, "k", nil, 0))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewBadURL(t *testing.T) {
	_, err := New(context.Background(), "://bad")
	assert.Error(t, err)
}
