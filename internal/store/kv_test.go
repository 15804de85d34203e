package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisKV_GetMiss(t *testing.T) {
	_, rdb := newTestRedis(t)
	kv := NewRedisKV(rdb)

	_, err := kv.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisKV_SetNX(t *testing.T) {
	mr, rdb := newTestRedis(t)
	kv := NewRedisKV(rdb)
	ctx := context.Background()

	ok, err := kv.SetNX(ctx, "lease", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = kv.SetNX(ctx, "lease", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := kv.Get(ctx, "lease")
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	mr.FastForward(2 * time.Minute)
	ok, err = kv.SetNX(ctx, "lease", "c", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryKV_TTL(t *testing.T) {
	kv := NewMemoryKV()
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := kv.SetNX(ctx, "k", "v", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = kv.SetNX(ctx, "k", "w", time.Hour)
	assert.False(t, ok)

	now = now.Add(time.Hour)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "k", "x", 0))
	require.NoError(t, kv.Del(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}
