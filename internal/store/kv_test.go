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

func newRedisKV(t *testing.T) (*RedisKV, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisKV(client), mr
}

func TestRedisKV_GetSetScan(t *testing.T) {
	ctx := context.Background()
	kv, mr := newRedisKV(t)

	_, err := kv.Get(ctx, "afya:sync:status")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "afya:sync:status", `{"pending":{}}`, time.Minute))
	require.NoError(t, kv.Set(ctx, "afya:sync:last", "x", 0))
	require.NoError(t, kv.Set(ctx, "other", "y", 0))

	v, err := kv.Get(ctx, "afya:sync:status")
	require.NoError(t, err)
	assert.Equal(t, `{"pending":{}}`, v)

	keys, err := kv.ScanKeys(ctx, "afya:sync:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"afya:sync:status", "afya:sync:last"}, keys)

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "afya:sync:status")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryKV_TTLAndScan(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }

	require.NoError(t, kv.Set(ctx, "afya:a", "1", time.Second))
	require.NoError(t, kv.Set(ctx, "afya:b", "2", 0))

	keys, err := kv.ScanKeys(ctx, "afya:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"afya:a", "afya:b"}, keys)

	now = now.Add(time.Second)
	_, err = kv.Get(ctx, "afya:a")
	assert.ErrorIs(t, err, ErrMiss)
	v, err := kv.Get(ctx, "afya:b")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	kv, _ := newRedisKV(t)

	type status struct {
		Pending int `json:"pending"`
	}
	require.NoError(t, SetJSON(ctx, kv, "k", status{Pending: 3}, 0))

	var got status
	require.NoError(t, GetJSON(ctx, kv, "k", &got))
	assert.Equal(t, 3, got.Pending)

	assert.ErrorIs(t, GetJSON(ctx, kv, "missing", &got), ErrMiss)
}
