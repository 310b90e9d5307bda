package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestPublishAndReadStream(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "afya:events", "sync"))
	// 重复创建不报错
	require.NoError(t, CreateConsumerGroup(ctx, client, "afya:events", "sync"))

	id, err := PublishJSONToStream(ctx, client, "afya:events", map[string]int{"count": 2}, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := ReadFromStream(ctx, client, "afya:events", "sync", "device-1", 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, `{"count":2}`, msgs[0].Values["data"])
}

func TestStringify(t *testing.T) {
	s, err := stringify(12)
	require.NoError(t, err)
	assert.Equal(t, "12", s)

	s, err = stringify(true)
	require.NoError(t, err)
	assert.Equal(t, "true", s)

	s, err = stringify(1.5)
	require.NoError(t, err)
	assert.Equal(t, "1.5", s)

	s, err = stringify([]string{"a"})
	require.NoError(t, err)
	assert.Equal(t, `["a"]`, s)
}
