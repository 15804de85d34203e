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

func TestStreams_PublishReadAck(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "hanna:inbound", "engine"))
	// second call hits BUSYGROUP and must be tolerated
	require.NoError(t, CreateConsumerGroup(ctx, client, "hanna:inbound", "engine"))

	_, err := PublishToStream(ctx, client, "hanna:inbound", map[string]interface{}{
		"type":  "postback",
		"count": 3,
		"ok":    true,
	})
	require.NoError(t, err)

	msgs, err := ReadFromStream(ctx, client, "hanna:inbound", "engine", "engine-1", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "postback", msgs[0].Values["type"])
	assert.Equal(t, "3", msgs[0].Values["count"])
	assert.Equal(t, "true", msgs[0].Values["ok"])

	require.NoError(t, AckStream(ctx, client, "hanna:inbound", "engine", msgs[0].ID))
	pending, err := client.XPending(ctx, "hanna:inbound", "engine").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestPublishJSONToStream(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	_, err := PublishJSONToStream(ctx, client, "hanna:outbound", map[string]string{"to": "U1"})
	require.NoError(t, err)

	entries, err := client.XRange(ctx, "hanna:outbound", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, `{"to":"U1"}`, entries[0].Values["data"].(string))
}
