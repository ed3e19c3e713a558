package redis

import (
	"context"
	"testing"

	"owl-notify/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), &config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer Close(client)

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestConnect_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), &config.RedisConfig{Addr: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}

func TestPublishToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), &config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer Close(client)

	id, err := PublishToStream(context.Background(), client, "events", 0, map[string]interface{}{
		"id":      "e1",
		"count":   2,
		"ok":      true,
		"payload": map[string]string{"a": "b"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := client.XRange(context.Background(), "events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e1", entries[0].Values["id"])
	assert.Equal(t, "2", entries[0].Values["count"])
	assert.Equal(t, "true", entries[0].Values["ok"])
	assert.Equal(t, `{"a":"b"}`, entries[0].Values["payload"])
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
