package queue

import (
	"context"
	"encoding/json"
	"testing"

	"owl-notify/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/guregu/null/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/mempubsub"
)

func testEvent() *models.NotificationEvent {
	return &models.NotificationEvent{
		ID:                   "e1",
		NotificationType:     models.NotificationTypeEmail,
		Status:               models.EventQueued,
		NotificationConfigID: null.StringFrom("c1"),
	}
}

func TestTopicPublisher_Announce(t *testing.T) {
	ctx := context.Background()

	topic, err := pubsub.OpenTopic(ctx, "mem://notification_events_test")
	require.NoError(t, err)
	sub, err := pubsub.OpenSubscription(ctx, "mem://notification_events_test")
	require.NoError(t, err)
	defer sub.Shutdown(ctx)

	p := NewTopicPublisher(topic)
	defer p.Close(ctx)

	require.NoError(t, p.Announce(ctx, testEvent()))

	msg, err := sub.Receive(ctx)
	require.NoError(t, err)
	msg.Ack()

	var a Announcement
	require.NoError(t, json.Unmarshal(msg.Body, &a))
	assert.Equal(t, "e1", a.ID)
	assert.Equal(t, "EMAIL", a.NotificationType)
	assert.Equal(t, "Queued", a.Status)
	assert.Equal(t, "c1", a.ConfigID)
	assert.Equal(t, "e1", msg.Metadata["event_id"])
}

func TestOpenTopicPublisher_BadScheme(t *testing.T) {
	_, err := OpenTopicPublisher(context.Background(), "carrier-pigeon://coop")
	assert.Error(t, err)
}

func TestStreamPublisher_Announce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := NewStreamPublisher(client, "notification:events", 100)
	require.NoError(t, p.Announce(context.Background(), testEvent()))

	entries, err := client.XRange(context.Background(), "notification:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e1", entries[0].Values["id"])
	assert.Equal(t, "Queued", entries[0].Values["status"])
	assert.Equal(t, "c1", entries[0].Values["notification_config_id"])
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Announce(context.Background(), testEvent()))
}
