package queue

import (
	"context"
	"encoding/json"
	"fmt"

	commonredis "owl-notify/common/redis"
	"owl-notify/internal/models"

	"github.com/go-redis/redis/v8"
	"gocloud.dev/pubsub"
)

// Announcement body sent for every written notification event
type Announcement struct {
	ID               string `json:"id"`
	NotificationType string `json:"notification_type"`
	Status           string `json:"status"`
	ConfigID         string `json:"notification_config_id,omitempty"`
}

func announcementOf(event *models.NotificationEvent) Announcement {
	return Announcement{
		ID:               event.ID,
		NotificationType: string(event.NotificationType),
		Status:           string(event.Status),
		ConfigID:         event.NotificationConfigID.String,
	}
}

// TopicPublisher announces events on a gocloud pubsub topic
// (mem://, nats://, rabbit://, kafka:// depending on the linked drivers)
type TopicPublisher struct {
	topic *pubsub.Topic
}

// OpenTopicPublisher opens the topic at url
func OpenTopicPublisher(ctx context.Context, url string) (*TopicPublisher, error) {
	topic, err := pubsub.OpenTopic(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open topic %s: %w", url, err)
	}
	return &TopicPublisher{topic: topic}, nil
}

// NewTopicPublisher wraps an already open topic
func NewTopicPublisher(topic *pubsub.Topic) *TopicPublisher {
	return &TopicPublisher{topic: topic}
}

func (p *TopicPublisher) Announce(ctx context.Context, event *models.NotificationEvent) error {
	body, err := json.Marshal(announcementOf(event))
	if err != nil {
		return fmt.Errorf("failed to encode announcement: %w", err)
	}

	return p.topic.Send(ctx, &pubsub.Message{
		Body: body,
		Metadata: map[string]string{
			"event_id":          event.ID,
			"notification_type": string(event.NotificationType),
			"status":            string(event.Status),
		},
	})
}

// Close flushes and shuts the topic down
func (p *TopicPublisher) Close(ctx context.Context) error {
	return p.topic.Shutdown(ctx)
}

// StreamPublisher announces events on a redis stream
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Announce(ctx context.Context, event *models.NotificationEvent) error {
	a := announcementOf(event)
	_, err := commonredis.PublishToStream(ctx, p.client, p.stream, p.maxLen, map[string]interface{}{
		"id":                     a.ID,
		"notification_type":      a.NotificationType,
		"status":                 a.Status,
		"notification_config_id": a.ConfigID,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", p.stream, err)
	}
	return nil
}

func (p *StreamPublisher) Close(ctx context.Context) error { return nil }

// Nop drops announcements; delivery workers poll the table instead
type Nop struct{}

func (Nop) Announce(ctx context.Context, event *models.NotificationEvent) error { return nil }

func (Nop) Close(ctx context.Context) error { return nil }
