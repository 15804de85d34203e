package notifier

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	rediscommon "hanna-engine/common/redis"
	"hanna-engine/internal/models"
)

// OutboundEvent is what StreamSender writes for the channel adapter to deliver.
type OutboundEvent struct {
	Kind       string          `json:"kind"` // push or reply
	To         string          `json:"to,omitempty"`
	ReplyToken string          `json:"reply_token,omitempty"`
	Message    *models.Message `json:"message"`
}

// StreamSender hands outbound messages to the channel adapter via a Redis stream.
type StreamSender struct {
	client *redis.Client
	stream string
}

func NewStreamSender(client *redis.Client, stream string) *StreamSender {
	return &StreamSender{client: client, stream: stream}
}

var _ Sender = (*StreamSender)(nil)

func (s *StreamSender) Send(ctx context.Context, userID string, msg *models.Message) error {
	return s.publish(ctx, OutboundEvent{Kind: "push", To: userID, Message: msg})
}

func (s *StreamSender) Reply(ctx context.Context, replyToken string, msg *models.Message) error {
	return s.publish(ctx, OutboundEvent{Kind: "reply", ReplyToken: replyToken, Message: msg})
}

func (s *StreamSender) publish(ctx context.Context, ev OutboundEvent) error {
	if _, err := rediscommon.PublishJSONToStream(ctx, s.client, s.stream, ev); err != nil {
		return fmt.Errorf("failed to publish outbound message: %w", err)
	}
	return nil
}
