package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"vidora-backend/internal/models"
)

// Notifier is the best-effort push channel. Delivery is never required for
// correctness; callers fire and forget.
type Notifier interface {
	PushToUser(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}

// RedisNotifier publishes events to the per-user pub/sub channel the
// websocket hub subscribes to.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) PushToUser(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	if n.client == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	n.client.Publish(ctx, fmt.Sprintf("user_updates:%s", userID.String()), string(data))
}

// NopNotifier drops every event. Used in tests and when the push channel is
// disabled.
type NopNotifier struct{}

func (NopNotifier) PushToUser(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {}
