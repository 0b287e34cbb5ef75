package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/migoVanDingo/ed-user-management/domain"
)

// RedisBus implements domain.EventBus on Redis pub/sub. Events are JSON
// encoded onto the channel; delivery toward subscribers is whatever Redis
// pub/sub gives, which matches the fire-and-forget contract.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus creates a RedisBus over an existing client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// Publish encodes the event and publishes it on the channel.
func (b *RedisBus) Publish(ctx context.Context, channel string, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", channel, err)
	}
	return nil
}

var _ domain.EventBus = (*RedisBus)(nil)
