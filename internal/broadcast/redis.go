package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"example.com/notification/internal/domain"
)

// RedisBroadcaster publishes envelopes over Redis pub/sub. Used by local and
// single-node deployments that run without a Kafka broker.
type RedisBroadcaster struct {
	client *redis.Client
	prefix string
}

// NewRedisBroadcaster creates a RedisBroadcaster for the given address.
func NewRedisBroadcaster(addr, prefix string) *RedisBroadcaster {
	return &RedisBroadcaster{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

// Emit publishes the envelope on "<prefix>.<channel>".
func (b *RedisBroadcaster) Emit(ctx context.Context, channel string, env domain.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return b.client.Publish(ctx, ChannelTopic(b.prefix, channel), payload).Err()
}

// Close releases the underlying client.
func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}
