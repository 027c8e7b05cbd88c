package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"example.com/notification/internal/domain"
)

// KafkaBroadcaster lazily manages one writer per notification channel.
type KafkaBroadcaster struct {
	brokers []string
	prefix  string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaBroadcaster creates a KafkaBroadcaster. Channels map to topics as
// "<prefix>.<channel>".
func NewKafkaBroadcaster(brokers []string, prefix string) *KafkaBroadcaster {
	return &KafkaBroadcaster{
		brokers: brokers,
		prefix:  prefix,
		writers: make(map[string]*kafka.Writer),
	}
}

// Emit publishes the envelope to the channel's topic, creating a writer if necessary.
func (b *KafkaBroadcaster) Emit(ctx context.Context, channel string, env domain.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	writer := b.writerForChannel(channel)
	return writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.Action),
		Value: payload,
		Time:  env.Timestamp,
	})
}

func (b *KafkaBroadcaster) writerForChannel(channel string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()

	if writer, ok := b.writers[channel]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(b.brokers...),
		Topic:        ChannelTopic(b.prefix, channel),
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
		Async:        false,
	}
	b.writers[channel] = writer
	return writer
}

// ChannelTopic returns the Kafka topic for a notification channel.
func ChannelTopic(prefix, channel string) string {
	if prefix == "" {
		return channel
	}
	return prefix + "." + channel
}

// Close releases all writers.
func (b *KafkaBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for channel, writer := range b.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.writers, channel)
	}
	return firstErr
}
