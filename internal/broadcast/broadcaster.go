// Package broadcast delivers notification envelopes to connected observers
// over a pub/sub transport.
package broadcast

import (
	"context"

	"example.com/notification/internal/domain"
)

// Broadcaster fans an envelope out to every observer of a channel. Delivery
// is best effort: a failed emit is dropped, never retried.
type Broadcaster interface {
	Emit(ctx context.Context, channel string, env domain.Envelope) error
	Close() error
}
