// Package consumer pulls activity events from Kafka and feeds the engine.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/segmentio/kafka-go"

	"example.com/notification/internal/domain"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Recorder ingests decoded activity events. Record never fails from the
// processor's perspective.
type Recorder interface {
	Record(ctx context.Context, event domain.ActivityEvent)
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls messages from Kafka, decodes activity events, and hands
// them to the Recorder.
type Processor struct {
	reader   Reader
	recorder Recorder
	logger   *log.Logger
}

// NewProcessor constructs a Processor with the provided reader and recorder.
func NewProcessor(reader Reader, recorder Recorder, opts ...Option) *Processor {
	p := &Processor{
		reader:   reader,
		recorder: recorder,
		logger:   log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		event, decodeErr := decodeEvent(msg)
		if decodeErr != nil {
			p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			recordDecodeError(msg.Topic)
			// Commit malformed messages to avoid poison-pill loops.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Printf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		p.recorder.Record(ctx, event)

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit error: %v", commitErr)
		} else {
			recordProcessed(msg.Topic, event.Action, msg.Time)
		}
	}
}

func decodeEvent(msg kafka.Message) (domain.ActivityEvent, error) {
	var event domain.ActivityEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return domain.ActivityEvent{}, err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = msg.Time
	}
	return event, nil
}
