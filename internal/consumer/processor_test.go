package consumer

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/notification/internal/domain"
)

func TestProcessorRecordsAndCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := kafka.Message{
		Topic:     "activity_events",
		Partition: 0,
		Offset:    10,
		Time:      time.Now().UTC(),
		Value: []byte(`{"action":"upload","resource":"image","resource_id":"res-1",` +
			`"user_id":"u-alice","username":"alice","user_role":"editor",` +
			`"tenant_id":"tenant-1","details":{"format":"png"},"timestamp":"2026-03-10T09:15:00Z"}`),
	}

	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	recorder := &stubRecorder{}

	processor := NewProcessor(reader, recorder, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, recorder.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "upload", recorder.last.Action)
	require.Equal(t, "u-alice", recorder.last.UserID)
	require.Equal(t, "png", recorder.last.Details["format"])
	require.Equal(t, time.Date(2026, time.March, 10, 9, 15, 0, 0, time.UTC), recorder.last.Timestamp)
}

func TestProcessorCommitsUndecodableMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := kafka.Message{
		Topic:     "activity_events",
		Partition: 0,
		Offset:    20,
		Time:      time.Now().UTC(),
		Value:     []byte(`{not-json`),
	}

	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	recorder := &stubRecorder{}

	processor := NewProcessor(reader, recorder, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// Undecodable messages are committed to avoid poison-pill loops.
	require.Equal(t, 0, recorder.calls)
	require.Equal(t, 1, reader.commitCalls)
}

func TestProcessorFallsBackToMessageTime(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	msg := kafka.Message{
		Topic: "activity_events",
		Time:  ts,
		Value: []byte(`{"action":"delete","resource":"file","user_id":"u-bob","username":"bob"}`),
	}

	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	recorder := &stubRecorder{}

	processor := NewProcessor(reader, recorder, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, ts, recorder.last.Timestamp)
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

type stubRecorder struct {
	calls int
	last  domain.ActivityEvent
}

func (r *stubRecorder) Record(_ context.Context, event domain.ActivityEvent) {
	r.calls++
	r.last = event
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
