package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/notification/internal/domain"
)

func TestCounterAlertsAtThresholdAndResets(t *testing.T) {
	e, _, bc, clock := newTestEngine(t, Config{ActivityThreshold: 5})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e.Record(ctx, uploadEvent("u-alice", "alice", "image", "res-1", clock.Now()))
		clock.Advance(time.Second)
	}

	alerts := bc.byChannel(domain.ActionHighActivity)
	require.Len(t, alerts, 1)
	summary := alerts[0].Data.(domain.HighActivitySummary)
	require.Equal(t, "alice", summary.Username)
	require.Equal(t, 5, summary.TotalOperations)
	require.Equal(t, []domain.OperationCount{{Action: "upload", Resource: "image", Count: 5}}, summary.Operations)
	require.Equal(t, "4 seconds", summary.Timeframe)

	// The counter reset: the next event counts as 1, not threshold+1.
	require.Equal(t, 0, e.counter.countFor("u-alice"))
	e.Record(ctx, uploadEvent("u-alice", "alice", "image", "res-1", clock.Now()))
	require.Equal(t, 1, e.counter.countFor("u-alice"))
	require.Len(t, bc.byChannel(domain.ActionHighActivity), 1)
}

func TestCounterGroupsRecentOperations(t *testing.T) {
	e, _, bc, clock := newTestEngine(t, Config{ActivityThreshold: 4})
	ctx := context.Background()

	actions := []struct{ action, resource string }{
		{"upload", "image"},
		{"upload", "image"},
		{"upload", "image"},
		{"delete", "file"},
	}
	for _, op := range actions {
		event := uploadEvent("u-alice", "alice", op.resource, "res-1", clock.Now())
		event.Action = op.action
		e.Record(ctx, event)
		clock.Advance(time.Second)
	}

	alerts := bc.byChannel(domain.ActionHighActivity)
	require.Len(t, alerts, 1)
	summary := alerts[0].Data.(domain.HighActivitySummary)
	require.Equal(t, []domain.OperationCount{
		{Action: "upload", Resource: "image", Count: 3},
		{Action: "delete", Resource: "file", Count: 1},
	}, summary.Operations)
}

func TestCounterSinkFailureSkipsAlertButResets(t *testing.T) {
	e, sink, bc, clock := newTestEngine(t, Config{ActivityThreshold: 3})
	sink.recentErr = errTest
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e.Record(ctx, uploadEvent("u-alice", "alice", "image", "res-1", clock.Now()))
	}

	// No alert, but the counter still reset so every subsequent event does
	// not re-trigger the query.
	require.Empty(t, bc.byChannel(domain.ActionHighActivity))
	require.Equal(t, 0, e.counter.countFor("u-alice"))
}

func TestCounterCooldownSuppressesRepeatAlert(t *testing.T) {
	e, _, bc, clock := newTestEngine(t, Config{ActivityThreshold: 3, Cooldown: 5 * time.Minute})
	ctx := context.Background()

	burst := func() {
		for i := 0; i < 3; i++ {
			e.Record(ctx, uploadEvent("u-alice", "alice", "image", "res-1", clock.Now()))
			clock.Advance(time.Second)
		}
	}

	burst()
	require.Len(t, bc.byChannel(domain.ActionHighActivity), 1)

	// Second burst inside the cooldown: counter resets, alert suppressed.
	burst()
	require.Len(t, bc.byChannel(domain.ActionHighActivity), 1)
	require.Equal(t, 0, e.counter.countFor("u-alice"))

	clock.Advance(5 * time.Minute)
	burst()
	require.Len(t, bc.byChannel(domain.ActionHighActivity), 2)
}

func TestCounterSweepClearsAllCounters(t *testing.T) {
	e, _, bc, clock := newTestEngine(t, Config{ActivityThreshold: 10})
	ctx := context.Background()

	e.Record(ctx, uploadEvent("u-alice", "alice", "image", "res-1", clock.Now()))
	e.Record(ctx, uploadEvent("u-alice", "alice", "image", "res-2", clock.Now()))
	e.Record(ctx, uploadEvent("u-bob", "bob", "image", "res-3", clock.Now()))
	require.Equal(t, 2, e.counter.countFor("u-alice"))
	require.Equal(t, 1, e.counter.countFor("u-bob"))

	e.counter.sweep(clock.Now())

	require.Equal(t, 0, e.counter.countFor("u-alice"))
	require.Equal(t, 0, e.counter.countFor("u-bob"))
	require.Empty(t, bc.byChannel(domain.ActionHighActivity))
}

func TestCounterCountsPerUserIndependently(t *testing.T) {
	e, _, bc, clock := newTestEngine(t, Config{ActivityThreshold: 3})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		e.Record(ctx, uploadEvent("u-alice", "alice", "image", "res-1", clock.Now()))
		e.Record(ctx, uploadEvent("u-bob", "bob", "image", "res-2", clock.Now()))
	}
	require.Empty(t, bc.byChannel(domain.ActionHighActivity))

	e.Record(ctx, uploadEvent("u-alice", "alice", "image", "res-1", clock.Now()))
	alerts := bc.byChannel(domain.ActionHighActivity)
	require.Len(t, alerts, 1)
	require.Equal(t, "alice", alerts[0].Data.(domain.HighActivitySummary).Username)
}
