// Package engine implements the activity-notification aggregation engine:
// immediate raw dispatch, debounced per-key batching, hourly/daily time
// buckets, and per-user high-activity alerting.
package engine

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/notification/internal/domain"
)

// Sink is the append-only activity log collaborator. Failures are logged and
// never abort event processing.
type Sink interface {
	Append(ctx context.Context, event domain.ActivityEvent) error
	RecentByUser(ctx context.Context, userID string, limit int) ([]domain.ActivityEvent, error)
}

// Broadcaster fans notification envelopes out to connected observers.
type Broadcaster interface {
	Emit(ctx context.Context, channel string, env domain.Envelope) error
}

// Config captures the engine tunables. Zero values fall back to defaults.
type Config struct {
	ActivityThreshold int           // events before a high-activity alert fires
	ResetInterval     time.Duration // global counter reset sweep
	Cooldown          time.Duration // minimum gap between alerts per user
	BatchThreshold    int           // events below which a batch is discarded
	BatchWindow       time.Duration // hard upper bound on batch latency
	Debounce          time.Duration // quiet period that flushes a batch
	FlushPollInterval time.Duration // batch deadline poll granularity
	HourlyThreshold   int
	DailyThreshold    int
	TimeThreshold     time.Duration // max age of an hourly bucket before emission
	SweepInterval     time.Duration // bucket age sweep
	CleanupInterval   time.Duration // bucket retention sweep
	HourlyRetention   time.Duration
	DailyRetention    time.Duration
}

func (c Config) withDefaults() Config {
	if c.ActivityThreshold <= 0 {
		c.ActivityThreshold = 25
	}
	if c.ResetInterval <= 0 {
		c.ResetInterval = 30 * time.Minute
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
	if c.BatchThreshold <= 0 {
		c.BatchThreshold = 3
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = 2 * time.Minute
	}
	if c.Debounce <= 0 {
		c.Debounce = 30 * time.Second
	}
	if c.FlushPollInterval <= 0 {
		c.FlushPollInterval = 250 * time.Millisecond
	}
	if c.HourlyThreshold <= 0 {
		c.HourlyThreshold = 5
	}
	if c.DailyThreshold <= 0 {
		c.DailyThreshold = 10
	}
	if c.TimeThreshold <= 0 {
		c.TimeThreshold = 3 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Hour
	}
	if c.HourlyRetention <= 0 {
		c.HourlyRetention = 2 * time.Hour
	}
	if c.DailyRetention <= 0 {
		c.DailyRetention = 48 * time.Hour
	}
	return c
}

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithLogger overrides the logger used to report failures.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine fans each incoming event into persistence, raw dispatch, and the
// three aggregation paths.
type Engine struct {
	sink        Sink
	broadcaster Broadcaster
	cfg         Config
	logger      *log.Logger
	now         func() time.Time

	counter *activityCounter
	batches *batchAggregator
	buckets *bucketAggregator

	shutdownComplete chan struct{}
}

// New constructs an Engine.
func New(sink Sink, broadcaster Broadcaster, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		sink:             sink,
		broadcaster:      broadcaster,
		cfg:              cfg.withDefaults(),
		logger:           log.New(log.Writer(), "[engine] ", log.LstdFlags),
		now:              func() time.Time { return time.Now().UTC() },
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.counter = newActivityCounter(e.cfg, sink, e.emit, e.logger)
	e.batches = newBatchAggregator(e.cfg, e.emit)
	e.buckets = newBucketAggregator(e.cfg, e.emit)
	return e
}

// Record ingests one event. It never returns an error to the producer: sink
// and broadcast failures are logged and processing continues.
func (e *Engine) Record(ctx context.Context, event domain.ActivityEvent) {
	now := e.now()
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}

	if err := e.sink.Append(ctx, event); err != nil {
		e.logger.Printf("persistence failure (action=%s, user=%s): %v", event.Action, event.UserID, err)
		recordPersistenceError()
	}

	// Raw passthrough happens for every event, including malformed ones.
	e.emit(ctx, domain.ActionAdminNotification, event, rawMessage(event))

	if !event.Valid() {
		e.logger.Printf("malformed event excluded from aggregation (action=%q, user=%q)", event.Action, event.UserID)
		recordMalformedEvent()
		return
	}

	e.counter.record(ctx, event, now)
	e.batches.record(event, now)
	e.buckets.record(ctx, event, now)
	recordIngested(event.Action)
}

// Run drives the scheduled flushes: batch deadline polling, the global
// counter reset, the bucket age sweep, and the bucket retention sweep. All
// four share one goroutine so no two sweeps ever run concurrently. Run blocks
// until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	flushTicker := time.NewTicker(e.cfg.FlushPollInterval)
	resetTicker := time.NewTicker(e.cfg.ResetInterval)
	sweepTicker := time.NewTicker(e.cfg.SweepInterval)
	cleanupTicker := time.NewTicker(e.cfg.CleanupInterval)
	defer func() {
		flushTicker.Stop()
		resetTicker.Stop()
		sweepTicker.Stop()
		cleanupTicker.Stop()
		close(e.shutdownComplete)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushTicker.C:
			e.batches.flushDue(ctx, e.now())
		case <-resetTicker.C:
			e.counter.sweep(e.now())
		case <-sweepTicker.C:
			e.buckets.sweep(ctx, e.now())
		case <-cleanupTicker.C:
			e.buckets.cleanup(e.now())
		}
	}
}

// Wait blocks until Run has exited.
func (e *Engine) Wait() {
	<-e.shutdownComplete
}

// emit wraps the payload in an envelope and hands it to the broadcaster.
// Failed emits are dropped; observers simply miss that one message.
func (e *Engine) emit(ctx context.Context, action string, data any, message string) {
	env := domain.Envelope{
		ID:        uuid.NewString(),
		Action:    action,
		Timestamp: e.now(),
		Data:      data,
		Message:   message,
	}
	if err := e.broadcaster.Emit(ctx, action, env); err != nil {
		e.logger.Printf("broadcast failure (channel=%s): %v", action, err)
		recordBroadcastError(action)
		return
	}
	recordEmitted(action, env.Timestamp)
}

// emitFunc is the narrow emission contract handed to the aggregators.
type emitFunc func(ctx context.Context, action string, data any, message string)

func rawMessage(event domain.ActivityEvent) string {
	who := event.Username
	if who == "" {
		who = event.UserID
	}
	if event.Resource == "" {
		return who + " " + event.Action
	}
	return who + " " + event.Action + " " + event.Resource
}

// formatDuration renders a duration the way alert messages show it.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "under a second"
	}
	d = d.Round(time.Second)

	var parts []string
	if h := int(d.Hours()); h > 0 {
		parts = append(parts, plural(h, "hour"))
		d -= time.Duration(h) * time.Hour
	}
	if m := int(d.Minutes()); m > 0 {
		parts = append(parts, plural(m, "minute"))
		d -= time.Duration(m) * time.Minute
	}
	if s := int(d.Seconds()); s > 0 {
		parts = append(parts, plural(s, "second"))
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
