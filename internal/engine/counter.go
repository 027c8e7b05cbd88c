package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"example.com/notification/internal/domain"
)

type userCounter struct {
	count       int
	lastAlertAt time.Time
}

// activityCounter tracks a rolling per-user event count and raises
// high_activity_alert when a user crosses the threshold.
type activityCounter struct {
	mu    sync.Mutex
	users map[string]*userCounter

	threshold int
	cooldown  time.Duration
	sink      Sink
	emit      emitFunc
	logger    *log.Logger
}

func newActivityCounter(cfg Config, sink Sink, emit emitFunc, logger *log.Logger) *activityCounter {
	return &activityCounter{
		users:     make(map[string]*userCounter),
		threshold: cfg.ActivityThreshold,
		cooldown:  cfg.Cooldown,
		sink:      sink,
		emit:      emit,
		logger:    logger,
	}
}

func (c *activityCounter) record(ctx context.Context, event domain.ActivityEvent, now time.Time) {
	c.mu.Lock()
	u, ok := c.users[event.UserID]
	if !ok {
		u = &userCounter{}
		c.users[event.UserID] = u
	}
	u.count++
	if u.count < c.threshold {
		c.mu.Unlock()
		return
	}

	// Reset before any I/O so a sink failure cannot re-trigger on every
	// subsequent event.
	u.count = 0
	suppressed := c.cooldown > 0 && !u.lastAlertAt.IsZero() && now.Sub(u.lastAlertAt) < c.cooldown
	if !suppressed {
		u.lastAlertAt = now
	}
	c.mu.Unlock()

	if suppressed {
		recordAlertSuppressed()
		return
	}
	c.alert(ctx, event)
}

func (c *activityCounter) alert(ctx context.Context, event domain.ActivityEvent) {
	recent, err := c.sink.RecentByUser(ctx, event.UserID, c.threshold)
	if err != nil {
		c.logger.Printf("alert query failed (user=%s): %v", event.UserID, err)
		recordPersistenceError()
		return
	}
	if len(recent) == 0 {
		return
	}

	// RecentByUser returns newest first.
	elapsed := recent[0].Timestamp.Sub(recent[len(recent)-1].Timestamp)

	type opKey struct{ action, resource string }
	grouped := make(map[opKey]int)
	for _, ev := range recent {
		grouped[opKey{ev.Action, ev.Resource}]++
	}
	operations := make([]domain.OperationCount, 0, len(grouped))
	for key, count := range grouped {
		operations = append(operations, domain.OperationCount{Action: key.action, Resource: key.resource, Count: count})
	}
	sort.Slice(operations, func(i, j int) bool {
		if operations[i].Count != operations[j].Count {
			return operations[i].Count > operations[j].Count
		}
		if operations[i].Action != operations[j].Action {
			return operations[i].Action < operations[j].Action
		}
		return operations[i].Resource < operations[j].Resource
	})

	summary := domain.HighActivitySummary{
		UserID:          event.UserID,
		Username:        event.Username,
		TotalOperations: len(recent),
		Operations:      operations,
		Timeframe:       formatDuration(elapsed),
	}
	message := fmt.Sprintf("%s performed %d operations in %s", event.Username, len(recent), summary.Timeframe)
	c.emit(ctx, domain.ActionHighActivity, summary, message)
	recordAlertEmitted()
}

// sweep unconditionally clears every user's count. Entries past their
// cooldown are dropped entirely to bound the table.
func (c *activityCounter) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for userID, u := range c.users {
		if u.lastAlertAt.IsZero() || now.Sub(u.lastAlertAt) >= c.cooldown {
			delete(c.users, userID)
			continue
		}
		u.count = 0
	}
}

// countFor reports the current count for a user. Test hook.
func (c *activityCounter) countFor(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.users[userID]; ok {
		return u.count
	}
	return 0
}
