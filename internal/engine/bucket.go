package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"example.com/notification/internal/domain"
)

// bucketSampleCap bounds the raw-event sample kept per hourly bucket.
const bucketSampleCap = 20

type bucketUnit string

const (
	unitHourly bucketUnit = "hourly"
	unitDaily  bucketUnit = "daily"
)

type bucketKey struct {
	period time.Time
	action string
}

// bucket is a fixed-period rollup of events sharing an action. Hourly
// buckets keep a raw sample and a resource-id histogram; daily buckets keep
// an hour-of-day histogram.
type bucket struct {
	count       int
	users       map[string]int
	resources   map[string]int
	operations  map[string]int
	samples     []domain.ActivityEvent
	resourceIDs map[string]int
	hours       [24]int
	createdAt   time.Time
	lastUpdated time.Time
}

// bucketAggregator owns the hourly and daily tables. Emission deletes the
// bucket under the table lock before broadcasting, so nothing carries over.
type bucketAggregator struct {
	mu     sync.Mutex
	hourly map[bucketKey]*bucket
	daily  map[bucketKey]*bucket

	hourlyThreshold int
	dailyThreshold  int
	timeThreshold   time.Duration
	hourlyRetention time.Duration
	dailyRetention  time.Duration
	emit            emitFunc
}

func newBucketAggregator(cfg Config, emit emitFunc) *bucketAggregator {
	return &bucketAggregator{
		hourly:          make(map[bucketKey]*bucket),
		daily:           make(map[bucketKey]*bucket),
		hourlyThreshold: cfg.HourlyThreshold,
		dailyThreshold:  cfg.DailyThreshold,
		timeThreshold:   cfg.TimeThreshold,
		hourlyRetention: cfg.HourlyRetention,
		dailyRetention:  cfg.DailyRetention,
		emit:            emit,
	}
}

func (a *bucketAggregator) record(ctx context.Context, event domain.ActivityEvent, now time.Time) {
	// An emitted summary must never be re-bucketed.
	if domain.IsDerivedAction(event.Action) {
		return
	}

	ts := event.Timestamp.UTC()
	hourKey := bucketKey{ts.Truncate(time.Hour), event.Action}
	dayKey := bucketKey{truncateDay(ts), event.Action}

	a.mu.Lock()
	hourBucket := findOrCreate(a.hourly, hourKey, now)
	updateBucket(hourBucket, event, now)
	if event.ResourceID != "" {
		hourBucket.resourceIDs[event.ResourceID]++
	}
	if len(hourBucket.samples) < bucketSampleCap {
		hourBucket.samples = append(hourBucket.samples, event)
	}

	dayBucket := findOrCreate(a.daily, dayKey, now)
	updateBucket(dayBucket, event, now)
	dayBucket.hours[ts.Hour()]++

	var emitHour, emitDay *bucket
	if hourBucket.count >= a.hourlyThreshold {
		delete(a.hourly, hourKey)
		emitHour = hourBucket
	}
	if dayBucket.count >= a.dailyThreshold {
		delete(a.daily, dayKey)
		emitDay = dayBucket
	}
	a.mu.Unlock()

	if emitHour != nil {
		a.flush(ctx, unitHourly, hourKey, emitHour)
	}
	if emitDay != nil {
		a.flush(ctx, unitDaily, dayKey, emitDay)
	}
}

func findOrCreate(table map[bucketKey]*bucket, key bucketKey, now time.Time) *bucket {
	b, ok := table[key]
	if !ok {
		b = &bucket{
			users:       make(map[string]int),
			resources:   make(map[string]int),
			operations:  make(map[string]int),
			resourceIDs: make(map[string]int),
			createdAt:   now,
		}
		table[key] = b
		recordBucketOpened()
	}
	return b
}

func updateBucket(b *bucket, event domain.ActivityEvent, now time.Time) {
	b.count++
	b.lastUpdated = now
	b.users[event.UserID]++
	if event.Resource != "" {
		b.resources[event.Resource]++
	}
	b.operations[operationType(event)]++
}

// operationType labels an event for the breakdown carried in bucket payloads.
func operationType(event domain.ActivityEvent) string {
	if format := event.Detail("format"); format != "" {
		return format
	}
	if fileType := event.Detail("fileType"); fileType != "" {
		return fileType
	}
	return "other"
}

// sweep flushes hourly buckets older than timeThreshold even when under the
// count threshold. This bounds notification latency during quiet periods.
func (a *bucketAggregator) sweep(ctx context.Context, now time.Time) {
	type aged struct {
		key    bucketKey
		bucket *bucket
	}

	a.mu.Lock()
	var due []aged
	for key, b := range a.hourly {
		if now.Sub(b.createdAt) > a.timeThreshold {
			due = append(due, aged{key, b})
			delete(a.hourly, key)
		}
	}
	a.mu.Unlock()

	for _, entry := range due {
		a.flush(ctx, unitHourly, entry.key, entry.bucket)
	}
}

// cleanup deletes buckets past their retention window that never reached an
// emission trigger, bounding memory when traffic stops.
func (a *bucketAggregator) cleanup(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, b := range a.hourly {
		if now.Sub(b.createdAt) > a.hourlyRetention {
			delete(a.hourly, key)
			recordBucketExpired(string(unitHourly))
		}
	}
	for key, b := range a.daily {
		if now.Sub(b.createdAt) > a.dailyRetention {
			delete(a.daily, key)
			recordBucketExpired(string(unitDaily))
		}
	}
}

func (a *bucketAggregator) flush(ctx context.Context, unit bucketUnit, key bucketKey, b *bucket) {
	elapsed := b.lastUpdated.Sub(b.createdAt)
	minutes := elapsed.Minutes()
	if minutes < 1 {
		minutes = 1
	}

	data := domain.BucketSummary{
		Action:          key.action,
		Unit:            string(unit),
		Period:          periodLabel(unit, key.period),
		TotalOperations: b.count,
		TopUsers:        rankCounts(b.users),
		TopResources:    rankCounts(b.resources),
		Operations:      rankCounts(b.operations),
		RatePerMinute:   float64(b.count) / minutes,
	}

	action := domain.ActionTimeBucketHourly
	if unit == unitDaily {
		action = domain.ActionTimeBucketDaily
		data.HourHistogram = b.hours[:]
	} else {
		data.TopResourceIDs = rankCounts(b.resourceIDs)
	}

	message := fmt.Sprintf("%d %s operations by %d users in the %s starting %s",
		b.count, key.action, len(b.users), periodNoun(unit), data.Period)
	a.emit(ctx, action, data, message)
	recordBucketEmitted(string(unit))
}

func periodLabel(unit bucketUnit, period time.Time) string {
	if unit == unitDaily {
		return period.Format("2006-01-02")
	}
	return period.Format("2006-01-02 15:00")
}

func periodNoun(unit bucketUnit) string {
	if unit == unitDaily {
		return "day"
	}
	return "hour"
}

func truncateDay(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

// activeBuckets reports the live bucket counts per table. Test hook.
func (a *bucketAggregator) activeBuckets() (hourly, daily int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.hourly), len(a.daily)
}
