package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/notification/internal/domain"
)

const (
	// distinctResourceCap bounds the per-entry resource-id set.
	distinctResourceCap = 50
	// sampleResourceLimit bounds the sample list carried in the payload.
	sampleResourceLimit = 10
)

type batchKey struct {
	userID   string
	action   string
	resource string
	tenantID string
}

// batchEntry accumulates near-duplicate events for one composite key. The
// two deadlines replace the per-key timers of a naive design: a single poll
// loop flushes whichever passes first.
type batchEntry struct {
	count       int
	firstSeenAt time.Time
	lastSeenAt  time.Time
	username    string
	userRole    string

	formats     map[string]int
	fileTypes   map[string]int
	resourceIDs map[string]int
	distinct    []string // insertion-ordered distinct resource ids, bounded

	debounceAt time.Time // slides on every event
	hardAt     time.Time // fixed at creation, bounds latency
}

// batchAggregator owns the batch table. Flush removes an entry under the
// table lock before emitting, so a concurrent record for the same key always
// starts a fresh accumulation cycle.
type batchAggregator struct {
	mu      sync.Mutex
	entries map[batchKey]*batchEntry

	threshold int
	window    time.Duration
	debounce  time.Duration
	emit      emitFunc
}

func newBatchAggregator(cfg Config, emit emitFunc) *batchAggregator {
	return &batchAggregator{
		entries:   make(map[batchKey]*batchEntry),
		threshold: cfg.BatchThreshold,
		window:    cfg.BatchWindow,
		debounce:  cfg.Debounce,
		emit:      emit,
	}
}

func (b *batchAggregator) record(event domain.ActivityEvent, now time.Time) {
	key := batchKey{event.UserID, event.Action, event.Resource, event.TenantID}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		entry = &batchEntry{
			firstSeenAt: now,
			username:    event.Username,
			userRole:    event.UserRole,
			formats:     make(map[string]int),
			fileTypes:   make(map[string]int),
			resourceIDs: make(map[string]int),
			hardAt:      now.Add(b.window),
		}
		b.entries[key] = entry
		recordBatchOpened()
	}

	entry.count++
	entry.lastSeenAt = now
	entry.debounceAt = now.Add(b.debounce)

	if format := event.Detail("format"); format != "" {
		entry.formats[format]++
	}
	if fileType := event.Detail("fileType"); fileType != "" {
		entry.fileTypes[fileType]++
	}
	if event.ResourceID != "" {
		if _, seen := entry.resourceIDs[event.ResourceID]; !seen && len(entry.distinct) < distinctResourceCap {
			entry.distinct = append(entry.distinct, event.ResourceID)
		}
		entry.resourceIDs[event.ResourceID]++
	}
}

// flushDue removes and flushes every entry whose debounce or hard-window
// deadline has passed. Returns the number of entries flushed (emitted or
// discarded).
func (b *batchAggregator) flushDue(ctx context.Context, now time.Time) int {
	type flushed struct {
		key   batchKey
		entry *batchEntry
	}

	b.mu.Lock()
	var due []flushed
	for key, entry := range b.entries {
		if !now.Before(entry.debounceAt) || !now.Before(entry.hardAt) {
			due = append(due, flushed{key, entry})
			delete(b.entries, key)
		}
	}
	b.mu.Unlock()

	for _, f := range due {
		b.flush(ctx, f.key, f.entry)
	}
	return len(due)
}

func (b *batchAggregator) flush(ctx context.Context, key batchKey, entry *batchEntry) {
	if entry.count < b.threshold {
		recordBatchDiscarded()
		return
	}

	dimension, counts := entry.dominantBreakdown(key)
	summary := rankCounts(counts)

	sample := entry.distinct
	if len(sample) > sampleResourceLimit {
		sample = sample[:sampleResourceLimit]
	}

	timeframe := entry.lastSeenAt.Sub(entry.firstSeenAt)
	data := domain.AggregatedSummary{
		UserID:            key.userID,
		Username:          entry.username,
		UserRole:          entry.userRole,
		TenantID:          key.tenantID,
		Action:            key.action,
		Resource:          key.resource,
		TotalOperations:   entry.count,
		Timeframe:         timeframe,
		TimeframeSeconds:  timeframe.Seconds(),
		SummaryDimension:  dimension,
		Summary:           summary,
		SampleResourceIDs: sample,
		FirstSeenAt:       entry.firstSeenAt,
		LastSeenAt:        entry.lastSeenAt,
	}

	message := fmt.Sprintf("%s performed %d %s operations on %s in %s",
		entry.username, entry.count, key.action, key.resource, formatDuration(timeframe))
	b.emit(ctx, domain.ActionAggregated, data, message)
	recordBatchEmitted()
}

// dominantBreakdown picks the richest dimension available: format, then
// fileType, then a plain per-key count.
func (e *batchEntry) dominantBreakdown(key batchKey) (string, map[string]int) {
	if len(e.formats) > 0 {
		return "format", e.formats
	}
	if len(e.fileTypes) > 0 {
		return "fileType", e.fileTypes
	}
	return "count", map[string]int{key.action: e.count}
}

// activeBatches reports the number of live entries. Test hook.
func (b *batchAggregator) activeBatches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// rankCounts flattens a count map into a descending ranked list, ties broken
// by key for stable output.
func rankCounts(counts map[string]int) []domain.RankedCount {
	ranked := make([]domain.RankedCount, 0, len(counts))
	for key, count := range counts {
		ranked = append(ranked, domain.RankedCount{Key: key, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Key < ranked[j].Key
	})
	return ranked
}
