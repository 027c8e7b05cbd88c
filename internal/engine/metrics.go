package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ingestedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notification_service",
		Subsystem: "engine",
		Name:      "events_ingested_total",
		Help:      "Number of well-formed events fed into the aggregation paths.",
	}, []string{"action"})

	malformedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "notification_service",
		Subsystem: "engine",
		Name:      "malformed_events_total",
		Help:      "Number of events excluded from aggregation for missing user or action.",
	})

	emittedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notification_service",
		Subsystem: "engine",
		Name:      "notifications_emitted_total",
		Help:      "Number of envelopes delivered to the broadcaster per channel.",
	}, []string{"channel"})

	lastEmittedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "notification_service",
		Subsystem: "engine",
		Name:      "last_emitted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent emission per channel.",
	}, []string{"channel"})

	broadcastErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notification_service",
		Subsystem: "engine",
		Name:      "broadcast_errors_total",
		Help:      "Number of dropped notifications per channel.",
	}, []string{"channel"})

	persistenceErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "notification_service",
		Subsystem: "engine",
		Name:      "persistence_errors_total",
		Help:      "Number of activity-log failures tolerated by the engine.",
	})

	batchOpenedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "notification_service",
		Subsystem: "batch",
		Name:      "opened_total",
		Help:      "Number of batch accumulation cycles started.",
	})

	batchEmittedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "notification_service",
		Subsystem: "batch",
		Name:      "emitted_total",
		Help:      "Number of batches that reached the threshold and were emitted.",
	})

	batchDiscardedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "notification_service",
		Subsystem: "batch",
		Name:      "discarded_total",
		Help:      "Number of batches flushed below the threshold and dropped.",
	})

	bucketOpenedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "notification_service",
		Subsystem: "bucket",
		Name:      "opened_total",
		Help:      "Number of time buckets created.",
	})

	bucketEmittedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notification_service",
		Subsystem: "bucket",
		Name:      "emitted_total",
		Help:      "Number of time buckets emitted, by unit.",
	}, []string{"unit"})

	bucketExpiredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notification_service",
		Subsystem: "bucket",
		Name:      "expired_total",
		Help:      "Number of time buckets removed by the retention sweep, by unit.",
	}, []string{"unit"})

	alertEmittedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "notification_service",
		Subsystem: "counter",
		Name:      "alerts_emitted_total",
		Help:      "Number of high-activity alerts emitted.",
	})

	alertSuppressedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "notification_service",
		Subsystem: "counter",
		Name:      "alerts_suppressed_total",
		Help:      "Number of threshold crossings suppressed by the cooldown.",
	})
)

func init() {
	prometheus.MustRegister(
		ingestedCounter, malformedCounter, emittedCounter, lastEmittedGauge,
		broadcastErrorCounter, persistenceErrorCounter,
		batchOpenedCounter, batchEmittedCounter, batchDiscardedCounter,
		bucketOpenedCounter, bucketEmittedCounter, bucketExpiredCounter,
		alertEmittedCounter, alertSuppressedCounter,
	)
}

func recordIngested(action string) {
	ingestedCounter.WithLabelValues(action).Inc()
}

func recordMalformedEvent() {
	malformedCounter.Inc()
}

func recordEmitted(channel string, ts time.Time) {
	emittedCounter.WithLabelValues(channel).Inc()
	if !ts.IsZero() {
		lastEmittedGauge.WithLabelValues(channel).Set(float64(ts.Unix()))
	}
}

func recordBroadcastError(channel string) {
	broadcastErrorCounter.WithLabelValues(channel).Inc()
}

func recordPersistenceError() {
	persistenceErrorCounter.Inc()
}

func recordBatchOpened()    { batchOpenedCounter.Inc() }
func recordBatchEmitted()   { batchEmittedCounter.Inc() }
func recordBatchDiscarded() { batchDiscardedCounter.Inc() }

func recordBucketOpened() { bucketOpenedCounter.Inc() }

func recordBucketEmitted(unit string) {
	bucketEmittedCounter.WithLabelValues(unit).Inc()
}

func recordBucketExpired(unit string) {
	bucketExpiredCounter.WithLabelValues(unit).Inc()
}

func recordAlertEmitted()    { alertEmittedCounter.Inc() }
func recordAlertSuppressed() { alertSuppressedCounter.Inc() }
