package domain

import "time"

// RankedCount is one entry of a ranked summary list (highest count first).
type RankedCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// AggregatedSummary is the data payload of an aggregated_notification.
type AggregatedSummary struct {
	UserID            string        `json:"user_id"`
	Username          string        `json:"username"`
	UserRole          string        `json:"user_role"`
	TenantID          string        `json:"tenant_id,omitempty"`
	Action            string        `json:"action"`
	Resource          string        `json:"resource"`
	TotalOperations   int           `json:"total_operations"`
	Timeframe         time.Duration `json:"-"`
	TimeframeSeconds  float64       `json:"timeframe_seconds"`
	SummaryDimension  string        `json:"summary_dimension"`
	Summary           []RankedCount `json:"summary"`
	SampleResourceIDs []string      `json:"sample_resource_ids,omitempty"`
	FirstSeenAt       time.Time     `json:"first_seen_at"`
	LastSeenAt        time.Time     `json:"last_seen_at"`
}

// BucketSummary is the data payload of a time_bucket_hourly or
// time_bucket_daily notification. HourHistogram is populated for daily
// buckets only.
type BucketSummary struct {
	Action          string        `json:"action"`
	Unit            string        `json:"unit"`
	Period          string        `json:"period"`
	TotalOperations int           `json:"total_operations"`
	TopUsers        []RankedCount `json:"top_users"`
	TopResources    []RankedCount `json:"top_resources"`
	TopResourceIDs  []RankedCount `json:"top_resource_ids,omitempty"`
	Operations      []RankedCount `json:"operations,omitempty"`
	RatePerMinute   float64       `json:"rate_per_minute"`
	HourHistogram   []int         `json:"hour_histogram,omitempty"`
}

// OperationCount groups recent events by (action, resource) for a
// high_activity_alert.
type OperationCount struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Count    int    `json:"count"`
}

// HighActivitySummary is the data payload of a high_activity_alert.
type HighActivitySummary struct {
	UserID          string           `json:"user_id"`
	Username        string           `json:"username"`
	TotalOperations int              `json:"total_operations"`
	Operations      []OperationCount `json:"operations"`
	Timeframe       string           `json:"timeframe"`
}
