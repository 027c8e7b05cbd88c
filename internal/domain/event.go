// Package domain defines the activity events consumed by the notification
// engine and the envelopes it broadcasts.
package domain

import "time"

// ActivityEvent is the atomic record of one user action, pushed by upstream
// handlers. Events are immutable once received.
type ActivityEvent struct {
	Action     string            `json:"action"`
	Resource   string            `json:"resource"`
	ResourceID string            `json:"resource_id,omitempty"`
	UserID     string            `json:"user_id"`
	Username   string            `json:"username"`
	UserRole   string            `json:"user_role"`
	TenantID   string            `json:"tenant_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Valid reports whether the event carries the fields every aggregation path
// requires. Invalid events are still persisted and dispatched raw.
func (e ActivityEvent) Valid() bool {
	return e.UserID != "" && e.Action != ""
}

// Detail returns a value from the open details map, or "" when absent.
func (e ActivityEvent) Detail(key string) string {
	if e.Details == nil {
		return ""
	}
	return e.Details[key]
}

// Notification actions carried in the envelope. Raw passthrough and derived
// summaries are delivered on distinct channels named after the action.
const (
	ActionAdminNotification = "admin_notification"
	ActionAggregated        = "aggregated_notification"
	ActionTimeBucketHourly  = "time_bucket_hourly"
	ActionTimeBucketDaily   = "time_bucket_daily"
	ActionHighActivity      = "high_activity_alert"
)

// IsDerivedAction reports whether an action names one of the engine's own
// notification types. Derived actions are excluded from time bucketing so an
// emitted summary can never be re-bucketed.
func IsDerivedAction(action string) bool {
	switch action {
	case ActionAdminNotification, ActionAggregated, ActionTimeBucketHourly, ActionTimeBucketDaily, ActionHighActivity:
		return true
	}
	return false
}

// Envelope is the wire shape delivered to the broadcaster for every
// notification type.
type Envelope struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Message   string    `json:"message"`
}
