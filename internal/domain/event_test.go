package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidRequiresUserAndAction(t *testing.T) {
	valid := ActivityEvent{Action: "upload", UserID: "u-1"}
	require.True(t, valid.Valid())

	require.False(t, ActivityEvent{Action: "upload"}.Valid())
	require.False(t, ActivityEvent{UserID: "u-1"}.Valid())
}

func TestIsDerivedAction(t *testing.T) {
	for _, action := range []string{
		ActionAdminNotification,
		ActionAggregated,
		ActionTimeBucketHourly,
		ActionTimeBucketDaily,
		ActionHighActivity,
	} {
		require.True(t, IsDerivedAction(action), action)
	}
	require.False(t, IsDerivedAction("upload"))
}

func TestEnvelopeWireShape(t *testing.T) {
	env := Envelope{
		ID:        "n-1",
		Action:    ActionAggregated,
		Timestamp: time.Date(2026, time.March, 10, 9, 15, 0, 0, time.UTC),
		Data:      map[string]int{"total_operations": 3},
		Message:   "alice performed 3 upload operations",
	}

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "aggregated_notification", decoded["action"])
	require.Contains(t, decoded, "timestamp")
	require.Contains(t, decoded, "data")
	require.Contains(t, decoded, "message")
}
