// Package postgres provides the append-only activity log backing the engine.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/notification/internal/domain"
)

// ActivityLog persists every event into a single activity_log table indexed
// on (user_id, action) and (user_id, occurred_at).
type ActivityLog struct {
	pool *pgxpool.Pool
}

// NewActivityLog constructs an ActivityLog backed by the provided pool.
func NewActivityLog(pool *pgxpool.Pool) *ActivityLog {
	return &ActivityLog{pool: pool}
}

// Append stores one event. The caller treats failures as non-fatal.
func (l *ActivityLog) Append(ctx context.Context, event domain.ActivityEvent) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	var details []byte
	if len(event.Details) > 0 {
		details, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
	}

	_, err = conn.Exec(ctx,
		`INSERT INTO activity_log (user_id, username, user_role, tenant_id, action, resource, resource_id, details, occurred_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		event.UserID,
		event.Username,
		event.UserRole,
		nullIfEmpty(event.TenantID),
		event.Action,
		event.Resource,
		nullIfEmpty(event.ResourceID),
		details,
		event.Timestamp,
	)
	return err
}

// RecentByUser returns the user's most recent events, newest first. It backs
// the high-activity alert query.
func (l *ActivityLog) RecentByUser(ctx context.Context, userID string, limit int) ([]domain.ActivityEvent, error) {
	const query = `SELECT user_id, username, user_role, tenant_id, action, resource, resource_id, details, occurred_at
        FROM activity_log WHERE user_id=$1 ORDER BY occurred_at DESC LIMIT $2`

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.ActivityEvent, 0, limit)
	for rows.Next() {
		var event domain.ActivityEvent
		var tenantID, resourceID *string
		var details []byte
		if err := rows.Scan(&event.UserID, &event.Username, &event.UserRole, &tenantID, &event.Action, &event.Resource, &resourceID, &details, &event.Timestamp); err != nil {
			return nil, err
		}
		if tenantID != nil {
			event.TenantID = *tenantID
		}
		if resourceID != nil {
			event.ResourceID = *resourceID
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullIfEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
