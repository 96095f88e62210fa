package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const insertUsageEvent = `
INSERT INTO usage_events (id, user_id, feature, occurred_at, metadata)
VALUES ($1, $2, $3, $4, $5)
`

// InsertUsageEventParams holds the fields of one usage event. Metadata is
// an optional JSON payload for analytics.
type InsertUsageEventParams struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Feature    string
	OccurredAt time.Time
	Metadata   pqtype.NullRawMessage
}

// InsertUsageEvent appends one event to the usage ledger. Events are
// append-only: nothing in this subsystem updates or deletes them.
func (q *Queries) InsertUsageEvent(ctx context.Context, arg InsertUsageEventParams) error {
	_, err := q.db.ExecContext(ctx, insertUsageEvent,
		arg.ID, arg.UserID, arg.Feature, arg.OccurredAt, arg.Metadata)
	return err
}

const listUsageEvents = `
SELECT id, user_id, feature, occurred_at, metadata
FROM usage_events
WHERE user_id = $1
ORDER BY occurred_at DESC
LIMIT $2
`

// ListUsageEvents returns a user's most recent usage events, newest first.
func (q *Queries) ListUsageEvents(ctx context.Context, userID uuid.UUID, limit int32) ([]UsageEvent, error) {
	rows, err := q.db.QueryContext(ctx, listUsageEvents, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []UsageEvent
	for rows.Next() {
		var e UsageEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Feature, &e.OccurredAt, &e.Metadata); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
