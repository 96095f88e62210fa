package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const upsertWindowCounter = `
INSERT INTO rate_limit_windows (user_id, operation, window_start, request_count)
VALUES ($1, $2, $3, 1)
ON CONFLICT (user_id, operation, window_start)
DO UPDATE SET request_count = rate_limit_windows.request_count + 1,
              updated_at = now()
RETURNING request_count
`

// UpsertWindowCounter records one admitted request: it inserts a counter
// row for the given window start, or increments the existing one on a
// same-instant collision. Runs inside Store.AdmitWindowRequest's locked
// transaction; it carries no limit condition of its own.
func (q *Queries) UpsertWindowCounter(ctx context.Context, userID uuid.UUID, operation string, windowStart time.Time) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, upsertWindowCounter, userID, operation, windowStart).Scan(&count)
	return count, err
}

const sumWindowCounters = `
SELECT COALESCE(sum(request_count), 0)
FROM rate_limit_windows
WHERE user_id = $1 AND operation = $2 AND window_start >= $3
`

// SumWindowCounters totals the admitted requests for a user and operation
// across every counter row inside the current window.
func (q *Queries) SumWindowCounters(ctx context.Context, userID uuid.UUID, operation string, since time.Time) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx, sumWindowCounters, userID, operation, since).Scan(&total)
	return total, err
}

const oldestWindowStart = `
SELECT min(window_start)
FROM rate_limit_windows
WHERE user_id = $1 AND operation = $2 AND window_start >= $3
`

// OldestWindowStart returns the start of the oldest counted row inside the
// current window, which determines when capacity next frees up. The zero
// time is returned when no rows are in the window.
func (q *Queries) OldestWindowStart(ctx context.Context, userID uuid.UUID, operation string, since time.Time) (time.Time, error) {
	var oldest sql.NullTime
	err := q.db.QueryRowContext(ctx, oldestWindowStart, userID, operation, since).Scan(&oldest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	if !oldest.Valid {
		return time.Time{}, nil
	}
	return oldest.Time, nil
}

const deleteExpiredWindowCounters = `
DELETE FROM rate_limit_windows
WHERE user_id = $1 AND operation = $2 AND window_start < $3
`

// DeleteExpiredWindowCounters drops counter rows too old to ever be
// counted again. Called lazily on each check to bound table growth.
func (q *Queries) DeleteExpiredWindowCounters(ctx context.Context, userID uuid.UUID, operation string, before time.Time) error {
	_, err := q.db.ExecContext(ctx, deleteExpiredWindowCounters, userID, operation, before)
	return err
}
