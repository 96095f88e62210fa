package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// Account is the accounts table row. The subscription tier, its optional
// expiry and the monthly consumption counters live on the same record so a
// single read yields everything an allowance decision needs.
type Account struct {
	ID                    uuid.UUID
	Email                 string
	SubscriptionTier      string
	SubscriptionExpiresAt sql.NullTime
	OptimizationsUsed     int64
	ATSReportsUsed        int64
	ActiveJobApplications int64
	CreditsResetAt        sql.NullTime
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// WindowCounter is one rate_limit_windows row: the admitted-request count
// for a (user, operation, window start) key.
type WindowCounter struct {
	UserID       uuid.UUID
	Operation    string
	WindowStart  time.Time
	RequestCount int64
	UpdatedAt    time.Time
}

// UsageEvent is one usage_events row.
type UsageEvent struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Feature    string
	OccurredAt time.Time
	Metadata   pqtype.NullRawMessage
}
