package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const getAccountByID = `
SELECT id, email, subscription_tier, subscription_expires_at,
       optimizations_used, ats_reports_used, active_job_applications,
       credits_reset_at, created_at, updated_at
FROM accounts
WHERE id = $1
`

// GetAccountByID reads one account row.
func (q *Queries) GetAccountByID(ctx context.Context, id uuid.UUID) (Account, error) {
	row := q.db.QueryRowContext(ctx, getAccountByID, id)
	var a Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.SubscriptionTier,
		&a.SubscriptionExpiresAt,
		&a.OptimizationsUsed,
		&a.ATSReportsUsed,
		&a.ActiveJobApplications,
		&a.CreditsResetAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

const downgradeSubscription = `
UPDATE accounts
SET subscription_tier = $2,
    subscription_expires_at = NULL,
    updated_at = now()
WHERE id = $1
`

// DowngradeSubscription sets an account's tier and clears its expiry. Used
// by the tier resolver's self-healing correction of expired paid tiers.
func (q *Queries) DowngradeSubscription(ctx context.Context, id uuid.UUID, tier string) error {
	_, err := q.db.ExecContext(ctx, downgradeSubscription, id, tier)
	return err
}

const incrementOptimizationsUsed = `
UPDATE accounts
SET optimizations_used = optimizations_used + 1,
    updated_at = now()
WHERE id = $1 AND optimizations_used < $2
`

const incrementATSReportsUsed = `
UPDATE accounts
SET ats_reports_used = ats_reports_used + 1,
    updated_at = now()
WHERE id = $1 AND ats_reports_used < $2
`

// IncrementOptimizationsUsed increments the optimizations counter only if
// it is still below the limit. The conditional update is what makes two
// concurrent calls racing at the boundary resolve to exactly one success.
func (q *Queries) IncrementOptimizationsUsed(ctx context.Context, id uuid.UUID, limit int64) (bool, error) {
	res, err := q.db.ExecContext(ctx, incrementOptimizationsUsed, id, limit)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IncrementATSReportsUsed increments the ATS reports counter only if it is
// still below the limit.
func (q *Queries) IncrementATSReportsUsed(ctx context.Context, id uuid.UUID, limit int64) (bool, error) {
	res, err := q.db.ExecContext(ctx, incrementATSReportsUsed, id, limit)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const resetMonthlyAllowance = `
UPDATE accounts
SET optimizations_used = 0,
    ats_reports_used = 0,
    credits_reset_at = $2,
    updated_at = now()
WHERE id = $1
`

// ResetMonthlyAllowance zeroes the monthly counters and stamps the reset
// time. Invoked by the administrative reset operation; the billing-cycle
// reset lives in an external process that issues the same statement.
func (q *Queries) ResetMonthlyAllowance(ctx context.Context, id uuid.UUID, resetAt time.Time) error {
	_, err := q.db.ExecContext(ctx, resetMonthlyAllowance, id, resetAt)
	return err
}

const countActiveJobApplications = `
SELECT count(*)
FROM job_applications
WHERE user_id = $1 AND status NOT IN ('rejected', 'withdrawn', 'closed')
`

// CountActiveJobApplications counts the user's non-terminal job
// applications. This is the authoritative figure the derived counter on
// the account row is resynchronized from.
func (q *Queries) CountActiveJobApplications(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countActiveJobApplications, userID).Scan(&n)
	return n, err
}

const setActiveJobApplications = `
UPDATE accounts
SET active_job_applications = $2,
    updated_at = now()
WHERE id = $1
`

// SetActiveJobApplications overwrites the derived active-applications
// counter on the account row.
func (q *Queries) SetActiveJobApplications(ctx context.Context, id uuid.UUID, count int64) error {
	_, err := q.db.ExecContext(ctx, setActiveJobApplications, id, count)
	return err
}
