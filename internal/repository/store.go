package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/resumeflow/resumeflow/internal/domain"
)

// Store composes the single-statement queries with the multi-statement
// units of work that need a transaction.
type Store struct {
	*Queries
	db *sql.DB
}

// NewStore creates a Store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{
		Queries: New(db),
		db:      db,
	}
}

// TrackFeatureUsageParams describes one consumption of a monthly-tracked
// feature.
type TrackFeatureUsageParams struct {
	UserID     uuid.UUID
	Feature    domain.Feature
	Limit      int64
	OccurredAt time.Time
	Metadata   pqtype.NullRawMessage
}

// TrackFeatureUsage appends a usage event and increments the matching
// monthly counter in one transaction. The increment is conditional on the
// counter still being below the limit; when two callers race past the read
// phase, the condition admits exactly one of them. Returns false, without
// writing the event, when the allowance is already exhausted.
func (s *Store) TrackFeatureUsage(ctx context.Context, arg TrackFeatureUsageParams) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	q := s.Queries.WithTx(tx)

	var ok bool
	switch arg.Feature {
	case domain.FeatureOptimization:
		ok, err = q.IncrementOptimizationsUsed(ctx, arg.UserID, arg.Limit)
	case domain.FeatureATSReport:
		ok, err = q.IncrementATSReportsUsed(ctx, arg.UserID, arg.Limit)
	default:
		return false, fmt.Errorf("unknown tracked feature %q", arg.Feature)
	}
	if err != nil {
		return false, err
	}
	if !ok {
		// Allowance exhausted: no event is written for a denied attempt.
		return false, nil
	}

	err = q.InsertUsageEvent(ctx, InsertUsageEventParams{
		ID:         uuid.New(),
		UserID:     arg.UserID,
		Feature:    string(arg.Feature),
		OccurredAt: arg.OccurredAt,
		Metadata:   arg.Metadata,
	})
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// AdmitWindowRequestParams describes one window-limited admission attempt.
// Since is the trailing edge of the window and Limit the maximum admitted
// requests inside it.
type AdmitWindowRequestParams struct {
	UserID      uuid.UUID
	Operation   string
	WindowStart time.Time
	Since       time.Time
	Limit       int64
}

// WindowAdmission is the outcome of one admission attempt. Count and
// OldestStart reflect the window as it stood before this request.
type WindowAdmission struct {
	Admitted    bool
	Count       int64
	OldestStart time.Time
}

const lockWindowCounters = `SELECT pg_advisory_xact_lock(hashtext($1::text), hashtext($2))`

// AdmitWindowRequest performs the check-and-increment for a window-limited
// operation as one unit. A transaction-scoped advisory lock on the
// (user, operation) pair serializes concurrent attempts, so the limit
// comparison and the counter increment cannot interleave: requests racing
// for the last slot resolve to exactly one admission.
func (s *Store) AdmitWindowRequest(ctx context.Context, arg AdmitWindowRequestParams) (WindowAdmission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return WindowAdmission{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, lockWindowCounters, arg.UserID, arg.Operation); err != nil {
		return WindowAdmission{}, err
	}

	q := s.Queries.WithTx(tx)

	count, err := q.SumWindowCounters(ctx, arg.UserID, arg.Operation, arg.Since)
	if err != nil {
		return WindowAdmission{}, err
	}
	oldest, err := q.OldestWindowStart(ctx, arg.UserID, arg.Operation, arg.Since)
	if err != nil {
		return WindowAdmission{}, err
	}

	out := WindowAdmission{Count: count, OldestStart: oldest}
	if count >= arg.Limit {
		return out, tx.Commit()
	}

	if _, err := q.UpsertWindowCounter(ctx, arg.UserID, arg.Operation, arg.WindowStart); err != nil {
		return WindowAdmission{}, err
	}
	out.Admitted = true
	return out, tx.Commit()
}

// SyncActiveJobApplications recomputes the derived active-applications
// counter from the job_applications table and stores it on the account
// row. Recomputing rather than incrementing keeps the figure honest after
// deletions and status changes.
func (s *Store) SyncActiveJobApplications(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.Queries.CountActiveJobApplications(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.Queries.SetActiveJobApplications(ctx, userID, count); err != nil {
		return 0, err
	}
	return count, nil
}
