// Package service contains the business logic layer.
//
// This file implements monthly allowance enforcement for premium features
// (resume optimizations and ATS reports) and the usage ledger writes that
// back it. Allowance checks are money-adjacent, so storage failures here
// deny rather than fail open — the opposite of the sliding-window limiter.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/resumeflow/resumeflow/internal/domain"
	"github.com/resumeflow/resumeflow/internal/metrics"
	"github.com/resumeflow/resumeflow/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// AllowanceService enforces monthly feature allowances.
type AllowanceService interface {
	// CheckAndTrack consumes one unit of the feature behind the given
	// operation kind. On success it appends a usage event and increments
	// the monthly counter in the same unit of work. Denials return a
	// *domain.AllowanceError; storage failures return an internal error
	// and never admit the operation.
	CheckAndTrack(ctx context.Context, userID uuid.UUID, kind domain.OperationKind) (domain.Decision, error)

	// Usage returns the current monthly consumption snapshot for a user.
	Usage(ctx context.Context, userID uuid.UUID, tier domain.SubscriptionTier) (*domain.AllowanceUsage, error)

	// Reset zeroes the monthly counters and stamps the reset time. This is
	// the administrative reset; the billing-cycle reset is driven
	// externally.
	Reset(ctx context.Context, userID uuid.UUID) error

	// SyncActiveApplications recomputes the derived active-applications
	// counter from the user's non-terminal job applications.
	SyncActiveApplications(ctx context.Context, userID uuid.UUID) (int64, error)
}

// AllowanceStore is the persistence the allowance service needs.
type AllowanceStore interface {
	GetAccountByID(ctx context.Context, id uuid.UUID) (repository.Account, error)
	TrackFeatureUsage(ctx context.Context, arg repository.TrackFeatureUsageParams) (bool, error)
	ResetMonthlyAllowance(ctx context.Context, id uuid.UUID, resetAt time.Time) error
	SyncActiveJobApplications(ctx context.Context, userID uuid.UUID) (int64, error)
}

// =============================================================================
// Implementation
// =============================================================================

type allowanceService struct {
	store  AllowanceStore
	tiers  TierResolver
	logger *slog.Logger
}

// NewAllowanceService creates a new AllowanceService.
func NewAllowanceService(store AllowanceStore, tiers TierResolver, logger *slog.Logger) AllowanceService {
	return &allowanceService{
		store:  store,
		tiers:  tiers,
		logger: logger,
	}
}

// CheckAndTrack implements AllowanceService.
func (s *allowanceService) CheckAndTrack(ctx context.Context, userID uuid.UUID, kind domain.OperationKind) (domain.Decision, error) {
	const op = "allowance.check_and_track"

	feature, ok := domain.FeatureForOperation(kind)
	if !ok {
		return domain.Decision{}, domain.Errorf(domain.EINTERNAL, op, "operation %s is not monthly-tracked", kind)
	}

	tier, _, err := s.tiers.Resolve(ctx, &userID)
	if err != nil {
		return domain.Decision{}, err
	}

	account, err := s.store.GetAccountByID(ctx, userID)
	if err != nil {
		metrics.StoreFailures.WithLabelValues("allowance_read").Inc()
		return domain.Decision{}, domain.Internal(err, op, "failed to read monthly allowance")
	}

	limit := domain.GetTierAllowance(tier).FeatureLimit(feature)
	used := featureUsed(account, feature)
	resetAt := endOfMonth(time.Now())

	// Denials still carry the full metadata contract on the decision so
	// the HTTP glue can emit limit/remaining/reset headers on 402s.
	denied := domain.Decision{
		Kind:      kind,
		Limit:     limit,
		Remaining: 0,
		ResetAt:   resetAt,
	}

	if used >= limit {
		s.logger.Info("monthly allowance exhausted",
			"user_id", userID,
			"feature", feature,
			"tier", tier,
			"used", used,
			"limit", limit,
		)
		return denied, &domain.AllowanceError{
			Op:      op,
			Feature: feature,
			Used:    used,
			Limit:   limit,
			ResetAt: resetAt,
		}
	}

	allowed, err := s.store.TrackFeatureUsage(ctx, repository.TrackFeatureUsageParams{
		UserID:     userID,
		Feature:    feature,
		Limit:      limit,
		OccurredAt: time.Now(),
	})
	if err != nil {
		metrics.StoreFailures.WithLabelValues("allowance_write").Inc()
		return domain.Decision{}, domain.Internal(err, op, "failed to record feature usage")
	}
	if !allowed {
		// Lost a race to the last credit: the conditional increment saw
		// the counter already at the limit.
		return denied, &domain.AllowanceError{
			Op:      op,
			Feature: feature,
			Used:    limit,
			Limit:   limit,
			ResetAt: resetAt,
		}
	}

	return domain.Decision{
		Allowed:   true,
		Kind:      kind,
		Limit:     limit,
		Remaining: maxInt64(limit-(used+1), 0),
		ResetAt:   resetAt,
	}, nil
}

// Usage implements AllowanceService.
func (s *allowanceService) Usage(ctx context.Context, userID uuid.UUID, tier domain.SubscriptionTier) (*domain.AllowanceUsage, error) {
	const op = "allowance.usage"

	account, err := s.store.GetAccountByID(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to read monthly allowance")
	}

	allowance := domain.GetTierAllowance(tier)
	return &domain.AllowanceUsage{
		OptimizationsUsed:     account.OptimizationsUsed,
		OptimizationsLimit:    allowance.OptimizationsPerMonth,
		ATSReportsUsed:        account.ATSReportsUsed,
		ATSReportsLimit:       allowance.ATSReportsPerMonth,
		ActiveJobApplications: account.ActiveJobApplications,
		IsUnlimited:           allowance.OptimizationsPerMonth == domain.Unlimited && allowance.ATSReportsPerMonth == domain.Unlimited,
		CreditsResetAt:        nullTimePtr(account.CreditsResetAt),
	}, nil
}

// Reset implements AllowanceService.
func (s *allowanceService) Reset(ctx context.Context, userID uuid.UUID) error {
	const op = "allowance.reset"

	if err := s.store.ResetMonthlyAllowance(ctx, userID, time.Now()); err != nil {
		return domain.Internal(err, op, "failed to reset monthly allowance")
	}
	s.logger.Info("monthly allowance reset", "user_id", userID)
	return nil
}

// SyncActiveApplications implements AllowanceService.
func (s *allowanceService) SyncActiveApplications(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "allowance.sync_applications"

	count, err := s.store.SyncActiveJobApplications(ctx, userID)
	if err != nil {
		return 0, domain.Internal(err, op, "failed to sync active applications")
	}
	return count, nil
}

// featureUsed picks the consumed counter for a feature off the account row.
func featureUsed(account repository.Account, feature domain.Feature) int64 {
	switch feature {
	case domain.FeatureOptimization:
		return account.OptimizationsUsed
	case domain.FeatureATSReport:
		return account.ATSReportsUsed
	default:
		return 0
	}
}

// endOfMonth returns the first instant of the next month in UTC, the
// natural reset point reported on monthly denials.
func endOfMonth(now time.Time) time.Time {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start.AddDate(0, 1, 0)
}
