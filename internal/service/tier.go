// Package service contains the business logic layer.
//
// This file implements subscription tier resolution. The resolver is the
// single place that decides which tier an identity is evaluated at, and it
// self-heals accounts whose paid tier has expired.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/resumeflow/resumeflow/internal/domain"
	"github.com/resumeflow/resumeflow/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// TierResolver determines the current subscription tier for an identity.
type TierResolver interface {
	// Resolve returns the tier for the given identity along with whether
	// the identity is anonymous. A nil userID resolves to the lowest tier
	// with anonymous=true. An expired paid tier is corrected to the lowest
	// tier; the correcting write is best-effort and its failure never
	// changes the returned tier.
	Resolve(ctx context.Context, userID *uuid.UUID) (domain.SubscriptionTier, bool, error)
}

// TierStore is the persistence the resolver needs.
type TierStore interface {
	GetAccountByID(ctx context.Context, id uuid.UUID) (repository.Account, error)
	DowngradeSubscription(ctx context.Context, id uuid.UUID, tier string) error
}

// =============================================================================
// Implementation
// =============================================================================

type tierResolver struct {
	store  TierStore
	logger *slog.Logger
}

// NewTierResolver creates a new TierResolver.
func NewTierResolver(store TierStore, logger *slog.Logger) TierResolver {
	return &tierResolver{
		store:  store,
		logger: logger,
	}
}

// Resolve implements TierResolver.
func (r *tierResolver) Resolve(ctx context.Context, userID *uuid.UUID) (domain.SubscriptionTier, bool, error) {
	const op = "tier.resolve"

	if userID == nil {
		return domain.SubscriptionTierApplicant, true, nil
	}

	account, err := r.store.GetAccountByID(ctx, *userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Unknown accounts get the lowest tier rather than an error:
			// tier resolution gates privileges, it does not authenticate.
			return domain.SubscriptionTierApplicant, false, nil
		}
		return domain.SubscriptionTierApplicant, false, domain.Internal(err, op, "failed to read account tier")
	}

	tier := domain.ParseTier(account.SubscriptionTier)
	expiresAt := nullTimePtr(account.SubscriptionExpiresAt)

	if tier.IsPaid() && expiresAt != nil && expiresAt.Before(time.Now()) {
		// The decision downgrades regardless of whether the corrective
		// write lands; the next read will retry the correction.
		if err := r.store.DowngradeSubscription(ctx, *userID, string(domain.SubscriptionTierApplicant)); err != nil {
			r.logger.Warn("failed to persist tier downgrade",
				"user_id", userID,
				"expired_tier", tier,
				"error", err,
			)
		} else {
			r.logger.Info("downgraded expired subscription",
				"user_id", userID,
				"expired_tier", tier,
				"expired_at", expiresAt,
			)
		}
		return domain.SubscriptionTierApplicant, false, nil
	}

	return tier, false, nil
}

// nullTimePtr converts sql.NullTime to a time pointer.
func nullTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}
