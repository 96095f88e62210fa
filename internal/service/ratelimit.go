// Package service contains the business logic layer.
//
// This file implements the durable sliding-window rate limiter. Counters
// live in the database, never in process memory, so the limit holds across
// multiple server instances and restarts. Counter rows are keyed by
// request-arrival instant and summed over the trailing window, a hybrid
// fixed/rolling scheme that can briefly admit up to twice the nominal rate
// at window boundaries; that approximation is deliberate and matches the
// retry metadata callers are given. The check-and-increment itself is a
// single locked unit in the store, so concurrent requests never interleave
// between the limit comparison and the recording write.
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

// RateLimitService admits or denies window-limited operations.
type RateLimitService interface {
	// Check performs one check-and-increment admission decision. Storage
	// failures never surface as errors here: a failed admission fails open
	// (best-effort throttling is not a security boundary) and the missed
	// count is logged and swallowed.
	Check(ctx context.Context, userID *uuid.UUID, kind domain.OperationKind) domain.Decision

	// Status reports remaining quota for one operation kind without
	// recording anything.
	Status(ctx context.Context, userID *uuid.UUID, tier domain.SubscriptionTier, kind domain.OperationKind) domain.WindowStatus
}

// WindowStore is the persistence the limiter needs. AdmitWindowRequest
// must be atomic with respect to concurrent callers for the same
// (user, operation) pair; the other methods are read-only or housekeeping.
type WindowStore interface {
	AdmitWindowRequest(ctx context.Context, arg repository.AdmitWindowRequestParams) (repository.WindowAdmission, error)
	SumWindowCounters(ctx context.Context, userID uuid.UUID, operation string, since time.Time) (int64, error)
	OldestWindowStart(ctx context.Context, userID uuid.UUID, operation string, since time.Time) (time.Time, error)
	DeleteExpiredWindowCounters(ctx context.Context, userID uuid.UUID, operation string, before time.Time) error
}

// =============================================================================
// Implementation
// =============================================================================

type rateLimitService struct {
	store   WindowStore
	catalog *domain.LimitCatalog
	tiers   TierResolver
	logger  *slog.Logger
}

// NewRateLimitService creates a new RateLimitService.
func NewRateLimitService(store WindowStore, catalog *domain.LimitCatalog, tiers TierResolver, logger *slog.Logger) RateLimitService {
	return &rateLimitService{
		store:   store,
		catalog: catalog,
		tiers:   tiers,
		logger:  logger,
	}
}

// Check implements RateLimitService.
func (s *rateLimitService) Check(ctx context.Context, userID *uuid.UUID, kind domain.OperationKind) domain.Decision {
	const op = "ratelimit.check"
	now := time.Now()

	if userID == nil {
		// Anonymous traffic is never admitted for window-checked
		// operations: zero remaining, reset one window away.
		rule := s.catalog.Lookup(kind, domain.SubscriptionTierApplicant)
		return domain.Decision{
			Allowed:    false,
			Kind:       kind,
			Limit:      rule.MaxRequests,
			Remaining:  0,
			ResetAt:    now.Add(rule.Window),
			RetryAfter: rule.Window,
		}
	}

	tier, _, err := s.tiers.Resolve(ctx, userID)
	if err != nil {
		// Evaluate at the lowest tier when the tier read fails; the check
		// itself still runs.
		s.logger.Warn("tier resolution failed, evaluating at lowest tier",
			"op", op, "user_id", userID, "error", err)
		metrics.StoreFailures.WithLabelValues("tier_read").Inc()
		tier = domain.SubscriptionTierApplicant
	}

	rule := s.catalog.Lookup(kind, tier)
	since := now.Add(-rule.Window)

	// Lazy cleanup: rows older than twice the window can never be counted
	// again. Pure housekeeping, safe to skip on failure.
	if err := s.store.DeleteExpiredWindowCounters(ctx, *userID, string(kind), now.Add(-2*rule.Window)); err != nil {
		s.logger.Warn("window counter cleanup failed", "op", op, "user_id", userID, "error", err)
		metrics.StoreFailures.WithLabelValues("window_cleanup").Inc()
	}

	// The limit comparison and the counter increment run as one locked
	// unit in the store; a plain read-then-write here would admit every
	// concurrent request racing for the last slot.
	admission, err := s.store.AdmitWindowRequest(ctx, repository.AdmitWindowRequestParams{
		UserID:      *userID,
		Operation:   string(kind),
		WindowStart: now.Truncate(time.Microsecond),
		Since:       since,
		Limit:       rule.MaxRequests,
	})
	if err != nil {
		// Fail open: a storage blip must not reject an otherwise-valid
		// request. The unrecorded request under-counts by one.
		s.logger.Warn("window admission failed, allowing request",
			"op", op, "user_id", userID, "operation", kind, "error", err)
		metrics.StoreFailures.WithLabelValues("window_admit").Inc()
		return domain.Decision{
			Allowed:   true,
			Kind:      kind,
			Limit:     rule.MaxRequests,
			Remaining: maxInt64(rule.MaxRequests-1, 0),
			ResetAt:   now.Add(rule.Window),
		}
	}

	resetAt := now.Add(rule.Window)
	if !admission.OldestStart.IsZero() {
		resetAt = admission.OldestStart.Add(rule.Window)
	}

	if !admission.Admitted {
		retryAfter := rule.Window
		if !admission.OldestStart.IsZero() {
			retryAfter = rule.Window - now.Sub(admission.OldestStart)
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		s.logger.Info("rate limit exceeded",
			"user_id", userID,
			"operation", kind,
			"tier", tier,
			"count", admission.Count,
			"limit", rule.MaxRequests,
			"retry_after", retryAfter,
		)
		return domain.Decision{
			Allowed:    false,
			Kind:       kind,
			Limit:      rule.MaxRequests,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter,
		}
	}

	return domain.Decision{
		Allowed:   true,
		Kind:      kind,
		Limit:     rule.MaxRequests,
		Remaining: maxInt64(rule.MaxRequests-(admission.Count+1), 0),
		ResetAt:   resetAt,
	}
}

// Status implements RateLimitService.
func (s *rateLimitService) Status(ctx context.Context, userID *uuid.UUID, tier domain.SubscriptionTier, kind domain.OperationKind) domain.WindowStatus {
	now := time.Now()
	rule := s.catalog.Lookup(kind, tier)

	if userID == nil {
		return domain.WindowStatus{
			Kind:    kind,
			Limit:   rule.MaxRequests,
			ResetAt: now.Add(rule.Window),
		}
	}

	since := now.Add(-rule.Window)
	count, err := s.store.SumWindowCounters(ctx, *userID, string(kind), since)
	if err != nil {
		s.logger.Warn("window counter read failed", "op", "ratelimit.status", "user_id", userID, "error", err)
		metrics.StoreFailures.WithLabelValues("window_read").Inc()
		count = 0
	}

	resetAt := now.Add(rule.Window)
	if oldest, err := s.store.OldestWindowStart(ctx, *userID, string(kind), since); err == nil && !oldest.IsZero() {
		resetAt = oldest.Add(rule.Window)
	}

	return domain.WindowStatus{
		Kind:      kind,
		Limit:     rule.MaxRequests,
		Remaining: maxInt64(rule.MaxRequests-count, 0),
		ResetAt:   resetAt,
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
