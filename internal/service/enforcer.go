// Package service contains the business logic layer.
//
// This file implements the enforcement dispatcher: the single entry point
// business handlers call before performing a limited operation. It routes
// each operation kind to sliding-window or monthly-allowance enforcement
// and surfaces denials as typed errors carrying retry metadata.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/resumeflow/resumeflow/internal/domain"
	"github.com/resumeflow/resumeflow/internal/metrics"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Enforcer decides whether a limited operation may proceed right now.
type Enforcer interface {
	// Enforce checks and records one attempt at the given operation. A nil
	// userID is anonymous. On denial the returned error is a
	// *domain.RateLimitError or *domain.AllowanceError; the Decision
	// carries limit/remaining/resetAt metadata either way.
	Enforce(ctx context.Context, userID *uuid.UUID, kind domain.OperationKind) (domain.Decision, error)

	// Status reports remaining quota across every configured operation
	// kind without recording anything.
	Status(ctx context.Context, userID *uuid.UUID) (*domain.QuotaStatus, error)
}

// =============================================================================
// Implementation
// =============================================================================

type enforcer struct {
	limiter   RateLimitService
	allowance AllowanceService
	tiers     TierResolver
	catalog   *domain.LimitCatalog
	logger    *slog.Logger
}

// NewEnforcer creates the dispatcher after validating that the catalog and
// the strategy routing agree on every operation kind. A misconfiguration
// is a programming error and fails the boot rather than a request.
func NewEnforcer(limiter RateLimitService, allowance AllowanceService, tiers TierResolver, catalog *domain.LimitCatalog, logger *slog.Logger) (Enforcer, error) {
	if err := ValidateEnforcementConfig(catalog); err != nil {
		return nil, err
	}
	return &enforcer{
		limiter:   limiter,
		allowance: allowance,
		tiers:     tiers,
		catalog:   catalog,
		logger:    logger,
	}, nil
}

// Enforce implements Enforcer.
func (e *enforcer) Enforce(ctx context.Context, userID *uuid.UUID, kind domain.OperationKind) (domain.Decision, error) {
	const op = "enforce"

	strategy, known := kind.Strategy()
	if !known {
		return domain.Decision{}, domain.Errorf(domain.EINTERNAL, op, "unknown operation kind %q", kind)
	}

	switch strategy {
	case domain.StrategyWindow:
		decision := e.limiter.Check(ctx, userID, kind)
		if !decision.Allowed {
			metrics.AdmissionDecisions.WithLabelValues(string(kind), "denied").Inc()
			return decision, &domain.RateLimitError{
				Op:         op,
				Kind:       kind,
				Limit:      decision.Limit,
				Remaining:  decision.Remaining,
				ResetAt:    decision.ResetAt,
				RetryAfter: decision.RetryAfter,
			}
		}
		metrics.AdmissionDecisions.WithLabelValues(string(kind), "allowed").Inc()
		return decision, nil

	case domain.StrategyMonthly:
		if userID == nil {
			// Anonymous callers have no allowance at all.
			feature, _ := domain.FeatureForOperation(kind)
			resetAt := endOfMonth(time.Now())
			metrics.AdmissionDecisions.WithLabelValues(string(kind), "denied").Inc()
			return domain.Decision{
					Kind:      kind,
					Limit:     0,
					Remaining: 0,
					ResetAt:   resetAt,
				}, &domain.AllowanceError{
					Op:      op,
					Feature: feature,
					Used:    0,
					Limit:   0,
					ResetAt: resetAt,
				}
		}
		decision, err := e.allowance.CheckAndTrack(ctx, *userID, kind)
		if err != nil {
			metrics.AdmissionDecisions.WithLabelValues(string(kind), "denied").Inc()
			return decision, err
		}
		metrics.AdmissionDecisions.WithLabelValues(string(kind), "allowed").Inc()
		return decision, nil

	default:
		return domain.Decision{}, domain.Errorf(domain.EINTERNAL, op, "no enforcement strategy for %q", kind)
	}
}

// Status implements Enforcer.
func (e *enforcer) Status(ctx context.Context, userID *uuid.UUID) (*domain.QuotaStatus, error) {
	tier, anonymous, err := e.tiers.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &domain.QuotaStatus{
		Tier:      tier,
		Anonymous: anonymous,
	}

	for _, kind := range domain.OperationKinds() {
		strategy, _ := kind.Strategy()
		if strategy != domain.StrategyWindow {
			continue
		}
		status.Windows = append(status.Windows, e.limiter.Status(ctx, userID, tier, kind))
	}

	if userID != nil {
		usage, err := e.allowance.Usage(ctx, *userID, tier)
		if err != nil {
			return nil, err
		}
		status.Allowances = usage
	}

	return status, nil
}

// ValidateEnforcementConfig checks that every declared operation kind has
// exactly one enforcement strategy, that monthly-tracked kinds map to a
// ledger feature, and that the catalog only configures window-limited
// kinds. Run at startup so configuration mistakes are fatal before any
// traffic is served.
func ValidateEnforcementConfig(catalog *domain.LimitCatalog) error {
	if err := catalog.Validate(); err != nil {
		return fmt.Errorf("limit catalog: %w", err)
	}
	for _, kind := range domain.OperationKinds() {
		strategy, known := kind.Strategy()
		if !known {
			return fmt.Errorf("operation kind %q has no enforcement strategy", kind)
		}
		_, monthly := domain.FeatureForOperation(kind)
		switch strategy {
		case domain.StrategyMonthly:
			if !monthly {
				return fmt.Errorf("monthly-tracked operation %q has no ledger feature", kind)
			}
		case domain.StrategyWindow:
			if monthly {
				return fmt.Errorf("window-limited operation %q also maps to a ledger feature", kind)
			}
		}
	}
	return nil
}
