// Package domain contains core business types and interfaces.
//
// This file defines the monthly allowance limits for premium features.
// Allowances are billing-cycle budgets per feature, distinct from the
// generic per-window throughput rules in the limit catalog.
package domain

import (
	"math"
	"time"
)

// Unlimited marks a tier allowance with no effective cap.
const Unlimited int64 = math.MaxInt64

// TierAllowance defines the monthly feature limits for a subscription tier.
type TierAllowance struct {
	OptimizationsPerMonth int64
	ATSReportsPerMonth    int64
}

// TierAllowances maps subscription tiers to their monthly allowances.
// The free tier gets none; the top tier is effectively unlimited.
var TierAllowances = map[SubscriptionTier]TierAllowance{
	SubscriptionTierApplicant: {
		OptimizationsPerMonth: 0,
		ATSReportsPerMonth:    0,
	},
	SubscriptionTierCandidate: {
		OptimizationsPerMonth: 50,
		ATSReportsPerMonth:    50,
	},
	SubscriptionTierExecutive: {
		OptimizationsPerMonth: Unlimited,
		ATSReportsPerMonth:    Unlimited,
	},
}

// GetTierAllowance returns the allowance for a tier, defaulting to the
// lowest tier for unknown values.
func GetTierAllowance(tier SubscriptionTier) TierAllowance {
	if a, ok := TierAllowances[tier]; ok {
		return a
	}
	return TierAllowances[SubscriptionTierApplicant]
}

// FeatureLimit returns the monthly limit for a single feature.
func (a TierAllowance) FeatureLimit(f Feature) int64 {
	switch f {
	case FeatureOptimization:
		return a.OptimizationsPerMonth
	case FeatureATSReport:
		return a.ATSReportsPerMonth
	default:
		return 0
	}
}

// AllowanceUsage is the current monthly consumption snapshot for a user.
type AllowanceUsage struct {
	OptimizationsUsed     int64      `json:"optimizations_used"`
	OptimizationsLimit    int64      `json:"optimizations_limit"`
	ATSReportsUsed        int64      `json:"ats_reports_used"`
	ATSReportsLimit       int64      `json:"ats_reports_limit"`
	ActiveJobApplications int64      `json:"active_job_applications"`
	IsUnlimited           bool       `json:"is_unlimited"`
	CreditsResetAt        *time.Time `json:"credits_reset_at,omitempty"`
}

// UsageEvent is one append-only record of a tracked feature use. Events are
// written once and never updated or deleted by this subsystem.
type UsageEvent struct {
	UserID     string
	Feature    Feature
	OccurredAt time.Time
	Metadata   []byte // optional JSON payload
}
