// Package domain contains core business types and interfaces.
//
// This file defines the subscription tiers and the account record they are
// attached to. Tiers gate which rate limit rules and monthly allowances
// apply to a user's operations.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionTier represents the pricing tier of a subscription.
type SubscriptionTier string

const (
	SubscriptionTierApplicant SubscriptionTier = "applicant" // free
	SubscriptionTierCandidate SubscriptionTier = "candidate" // professional
	SubscriptionTierExecutive SubscriptionTier = "executive" // premium
)

// Rank returns the privilege ordering of a tier, with the lowest tier at 0.
// Unknown tiers rank as the lowest tier.
func (t SubscriptionTier) Rank() int {
	switch t {
	case SubscriptionTierCandidate:
		return 1
	case SubscriptionTierExecutive:
		return 2
	default:
		return 0
	}
}

// IsPaid returns true for tiers that require an active subscription.
func (t SubscriptionTier) IsPaid() bool {
	return t == SubscriptionTierCandidate || t == SubscriptionTierExecutive
}

// ParseTier normalizes a stored tier string, mapping unknown values to the
// lowest tier.
func ParseTier(s string) SubscriptionTier {
	switch SubscriptionTier(s) {
	case SubscriptionTierCandidate:
		return SubscriptionTierCandidate
	case SubscriptionTierExecutive:
		return SubscriptionTierExecutive
	default:
		return SubscriptionTierApplicant
	}
}

// Tiers returns all tiers ordered from lowest to highest privilege.
func Tiers() []SubscriptionTier {
	return []SubscriptionTier{
		SubscriptionTierApplicant,
		SubscriptionTierCandidate,
		SubscriptionTierExecutive,
	}
}

// Account is the domain representation of a user account as seen by the
// quota subsystem: the subscription tier with its optional expiry, and the
// monthly consumption counters embedded in the same record.
type Account struct {
	ID                    uuid.UUID
	Email                 string
	SubscriptionTier      SubscriptionTier
	SubscriptionExpiresAt *time.Time
	OptimizationsUsed     int64
	ATSReportsUsed        int64
	ActiveJobApplications int64
	CreditsResetAt        *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TierExpired returns true if the account holds a paid tier whose expiry
// timestamp has passed. An expired paid tier must never be treated as
// active; the resolver performs a correcting downgrade when it sees one.
func (a *Account) TierExpired(now time.Time) bool {
	if !a.SubscriptionTier.IsPaid() {
		return false
	}
	return a.SubscriptionExpiresAt != nil && a.SubscriptionExpiresAt.Before(now)
}
