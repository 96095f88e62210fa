package domain

import (
	"fmt"
	"time"
)

// LimitRule bounds how many requests an operation admits inside a rolling
// time window. Rules are immutable once the catalog is built.
type LimitRule struct {
	Window      time.Duration
	MaxRequests int64
}

// LimitCatalog maps (operation kind, tier) to a limit rule. Lookups are
// pure: unknown operation kinds fall back to the default rule, and
// anonymous callers are always evaluated against the lowest tier.
type LimitCatalog struct {
	rules       map[OperationKind]map[SubscriptionTier]LimitRule
	defaultRule LimitRule
}

// DefaultCatalog returns the built-in limit configuration.
func DefaultCatalog() *LimitCatalog {
	day := 24 * time.Hour
	return &LimitCatalog{
		defaultRule: LimitRule{Window: time.Hour, MaxRequests: 30},
		rules: map[OperationKind]map[SubscriptionTier]LimitRule{
			OpJobExtract: {
				SubscriptionTierApplicant: {Window: day, MaxRequests: 5},
				SubscriptionTierCandidate: {Window: day, MaxRequests: 50},
				SubscriptionTierExecutive: {Window: day, MaxRequests: 500},
			},
			OpResumeAnalyze: {
				SubscriptionTierApplicant: {Window: day, MaxRequests: 10},
				SubscriptionTierCandidate: {Window: day, MaxRequests: 100},
				SubscriptionTierExecutive: {Window: day, MaxRequests: 1000},
			},
			OpResumeExport: {
				SubscriptionTierApplicant: {Window: day, MaxRequests: 20},
				SubscriptionTierCandidate: {Window: day, MaxRequests: 200},
				SubscriptionTierExecutive: {Window: day, MaxRequests: 2000},
			},
			OpAIGenerate: {
				SubscriptionTierApplicant: {Window: day, MaxRequests: 15},
				SubscriptionTierCandidate: {Window: day, MaxRequests: 150},
				SubscriptionTierExecutive: {Window: day, MaxRequests: 1500},
			},
		},
	}
}

// Lookup returns the rule for an operation kind and tier. Operation kinds
// without an explicit entry get the default rule; kinds configured for
// some tiers but not the requested one also fall back to the default.
func (c *LimitCatalog) Lookup(kind OperationKind, tier SubscriptionTier) LimitRule {
	if byTier, ok := c.rules[kind]; ok {
		if rule, ok := byTier[tier]; ok {
			return rule
		}
	}
	return c.defaultRule
}

// SetRule installs or replaces the rule for an operation kind and tier.
// Used by deployment-time catalog overrides.
func (c *LimitCatalog) SetRule(kind OperationKind, tier SubscriptionTier, rule LimitRule) {
	if c.rules == nil {
		c.rules = make(map[OperationKind]map[SubscriptionTier]LimitRule)
	}
	byTier, ok := c.rules[kind]
	if !ok {
		byTier = make(map[SubscriptionTier]LimitRule)
		c.rules[kind] = byTier
	}
	byTier[tier] = rule
}

// Validate checks that every configured rule is well-formed and attached to
// a known window-limited operation kind. Run eagerly at startup so a
// misconfigured catalog fails the boot, not a request.
func (c *LimitCatalog) Validate() error {
	if c.defaultRule.Window <= 0 || c.defaultRule.MaxRequests <= 0 {
		return fmt.Errorf("default rule must have positive window and max requests")
	}
	for kind, byTier := range c.rules {
		strategy, known := kind.Strategy()
		if !known {
			return fmt.Errorf("catalog rule for unknown operation kind %q", kind)
		}
		if strategy != StrategyWindow {
			return fmt.Errorf("catalog rule for %q, which is monthly-tracked, not window-limited", kind)
		}
		for tier, rule := range byTier {
			if rule.Window <= 0 {
				return fmt.Errorf("non-positive window for %s/%s", kind, tier)
			}
			if rule.MaxRequests <= 0 {
				return fmt.Errorf("non-positive max requests for %s/%s", kind, tier)
			}
		}
	}
	return nil
}
