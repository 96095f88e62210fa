package domain

import "time"

// Decision is the outcome of one admission check. The four metadata fields
// are the stable contract consumed by the HTTP header glue: Limit,
// Remaining and ResetAt are emitted on every decision, RetryAfter only on
// denials.
type Decision struct {
	Allowed    bool
	Kind       OperationKind
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// WindowStatus is the read-only remaining-quota view for one window-limited
// operation kind, surfaced by the status endpoint. No counter is touched
// when computing it.
type WindowStatus struct {
	Kind      OperationKind `json:"operation"`
	Limit     int64         `json:"limit"`
	Remaining int64         `json:"remaining"`
	ResetAt   time.Time     `json:"reset_at"`
}

// QuotaStatus aggregates remaining quota across every configured operation
// kind for one identity.
type QuotaStatus struct {
	Tier       SubscriptionTier `json:"tier"`
	Anonymous  bool             `json:"anonymous"`
	Windows    []WindowStatus   `json:"windows"`
	Allowances *AllowanceUsage  `json:"allowances,omitempty"`
}
