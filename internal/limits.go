package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/resumeflow/resumeflow/internal/domain"
)

// limitsFile is the YAML shape of a rate limit override file:
//
//	operations:
//	  job.extract:
//	    applicant:
//	      window: 24h
//	      max_requests: 5
type limitsFile struct {
	Operations map[string]map[string]limitRuleEntry `yaml:"operations"`
}

type limitRuleEntry struct {
	Window      string `yaml:"window"`
	MaxRequests int64  `yaml:"max_requests"`
}

// LoadCatalog returns the limit catalog, applying overrides from the given
// YAML file when path is non-empty. Unknown operation kinds or tiers in
// the file are startup errors, not silent fallbacks.
func LoadCatalog(path string) (*domain.LimitCatalog, error) {
	catalog := domain.DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limits file: %w", err)
	}

	var file limitsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse rate limits file: %w", err)
	}

	for opName, byTier := range file.Operations {
		kind := domain.OperationKind(opName)
		if _, known := kind.Strategy(); !known {
			return nil, fmt.Errorf("rate limits file: unknown operation kind %q", opName)
		}
		for tierName, entry := range byTier {
			tier, err := strictTier(tierName)
			if err != nil {
				return nil, fmt.Errorf("rate limits file: %w", err)
			}
			window, err := time.ParseDuration(entry.Window)
			if err != nil {
				return nil, fmt.Errorf("rate limits file: window for %s/%s: %w", opName, tierName, err)
			}
			catalog.SetRule(kind, tier, domain.LimitRule{
				Window:      window,
				MaxRequests: entry.MaxRequests,
			})
		}
	}

	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("rate limits file: %w", err)
	}
	return catalog, nil
}

// strictTier parses a tier name without the lenient unknown-to-lowest
// fallback used on stored values.
func strictTier(name string) (domain.SubscriptionTier, error) {
	for _, tier := range domain.Tiers() {
		if string(tier) == name {
			return tier, nil
		}
	}
	return "", fmt.Errorf("unknown tier %q", name)
}
