package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Tier is a quota tier name. Each tier maps to exactly one usage plan
// in the quota service.
type Tier string

const (
	TierFree      Tier = "free"
	TierPro       Tier = "pro"
	TierExecutive Tier = "executive"
)

// Tiers returns all known tiers in ascending order of capability.
func Tiers() []Tier {
	return []Tier{TierFree, TierPro, TierExecutive}
}

// PaidTiers returns the tiers that go through the billing renewal cycle.
func PaidTiers() []Tier {
	return []Tier{TierPro, TierExecutive}
}

// ParseTier validates a raw tier name.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, TierPro, TierExecutive:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
}

// Catalog is the immutable mapping from quota tier to usage plan ID.
// It is loaded once per process and never mutated afterwards.
type Catalog struct {
	plans map[Tier]string
}

// Parse decodes and validates a raw catalog blob. The blob must be a JSON
// object containing exactly the three tier keys, each with a non-empty
// string value. Anything else fails with ErrInvalidCatalog.
func Parse(raw []byte) (Catalog, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Catalog{}, errors.Join(ErrInvalidCatalog, err)
	}

	plans := make(map[Tier]string, len(Tiers()))
	for _, tier := range Tiers() {
		v, ok := m[string(tier)]
		if !ok {
			return Catalog{}, fmt.Errorf("%w: missing %q key", ErrInvalidCatalog, tier)
		}
		planID, ok := v.(string)
		if !ok || planID == "" {
			return Catalog{}, fmt.Errorf("%w: %q must be a non-empty string", ErrInvalidCatalog, tier)
		}
		plans[tier] = planID
	}

	if len(m) != len(plans) {
		return Catalog{}, fmt.Errorf("%w: unexpected keys present", ErrInvalidCatalog)
	}

	return Catalog{plans: plans}, nil
}

// PlanID returns the usage plan ID for a tier.
func (c Catalog) PlanID(tier Tier) (string, error) {
	planID, ok := c.plans[tier]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return planID, nil
}

// TierOf resolves the tier a usage plan ID belongs to.
func (c Catalog) TierOf(planID string) (Tier, bool) {
	for tier, id := range c.plans {
		if id == planID {
			return tier, true
		}
	}
	return "", false
}
