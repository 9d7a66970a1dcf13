// Package subscription holds the subscription record, its lifecycle states
// and the store boundary used by the renewal, downgrade and webhook paths.
package subscription

import (
	"fmt"
	"time"

	"github.com/gridshot/tierkit/pkg/catalog"
)

// Status is the subscription lifecycle state. There is exactly one active
// status per tier, so a status is always derivable from (tier, active).
type Status string

const (
	StatusInactive        Status = "inactive"
	StatusActiveFree      Status = "active_free"
	StatusActivePro       Status = "active_pro"
	StatusActiveExecutive Status = "active_executive"
)

// ActiveStatusFor returns the active status matching a tier.
func ActiveStatusFor(tier catalog.Tier) (Status, error) {
	switch tier {
	case catalog.TierFree:
		return StatusActiveFree, nil
	case catalog.TierPro:
		return StatusActivePro, nil
	case catalog.TierExecutive:
		return StatusActiveExecutive, nil
	default:
		return "", fmt.Errorf("%w: no active status for tier %q", ErrInvalidStatus, tier)
	}
}

// Card is the stored payment card token and its expiry as reported by the
// payment gateway. The raw card number never reaches this system.
type Card struct {
	Token  string
	Expiry string
}

// Subscription is one customer's API access subscription, keyed by
// (owner, project). It binds a credential to a quota tier's usage plan and
// carries the billing schedule.
type Subscription struct {
	OwnerID       string
	ProjectID     string
	Tier          catalog.Tier
	Status        Status
	CredentialID  string
	UsagePlanID   string
	Card          Card
	NextPaymentAt time.Time
	BilledAt      time.Time
	CreatedAt     time.Time
}

// IsActive reports whether the subscription is in any active status.
func (s *Subscription) IsActive() bool {
	return s.Status != StatusInactive && s.Status != ""
}

// Due reports whether the next payment is due at the given time.
func (s *Subscription) Due(now time.Time) bool {
	return !s.NextPaymentAt.After(now)
}
