// Package downgrade demotes subscriptions whose renewal failed. Each queued
// candidate is reconciled against the owner's free-tier quota: under the
// limit the credential moves to the free usage plan, at the limit the
// credential is disabled instead.
package downgrade

import (
	"encoding/json"
	"errors"

	"github.com/gridshot/tierkit/pkg/catalog"
	"github.com/gridshot/tierkit/pkg/subscription"
)

// Candidate is a snapshot of a subscription at the moment its renewal
// failed terminally. The snapshot is only trusted as a lookup key; the
// reconciler always re-reads the stored record before mutating anything.
type Candidate struct {
	OwnerID      string       `json:"owner_id"`
	ProjectID    string       `json:"project_id"`
	Tier         catalog.Tier `json:"tier"`
	CredentialID string       `json:"credential_id"`
	UsagePlanID  string       `json:"usage_plan_id"`
	CardToken    string       `json:"card_token,omitempty"`
	CardExpiry   string       `json:"card_expiry,omitempty"`
}

// NewCandidate snapshots a subscription for the downgrade queue.
func NewCandidate(sub *subscription.Subscription) Candidate {
	return Candidate{
		OwnerID:      sub.OwnerID,
		ProjectID:    sub.ProjectID,
		Tier:         sub.Tier,
		CredentialID: sub.CredentialID,
		UsagePlanID:  sub.UsagePlanID,
		CardToken:    sub.Card.Token,
		CardExpiry:   sub.Card.Expiry,
	}
}

// Encode serializes the candidate for a queue message body.
func (c Candidate) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeCandidate parses a queue message body into a Candidate.
func DecodeCandidate(body []byte) (Candidate, error) {
	var c Candidate
	if err := json.Unmarshal(body, &c); err != nil {
		return Candidate{}, errors.Join(ErrInvalidCandidate, err)
	}
	if c.OwnerID == "" || c.ProjectID == "" {
		return Candidate{}, ErrInvalidCandidate
	}
	return c, nil
}
