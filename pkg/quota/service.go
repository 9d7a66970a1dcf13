// Package quota manages API credentials and their membership in quota
// enforcement usage plans. A credential is attached to exactly one tier's
// usage plan at a time; the Synchronizer moves it between plans with
// idempotent detach-then-attach steps that survive redelivery.
package quota

import "context"

// Service is the quota service boundary. Implementations must report
// "not a member" from IsMember as (false, nil) rather than an error so the
// Synchronizer can branch on it; genuine lookup failures are returned as-is.
type Service interface {
	// CreateCredential provisions a new enabled API credential and returns its ID.
	CreateCredential(ctx context.Context, name string) (string, error)

	// IsMember reports whether the credential is currently attached to the plan.
	IsMember(ctx context.Context, credentialID, planID string) (bool, error)

	// Attach adds the credential to the usage plan. Attaching an already
	// attached credential must not fail.
	Attach(ctx context.Context, credentialID, planID string) error

	// Detach removes the credential from the usage plan. Detaching a
	// credential that is not a member must not fail.
	Detach(ctx context.Context, credentialID, planID string) error

	// SetEnabled flips the credential's enabled flag. Enablement is
	// orthogonal to plan membership.
	SetEnabled(ctx context.Context, credentialID string, enabled bool) error
}
