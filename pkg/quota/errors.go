package quota

import "errors"

var (
	ErrCredentialNotFound  = errors.New("credential not found")
	ErrFailedToCreate      = errors.New("failed to create credential")
	ErrFailedToAttach      = errors.New("failed to attach credential to usage plan")
	ErrFailedToDetach      = errors.New("failed to detach credential from usage plan")
	ErrFailedToSetEnabled  = errors.New("failed to update credential enabled state")
	ErrMembershipLookup    = errors.New("failed to look up usage plan membership")
	ErrEmptyCredentialID   = errors.New("credential ID cannot be empty")
	ErrEmptyUsagePlanID    = errors.New("usage plan ID cannot be empty")
	ErrEmptyCredentialName = errors.New("credential name cannot be empty")
)
