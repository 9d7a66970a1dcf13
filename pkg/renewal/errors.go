package renewal

import "errors"

var (
	ErrInvalidContinuation = errors.New("invalid renewal continuation payload")
	ErrFailedToListPlans   = errors.New("failed to list billing plans")
	ErrNoBillingPlan       = errors.New("no billing plan matches tier")
)
