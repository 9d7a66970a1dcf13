package subscription

import "errors"

var (
	ErrNotFound            = errors.New("subscription not found")
	ErrInvalidStatus       = errors.New("invalid subscription status")
	ErrInvalidCursor       = errors.New("invalid pagination cursor")
	ErrFailedToQuery       = errors.New("failed to query subscriptions")
	ErrFailedToPersist     = errors.New("failed to persist subscription")
	ErrFailedToCountActive = errors.New("failed to count active subscriptions")
)
