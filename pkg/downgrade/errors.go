package downgrade

import "errors"

var (
	ErrInvalidCandidate = errors.New("invalid downgrade candidate payload")
	ErrMissingRecord    = errors.New("subscription record no longer exists")
)
