package catalog

import "errors"

var (
	ErrInvalidCatalog      = errors.New("invalid plan catalog")
	ErrUnknownTier         = errors.New("unknown quota tier")
	ErrFailedToLoadCatalog = errors.New("failed to load plan catalog")
)
