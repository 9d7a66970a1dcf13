package payment

import "errors"

var (
	ErrMissingToken           = errors.New("payment gateway bearer token is required")
	ErrMissingBaseURL         = errors.New("payment gateway base URL is required")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrTransactionNotVerified = errors.New("transaction could not be verified as successful")
	ErrDecodeResponse         = errors.New("failed to decode payment gateway response")
)
