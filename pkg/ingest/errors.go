package ingest

import "errors"

var (
	ErrMissingSecret       = errors.New("webhook signing secret is required")
	ErrMissingSignature    = errors.New("webhook signature header is missing")
	ErrSignatureMismatch   = errors.New("webhook signature mismatch")
	ErrInvalidEvent        = errors.New("invalid webhook event payload")
	ErrUnsupportedEvent    = errors.New("unsupported webhook event type")
	ErrEventNotSuccessful  = errors.New("webhook event does not report a successful charge")
	ErrPlanMetadataInvalid = errors.New("webhook usage plan metadata does not match catalog")
)
