package secretstore

import "errors"

var (
	ErrSecretNotFound     = errors.New("secret not found")
	ErrFailedToGetSecret  = errors.New("failed to get secret")
	ErrEmptySecretName    = errors.New("secret name cannot be empty")
	ErrSecretValueMissing = errors.New("secret has no string value")
)
