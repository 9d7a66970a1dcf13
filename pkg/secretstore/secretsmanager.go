package secretstore

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManager implements Store on top of AWS Secrets Manager.
type SecretsManager struct {
	client SecretsManagerAPI
}

// NewSecretsManager creates a Secrets Manager backed Store.
func NewSecretsManager(client SecretsManagerAPI) *SecretsManager {
	if client == nil {
		panic("secretstore: SecretsManagerAPI is required")
	}
	return &SecretsManager{client: client}
}

func (s *SecretsManager) GetSecret(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", ErrEmptySecretName
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var nf *smtypes.ResourceNotFoundException
		if errors.As(err, &nf) {
			return "", errors.Join(ErrSecretNotFound, err)
		}
		return "", errors.Join(ErrFailedToGetSecret, err)
	}

	if out.SecretString == nil {
		return "", ErrSecretValueMissing
	}

	return *out.SecretString, nil
}
