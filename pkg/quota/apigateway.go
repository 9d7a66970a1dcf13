package quota

import (
	"context"
	"errors"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	agwtypes "github.com/aws/aws-sdk-go-v2/service/apigateway/types"
)

// APIGatewayAPI is the subset of the API Gateway client used by this package.
type APIGatewayAPI interface {
	CreateApiKey(ctx context.Context, params *apigateway.CreateApiKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.CreateApiKeyOutput, error)
	GetUsagePlanKey(ctx context.Context, params *apigateway.GetUsagePlanKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.GetUsagePlanKeyOutput, error)
	CreateUsagePlanKey(ctx context.Context, params *apigateway.CreateUsagePlanKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.CreateUsagePlanKeyOutput, error)
	DeleteUsagePlanKey(ctx context.Context, params *apigateway.DeleteUsagePlanKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.DeleteUsagePlanKeyOutput, error)
	UpdateApiKey(ctx context.Context, params *apigateway.UpdateApiKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.UpdateApiKeyOutput, error)
}

// APIGateway implements Service on top of API Gateway API keys and usage
// plans. An API key is the credential; usage plan key membership is the
// tier binding.
type APIGateway struct {
	client APIGatewayAPI
}

// NewAPIGateway creates an API Gateway backed quota Service.
func NewAPIGateway(client APIGatewayAPI) *APIGateway {
	if client == nil {
		panic("quota: APIGatewayAPI is required")
	}
	return &APIGateway{client: client}
}

func (g *APIGateway) CreateCredential(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyCredentialName
	}

	out, err := g.client.CreateApiKey(ctx, &apigateway.CreateApiKeyInput{
		Name:    aws.String(name),
		Enabled: true,
	})
	if err != nil {
		return "", errors.Join(ErrFailedToCreate, err)
	}

	return aws.ToString(out.Id), nil
}

func (g *APIGateway) IsMember(ctx context.Context, credentialID, planID string) (bool, error) {
	_, err := g.client.GetUsagePlanKey(ctx, &apigateway.GetUsagePlanKeyInput{
		UsagePlanId: aws.String(planID),
		KeyId:       aws.String(credentialID),
	})
	if err != nil {
		var nf *agwtypes.NotFoundException
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, errors.Join(ErrMembershipLookup, err)
	}
	return true, nil
}

func (g *APIGateway) Attach(ctx context.Context, credentialID, planID string) error {
	_, err := g.client.CreateUsagePlanKey(ctx, &apigateway.CreateUsagePlanKeyInput{
		UsagePlanId: aws.String(planID),
		KeyId:       aws.String(credentialID),
		KeyType:     aws.String("API_KEY"),
	})
	if err != nil {
		// A concurrent or replayed attach may have won the race; membership
		// is the desired end state either way.
		var conflict *agwtypes.ConflictException
		if errors.As(err, &conflict) {
			return nil
		}
		return errors.Join(ErrFailedToAttach, err)
	}
	return nil
}

func (g *APIGateway) Detach(ctx context.Context, credentialID, planID string) error {
	_, err := g.client.DeleteUsagePlanKey(ctx, &apigateway.DeleteUsagePlanKeyInput{
		UsagePlanId: aws.String(planID),
		KeyId:       aws.String(credentialID),
	})
	if err != nil {
		var nf *agwtypes.NotFoundException
		if errors.As(err, &nf) {
			return nil
		}
		return errors.Join(ErrFailedToDetach, err)
	}
	return nil
}

func (g *APIGateway) SetEnabled(ctx context.Context, credentialID string, enabled bool) error {
	_, err := g.client.UpdateApiKey(ctx, &apigateway.UpdateApiKeyInput{
		ApiKey: aws.String(credentialID),
		PatchOperations: []agwtypes.PatchOperation{
			{
				Op:    agwtypes.OpReplace,
				Path:  aws.String("/enabled"),
				Value: aws.String(strconv.FormatBool(enabled)),
			},
		},
	})
	if err != nil {
		var nf *agwtypes.NotFoundException
		if errors.As(err, &nf) {
			return errors.Join(ErrCredentialNotFound, err)
		}
		return errors.Join(ErrFailedToSetEnabled, err)
	}
	return nil
}
