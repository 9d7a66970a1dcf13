package quota_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	agwtypes "github.com/aws/aws-sdk-go-v2/service/apigateway/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridshot/tierkit/pkg/quota"
)

// fakeAPIGateway scripts one error per operation.
type fakeAPIGateway struct {
	createKeyErr  error
	getPlanKeyErr error
	createPlanErr error
	deletePlanErr error
	updateKeyErr  error

	lastUpdate *apigateway.UpdateApiKeyInput
	lastCreate *apigateway.CreateApiKeyInput
}

func (f *fakeAPIGateway) CreateApiKey(_ context.Context, params *apigateway.CreateApiKeyInput, _ ...func(*apigateway.Options)) (*apigateway.CreateApiKeyOutput, error) {
	f.lastCreate = params
	if f.createKeyErr != nil {
		return nil, f.createKeyErr
	}
	return &apigateway.CreateApiKeyOutput{Id: aws.String("key-1")}, nil
}

func (f *fakeAPIGateway) GetUsagePlanKey(context.Context, *apigateway.GetUsagePlanKeyInput, ...func(*apigateway.Options)) (*apigateway.GetUsagePlanKeyOutput, error) {
	if f.getPlanKeyErr != nil {
		return nil, f.getPlanKeyErr
	}
	return &apigateway.GetUsagePlanKeyOutput{}, nil
}

func (f *fakeAPIGateway) CreateUsagePlanKey(context.Context, *apigateway.CreateUsagePlanKeyInput, ...func(*apigateway.Options)) (*apigateway.CreateUsagePlanKeyOutput, error) {
	if f.createPlanErr != nil {
		return nil, f.createPlanErr
	}
	return &apigateway.CreateUsagePlanKeyOutput{}, nil
}

func (f *fakeAPIGateway) DeleteUsagePlanKey(context.Context, *apigateway.DeleteUsagePlanKeyInput, ...func(*apigateway.Options)) (*apigateway.DeleteUsagePlanKeyOutput, error) {
	if f.deletePlanErr != nil {
		return nil, f.deletePlanErr
	}
	return &apigateway.DeleteUsagePlanKeyOutput{}, nil
}

func (f *fakeAPIGateway) UpdateApiKey(_ context.Context, params *apigateway.UpdateApiKeyInput, _ ...func(*apigateway.Options)) (*apigateway.UpdateApiKeyOutput, error) {
	f.lastUpdate = params
	if f.updateKeyErr != nil {
		return nil, f.updateKeyErr
	}
	return &apigateway.UpdateApiKeyOutput{}, nil
}

func TestAPIGateway_IsMember(t *testing.T) {
	t.Parallel()

	t.Run("member", func(t *testing.T) {
		t.Parallel()
		svc := quota.NewAPIGateway(&fakeAPIGateway{})
		member, err := svc.IsMember(context.Background(), "key-1", "QP-pro")
		require.NoError(t, err)
		assert.True(t, member)
	})

	t.Run("not found means not a member, not an error", func(t *testing.T) {
		t.Parallel()
		svc := quota.NewAPIGateway(&fakeAPIGateway{getPlanKeyErr: &agwtypes.NotFoundException{}})
		member, err := svc.IsMember(context.Background(), "key-1", "QP-pro")
		require.NoError(t, err)
		assert.False(t, member)
	})

	t.Run("other failures propagate", func(t *testing.T) {
		t.Parallel()
		svc := quota.NewAPIGateway(&fakeAPIGateway{getPlanKeyErr: &agwtypes.TooManyRequestsException{}})
		_, err := svc.IsMember(context.Background(), "key-1", "QP-pro")
		assert.ErrorIs(t, err, quota.ErrMembershipLookup)
	})
}

func TestAPIGateway_AttachDetach(t *testing.T) {
	t.Parallel()

	t.Run("attach conflict is success", func(t *testing.T) {
		t.Parallel()
		svc := quota.NewAPIGateway(&fakeAPIGateway{createPlanErr: &agwtypes.ConflictException{}})
		assert.NoError(t, svc.Attach(context.Background(), "key-1", "QP-pro"))
	})

	t.Run("detach of a non-member is success", func(t *testing.T) {
		t.Parallel()
		svc := quota.NewAPIGateway(&fakeAPIGateway{deletePlanErr: &agwtypes.NotFoundException{}})
		assert.NoError(t, svc.Detach(context.Background(), "key-1", "QP-pro"))
	})

	t.Run("other attach failures propagate", func(t *testing.T) {
		t.Parallel()
		svc := quota.NewAPIGateway(&fakeAPIGateway{createPlanErr: errors.New("throttled")})
		assert.ErrorIs(t, svc.Attach(context.Background(), "key-1", "QP-pro"), quota.ErrFailedToAttach)
	})
}

func TestAPIGateway_CreateCredential(t *testing.T) {
	t.Parallel()

	fake := &fakeAPIGateway{}
	svc := quota.NewAPIGateway(fake)

	id, err := svc.CreateCredential(context.Background(), "owner-1-p0")
	require.NoError(t, err)
	assert.Equal(t, "key-1", id)
	require.NotNil(t, fake.lastCreate)
	assert.True(t, fake.lastCreate.Enabled)

	_, err = svc.CreateCredential(context.Background(), "")
	assert.ErrorIs(t, err, quota.ErrEmptyCredentialName)
}

func TestAPIGateway_SetEnabled(t *testing.T) {
	t.Parallel()

	fake := &fakeAPIGateway{}
	svc := quota.NewAPIGateway(fake)

	require.NoError(t, svc.SetEnabled(context.Background(), "key-1", false))
	require.NotNil(t, fake.lastUpdate)
	require.Len(t, fake.lastUpdate.PatchOperations, 1)
	op := fake.lastUpdate.PatchOperations[0]
	assert.Equal(t, agwtypes.OpReplace, op.Op)
	assert.Equal(t, "/enabled", aws.ToString(op.Path))
	assert.Equal(t, "false", aws.ToString(op.Value))

	svcMissing := quota.NewAPIGateway(&fakeAPIGateway{updateKeyErr: &agwtypes.NotFoundException{}})
	assert.ErrorIs(t, svcMissing.SetEnabled(context.Background(), "key-1", true), quota.ErrCredentialNotFound)
}
