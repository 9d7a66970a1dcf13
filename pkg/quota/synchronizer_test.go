package quota_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridshot/tierkit/pkg/quota"
)

func TestSynchronizer_Migrate(t *testing.T) {
	t.Parallel()

	t.Run("moves credential between plans", func(t *testing.T) {
		t.Parallel()
		svc := quota.NewMemory()
		svc.SetMember("key-1", "QP-pro", true)

		sync := quota.NewSynchronizer(svc)
		require.NoError(t, sync.Migrate(context.Background(), "key-1", "QP-pro", "QP-exec"))

		assert.False(t, svc.Member("key-1", "QP-pro"))
		assert.True(t, svc.Member("key-1", "QP-exec"))
	})

	t.Run("is idempotent under redelivery", func(t *testing.T) {
		t.Parallel()
		svc := quota.NewMemory()
		svc.SetMember("key-1", "QP-pro", true)

		sync := quota.NewSynchronizer(svc)
		ctx := context.Background()
		require.NoError(t, sync.Migrate(ctx, "key-1", "QP-pro", "QP-exec"))
		require.NoError(t, sync.Migrate(ctx, "key-1", "QP-pro", "QP-exec"))

		assert.False(t, svc.Member("key-1", "QP-pro"))
		assert.True(t, svc.Member("key-1", "QP-exec"))
		// The replay only re-checks membership, it never repeats mutations.
		assert.Equal(t, 1, svc.Calls("Detach"))
		assert.Equal(t, 1, svc.Calls("Attach"))
	})

	t.Run("same plan is a pure no-op", func(t *testing.T) {
		t.Parallel()
		svc := quota.NewMemory()
		svc.SetMember("key-1", "QP-pro", true)

		sync := quota.NewSynchronizer(svc)
		require.NoError(t, sync.Migrate(context.Background(), "key-1", "QP-pro", "QP-pro"))

		assert.Zero(t, svc.Calls("IsMember"))
		assert.Zero(t, svc.Calls("Detach"))
		assert.Zero(t, svc.Calls("Attach"))
	})

	t.Run("resumes after crash between detach and attach", func(t *testing.T) {
		t.Parallel()
		svc := quota.NewMemory()
		// Detach already happened in a prior interrupted run.
		svc.SetMember("key-1", "QP-pro", false)

		sync := quota.NewSynchronizer(svc)
		require.NoError(t, sync.Migrate(context.Background(), "key-1", "QP-pro", "QP-exec"))

		assert.True(t, svc.Member("key-1", "QP-exec"))
		assert.Zero(t, svc.Calls("Detach"))
		assert.Equal(t, 1, svc.Calls("Attach"))
	})

	t.Run("membership lookup failures propagate", func(t *testing.T) {
		t.Parallel()
		svc := quota.NewMemory()
		lookupErr := errors.New("throttled")
		svc.Fail = map[string]error{"IsMember": lookupErr}

		sync := quota.NewSynchronizer(svc)
		err := sync.Migrate(context.Background(), "key-1", "QP-pro", "QP-exec")
		assert.ErrorIs(t, err, lookupErr)
	})

	t.Run("rejects empty identifiers", func(t *testing.T) {
		t.Parallel()
		sync := quota.NewSynchronizer(quota.NewMemory())
		ctx := context.Background()

		assert.ErrorIs(t, sync.Migrate(ctx, "", "QP-pro", "QP-exec"), quota.ErrEmptyCredentialID)
		assert.ErrorIs(t, sync.Migrate(ctx, "key-1", "", "QP-exec"), quota.ErrEmptyUsagePlanID)
		assert.ErrorIs(t, sync.Migrate(ctx, "key-1", "QP-pro", ""), quota.ErrEmptyUsagePlanID)
	})
}

func TestSynchronizer_EnsureAttached(t *testing.T) {
	t.Parallel()

	t.Run("attach skipped when already a member", func(t *testing.T) {
		t.Parallel()
		svc := quota.NewMemory()
		svc.SetMember("key-1", "QP-pro", true)

		sync := quota.NewSynchronizer(svc)
		require.NoError(t, sync.EnsureAttached(context.Background(), "key-1", "QP-pro"))
		assert.Zero(t, svc.Calls("Attach"))
	})

	t.Run("attaches when not a member", func(t *testing.T) {
		t.Parallel()
		svc := quota.NewMemory()

		sync := quota.NewSynchronizer(svc)
		require.NoError(t, sync.EnsureAttached(context.Background(), "key-1", "QP-pro"))
		assert.True(t, svc.Member("key-1", "QP-pro"))
	})
}
