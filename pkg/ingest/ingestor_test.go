package ingest_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridshot/tierkit/pkg/catalog"
	"github.com/gridshot/tierkit/pkg/ingest"
	"github.com/gridshot/tierkit/pkg/payment"
	"github.com/gridshot/tierkit/pkg/quota"
	"github.com/gridshot/tierkit/pkg/secretstore"
	"github.com/gridshot/tierkit/pkg/subscription"
)

const signingSecret = "whsec_test"

// fakeVerifier approves every transaction unless an error is injected.
type fakeVerifier struct {
	err   error
	calls int
}

func (v *fakeVerifier) VerifyTransaction(_ context.Context, txID string) (*payment.Transaction, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return &payment.Transaction{ID: txID, Status: payment.StatusSuccessful}, nil
}

type fixture struct {
	ingestor *ingest.Ingestor
	store    *subscription.Memory
	quota    *quota.Memory
	verifier *fakeVerifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	secrets := secretstore.NewMemory(map[string]string{
		"webhook-secret": signingSecret,
		"plan-catalog":   `{"free":"QP-free","pro":"QP-pro","executive":"QP-exec"}`,
	})
	f := &fixture{
		store:    subscription.NewMemory(),
		quota:    quota.NewMemory(),
		verifier: &fakeVerifier{},
	}
	f.ingestor = ingest.NewIngestor(
		secrets, "webhook-secret", f.verifier, f.store, f.quota,
		catalog.NewSource(secrets, "plan-catalog"),
	)
	return f
}

func chargeEvent(t *testing.T, tier string, billedAt time.Time) []byte {
	t.Helper()
	payload, err := json.Marshal(ingest.Event{
		Type:          ingest.EventTypeChargeCompleted,
		TransactionID: "tx-1",
		Status:        payment.StatusSuccessful,
		BilledAt:      billedAt,
		Metadata: ingest.EventMetadata{
			OwnerID:   "owner-1",
			ProjectID: "p0",
			Tier:      tier,
		},
		Card: ingest.EventCard{Token: "tok-1", Expiry: "12/27"},
	})
	require.NoError(t, err)
	return payload
}

func TestIngestor_Process(t *testing.T) {
	t.Parallel()

	billedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("provisions a new subscriber", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		payload := chargeEvent(t, "pro", billedAt)

		err := f.ingestor.Process(context.Background(), payload, ingest.SignPayload(signingSecret, payload))
		require.NoError(t, err)

		sub, err := f.store.Get(context.Background(), "owner-1", "p0")
		require.NoError(t, err)
		assert.Equal(t, catalog.TierPro, sub.Tier)
		assert.Equal(t, subscription.StatusActivePro, sub.Status)
		assert.Equal(t, "QP-pro", sub.UsagePlanID)
		assert.Equal(t, "tok-1", sub.Card.Token)
		assert.Equal(t, billedAt, sub.BilledAt)
		assert.Equal(t, billedAt.AddDate(0, 1, 0), sub.NextPaymentAt)

		require.NotEmpty(t, sub.CredentialID)
		assert.True(t, f.quota.Member(sub.CredentialID, "QP-pro"))
		assert.True(t, f.quota.Enabled(sub.CredentialID))
		assert.Equal(t, 1, f.verifier.calls)
	})

	t.Run("upgrades an existing subscriber", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.store.Put(ctx, &subscription.Subscription{
			OwnerID: "owner-1", ProjectID: "p0",
			Tier:         catalog.TierPro,
			Status:       subscription.StatusActivePro,
			CredentialID: "key-1",
			UsagePlanID:  "QP-pro",
		}))
		f.quota.SetMember("key-1", "QP-pro", true)

		payload := chargeEvent(t, "executive", billedAt)
		require.NoError(t, f.ingestor.Process(ctx, payload, ingest.SignPayload(signingSecret, payload)))

		sub, err := f.store.Get(ctx, "owner-1", "p0")
		require.NoError(t, err)
		assert.Equal(t, catalog.TierExecutive, sub.Tier)
		assert.Equal(t, subscription.StatusActiveExecutive, sub.Status)
		assert.Equal(t, "QP-exec", sub.UsagePlanID)
		assert.Equal(t, billedAt.AddDate(0, 1, 0), sub.NextPaymentAt)

		// The credential moved plans instead of being recreated.
		assert.Equal(t, "key-1", sub.CredentialID)
		assert.False(t, f.quota.Member("key-1", "QP-pro"))
		assert.True(t, f.quota.Member("key-1", "QP-exec"))
		assert.Zero(t, f.quota.Calls("CreateCredential"))
		// The subscriber was never inactive, so enablement is untouched.
		assert.Zero(t, f.quota.Calls("SetEnabled"))
	})

	t.Run("reactivates a disabled subscriber", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.store.Put(ctx, &subscription.Subscription{
			OwnerID: "owner-1", ProjectID: "p0",
			Tier:         catalog.TierPro,
			Status:       subscription.StatusInactive,
			CredentialID: "key-1",
			UsagePlanID:  "QP-pro",
		}))
		f.quota.SetMember("key-1", "QP-pro", true)

		payload := chargeEvent(t, "pro", billedAt)
		require.NoError(t, f.ingestor.Process(ctx, payload, ingest.SignPayload(signingSecret, payload)))

		sub, err := f.store.Get(ctx, "owner-1", "p0")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActivePro, sub.Status)
		assert.True(t, f.quota.Enabled("key-1"))
	})

	t.Run("rejects a forged signature", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		payload := chargeEvent(t, "pro", billedAt)

		err := f.ingestor.Process(context.Background(), payload, "deadbeef")
		assert.ErrorIs(t, err, ingest.ErrSignatureMismatch)
		assert.Zero(t, f.verifier.calls)
	})

	t.Run("rejects a missing signature", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		payload := chargeEvent(t, "pro", billedAt)

		err := f.ingestor.Process(context.Background(), payload, "")
		assert.ErrorIs(t, err, ingest.ErrMissingSignature)
	})

	t.Run("rejects a non-successful event", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		payload, err := json.Marshal(ingest.Event{
			Type:          ingest.EventTypeChargeCompleted,
			TransactionID: "tx-1",
			Status:        "failed",
			Metadata:      ingest.EventMetadata{OwnerID: "owner-1", ProjectID: "p0", Tier: "pro"},
		})
		require.NoError(t, err)

		err = f.ingestor.Process(context.Background(), payload, ingest.SignPayload(signingSecret, payload))
		assert.ErrorIs(t, err, ingest.ErrEventNotSuccessful)
	})

	t.Run("rejects an unverifiable transaction", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.verifier.err = payment.ErrTransactionNotVerified
		payload := chargeEvent(t, "pro", billedAt)

		err := f.ingestor.Process(context.Background(), payload, ingest.SignPayload(signingSecret, payload))
		assert.ErrorIs(t, err, payment.ErrTransactionNotVerified)
		_, err = f.store.Get(context.Background(), "owner-1", "p0")
		assert.ErrorIs(t, err, subscription.ErrNotFound)
	})

	t.Run("rejects mismatched plan metadata", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		payload, err := json.Marshal(ingest.Event{
			Type:          ingest.EventTypeChargeCompleted,
			TransactionID: "tx-1",
			Status:        payment.StatusSuccessful,
			Metadata: ingest.EventMetadata{
				OwnerID: "owner-1", ProjectID: "p0",
				Tier:        "pro",
				UsagePlanID: "QP-exec", // checkout and catalog disagree
			},
		})
		require.NoError(t, err)

		err = f.ingestor.Process(context.Background(), payload, ingest.SignPayload(signingSecret, payload))
		assert.ErrorIs(t, err, ingest.ErrPlanMetadataInvalid)
	})
}

func TestParseEvent(t *testing.T) {
	t.Parallel()

	t.Run("unsupported event type", func(t *testing.T) {
		t.Parallel()
		_, err := ingest.ParseEvent([]byte(`{"event_type":"refund.created","transaction_id":"tx-1"}`))
		assert.ErrorIs(t, err, ingest.ErrUnsupportedEvent)
	})

	t.Run("missing transaction ID", func(t *testing.T) {
		t.Parallel()
		_, err := ingest.ParseEvent([]byte(`{"event_type":"charge.completed","metadata":{"owner_id":"o","project_id":"p","tier":"pro"}}`))
		assert.ErrorIs(t, err, ingest.ErrInvalidEvent)
	})

	t.Run("unknown tier", func(t *testing.T) {
		t.Parallel()
		_, err := ingest.ParseEvent([]byte(`{"event_type":"charge.completed","transaction_id":"tx-1","metadata":{"owner_id":"o","project_id":"p","tier":"platinum"}}`))
		assert.ErrorIs(t, err, ingest.ErrInvalidEvent)
	})

	t.Run("not JSON", func(t *testing.T) {
		t.Parallel()
		_, err := ingest.ParseEvent([]byte("not json"))
		assert.ErrorIs(t, err, ingest.ErrInvalidEvent)
	})
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"event_type":"charge.completed"}`)
	sig := ingest.SignPayload(signingSecret, payload)

	assert.NoError(t, ingest.VerifySignature(signingSecret, payload, sig))
	assert.ErrorIs(t, ingest.VerifySignature(signingSecret, []byte("tampered"), sig), ingest.ErrSignatureMismatch)
	assert.ErrorIs(t, ingest.VerifySignature("", payload, sig), ingest.ErrMissingSecret)

	assert.ErrorIs(t, ingest.VerifySignature(signingSecret, payload, ""), ingest.ErrMissingSignature)
}
