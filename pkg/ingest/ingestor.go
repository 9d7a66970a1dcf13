package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridshot/tierkit/pkg/catalog"
	"github.com/gridshot/tierkit/pkg/payment"
	"github.com/gridshot/tierkit/pkg/quota"
	"github.com/gridshot/tierkit/pkg/secretstore"
	"github.com/gridshot/tierkit/pkg/subscription"
)

// TransactionVerifier re-checks a reported transaction with the gateway.
type TransactionVerifier interface {
	VerifyTransaction(ctx context.Context, txID string) (*payment.Transaction, error)
}

// Ingestor processes verified payment webhooks into subscription state.
type Ingestor struct {
	secrets    secretstore.Store
	secretName string
	gateway    TransactionVerifier
	store      subscription.Store
	quota      quota.Service
	sync       *quota.Synchronizer
	catalog    *catalog.Source
	logger     *slog.Logger
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithLogger sets the ingestor's logger.
func WithLogger(logger *slog.Logger) IngestorOption {
	return func(i *Ingestor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewIngestor creates a webhook Ingestor. secretName is the signing secret's
// name in the secret store.
func NewIngestor(
	secrets secretstore.Store,
	secretName string,
	gateway TransactionVerifier,
	store subscription.Store,
	quotaSvc quota.Service,
	catalogSrc *catalog.Source,
	opts ...IngestorOption,
) *Ingestor {
	if secrets == nil {
		panic("ingest: secretstore.Store is required")
	}
	if gateway == nil {
		panic("ingest: TransactionVerifier is required")
	}
	if store == nil {
		panic("ingest: subscription.Store is required")
	}
	if quotaSvc == nil {
		panic("ingest: quota.Service is required")
	}
	if catalogSrc == nil {
		panic("ingest: catalog.Source is required")
	}

	i := &Ingestor{
		secrets:    secrets,
		secretName: secretName,
		gateway:    gateway,
		store:      store,
		quota:      quotaSvc,
		catalog:    catalogSrc,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.sync = quota.NewSynchronizer(quotaSvc, quota.WithLogger(i.logger))
	return i
}

// Process handles one webhook delivery. Any failure propagates whole; the
// gateway retries the entire delivery, so no partial-success state is
// surfaced.
func (i *Ingestor) Process(ctx context.Context, payload []byte, signature string) error {
	secret, err := i.secrets.GetSecret(ctx, i.secretName)
	if err != nil {
		return err
	}
	if err := VerifySignature(secret, payload, signature); err != nil {
		return err
	}

	ev, err := ParseEvent(payload)
	if err != nil {
		return err
	}
	if ev.Status != payment.StatusSuccessful {
		return fmt.Errorf("%w: status %q", ErrEventNotSuccessful, ev.Status)
	}

	// Never trust a "successful" event on its own.
	if _, err := i.gateway.VerifyTransaction(ctx, ev.TransactionID); err != nil {
		return err
	}

	tier := catalog.Tier(ev.Metadata.Tier)
	cat, err := i.catalog.Load(ctx)
	if err != nil {
		return err
	}
	targetPlanID, err := cat.PlanID(tier)
	if err != nil {
		return err
	}
	if ev.Metadata.UsagePlanID != "" && ev.Metadata.UsagePlanID != targetPlanID {
		return fmt.Errorf("%w: got %q, catalog has %q for tier %q",
			ErrPlanMetadataInvalid, ev.Metadata.UsagePlanID, targetPlanID, tier)
	}

	sub, err := i.store.Get(ctx, ev.Metadata.OwnerID, ev.Metadata.ProjectID)
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		return i.create(ctx, ev, tier, targetPlanID)
	case err != nil:
		return err
	default:
		return i.update(ctx, ev, sub, tier, targetPlanID)
	}
}

// create provisions a credential and persists a brand-new subscription.
func (i *Ingestor) create(ctx context.Context, ev Event, tier catalog.Tier, planID string) error {
	status, err := subscription.ActiveStatusFor(tier)
	if err != nil {
		return err
	}

	credentialID, err := i.quota.CreateCredential(ctx, ev.Metadata.OwnerID+"-"+ev.Metadata.ProjectID)
	if err != nil {
		return err
	}

	if err := i.sync.EnsureAttached(ctx, credentialID, planID); err != nil {
		return err
	}

	billedAt := ev.BilledAt
	if billedAt.IsZero() {
		billedAt = time.Now().UTC()
	}

	sub := &subscription.Subscription{
		OwnerID:       ev.Metadata.OwnerID,
		ProjectID:     ev.Metadata.ProjectID,
		Tier:          tier,
		Status:        status,
		CredentialID:  credentialID,
		UsagePlanID:   planID,
		Card:          subscription.Card{Token: ev.Card.Token, Expiry: ev.Card.Expiry},
		BilledAt:      billedAt,
		NextPaymentAt: billedAt.AddDate(0, 1, 0),
		CreatedAt:     time.Now().UTC(),
	}
	if err := i.store.Put(ctx, sub); err != nil {
		return err
	}

	i.logger.InfoContext(ctx, "subscription created",
		slog.String("owner_id", sub.OwnerID),
		slog.String("project_id", sub.ProjectID),
		slog.String("tier", string(tier)))
	return nil
}

// update migrates the existing credential to the paid-for plan, re-enables
// it if the subscription was inactive, and rolls the billing dates forward.
func (i *Ingestor) update(ctx context.Context, ev Event, sub *subscription.Subscription, tier catalog.Tier, planID string) error {
	status, err := subscription.ActiveStatusFor(tier)
	if err != nil {
		return err
	}

	if err := i.sync.Migrate(ctx, sub.CredentialID, sub.UsagePlanID, planID); err != nil {
		return err
	}

	// Enablement is orthogonal to plan membership and only needs touching
	// on reactivation.
	if sub.Status == subscription.StatusInactive {
		if err := i.quota.SetEnabled(ctx, sub.CredentialID, true); err != nil {
			return err
		}
	}

	billedAt := ev.BilledAt
	if billedAt.IsZero() {
		billedAt = time.Now().UTC()
	}
	nextPayment := billedAt.AddDate(0, 1, 0)
	card := subscription.Card{Token: ev.Card.Token, Expiry: ev.Card.Expiry}

	if err := i.store.Update(ctx, sub.OwnerID, sub.ProjectID, subscription.Changes{
		Tier:          &tier,
		Status:        &status,
		UsagePlanID:   &planID,
		Card:          &card,
		BilledAt:      &billedAt,
		NextPaymentAt: &nextPayment,
	}); err != nil {
		return err
	}

	i.logger.InfoContext(ctx, "subscription updated",
		slog.String("owner_id", sub.OwnerID),
		slog.String("project_id", sub.ProjectID),
		slog.String("from_tier", string(sub.Tier)),
		slog.String("to_tier", string(tier)))
	return nil
}
