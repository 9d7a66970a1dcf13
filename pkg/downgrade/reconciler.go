package downgrade

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gridshot/tierkit/pkg/catalog"
	"github.com/gridshot/tierkit/pkg/queue"
	"github.com/gridshot/tierkit/pkg/quota"
	"github.com/gridshot/tierkit/pkg/subscription"
)

// DefaultFreeTierLimit is the per-owner ceiling on active free-tier
// subscriptions.
const DefaultFreeTierLimit = 3

// Reconciler applies the per-owner free-tier quota invariant to queued
// downgrade candidates.
type Reconciler struct {
	store   subscription.Store
	quota   quota.Service
	sync    *quota.Synchronizer
	catalog *catalog.Source
	limit   int32
	logger  *slog.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithFreeTierLimit overrides the per-owner free-tier quota.
func WithFreeTierLimit(limit int32) ReconcilerOption {
	return func(r *Reconciler) {
		if limit > 0 {
			r.limit = limit
		}
	}
}

// WithLogger sets the reconciler's logger.
func WithLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReconciler creates a downgrade Reconciler.
func NewReconciler(store subscription.Store, quotaSvc quota.Service, catalogSrc *catalog.Source, opts ...ReconcilerOption) *Reconciler {
	if store == nil {
		panic("downgrade: subscription.Store is required")
	}
	if quotaSvc == nil {
		panic("downgrade: quota.Service is required")
	}
	if catalogSrc == nil {
		panic("downgrade: catalog.Source is required")
	}

	r := &Reconciler{
		store:   store,
		quota:   quotaSvc,
		catalog: catalogSrc,
		limit:   DefaultFreeTierLimit,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sync = quota.NewSynchronizer(quotaSvc, quota.WithLogger(r.logger))
	return r
}

// ProcessBatch reconciles one batch of candidate messages. Items are
// processed concurrently with per-item isolation; the returned result names
// exactly the messages that failed. A catalog load failure is fatal to the
// whole invocation since no item can proceed without the free plan ID.
func (r *Reconciler) ProcessBatch(ctx context.Context, msgs []queue.Message) (*queue.BatchResult, error) {
	cat, err := r.catalog.Load(ctx)
	if err != nil {
		return nil, err
	}

	freePlanID, err := cat.PlanID(catalog.TierFree)
	if err != nil {
		return nil, err
	}

	return queue.Fanout(ctx, msgs, func(ctx context.Context, msg queue.Message) error {
		cand, err := DecodeCandidate(msg.Body)
		if err != nil {
			return err
		}
		return r.reconcile(ctx, cand, freePlanID)
	}, r.logger), nil
}

// reconcile demotes or disables a single candidate.
func (r *Reconciler) reconcile(ctx context.Context, cand Candidate, freePlanID string) error {
	// The snapshot may be stale; the stored record is the only ground truth
	// for mutation decisions.
	sub, err := r.store.Get(ctx, cand.OwnerID, cand.ProjectID)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			return errors.Join(ErrMissingRecord, err)
		}
		return err
	}

	quotaReached := true
	count, err := r.store.CountActiveFree(ctx, cand.OwnerID, r.limit)
	if err != nil {
		// Fail safe toward disabling rather than toward an unbounded free
		// tier.
		r.logger.WarnContext(ctx, "free-tier count failed, treating quota as reached",
			slog.String("owner_id", cand.OwnerID),
			slog.String("error", err.Error()))
	} else {
		quotaReached = int32(count) >= r.limit
	}

	if !quotaReached {
		return r.demoteToFree(ctx, sub, freePlanID)
	}
	return r.disable(ctx, sub)
}

func (r *Reconciler) demoteToFree(ctx context.Context, sub *subscription.Subscription, freePlanID string) error {
	if err := r.sync.Migrate(ctx, sub.CredentialID, sub.UsagePlanID, freePlanID); err != nil {
		return err
	}

	tier := catalog.TierFree
	status := subscription.StatusActiveFree
	if err := r.store.Update(ctx, sub.OwnerID, sub.ProjectID, subscription.Changes{
		Tier:        &tier,
		Status:      &status,
		UsagePlanID: &freePlanID,
	}); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "subscription demoted to free tier",
		slog.String("owner_id", sub.OwnerID),
		slog.String("project_id", sub.ProjectID))
	return nil
}

// disable turns the credential off without touching its plan membership.
// The stored tier field is deliberately left as-is; the next webhook event
// for this subscription corrects it.
func (r *Reconciler) disable(ctx context.Context, sub *subscription.Subscription) error {
	if err := r.quota.SetEnabled(ctx, sub.CredentialID, false); err != nil {
		return err
	}

	status := subscription.StatusInactive
	if err := r.store.Update(ctx, sub.OwnerID, sub.ProjectID, subscription.Changes{
		Status: &status,
	}); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "credential disabled, free-tier quota reached",
		slog.String("owner_id", sub.OwnerID),
		slog.String("project_id", sub.ProjectID),
		slog.String("credential_id", sub.CredentialID))
	return nil
}
