package renewal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridshot/tierkit/pkg/catalog"
	"github.com/gridshot/tierkit/pkg/downgrade"
	"github.com/gridshot/tierkit/pkg/payment"
	"github.com/gridshot/tierkit/pkg/queue"
	"github.com/gridshot/tierkit/pkg/subscription"
)

const (
	// DefaultPageSize bounds one due-subscription scan page per tier.
	DefaultPageSize = 1000

	// maxChargeAttempts caps charge attempts per subscription per cycle.
	// The system guarantees at most two attempts, never exactly-once.
	maxChargeAttempts = 2

	// DefaultRetryDelay is the fixed pause between the two attempts.
	DefaultRetryDelay = time.Second
)

// Gateway is the payment gateway surface the driver needs.
type Gateway interface {
	ListPlans(ctx context.Context) ([]payment.BillingPlan, error)
	CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error)
}

// Driver runs one renewal invocation: scan, charge, escalate, continue.
type Driver struct {
	store      subscription.Store
	gateway    Gateway
	downgrades queue.Sender
	pageSize   int32
	retryDelay time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithPageSize overrides the scan page size.
func WithPageSize(n int32) DriverOption {
	return func(d *Driver) {
		if n > 0 {
			d.pageSize = n
		}
	}
}

// WithRetryDelay overrides the inter-attempt delay. Tests shrink it.
func WithRetryDelay(delay time.Duration) DriverOption {
	return func(d *Driver) {
		if delay >= 0 {
			d.retryDelay = delay
		}
	}
}

// WithNow overrides the clock for deterministic tests.
func WithNow(now func() time.Time) DriverOption {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLogger sets the driver's logger.
func WithLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDriver creates a renewal Driver.
func NewDriver(store subscription.Store, gateway Gateway, downgrades queue.Sender, opts ...DriverOption) *Driver {
	if store == nil {
		panic("renewal: subscription.Store is required")
	}
	if gateway == nil {
		panic("renewal: Gateway is required")
	}
	if downgrades == nil {
		panic("renewal: downgrade queue.Sender is required")
	}

	d := &Driver{
		store:      store,
		gateway:    gateway,
		downgrades: downgrades,
		pageSize:   DefaultPageSize,
		retryDelay: DefaultRetryDelay,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes one invocation. A nil cont means a fresh scheduled trigger;
// otherwise the scan resumes from the carried cursors. The returned
// continuation is nil once every tier's scan is exhausted. Billing plan
// resolution failures are fatal to the whole invocation: nothing can be
// charged without plan details.
func (d *Driver) Run(ctx context.Context, cont *Continuation) (*Continuation, error) {
	now := d.now()

	cursors := map[catalog.Tier]subscription.Cursor{}
	if cont != nil {
		cursors[catalog.TierPro] = cont.Pro
		cursors[catalog.TierExecutive] = cont.Executive
	}

	var due []subscription.Subscription
	next := Continuation{}
	for _, tier := range catalog.PaidTiers() {
		status, err := subscription.ActiveStatusFor(tier)
		if err != nil {
			return nil, err
		}

		subs, cursor, err := d.store.QueryDue(ctx, status, now, cursors[tier], d.pageSize)
		if err != nil {
			return nil, err
		}
		due = append(due, subs...)

		switch tier {
		case catalog.TierPro:
			next.Pro = cursor
		case catalog.TierExecutive:
			next.Executive = cursor
		}
	}

	if len(due) == 0 && next.IsZero() {
		d.logger.DebugContext(ctx, "no due subscriptions, renewal cycle complete")
		return nil, nil
	}

	if len(due) > 0 {
		plans, err := d.gateway.ListPlans(ctx)
		if err != nil {
			return nil, errors.Join(ErrFailedToListPlans, err)
		}

		d.logger.InfoContext(ctx, "charging due subscriptions",
			slog.Int("count", len(due)))

		// Fan out: each subscription's retry loop is sequential, but
		// different subscriptions charge concurrently. A failed item only
		// affects itself; escalation is a best-effort side channel.
		var wg sync.WaitGroup
		for i := range due {
			wg.Add(1)
			go func(sub *subscription.Subscription) {
				defer wg.Done()
				d.renewOne(ctx, sub, plans, now)
			}(&due[i])
		}
		wg.Wait()
	}

	if next.IsZero() {
		return nil, nil
	}
	return &next, nil
}

// renewOne attempts to charge a single subscription and escalates to the
// downgrade queue when the charge cannot succeed.
func (d *Driver) renewOne(ctx context.Context, sub *subscription.Subscription, plans []payment.BillingPlan, now time.Time) {
	plan, err := planForTier(plans, sub.Tier)
	if err != nil {
		// Unknown billing plan for the tier cannot resolve on retry either.
		d.logger.ErrorContext(ctx, "billing plan resolution failed, escalating",
			slog.String("owner_id", sub.OwnerID),
			slog.String("project_id", sub.ProjectID),
			slog.String("tier", string(sub.Tier)),
			slog.String("error", err.Error()))
		d.escalate(ctx, sub)
		return
	}

	req := payment.ChargeRequest{
		CardToken:      sub.Card.Token,
		Amount:         plan.Amount,
		Currency:       plan.Currency,
		Description:    fmt.Sprintf("%s plan renewal for %s/%s", sub.Tier, sub.OwnerID, sub.ProjectID),
		IdempotencyKey: renewalIdempotencyKey(sub, now),
	}

	for attempt := 1; ; attempt++ {
		_, err = d.gateway.CreateCharge(ctx, req)
		if err == nil {
			d.rollover(ctx, sub, now)
			return
		}

		if payment.IsTerminal(err) {
			d.logger.WarnContext(ctx, "charge rejected by gateway, escalating",
				slog.String("owner_id", sub.OwnerID),
				slog.String("project_id", sub.ProjectID),
				slog.String("error", err.Error()))
			d.escalate(ctx, sub)
			return
		}

		if attempt >= maxChargeAttempts {
			d.logger.WarnContext(ctx, "charge attempts exhausted, escalating",
				slog.String("owner_id", sub.OwnerID),
				slog.String("project_id", sub.ProjectID),
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()))
			d.escalate(ctx, sub)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.retryDelay):
		}
	}
}

// rollover advances the billing schedule after a successful charge. A
// failure here is logged, not escalated: the customer was charged and the
// next scan will retry the write path via redelivery.
func (d *Driver) rollover(ctx context.Context, sub *subscription.Subscription, now time.Time) {
	nextPayment := now.AddDate(0, 1, 0)
	if err := d.store.Update(ctx, sub.OwnerID, sub.ProjectID, subscription.Changes{
		BilledAt:      &now,
		NextPaymentAt: &nextPayment,
	}); err != nil {
		d.logger.ErrorContext(ctx, "billing rollover write failed",
			slog.String("owner_id", sub.OwnerID),
			slog.String("project_id", sub.ProjectID),
			slog.String("error", err.Error()))
		return
	}

	d.logger.InfoContext(ctx, "subscription renewed",
		slog.String("owner_id", sub.OwnerID),
		slog.String("project_id", sub.ProjectID),
		slog.String("tier", string(sub.Tier)))
}

// escalate enqueues a downgrade candidate. Send failures are logged and
// swallowed: downgrade is at-least-once best effort, never transactional
// with the charge outcome, and must not block sibling items.
func (d *Driver) escalate(ctx context.Context, sub *subscription.Subscription) {
	body, err := downgrade.NewCandidate(sub).Encode()
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to encode downgrade candidate",
			slog.String("owner_id", sub.OwnerID),
			slog.String("project_id", sub.ProjectID),
			slog.String("error", err.Error()))
		return
	}

	if err := d.downgrades.Send(ctx, body); err != nil {
		d.logger.ErrorContext(ctx, "failed to enqueue downgrade candidate",
			slog.String("owner_id", sub.OwnerID),
			slog.String("project_id", sub.ProjectID),
			slog.String("error", err.Error()))
	}
}

// Pump runs one invocation and, when a continuation comes back, sends it to
// the continuation queue so the next invocation resumes the scan. This is
// the thin dispatcher between the pure driver and the queue.
func Pump(ctx context.Context, d *Driver, continuations queue.Sender, cont *Continuation) error {
	next, err := d.Run(ctx, cont)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	body, err := next.Encode()
	if err != nil {
		return err
	}
	return continuations.Send(ctx, body)
}

func planForTier(plans []payment.BillingPlan, tier catalog.Tier) (payment.BillingPlan, error) {
	for _, plan := range plans {
		if plan.Name == string(tier) && plan.Active {
			return plan, nil
		}
	}
	return payment.BillingPlan{}, fmt.Errorf("%w: %q", ErrNoBillingPlan, tier)
}

// renewalIdempotencyKey dedupes gateway-side retries within one billing
// cycle without coordinating across invocations.
func renewalIdempotencyKey(sub *subscription.Subscription, now time.Time) string {
	cycle := sub.NextPaymentAt.UTC().Format("2006-01-02")
	if sub.NextPaymentAt.IsZero() {
		cycle = now.UTC().Format("2006-01-02")
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(sub.OwnerID+"/"+sub.ProjectID+"/"+cycle)).String()
}
