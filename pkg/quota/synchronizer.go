package quota

import (
	"context"
	"log/slog"
)

// Synchronizer moves a credential between usage plans. It is the single
// place that mutates credential membership. Every step checks current
// membership before mutating, so Migrate converges to the same end state no
// matter how many times it is re-run after a partial failure.
type Synchronizer struct {
	svc    Service
	logger *slog.Logger
}

// SynchronizerOption configures a Synchronizer.
type SynchronizerOption func(*Synchronizer)

// WithLogger sets the logger used by the Synchronizer.
func WithLogger(logger *slog.Logger) SynchronizerOption {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSynchronizer creates a Synchronizer over the given quota service.
func NewSynchronizer(svc Service, opts ...SynchronizerOption) *Synchronizer {
	if svc == nil {
		panic("quota: Service is required")
	}

	s := &Synchronizer{
		svc:    svc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate moves the credential from currentPlanID to targetPlanID. When the
// two are equal no membership calls are made at all; a renewed subscription
// that keeps its tier is a pure no-op here.
func (s *Synchronizer) Migrate(ctx context.Context, credentialID, currentPlanID, targetPlanID string) error {
	if credentialID == "" {
		return ErrEmptyCredentialID
	}
	if currentPlanID == "" || targetPlanID == "" {
		return ErrEmptyUsagePlanID
	}

	if currentPlanID == targetPlanID {
		return nil
	}

	if err := s.EnsureDetached(ctx, credentialID, currentPlanID); err != nil {
		return err
	}

	if err := s.EnsureAttached(ctx, credentialID, targetPlanID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "credential migrated between usage plans",
		slog.String("credential_id", credentialID),
		slog.String("from_plan", currentPlanID),
		slog.String("to_plan", targetPlanID))

	return nil
}

// EnsureDetached removes the credential from the plan if it is still a
// member. A prior interrupted run may already have removed it, in which
// case the detach is skipped.
func (s *Synchronizer) EnsureDetached(ctx context.Context, credentialID, planID string) error {
	member, err := s.svc.IsMember(ctx, credentialID, planID)
	if err != nil {
		return err
	}

	if !member {
		s.logger.DebugContext(ctx, "credential already detached, skipping",
			slog.String("credential_id", credentialID),
			slog.String("plan_id", planID))
		return nil
	}

	return s.svc.Detach(ctx, credentialID, planID)
}

// EnsureAttached adds the credential to the plan unless it is already a
// member.
func (s *Synchronizer) EnsureAttached(ctx context.Context, credentialID, planID string) error {
	member, err := s.svc.IsMember(ctx, credentialID, planID)
	if err != nil {
		return err
	}

	if member {
		s.logger.DebugContext(ctx, "credential already attached, skipping",
			slog.String("credential_id", credentialID),
			slog.String("plan_id", planID))
		return nil
	}

	return s.svc.Attach(ctx, credentialID, planID)
}
