package subscription

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/msgdeck/msgdeck/internal/billing"
	"github.com/msgdeck/msgdeck/internal/bus"
	"github.com/msgdeck/msgdeck/internal/service/access"
	"github.com/msgdeck/msgdeck/internal/service/invoice"
	"github.com/msgdeck/msgdeck/internal/service/plan"
	"github.com/msgdeck/msgdeck/internal/service/usage"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

type Service struct {
	store     store.Store
	plans     *plan.Service
	invoices  *invoice.Generator
	guard     access.Authorizer
	publisher bus.Publisher
	now       func() time.Time
	logger    *zerolog.Logger
}

func New(
	s store.Store,
	plans *plan.Service,
	invoices *invoice.Generator,
	guard access.Authorizer,
	publisher bus.Publisher,
	logger *zerolog.Logger,
) *Service {
	log := logger.With().Str("channel", "subscription_service").Logger()

	return &Service{
		store:     s,
		plans:     plans,
		invoices:  invoices,
		guard:     guard,
		publisher: publisher,
		now:       time.Now,
		logger:    &log,
	}
}

// ===== Create =====

// Create subscribes the tenant to a plan. Free plans start active, plans with a trial start in
// trial, and the rest start pending with an invoice and payment awaiting settlement.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, params CreateParams) (*Result, error) {
	if err := s.guard.Authorize(ctx, userID, params.TenantID, access.Managers...); err != nil {
		return nil, err
	}

	p, err := s.plans.GetSubscribablePlan(ctx, params.PlanID)
	if err != nil {
		return nil, err
	}

	start := s.now()
	if params.StartDate != nil {
		start = *params.StartDate
	}

	end, err := billing.PeriodEnd(start, p.BillingCycle)
	if err != nil {
		return nil, err
	}

	sub := &store.Subscription{
		ID:                 uuid.New(),
		TenantID:           params.TenantID,
		PlanID:             p.ID,
		BillingAnchor:      start,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		Price:              p.Price,
		Currency:           p.Currency,
		Metadata:           maps.Clone(params.Metadata),
	}

	switch {
	case p.IsFree():
		sub.Status = store.SubscriptionActive
	case p.TrialDays > 0:
		sub.Status = store.SubscriptionTrial
		sub.TrialStart = lo.ToPtr(start)
		sub.TrialEnd = lo.ToPtr(billing.AddDays(start, p.TrialDays))
	default:
		sub.Status = store.SubscriptionPending
	}

	result := &Result{Subscription: sub, IsFree: p.IsFree()}

	var issued *invoice.Issued

	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Repositories) error {
		issued = nil

		if err := tx.Subscriptions().LockTenant(ctx, sub.TenantID); err != nil {
			return err
		}

		existing, err := tx.Subscriptions().FindTenantSubscription(ctx, sub.TenantID, store.LiveStatuses)
		switch {
		case err == nil:
			return apperr.Conflict("tenant already has a %s subscription %s", existing.Status, existing.ID)
		case !apperr.Is(err, apperr.KindNotFound):
			return err
		}

		if err := tx.Subscriptions().CreateSubscription(ctx, sub); err != nil {
			return err
		}

		result.Features = snapshotFeatures(sub.ID, p.Features)
		if err := tx.Features().CreateSubscriptionFeatures(ctx, result.Features); err != nil {
			return err
		}

		limits := make(map[string]*int64, len(plan.TrackedFeatures))
		for _, key := range plan.TrackedFeatures {
			limits[key], _ = plan.Ceiling(p, key)
		}

		if result.Usage, err = seedUsage(ctx, tx, sub, limits); err != nil {
			return err
		}

		if sub.Status == store.SubscriptionPending {
			issued, err = s.invoices.IssueForPeriod(ctx, tx, chargeFor(sub, p))
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if issued != nil {
		result.Invoice, result.Payment = issued.Invoice, issued.Payment
	}

	s.logger.Info().
		Str("subscription_id", sub.ID.String()).
		Str("tenant_id", sub.TenantID.String()).
		Str("plan", p.Name).
		Str("status", string(sub.Status)).
		Msg("subscription created")

	messages := []bus.Message{{Topic: bus.TopicSubscriptionCreated, Event: subscriptionEvent(sub)}}
	s.publish(append(messages, issued.Messages()...))

	return result, nil
}

// ===== Reads =====

func (s *Service) Get(ctx context.Context, userID, subscriptionID uuid.UUID) (*store.Subscription, error) {
	sub, err := s.store.Subscriptions().GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if err := s.guard.Authorize(ctx, userID, sub.TenantID, access.Readers...); err != nil {
		return nil, err
	}

	return sub, nil
}

// GetCurrent returns the tenant's most recent non-terminal subscription.
func (s *Service) GetCurrent(ctx context.Context, userID, tenantID uuid.UUID) (*store.Subscription, error) {
	if err := s.guard.Authorize(ctx, userID, tenantID, access.Readers...); err != nil {
		return nil, err
	}

	return s.store.Subscriptions().FindTenantSubscription(ctx, tenantID, CurrentStatuses)
}

// ListHistory returns every subscription the tenant ever held, newest first.
func (s *Service) ListHistory(ctx context.Context, userID, tenantID uuid.UUID) ([]*store.Subscription, error) {
	if err := s.guard.Authorize(ctx, userID, tenantID, access.Readers...); err != nil {
		return nil, err
	}

	return s.store.Subscriptions().ListTenantSubscriptions(ctx, tenantID)
}

func (s *Service) ListFeatures(ctx context.Context, userID, subscriptionID uuid.UUID) ([]store.SubscriptionFeature, error) {
	if _, err := s.Get(ctx, userID, subscriptionID); err != nil {
		return nil, err
	}

	return s.store.Features().ListSubscriptionFeatures(ctx, subscriptionID)
}

// ===== helpers =====

// authorizeSubscription resolves the owning tenant of a subscription and checks the caller's role.
func (s *Service) authorizeSubscription(ctx context.Context, userID, subscriptionID uuid.UUID, roles []store.Role) error {
	sub, err := s.store.Subscriptions().GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	return s.guard.Authorize(ctx, userID, sub.TenantID, roles...)
}

func (s *Service) publish(messages []bus.Message) {
	if err := bus.PublishAll(s.publisher, messages); err != nil {
		s.logger.Error().Err(err).Msg("unable to publish subscription events")
	}
}

func snapshotFeatures(subscriptionID uuid.UUID, features []store.PlanFeature) []store.SubscriptionFeature {
	return lo.Map(features, func(f store.PlanFeature, _ int) store.SubscriptionFeature {
		return store.SubscriptionFeature{
			ID:             uuid.New(),
			SubscriptionID: subscriptionID,
			Key:            f.Key,
			Name:           f.Name,
			Value:          f.Value,
			Enabled:        f.Enabled,
		}
	})
}

// seedUsage creates a counter for every tracked feature in the subscription's current period.
func seedUsage(
	ctx context.Context,
	tx store.Repositories,
	sub *store.Subscription,
	limits map[string]*int64,
) ([]*store.SubscriptionUsage, error) {
	counters := make([]*store.SubscriptionUsage, 0, len(plan.TrackedFeatures))

	for _, key := range plan.TrackedFeatures {
		counter, err := usage.InitializeUsage(
			ctx,
			tx.Usage(),
			sub.ID,
			key,
			limits[key],
			sub.CurrentPeriodStart,
			sub.CurrentPeriodEnd,
		)
		if err != nil {
			return nil, err
		}

		counters = append(counters, counter)
	}

	return counters, nil
}

func chargeFor(sub *store.Subscription, p *store.Plan) invoice.Charge {
	return invoice.Charge{
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		PlanID:         p.ID,
		PlanName:       p.Name,
		Price:          sub.Price,
		Currency:       sub.Currency,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
	}
}

func subscriptionEvent(sub *store.Subscription) bus.Event {
	return bus.Event{
		TenantID:       sub.TenantID,
		SubscriptionID: lo.ToPtr(sub.ID),
		Status:         string(sub.Status),
		Amount:         sub.Price.StringFixed(2),
		Currency:       sub.Currency,
		Details: map[string]any{
			"plan_id":              sub.PlanID.String(),
			"current_period_start": sub.CurrentPeriodStart,
			"current_period_end":   sub.CurrentPeriodEnd,
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
		},
		OccurredAt: sub.UpdatedAt,
	}
}
