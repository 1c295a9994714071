package subscription

import (
	"context"
	"maps"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/msgdeck/msgdeck/internal/billing"
	"github.com/msgdeck/msgdeck/internal/bus"
	"github.com/msgdeck/msgdeck/internal/service/access"
	"github.com/msgdeck/msgdeck/internal/service/invoice"
	"github.com/msgdeck/msgdeck/internal/service/plan"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/samber/lo"
)

// Renew advances the subscription by one cycle starting at the previous period end.
// Every tracked feature gets a fresh counter for the new period; paid subscriptions are billed again.
func (s *Service) Renew(ctx context.Context, userID, subscriptionID uuid.UUID) (*Result, error) {
	if err := s.authorizeSubscription(ctx, userID, subscriptionID, access.Managers); err != nil {
		return nil, err
	}

	var (
		result *Result
		issued *invoice.Issued
	)

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Repositories) error {
		issued = nil

		sub, err := tx.Subscriptions().GetSubscriptionForUpdate(ctx, subscriptionID)
		if err != nil {
			return err
		}

		if sub.Status.Terminal() {
			return apperr.BadRequest("subscription is %s and cannot be renewed", sub.Status)
		}

		if err := tx.Subscriptions().LockTenant(ctx, sub.TenantID); err != nil {
			return err
		}

		p, err := tx.Plans().GetPlan(ctx, sub.PlanID)
		if err != nil {
			return err
		}

		anchor := sub.BillingAnchor
		if anchor.IsZero() {
			anchor = sub.CurrentPeriodStart
		}

		start := sub.CurrentPeriodEnd
		end, err := billing.NextPeriodEnd(anchor, start, p.BillingCycle)
		if err != nil {
			return err
		}

		limits, err := carriedLimits(ctx, tx, sub, p)
		if err != nil {
			return err
		}

		sub.CurrentPeriodStart = start
		sub.CurrentPeriodEnd = end
		sub.Status = store.SubscriptionActive
		sub.CancelAtPeriodEnd = false

		if err := tx.Subscriptions().UpdateSubscription(ctx, sub); err != nil {
			return err
		}

		counters, err := seedUsage(ctx, tx, sub, limits)
		if err != nil {
			return err
		}

		result = &Result{Subscription: sub, Usage: counters, IsFree: sub.IsFree()}

		if !sub.IsFree() {
			if issued, err = s.invoices.IssueForPeriod(ctx, tx, chargeFor(sub, p)); err != nil {
				return err
			}

			result.Invoice, result.Payment = issued.Invoice, issued.Payment
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sub := result.Subscription

	s.logger.Info().
		Str("subscription_id", sub.ID.String()).
		Time("period_start", sub.CurrentPeriodStart).
		Time("period_end", sub.CurrentPeriodEnd).
		Msg("subscription renewed")

	messages := []bus.Message{{Topic: bus.TopicSubscriptionRenewed, Event: subscriptionEvent(sub)}}
	s.publish(append(messages, issued.Messages()...))

	return result, nil
}

// carriedLimits keeps the limits of the ending period and falls back to plan ceilings
// for features that had no counter.
func carriedLimits(ctx context.Context, tx store.Repositories, sub *store.Subscription, p *store.Plan) (map[string]*int64, error) {
	previous, err := tx.Usage().ListPeriodUsage(ctx, sub.ID, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	if err != nil {
		return nil, err
	}

	byKey := lo.KeyBy(previous, func(u *store.SubscriptionUsage) string { return u.FeatureKey })

	limits := make(map[string]*int64, len(plan.TrackedFeatures))
	for _, key := range plan.TrackedFeatures {
		if counter, ok := byKey[key]; ok {
			limits[key] = counter.Limit
			continue
		}

		limits[key], _ = plan.Ceiling(p, key)
	}

	return limits, nil
}

// Cancel either schedules cancellation at the end of the current period or cancels immediately.
func (s *Service) Cancel(ctx context.Context, userID, subscriptionID uuid.UUID, cancelAtPeriodEnd bool) (*store.Subscription, error) {
	if err := s.authorizeSubscription(ctx, userID, subscriptionID, access.Managers); err != nil {
		return nil, err
	}

	var sub *store.Subscription

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		if sub, err = tx.Subscriptions().GetSubscriptionForUpdate(ctx, subscriptionID); err != nil {
			return err
		}

		if sub.Status.Terminal() {
			return apperr.BadRequest("subscription is already %s", sub.Status)
		}

		if cancelAtPeriodEnd {
			sub.CancelAtPeriodEnd = true
		} else {
			sub.Status = store.SubscriptionCancelled
			sub.CancelledAt = lo.ToPtr(s.now())
		}

		return tx.Subscriptions().UpdateSubscription(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("subscription_id", sub.ID.String()).
		Bool("at_period_end", cancelAtPeriodEnd).
		Msg("subscription cancelled")

	s.publish([]bus.Message{{Topic: bus.TopicSubscriptionCancelled, Event: subscriptionEvent(sub)}})

	return sub, nil
}

// Update applies an administrative patch. Status may be set to any known status;
// setting cancelled stamps CancelledAt. Metadata keys are merged into the existing ones.
func (s *Service) Update(ctx context.Context, userID, subscriptionID uuid.UUID, params UpdateParams) (*store.Subscription, error) {
	if params.Status != nil && !params.Status.Valid() {
		return nil, apperr.BadRequest("unknown subscription status %q", *params.Status)
	}

	if err := s.authorizeSubscription(ctx, userID, subscriptionID, access.Managers); err != nil {
		return nil, err
	}

	var (
		sub       *store.Subscription
		cancelled bool
	)

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		if sub, err = tx.Subscriptions().GetSubscriptionForUpdate(ctx, subscriptionID); err != nil {
			return err
		}

		if params.Status != nil && *params.Status != sub.Status {
			if params.Status.Live() {
				if err := tx.Subscriptions().LockTenant(ctx, sub.TenantID); err != nil {
					return err
				}
			}

			sub.Status = *params.Status
			if sub.Status == store.SubscriptionCancelled {
				sub.CancelledAt = lo.ToPtr(s.now())
				cancelled = true
			}
		}

		if params.CancelAtPeriodEnd != nil {
			sub.CancelAtPeriodEnd = *params.CancelAtPeriodEnd
		}

		if len(params.Metadata) > 0 {
			if sub.Metadata == nil {
				sub.Metadata = make(map[string]any, len(params.Metadata))
			}
			maps.Copy(sub.Metadata, params.Metadata)
		}

		return tx.Subscriptions().UpdateSubscription(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("subscription_id", sub.ID.String()).
		Str("status", string(sub.Status)).
		Msg("subscription updated")

	if cancelled {
		s.publish([]bus.Message{{Topic: bus.TopicSubscriptionCancelled, Event: subscriptionEvent(sub)}})
	}

	return sub, nil
}
