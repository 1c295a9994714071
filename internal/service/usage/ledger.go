package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/msgdeck/msgdeck/internal/service/access"
	"github.com/msgdeck/msgdeck/internal/service/plan"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// MeteredStatuses are the subscription statuses whose counters accept usage.
var MeteredStatuses = []store.SubscriptionStatus{store.SubscriptionTrial, store.SubscriptionActive}

const defaultHistoryLimit = 100

type Ledger struct {
	store  store.Store
	guard  access.Authorizer
	logger *zerolog.Logger
}

// LimitStatus is a read-only snapshot of a single counter.
// Limit and Remaining are nil for unlimited features.
type LimitStatus struct {
	FeatureKey string
	Allowed    bool
	Current    int64
	Limit      *int64
	Remaining  *int64
}

func New(s store.Store, guard access.Authorizer, logger *zerolog.Logger) *Ledger {
	log := logger.With().Str("channel", "usage_ledger").Logger()

	return &Ledger{
		store:  s,
		guard:  guard,
		logger: &log,
	}
}

// InitializeUsage creates the counter for the given period or returns the existing one.
// It accepts the repository explicitly so subscription workflows can call it inside their transaction.
func InitializeUsage(
	ctx context.Context,
	repo store.UsageRepository,
	subscriptionID uuid.UUID,
	featureKey string,
	limit *int64,
	periodStart, periodEnd time.Time,
) (*store.SubscriptionUsage, error) {
	err := repo.InsertUsageIfAbsent(ctx, &store.SubscriptionUsage{
		SubscriptionID: subscriptionID,
		FeatureKey:     featureKey,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}

	return repo.GetUsage(ctx, store.UsageKey{
		SubscriptionID: subscriptionID,
		FeatureKey:     featureKey,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
	})
}

// TrackUsage consumes incrementBy units of featureKey from the tenant's live subscription.
// The counter is never pushed beyond its limit; UsageLimitExceeded is returned instead.
func (l *Ledger) TrackUsage(
	ctx context.Context,
	userID, tenantID uuid.UUID,
	featureKey string,
	incrementBy int64,
	metadata map[string]any,
) (*store.SubscriptionUsage, error) {
	if err := l.guard.Authorize(ctx, userID, tenantID, access.Writers...); err != nil {
		return nil, err
	}

	if incrementBy <= 0 {
		return nil, apperr.BadRequest("increment must be positive, got %d", incrementBy)
	}

	if !plan.IsTracked(featureKey) {
		return nil, apperr.BadRequest("feature %q is not metered", featureKey)
	}

	var (
		counter *store.SubscriptionUsage
		applied bool
	)

	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx store.Repositories) error {
		sub, err := lockSubscription(ctx, tx, tenantID)
		if err != nil {
			return err
		}

		key := periodKey(sub, featureKey)

		if _, err := ensureCounter(ctx, tx, sub, key); err != nil {
			return err
		}

		counter, applied, err = tx.Usage().IncrementUsage(ctx, key, incrementBy)

		return err
	})
	if err != nil {
		return nil, err
	}

	if !applied {
		l.logger.Info().
			Str("tenant_id", tenantID.String()).
			Str("feature", featureKey).
			Int64("current", counter.UsageCount).
			Int64("increment", incrementBy).
			Msg("usage limit exceeded")

		return nil, apperr.UsageLimitExceeded(
			"%s limit reached: %d of %d used",
			featureKey, counter.UsageCount, lo.FromPtr(counter.Limit),
		)
	}

	l.logger.Debug().
		Str("tenant_id", tenantID.String()).
		Str("feature", featureKey).
		Int64("increment", incrementBy).
		Int64("usage", counter.UsageCount).
		Interface("metadata", metadata).
		Msg("usage tracked")

	return counter, nil
}

// CheckUsageLimit reports the counter state without changing it.
func (l *Ledger) CheckUsageLimit(ctx context.Context, userID, tenantID uuid.UUID, featureKey string) (*LimitStatus, error) {
	if err := l.guard.Authorize(ctx, userID, tenantID, access.Readers...); err != nil {
		return nil, err
	}

	if !plan.IsTracked(featureKey) {
		return nil, apperr.BadRequest("feature %q is not metered", featureKey)
	}

	sub, err := l.liveSubscription(ctx, tenantID)
	if apperr.Is(err, apperr.KindPreconditionFailed) {
		return &LimitStatus{
			FeatureKey: featureKey,
			Allowed:    false,
			Limit:      lo.ToPtr(int64(0)),
			Remaining:  lo.ToPtr(int64(0)),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	var (
		current int64
		limit   *int64
	)

	counter, err := l.store.Usage().GetUsage(ctx, periodKey(sub, featureKey))
	switch {
	case err == nil:
		current, limit = counter.UsageCount, counter.Limit
	case apperr.Is(err, apperr.KindNotFound):
		if limit, err = planCeiling(ctx, l.store, sub, featureKey); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	status := &LimitStatus{
		FeatureKey: featureKey,
		Allowed:    true,
		Current:    current,
		Limit:      limit,
	}

	if limit != nil {
		remaining := max(*limit-current, 0)
		status.Remaining = &remaining
		status.Allowed = remaining > 0
	}

	return status, nil
}

// GetUsageStats returns every counter of the live subscription's current period.
func (l *Ledger) GetUsageStats(ctx context.Context, userID, tenantID uuid.UUID) ([]*store.SubscriptionUsage, error) {
	if err := l.guard.Authorize(ctx, userID, tenantID, access.Readers...); err != nil {
		return nil, err
	}

	sub, err := l.liveSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return l.store.Usage().ListPeriodUsage(ctx, sub.ID, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
}

// GetUsageHistory returns counters of the live subscription across all periods, newest first.
func (l *Ledger) GetUsageHistory(ctx context.Context, userID, tenantID uuid.UUID, limit int) ([]*store.SubscriptionUsage, error) {
	if err := l.guard.Authorize(ctx, userID, tenantID, access.Readers...); err != nil {
		return nil, err
	}

	sub, err := l.store.Subscriptions().FindTenantSubscription(ctx, tenantID, store.LiveStatuses)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.PreconditionFailed("tenant has no subscription")
	}
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	return l.store.Usage().ListUsageHistory(ctx, sub.ID, limit)
}

func (l *Ledger) liveSubscription(ctx context.Context, tenantID uuid.UUID) (*store.Subscription, error) {
	return findMetered(ctx, l.store, tenantID)
}

func findMetered(ctx context.Context, repos store.Repositories, tenantID uuid.UUID) (*store.Subscription, error) {
	sub, err := repos.Subscriptions().FindTenantSubscription(ctx, tenantID, MeteredStatuses)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.PreconditionFailed("tenant has no active subscription")
	}

	return sub, err
}

// lockSubscription finds the tenant's metered subscription and holds a shared lock on it,
// so a renewal cannot move the period until the transaction ends. The locked row is
// re-checked because it may have changed between the lookup and the lock.
func lockSubscription(ctx context.Context, tx store.Repositories, tenantID uuid.UUID) (*store.Subscription, error) {
	found, err := findMetered(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}

	sub, err := tx.Subscriptions().GetSubscriptionForShare(ctx, found.ID)
	if err != nil {
		return nil, err
	}

	if !lo.Contains(MeteredStatuses, sub.Status) {
		return nil, apperr.PreconditionFailed("tenant has no active subscription")
	}

	return sub, nil
}

func ensureCounter(
	ctx context.Context,
	tx store.Repositories,
	sub *store.Subscription,
	key store.UsageKey,
) (*store.SubscriptionUsage, error) {
	counter, err := tx.Usage().GetUsage(ctx, key)
	if err == nil || !apperr.Is(err, apperr.KindNotFound) {
		return counter, err
	}

	limit, err := planCeiling(ctx, tx, sub, key.FeatureKey)
	if err != nil {
		return nil, err
	}

	return InitializeUsage(ctx, tx.Usage(), sub.ID, key.FeatureKey, limit, key.PeriodStart, key.PeriodEnd)
}

func planCeiling(ctx context.Context, repos store.Repositories, sub *store.Subscription, featureKey string) (*int64, error) {
	p, err := repos.Plans().GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	limit, _ := plan.Ceiling(p, featureKey)

	return limit, nil
}

func periodKey(sub *store.Subscription, featureKey string) store.UsageKey {
	return store.UsageKey{
		SubscriptionID: sub.ID,
		FeatureKey:     featureKey,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
	}
}
