package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const subscriptionColumns = `id, tenant_id, plan_id, status, billing_anchor, current_period_start, current_period_end,
	trial_start, trial_end, cancelled_at, cancel_at_period_end, price, currency, metadata, created_at, updated_at`

func scanSubscription(row pgx.Row) (*store.Subscription, error) {
	var (
		sub      store.Subscription
		metadata pgtype.JSONB
	)

	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.PlanID, &sub.Status, &sub.BillingAnchor,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.TrialStart, &sub.TrialEnd,
		&sub.CancelledAt, &sub.CancelAtPeriodEnd, &sub.Price, &sub.Currency, &metadata,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if metadata.Status == pgtype.Present {
		if err := metadata.AssignTo(&sub.Metadata); err != nil {
			return nil, errors.Wrap(err, "unable to decode subscription metadata")
		}
	}

	return &sub, nil
}

func encodeMetadata(metadata map[string]any) (pgtype.JSONB, error) {
	var out pgtype.JSONB
	if metadata == nil {
		out.Status = pgtype.Null
		return out, nil
	}

	if err := out.Set(metadata); err != nil {
		return out, apperr.BadRequest("metadata is not valid JSON: %s", err.Error())
	}

	return out, nil
}

func (r *repositories) CreateSubscription(ctx context.Context, sub *store.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	metadata, err := encodeMetadata(sub.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO subscriptions (
	              id, tenant_id, plan_id, status, billing_anchor, current_period_start, current_period_end,
	              trial_start, trial_end, cancelled_at, cancel_at_period_end, price, currency, metadata
	          ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	          RETURNING created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		sub.ID, sub.TenantID, sub.PlanID, string(sub.Status), sub.BillingAnchor,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.TrialStart, sub.TrialEnd,
		sub.CancelledAt, sub.CancelAtPeriodEnd, sub.Price, sub.Currency, metadata,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)

	return mapError(err, "unable to create subscription")
}

func (r *repositories) GetSubscription(ctx context.Context, id uuid.UUID) (*store.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1 AND deleted_at IS NULL`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "subscription %s not found", id)
	}

	return sub, nil
}

func (r *repositories) GetSubscriptionForUpdate(ctx context.Context, id uuid.UUID) (*store.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "subscription %s not found", id)
	}

	return sub, nil
}

func (r *repositories) GetSubscriptionForShare(ctx context.Context, id uuid.UUID) (*store.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1 AND deleted_at IS NULL FOR SHARE`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "subscription %s not found", id)
	}

	return sub, nil
}

func (r *repositories) FindTenantSubscription(
	ctx context.Context,
	tenantID uuid.UUID,
	statuses []store.SubscriptionStatus,
) (*store.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
	          WHERE tenant_id = $1 AND status = ANY($2) AND deleted_at IS NULL
	          ORDER BY created_at DESC
	          LIMIT 1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, tenantID, statusStrings(statuses)))
	if err != nil {
		return nil, notFound(err, "no subscription found for tenant %s", tenantID)
	}

	return sub, nil
}

func (r *repositories) ListTenantSubscriptions(ctx context.Context, tenantID uuid.UUID) ([]*store.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
	          WHERE tenant_id = $1 AND deleted_at IS NULL
	          ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, mapError(err, "unable to list subscriptions")
	}
	defer rows.Close()

	var subs []*store.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, mapError(err, "unable to scan subscription")
		}
		subs = append(subs, sub)
	}

	return subs, mapError(rows.Err(), "unable to list subscriptions")
}

func (r *repositories) UpdateSubscription(ctx context.Context, sub *store.Subscription) error {
	metadata, err := encodeMetadata(sub.Metadata)
	if err != nil {
		return err
	}

	query := `UPDATE subscriptions
	          SET status = $2, current_period_start = $3, current_period_end = $4,
	              trial_start = $5, trial_end = $6, cancelled_at = $7, cancel_at_period_end = $8,
	              metadata = $9, updated_at = $10
	          WHERE id = $1 AND deleted_at IS NULL
	          RETURNING updated_at`

	err = r.db.QueryRow(ctx, query,
		sub.ID, string(sub.Status), sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.TrialStart, sub.TrialEnd, sub.CancelledAt, sub.CancelAtPeriodEnd,
		metadata, time.Now(),
	).Scan(&sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("subscription %s not found", sub.ID)
	}

	return mapError(err, "unable to update subscription")
}

// LockTenant takes a transaction scoped advisory lock derived from the tenant id.
func (r *repositories) LockTenant(ctx context.Context, tenantID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, tenantID.String())

	return mapError(err, "unable to lock tenant")
}

func (r *repositories) CreateSubscriptionFeatures(ctx context.Context, features []store.SubscriptionFeature) error {
	if len(features) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range features {
		f := &features[i]
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}

		batch.Queue(
			`INSERT INTO subscription_features (id, subscription_id, key, name, value, enabled)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			f.ID, f.SubscriptionID, f.Key, f.Name, f.Value, f.Enabled,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	for range features {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return mapError(err, "unable to create subscription feature")
		}
	}

	return mapError(results.Close(), "unable to create subscription features")
}

func (r *repositories) ListSubscriptionFeatures(ctx context.Context, subscriptionID uuid.UUID) ([]store.SubscriptionFeature, error) {
	query := `SELECT id, subscription_id, key, name, value, enabled, created_at
	          FROM subscription_features
	          WHERE subscription_id = $1 AND deleted_at IS NULL
	          ORDER BY key`

	rows, err := r.db.Query(ctx, query, subscriptionID)
	if err != nil {
		return nil, mapError(err, "unable to list subscription features")
	}
	defer rows.Close()

	var features []store.SubscriptionFeature
	for rows.Next() {
		var f store.SubscriptionFeature
		if err := rows.Scan(&f.ID, &f.SubscriptionID, &f.Key, &f.Name, &f.Value, &f.Enabled, &f.CreatedAt); err != nil {
			return nil, mapError(err, "unable to scan subscription feature")
		}
		features = append(features, f)
	}

	return features, mapError(rows.Err(), "unable to list subscription features")
}

func statusStrings(statuses []store.SubscriptionStatus) []string {
	return lo.Map(statuses, func(s store.SubscriptionStatus, _ int) string { return string(s) })
}
