package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/pkg/errors"
)

const usageColumns = `id, subscription_id, feature_key, period_start, period_end, usage_count, usage_limit, created_at, updated_at`

func scanUsage(row pgx.Row) (*store.SubscriptionUsage, error) {
	var u store.SubscriptionUsage
	err := row.Scan(
		&u.ID, &u.SubscriptionID, &u.FeatureKey, &u.PeriodStart, &u.PeriodEnd,
		&u.UsageCount, &u.Limit, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &u, nil
}

func (r *repositories) InsertUsageIfAbsent(ctx context.Context, usage *store.SubscriptionUsage) error {
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}

	query := `INSERT INTO subscription_usages (id, subscription_id, feature_key, period_start, period_end, usage_count, usage_limit)
	          VALUES ($1, $2, $3, $4, $5, 0, $6)
	          ON CONFLICT DO NOTHING`

	_, err := r.db.Exec(ctx, query,
		usage.ID, usage.SubscriptionID, usage.FeatureKey, usage.PeriodStart, usage.PeriodEnd, usage.Limit,
	)

	return mapError(err, "unable to initialize usage")
}

func (r *repositories) GetUsage(ctx context.Context, key store.UsageKey) (*store.SubscriptionUsage, error) {
	query := `SELECT ` + usageColumns + ` FROM subscription_usages
	          WHERE subscription_id = $1 AND feature_key = $2 AND period_start = $3 AND period_end = $4
	            AND deleted_at IS NULL`

	u, err := scanUsage(r.db.QueryRow(ctx, query, key.SubscriptionID, key.FeatureKey, key.PeriodStart, key.PeriodEnd))
	if err != nil {
		return nil, notFound(err, "usage %q not found for subscription %s", key.FeatureKey, key.SubscriptionID)
	}

	return u, nil
}

// IncrementUsage relies on a single conditional UPDATE: concurrent callers serialize on the row lock
// and each re-evaluates the limit predicate against the committed count.
func (r *repositories) IncrementUsage(ctx context.Context, key store.UsageKey, by int64) (*store.SubscriptionUsage, bool, error) {
	query := `UPDATE subscription_usages
	          SET usage_count = usage_count + $5, updated_at = $6
	          WHERE subscription_id = $1 AND feature_key = $2 AND period_start = $3 AND period_end = $4
	            AND deleted_at IS NULL
	            AND (usage_limit IS NULL OR usage_count + $5 <= usage_limit)
	          RETURNING ` + usageColumns

	u, err := scanUsage(r.db.QueryRow(ctx, query,
		key.SubscriptionID, key.FeatureKey, key.PeriodStart, key.PeriodEnd, by, time.Now(),
	))
	if err == nil {
		return u, true, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, mapError(err, "unable to increment usage")
	}

	// nothing matched: either the limit rejected the increment or the counter is missing
	current, err := r.GetUsage(ctx, key)
	if err != nil {
		return nil, false, err
	}

	return current, false, nil
}

func (r *repositories) ListPeriodUsage(
	ctx context.Context,
	subscriptionID uuid.UUID,
	periodStart, periodEnd time.Time,
) ([]*store.SubscriptionUsage, error) {
	query := `SELECT ` + usageColumns + ` FROM subscription_usages
	          WHERE subscription_id = $1 AND period_start = $2 AND period_end = $3 AND deleted_at IS NULL
	          ORDER BY feature_key`

	return r.queryUsage(ctx, query, subscriptionID, periodStart, periodEnd)
}

func (r *repositories) ListUsageHistory(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*store.SubscriptionUsage, error) {
	query := `SELECT ` + usageColumns + ` FROM subscription_usages
	          WHERE subscription_id = $1 AND deleted_at IS NULL
	          ORDER BY period_start DESC, feature_key
	          LIMIT NULLIF($2::int, 0)`

	return r.queryUsage(ctx, query, subscriptionID, limit)
}

func (r *repositories) queryUsage(ctx context.Context, query string, args ...interface{}) ([]*store.SubscriptionUsage, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "unable to list usage")
	}
	defer rows.Close()

	var out []*store.SubscriptionUsage
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, mapError(err, "unable to scan usage")
		}
		out = append(out, u)
	}

	return out, mapError(rows.Err(), "unable to list usage")
}
