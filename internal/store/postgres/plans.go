package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/samber/lo"
)

const planColumns = `id, name, description, price, currency, billing_cycle, trial_days,
	max_users, max_whatsapp_instances, max_messages_per_month, max_api_calls_per_month,
	max_contacts, max_campaigns, is_active, is_public, created_at, updated_at`

func scanPlan(row pgx.Row) (*store.Plan, error) {
	var p store.Plan
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Currency, &p.BillingCycle, &p.TrialDays,
		&p.MaxUsers, &p.MaxWhatsappInstances, &p.MaxMessagesPerMonth, &p.MaxAPICallsPerMonth,
		&p.MaxContacts, &p.MaxCampaigns, &p.IsActive, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *repositories) GetPlan(ctx context.Context, id uuid.UUID) (*store.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1 AND deleted_at IS NULL`

	p, err := scanPlan(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "plan %s not found", id)
	}

	features, err := r.planFeatures(ctx, []uuid.UUID{p.ID})
	if err != nil {
		return nil, err
	}

	p.Features = features[p.ID]

	return p, nil
}

func (r *repositories) ListPlans(ctx context.Context, filter store.PlanFilter) ([]*store.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans
	          WHERE deleted_at IS NULL
	            AND ($1 = false OR is_active)
	            AND ($2 = false OR is_public)
	          ORDER BY price ASC, name ASC`

	rows, err := r.db.Query(ctx, query, filter.OnlyActive, filter.OnlyPublic)
	if err != nil {
		return nil, mapError(err, "unable to list plans")
	}
	defer rows.Close()

	var plans []*store.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, mapError(err, "unable to scan plan")
		}
		plans = append(plans, p)
	}

	if err := rows.Err(); err != nil {
		return nil, mapError(err, "unable to list plans")
	}

	features, err := r.planFeatures(ctx, lo.Map(plans, func(p *store.Plan, _ int) uuid.UUID { return p.ID }))
	if err != nil {
		return nil, err
	}

	for _, p := range plans {
		p.Features = features[p.ID]
	}

	return plans, nil
}

func (r *repositories) planFeatures(ctx context.Context, planIDs []uuid.UUID) (map[uuid.UUID][]store.PlanFeature, error) {
	out := make(map[uuid.UUID][]store.PlanFeature, len(planIDs))
	if len(planIDs) == 0 {
		return out, nil
	}

	query := `SELECT id, plan_id, key, name, value, enabled FROM plan_features
	          WHERE plan_id = ANY($1::uuid[]) AND deleted_at IS NULL
	          ORDER BY key`

	rows, err := r.db.Query(ctx, query, uuidStrings(planIDs))
	if err != nil {
		return nil, mapError(err, "unable to list plan features")
	}
	defer rows.Close()

	for rows.Next() {
		var f store.PlanFeature
		if err := rows.Scan(&f.ID, &f.PlanID, &f.Key, &f.Name, &f.Value, &f.Enabled); err != nil {
			return nil, mapError(err, "unable to scan plan feature")
		}
		out[f.PlanID] = append(out[f.PlanID], f)
	}

	return out, mapError(rows.Err(), "unable to list plan features")
}

func uuidStrings(ids []uuid.UUID) []string {
	return lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() })
}
