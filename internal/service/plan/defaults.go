package plan

import (
	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/billing"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// IDs of the catalog seeded by migrations. Keep in sync with 0002_seed_plans.sql.
var (
	FreePlanID    = uuid.MustParse("6f1c7a2e-0000-4000-8000-000000000001")
	StarterPlanID = uuid.MustParse("6f1c7a2e-0000-4000-8000-000000000002")
	ProPlanID     = uuid.MustParse("6f1c7a2e-0000-4000-8000-000000000003")
)

// Defaults returns the seeded catalog. The in-memory store is populated from it.
func Defaults() []*store.Plan {
	return []*store.Plan{
		{
			ID:                   FreePlanID,
			Name:                 "Free",
			Description:          "Try the platform with a single WhatsApp instance",
			Price:                decimal.Zero,
			Currency:             "USD",
			BillingCycle:         billing.Monthly,
			MaxUsers:             lo.ToPtr(int64(1)),
			MaxWhatsappInstances: lo.ToPtr(int64(1)),
			MaxMessagesPerMonth:  lo.ToPtr(int64(1000)),
			MaxAPICallsPerMonth:  lo.ToPtr(int64(1000)),
			MaxContacts:          lo.ToPtr(int64(500)),
			MaxCampaigns:         lo.ToPtr(int64(2)),
			IsActive:             true,
			IsPublic:             true,
			Features: []store.PlanFeature{
				{Key: "webhooks", Name: "Webhooks", Value: "false", Enabled: false},
			},
		},
		{
			ID:                   StarterPlanID,
			Name:                 "Starter",
			Description:          "For small teams running regular campaigns",
			Price:                decimal.RequireFromString("49.00"),
			Currency:             "USD",
			BillingCycle:         billing.Monthly,
			MaxUsers:             lo.ToPtr(int64(5)),
			MaxWhatsappInstances: lo.ToPtr(int64(3)),
			MaxMessagesPerMonth:  lo.ToPtr(int64(50000)),
			MaxAPICallsPerMonth:  lo.ToPtr(int64(100000)),
			MaxContacts:          lo.ToPtr(int64(10000)),
			MaxCampaigns:         lo.ToPtr(int64(50)),
			IsActive:             true,
			IsPublic:             true,
			Features: []store.PlanFeature{
				{Key: "webhooks", Name: "Webhooks", Value: "true", Enabled: true},
			},
		},
		{
			ID:                   ProPlanID,
			Name:                 "Pro",
			Description:          "Unlimited messaging with priority support",
			Price:                decimal.RequireFromString("199.00"),
			Currency:             "USD",
			BillingCycle:         billing.Monthly,
			TrialDays:            14,
			MaxUsers:             lo.ToPtr(int64(25)),
			MaxWhatsappInstances: lo.ToPtr(int64(10)),
			IsActive:             true,
			IsPublic:             true,
			Features: []store.PlanFeature{
				{Key: "webhooks", Name: "Webhooks", Value: "true", Enabled: true},
				{Key: "priority_support", Name: "Priority support", Value: "true", Enabled: true},
			},
		},
	}
}
