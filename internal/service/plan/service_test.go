package plan_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/msgdeck/msgdeck/internal/service/plan"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/msgdeck/msgdeck/internal/store/memory"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()

	db := memory.New()
	for _, p := range plan.Defaults() {
		db.AddPlan(p)
	}

	hidden := &store.Plan{ID: uuid.New(), Name: "Legacy", Price: decimal.RequireFromString("9.00"), IsActive: false}
	db.AddPlan(hidden)

	service := plan.New(db.Plans(), &logger)

	t.Run("public plans are sorted by price", func(t *testing.T) {
		plans, err := service.ListPublicPlans(ctx)
		require.NoError(t, err)
		require.Len(t, plans, 3)
		assert.Equal(t, plan.FreePlanID, plans[0].ID)
		assert.Equal(t, plan.StarterPlanID, plans[1].ID)
		assert.Equal(t, plan.ProPlanID, plans[2].ID)
	})

	t.Run("inactive plan cannot be subscribed", func(t *testing.T) {
		_, err := service.GetSubscribablePlan(ctx, hidden.ID)
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))

		p, err := service.GetPlan(ctx, hidden.ID)
		require.NoError(t, err)
		assert.Equal(t, "Legacy", p.Name)
	})

	t.Run("unknown plan", func(t *testing.T) {
		_, err := service.GetSubscribablePlan(ctx, uuid.New())
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

func TestCeiling(t *testing.T) {
	starter := plan.Defaults()[1]

	limit, ok := plan.Ceiling(starter, plan.FeatureMessagesSent)
	require.True(t, ok)
	assert.Equal(t, int64(50000), *limit)

	pro := plan.Defaults()[2]
	limit, ok = plan.Ceiling(pro, plan.FeatureMessagesSent)
	require.True(t, ok)
	assert.Nil(t, limit)

	_, ok = plan.Ceiling(pro, "unknown")
	assert.False(t, ok)
	assert.True(t, plan.IsTracked(plan.FeatureCampaigns))
}
