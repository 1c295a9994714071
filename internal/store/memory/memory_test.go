package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Subscriptions(t *testing.T) {
	ctx := context.Background()
	s := New()
	tenantID := uuid.New()

	sub := &store.Subscription{
		TenantID: tenantID,
		PlanID:   uuid.New(),
		Status:   store.SubscriptionActive,
		Price:    decimal.Zero,
		Metadata: map[string]any{"source": "test"},
	}
	require.NoError(t, s.Subscriptions().CreateSubscription(ctx, sub))
	assert.NotEqual(t, uuid.Nil, sub.ID)

	t.Run("second live subscription conflicts", func(t *testing.T) {
		err := s.Subscriptions().CreateSubscription(ctx, &store.Subscription{
			TenantID: tenantID,
			Status:   store.SubscriptionPending,
		})
		assert.True(t, apperr.Is(err, apperr.KindConflict))
	})

	t.Run("returned copies are isolated", func(t *testing.T) {
		got, err := s.Subscriptions().GetSubscription(ctx, sub.ID)
		require.NoError(t, err)

		got.Metadata["source"] = "mutated"

		again, err := s.Subscriptions().GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, "test", again.Metadata["source"])
	})

	t.Run("soft deleted rows are hidden", func(t *testing.T) {
		s.mu.Lock()
		row := s.data.subscriptions[sub.ID]
		row.DeletedAt = lo.ToPtr(time.Now())
		s.data.subscriptions[sub.ID] = row
		s.mu.Unlock()

		_, err := s.Subscriptions().GetSubscription(ctx, sub.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))

		_, err = s.Subscriptions().FindTenantSubscription(ctx, tenantID, store.LiveStatuses)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

func TestStore_RunTransaction_RollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	tenantID := uuid.New()

	errBoom := errors.New("boom")

	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Repositories) error {
		if err := tx.Invoices().CreateInvoice(ctx, &store.Invoice{
			InvoiceNumber: "INV-1",
			TenantID:      tenantID,
			Status:        store.InvoicePending,
		}); err != nil {
			return err
		}

		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	invoices, err := s.Invoices().ListTenantInvoices(ctx, tenantID, 0)
	require.NoError(t, err)
	assert.Empty(t, invoices)

	// number is free again after rollback
	require.NoError(t, s.Invoices().CreateInvoice(ctx, &store.Invoice{InvoiceNumber: "INV-1", TenantID: tenantID}))
	err = s.Invoices().CreateInvoice(ctx, &store.Invoice{InvoiceNumber: "INV-1", TenantID: tenantID})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestStore_IncrementUsage(t *testing.T) {
	ctx := context.Background()
	s := New()

	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	key := store.UsageKey{
		SubscriptionID: uuid.New(),
		FeatureKey:     "messages_sent",
		PeriodStart:    start,
		PeriodEnd:      start.AddDate(0, 1, 0),
	}

	_, _, err := s.Usage().IncrementUsage(ctx, key, 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	row := &store.SubscriptionUsage{
		SubscriptionID: key.SubscriptionID,
		FeatureKey:     key.FeatureKey,
		PeriodStart:    key.PeriodStart,
		PeriodEnd:      key.PeriodEnd,
		Limit:          lo.ToPtr(int64(3)),
	}
	require.NoError(t, s.Usage().InsertUsageIfAbsent(ctx, row))

	// idempotent
	require.NoError(t, s.Usage().InsertUsageIfAbsent(ctx, &store.SubscriptionUsage{
		SubscriptionID: key.SubscriptionID,
		FeatureKey:     key.FeatureKey,
		PeriodStart:    key.PeriodStart,
		PeriodEnd:      key.PeriodEnd,
		UsageCount:     100,
	}))

	u, applied, err := s.Usage().IncrementUsage(ctx, key, 2)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(2), u.UsageCount)

	u, applied, err = s.Usage().IncrementUsage(ctx, key, 2)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, int64(2), u.UsageCount)

	u, applied, err = s.Usage().IncrementUsage(ctx, key, 1)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(3), u.UsageCount)
}

func TestStore_UpdatePayment_KeepsImmutableFields(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := &store.Payment{
		PaymentNumber: "PAY-1",
		TenantID:      uuid.New(),
		Status:        store.PaymentPending,
		Amount:        decimal.RequireFromString("49.00"),
		Currency:      "USD",
		PaymentMethod: store.PaymentMethodPending,
	}
	require.NoError(t, s.Payments().CreatePayment(ctx, p))

	update := *p
	update.Status = store.PaymentCompleted
	update.Amount = decimal.RequireFromString("1.00")
	require.NoError(t, s.Payments().UpdatePayment(ctx, &update))

	got, err := s.Payments().GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PaymentCompleted, got.Status)
	assert.Equal(t, "49.00", got.Amount.StringFixed(2))
}

func TestStore_Plans_ReturnIsolatedFeatures(t *testing.T) {
	ctx := context.Background()
	s := New()

	planID := uuid.New()
	s.AddPlan(&store.Plan{
		ID:       planID,
		Name:     "Starter",
		Price:    decimal.RequireFromString("49.00"),
		Currency: "USD",
		IsActive: true,
		IsPublic: true,
		Features: []store.PlanFeature{{ID: uuid.New(), PlanID: planID, Key: "campaigns", Value: "50", Enabled: true}},
	})

	got, err := s.Plans().GetPlan(ctx, planID)
	require.NoError(t, err)
	got.Features[0].Value = "unlimited"

	listed, err := s.Plans().ListPlans(ctx, store.PlanFilter{OnlyPublic: true})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "50", listed[0].Features[0].Value)
	listed[0].Features[0].Enabled = false

	again, err := s.Plans().GetPlan(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, "50", again.Features[0].Value)
	assert.True(t, again.Features[0].Enabled)
}
