package invoice_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/msgdeck/msgdeck/internal/bus"
	"github.com/msgdeck/msgdeck/internal/service/access"
	"github.com/msgdeck/msgdeck/internal/service/invoice"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/msgdeck/msgdeck/internal/store/memory"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected subscription write failure")

// failingStore breaks subscription writes made inside transactions.
type failingStore struct {
	*memory.Store
}

func (s *failingStore) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	return s.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Repositories) error {
		return fn(ctx, &failingRepos{Repositories: tx})
	})
}

type failingRepos struct {
	store.Repositories
}

func (r *failingRepos) Subscriptions() store.SubscriptionRepository {
	return &failingSubscriptions{SubscriptionRepository: r.Repositories.Subscriptions()}
}

type failingSubscriptions struct {
	store.SubscriptionRepository
}

func (*failingSubscriptions) UpdateSubscription(context.Context, *store.Subscription) error {
	return errInjected
}

type recorder struct {
	topics []bus.Topic
}

func (r *recorder) Publish(topic bus.Topic, _ any) error {
	r.topics = append(r.topics, topic)
	return nil
}

type fixture struct {
	db        *memory.Store
	generator *invoice.Generator
	events    *recorder
	tenantID  uuid.UUID
	ownerID   uuid.UUID
	viewerID  uuid.UUID
}

func setup(t *testing.T, wrap func(*memory.Store) store.Store) *fixture {
	t.Helper()

	logger := zerolog.Nop()
	db := memory.New()

	f := &fixture{
		db:       db,
		events:   &recorder{},
		tenantID: uuid.New(),
		ownerID:  uuid.New(),
		viewerID: uuid.New(),
	}

	db.AddMembership(f.ownerID, f.tenantID, store.RoleOwner)
	db.AddMembership(f.viewerID, f.tenantID, store.RoleViewer)

	var s store.Store = db
	if wrap != nil {
		s = wrap(db)
	}

	guard := access.New(db.Memberships(), &logger)
	f.generator = invoice.New(invoice.Config{}, s, guard, f.events, &logger)

	return f
}

// issue creates a pending subscription and bills its first period.
func (f *fixture) issue(t *testing.T, price string) (*store.Subscription, *invoice.Issued) {
	t.Helper()

	ctx := context.Background()
	start := time.Date(2024, time.January, 31, 12, 0, 0, 0, time.UTC)

	sub := &store.Subscription{
		TenantID:           f.tenantID,
		PlanID:             uuid.New(),
		Status:             store.SubscriptionPending,
		BillingAnchor:      start,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   time.Date(2024, time.February, 29, 12, 0, 0, 0, time.UTC),
		Price:              decimal.RequireFromString(price),
		Currency:           "USD",
	}

	var issued *invoice.Issued

	err := f.db.RunTransaction(ctx, func(ctx context.Context, tx store.Repositories) error {
		if err := tx.Subscriptions().CreateSubscription(ctx, sub); err != nil {
			return err
		}

		var err error
		issued, err = f.generator.IssueForPeriod(ctx, tx, invoice.Charge{
			TenantID:       sub.TenantID,
			SubscriptionID: sub.ID,
			PlanID:         sub.PlanID,
			PlanName:       "Starter",
			Price:          sub.Price,
			Currency:       sub.Currency,
			PeriodStart:    sub.CurrentPeriodStart,
			PeriodEnd:      sub.CurrentPeriodEnd,
		})

		return err
	})
	require.NoError(t, err)

	return sub, issued
}

func TestGenerator_IssueForPeriod(t *testing.T) {
	f := setup(t, nil)
	sub, issued := f.issue(t, "49.00")

	inv := issued.Invoice
	assert.True(t, strings.HasPrefix(inv.InvoiceNumber, "INV-"))
	assert.Equal(t, store.InvoicePending, inv.Status)
	assert.Equal(t, "49.00", inv.Total.StringFixed(2))
	assert.Equal(t, "49.00", inv.Subtotal.StringFixed(2))
	assert.True(t, inv.Tax.IsZero())
	assert.Equal(t, sub.ID, *inv.SubscriptionID)
	assert.Equal(t, sub.CurrentPeriodStart.AddDate(0, 0, invoice.DefaultDueDays), inv.DueDate)

	require.Len(t, inv.Items, 1)
	assert.Equal(t, store.ItemPlan, inv.Items[0].ItemType)
	assert.Equal(t, int64(1), inv.Items[0].Quantity)
	assert.Equal(t, sub.PlanID, *inv.Items[0].ReferenceID)

	p := issued.Payment
	assert.True(t, strings.HasPrefix(p.PaymentNumber, "PAY-"))
	assert.Equal(t, store.PaymentPending, p.Status)
	assert.Equal(t, store.PaymentMethodPending, p.PaymentMethod)
	assert.Equal(t, inv.ID, *p.InvoiceID)
	assert.True(t, p.Amount.Equal(inv.Total))

	_, another := f.issue(t, "49.00")
	assert.NotEqual(t, inv.InvoiceNumber, another.Invoice.InvoiceNumber)
	assert.NotEqual(t, p.PaymentNumber, another.Payment.PaymentNumber)

	topics := lo.Map(issued.Messages(), func(m bus.Message, _ int) bus.Topic { return m.Topic })
	assert.Equal(t, []bus.Topic{bus.TopicInvoiceCreated, bus.TopicPaymentCreated}, topics)
}

func TestGenerator_CompletePayment(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	sub, issued := f.issue(t, "49.00")

	_, err := f.generator.CompletePayment(ctx, f.viewerID, issued.Payment.ID, nil)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	p, err := f.generator.CompletePayment(ctx, f.ownerID, issued.Payment.ID, lo.ToPtr("tx_123"))
	require.NoError(t, err)
	assert.Equal(t, store.PaymentCompleted, p.Status)
	assert.Equal(t, "tx_123", *p.TransactionID)
	assert.NotNil(t, p.PaymentDate)

	inv, err := f.generator.GetInvoice(ctx, f.viewerID, issued.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, store.InvoicePaid, inv.Status)
	assert.NotNil(t, inv.PaidAt)

	active, err := f.db.Subscriptions().GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SubscriptionActive, active.Status)

	assert.Equal(t, []bus.Topic{bus.TopicPaymentSucceeded, bus.TopicInvoicePaid}, f.events.topics)

	// second completion is an illegal transition
	_, err = f.generator.CompletePayment(ctx, f.ownerID, issued.Payment.ID, nil)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = f.generator.CompletePayment(ctx, f.ownerID, uuid.New(), nil)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestGenerator_CompletePayment_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := setup(t, func(db *memory.Store) store.Store { return &failingStore{Store: db} })
	sub, issued := f.issue(t, "49.00")

	_, err := f.generator.CompletePayment(ctx, f.ownerID, issued.Payment.ID, lo.ToPtr("tx_1"))
	require.ErrorIs(t, err, errInjected)

	p, err := f.db.Payments().GetPayment(ctx, issued.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PaymentPending, p.Status)
	assert.Nil(t, p.TransactionID)
	assert.Nil(t, p.PaymentDate)

	inv, err := f.db.Invoices().GetInvoice(ctx, issued.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, store.InvoicePending, inv.Status)
	assert.Nil(t, inv.PaidAt)

	unchanged, err := f.db.Subscriptions().GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SubscriptionPending, unchanged.Status)

	assert.Empty(t, f.events.topics)
}

func TestGenerator_RefundPayment(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	_, issued := f.issue(t, "49.00")

	_, err := f.generator.RefundPayment(ctx, f.ownerID, issued.Payment.ID, decimal.RequireFromString("10.00"))
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "pending payment cannot be refunded")

	_, err = f.generator.CompletePayment(ctx, f.ownerID, issued.Payment.ID, nil)
	require.NoError(t, err)

	_, err = f.generator.RefundPayment(ctx, f.ownerID, issued.Payment.ID, decimal.Zero)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	p, err := f.generator.RefundPayment(ctx, f.ownerID, issued.Payment.ID, decimal.RequireFromString("20.00"))
	require.NoError(t, err)
	assert.Equal(t, store.PaymentCompleted, p.Status)
	assert.Equal(t, "20.00", p.RefundedAmount.StringFixed(2))

	t.Run("over refund leaves record unchanged", func(t *testing.T) {
		_, err := f.generator.RefundPayment(ctx, f.ownerID, issued.Payment.ID, decimal.RequireFromString("29.01"))
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))

		stored, err := f.db.Payments().GetPayment(ctx, issued.Payment.ID)
		require.NoError(t, err)
		assert.Equal(t, "20.00", stored.RefundedAmount.StringFixed(2))
		assert.Equal(t, store.PaymentCompleted, stored.Status)
	})

	t.Run("sub-cent refund is rejected", func(t *testing.T) {
		for _, raw := range []string{"28.999", "0.001", "0.0001"} {
			_, err := f.generator.RefundPayment(ctx, f.ownerID, issued.Payment.ID, decimal.RequireFromString(raw))
			assert.True(t, apperr.Is(err, apperr.KindBadRequest), raw)
		}

		stored, err := f.db.Payments().GetPayment(ctx, issued.Payment.ID)
		require.NoError(t, err)
		assert.True(t, stored.RefundedAmount.Equal(decimal.RequireFromString("20.00")))
		assert.Equal(t, store.PaymentCompleted, stored.Status)
	})

	p, err = f.generator.RefundPayment(ctx, f.ownerID, issued.Payment.ID, decimal.RequireFromString("9.000"))
	require.NoError(t, err, "trailing zeros stay within cents")
	assert.Equal(t, "29.00", p.RefundedAmount.StringFixed(2))

	p, err = f.generator.RefundPayment(ctx, f.ownerID, issued.Payment.ID, decimal.RequireFromString("20.00"))
	require.NoError(t, err)
	assert.Equal(t, store.PaymentRefunded, p.Status)
	assert.True(t, p.RefundedAmount.Equal(p.Amount))

	inv, err := f.db.Invoices().GetInvoice(ctx, issued.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, store.InvoiceRefunded, inv.Status)
}

func TestGenerator_FailPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("pending subscription stays pending", func(t *testing.T) {
		f := setup(t, nil)
		sub, issued := f.issue(t, "49.00")

		p, err := f.generator.FailPayment(ctx, f.ownerID, issued.Payment.ID, "card declined")
		require.NoError(t, err)
		assert.Equal(t, store.PaymentFailed, p.Status)
		assert.Equal(t, "card declined", *p.FailureReason)

		stored, err := f.db.Subscriptions().GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, store.SubscriptionPending, stored.Status)
		assert.Equal(t, []bus.Topic{bus.TopicPaymentFailed}, f.events.topics)

		_, err = f.generator.FailPayment(ctx, f.ownerID, issued.Payment.ID, "again")
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	})

	t.Run("active subscription becomes past due", func(t *testing.T) {
		f := setup(t, nil)
		sub, issued := f.issue(t, "49.00")

		active, err := f.db.Subscriptions().GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		active.Status = store.SubscriptionActive
		require.NoError(t, f.db.Subscriptions().UpdateSubscription(ctx, active))

		_, err = f.generator.FailPayment(ctx, f.ownerID, issued.Payment.ID, "")
		require.NoError(t, err)

		stored, err := f.db.Subscriptions().GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, store.SubscriptionPastDue, stored.Status)
	})
}

func TestGenerator_Listing(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	_, issued := f.issue(t, "49.00")

	invoices, err := f.generator.ListInvoices(ctx, f.viewerID, f.tenantID, 0)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, issued.Invoice.ID, invoices[0].ID)

	payments, err := f.generator.ListPayments(ctx, f.viewerID, f.tenantID, 10)
	require.NoError(t, err)
	require.Len(t, payments, 1)

	_, err = f.generator.ListPayments(ctx, uuid.New(), f.tenantID, 10)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	p, err := f.generator.GetPayment(ctx, f.viewerID, issued.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, issued.Payment.PaymentNumber, p.PaymentNumber)
}
