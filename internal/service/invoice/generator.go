package invoice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/msgdeck/msgdeck/internal/billing"
	"github.com/msgdeck/msgdeck/internal/bus"
	"github.com/msgdeck/msgdeck/internal/service/access"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	DefaultDueDays      = 7
	defaultListLimit    = 50
	invoiceNumberPrefix = "INV-"
	paymentNumberPrefix = "PAY-"
)

type Config struct {
	InvoiceDueDays int `yaml:"invoice_due_days" env:"BILLING_INVOICE_DUE_DAYS" env-default:"7" env-description:"Days between period start and invoice due date"`
}

type Generator struct {
	store     store.Store
	guard     access.Authorizer
	publisher bus.Publisher
	dueDays   int
	now       func() time.Time
	logger    *zerolog.Logger
}

// Charge describes a single billable period of a subscription.
type Charge struct {
	TenantID       uuid.UUID
	SubscriptionID uuid.UUID
	PlanID         uuid.UUID
	PlanName       string
	Price          decimal.Decimal
	Currency       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// Issued is the pair of records produced for a Charge.
type Issued struct {
	Invoice *store.Invoice
	Payment *store.Payment
}

func New(
	cfg Config,
	s store.Store,
	guard access.Authorizer,
	publisher bus.Publisher,
	logger *zerolog.Logger,
) *Generator {
	log := logger.With().Str("channel", "invoice_generator").Logger()

	dueDays := cfg.InvoiceDueDays
	if dueDays <= 0 {
		dueDays = DefaultDueDays
	}

	return &Generator{
		store:     s,
		guard:     guard,
		publisher: publisher,
		dueDays:   dueDays,
		now:       time.Now,
		logger:    &log,
	}
}

// IssueForPeriod writes a pending invoice with one plan line and its pending payment.
// It runs on the caller's repositories so it joins the caller's transaction.
func (g *Generator) IssueForPeriod(ctx context.Context, repos store.Repositories, charge Charge) (*Issued, error) {
	if charge.Price.IsNegative() {
		return nil, apperr.BadRequest("charge amount must not be negative")
	}

	item := store.InvoiceItem{
		ItemType:    store.ItemPlan,
		ReferenceID: lo.ToPtr(charge.PlanID),
		Description: describePeriod(charge),
		Quantity:    1,
		UnitPrice:   charge.Price,
		Amount:      charge.Price.Mul(decimal.NewFromInt(1)),
		Tax:         decimal.Zero,
		Discount:    decimal.Zero,
	}

	items := []store.InvoiceItem{item}
	subtotal, tax, discount := totals(items)

	inv := &store.Invoice{
		InvoiceNumber:  invoiceNumberPrefix + ulid.Make().String(),
		TenantID:       charge.TenantID,
		SubscriptionID: lo.ToPtr(charge.SubscriptionID),
		Status:         store.InvoicePending,
		Currency:       charge.Currency,
		Subtotal:       subtotal,
		Tax:            tax,
		Discount:       discount,
		Total:          subtotal.Add(tax).Sub(discount),
		PeriodStart:    lo.ToPtr(charge.PeriodStart),
		PeriodEnd:      lo.ToPtr(charge.PeriodEnd),
		DueDate:        billing.AddDays(charge.PeriodStart, g.dueDays),
		Items:          items,
	}

	if err := repos.Invoices().CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	payment := &store.Payment{
		PaymentNumber:  paymentNumberPrefix + ulid.Make().String(),
		TenantID:       charge.TenantID,
		InvoiceID:      lo.ToPtr(inv.ID),
		Status:         store.PaymentPending,
		Amount:         charge.Price,
		RefundedAmount: decimal.Zero,
		Currency:       charge.Currency,
		PaymentMethod:  store.PaymentMethodPending,
	}

	if err := repos.Payments().CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	return &Issued{Invoice: inv, Payment: payment}, nil
}

// Messages returns the events to publish once the issuing transaction commits.
func (i *Issued) Messages() []bus.Message {
	if i == nil {
		return nil
	}

	return []bus.Message{
		{Topic: bus.TopicInvoiceCreated, Event: invoiceEvent(i.Invoice)},
		{Topic: bus.TopicPaymentCreated, Event: paymentEvent(i.Payment)},
	}
}

// CompletePayment settles a pending payment, marks its invoice paid and activates a pending
// subscription. All three writes commit together or not at all.
func (g *Generator) CompletePayment(
	ctx context.Context,
	userID, paymentID uuid.UUID,
	transactionID *string,
) (*store.Payment, error) {
	if err := g.authorizePayment(ctx, userID, paymentID, access.Managers); err != nil {
		return nil, err
	}

	var (
		payment  *store.Payment
		messages []bus.Message
	)

	err := g.store.RunTransaction(ctx, func(ctx context.Context, tx store.Repositories) error {
		messages = nil

		p, err := tx.Payments().GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}

		if p.Status != store.PaymentPending {
			return apperr.BadRequest("payment is %s, only pending payments can be completed", p.Status)
		}

		now := g.now()

		p.Status = store.PaymentCompleted
		p.PaymentDate = &now
		p.TransactionID = transactionID
		if err := tx.Payments().UpdatePayment(ctx, p); err != nil {
			return err
		}

		messages = append(messages, bus.Message{Topic: bus.TopicPaymentSucceeded, Event: paymentEvent(p)})

		if p.InvoiceID != nil {
			inv, err := tx.Invoices().GetInvoiceForUpdate(ctx, *p.InvoiceID)
			if err != nil {
				return err
			}

			inv.Status = store.InvoicePaid
			inv.PaidAt = &now
			if err := tx.Invoices().UpdateInvoice(ctx, inv); err != nil {
				return err
			}

			messages = append(messages, bus.Message{Topic: bus.TopicInvoicePaid, Event: invoiceEvent(inv)})

			if inv.SubscriptionID != nil {
				if err := activateSubscription(ctx, tx, *inv.SubscriptionID); err != nil {
					return err
				}
			}
		}

		payment = p

		return nil
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info().
		Str("payment_id", payment.ID.String()).
		Str("tenant_id", payment.TenantID.String()).
		Str("amount", payment.Amount.StringFixed(2)).
		Msg("payment completed")

	g.publish(messages)

	return payment, nil
}

func activateSubscription(ctx context.Context, tx store.Repositories, subscriptionID uuid.UUID) error {
	sub, err := tx.Subscriptions().GetSubscriptionForUpdate(ctx, subscriptionID)
	if err != nil {
		return err
	}

	if sub.Status != store.SubscriptionPending && sub.Status != store.SubscriptionPastDue {
		return nil
	}

	sub.Status = store.SubscriptionActive

	return tx.Subscriptions().UpdateSubscription(ctx, sub)
}

// RefundPayment returns amount of a completed payment. A full refund flips the payment
// and its invoice to refunded; partial refunds accumulate in RefundedAmount.
func (g *Generator) RefundPayment(
	ctx context.Context,
	userID, paymentID uuid.UUID,
	amount decimal.Decimal,
) (*store.Payment, error) {
	if !amount.IsPositive() {
		return nil, apperr.BadRequest("refund amount must be positive")
	}

	if !amount.Equal(amount.Round(2)) {
		return nil, apperr.BadRequest("refund amount %s has more than 2 fractional digits", amount.String())
	}

	if err := g.authorizePayment(ctx, userID, paymentID, access.Managers); err != nil {
		return nil, err
	}

	var (
		payment  *store.Payment
		messages []bus.Message
	)

	err := g.store.RunTransaction(ctx, func(ctx context.Context, tx store.Repositories) error {
		messages = nil

		p, err := tx.Payments().GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}

		if p.Status != store.PaymentCompleted {
			return apperr.BadRequest("payment is %s, only completed payments can be refunded", p.Status)
		}

		refunded := p.RefundedAmount.Add(amount)
		if refunded.GreaterThan(p.Amount) {
			return apperr.BadRequest(
				"refund of %s exceeds refundable amount %s",
				amount.StringFixed(2), p.Amount.Sub(p.RefundedAmount).StringFixed(2),
			)
		}

		p.RefundedAmount = refunded
		if refunded.Equal(p.Amount) {
			p.Status = store.PaymentRefunded
		}

		if err := tx.Payments().UpdatePayment(ctx, p); err != nil {
			return err
		}

		event := paymentEvent(p)
		event.Details = map[string]any{"refund_amount": amount.StringFixed(2)}
		messages = append(messages, bus.Message{Topic: bus.TopicPaymentRefunded, Event: event})

		if p.Status == store.PaymentRefunded && p.InvoiceID != nil {
			inv, err := tx.Invoices().GetInvoiceForUpdate(ctx, *p.InvoiceID)
			if err != nil {
				return err
			}

			inv.Status = store.InvoiceRefunded
			if err := tx.Invoices().UpdateInvoice(ctx, inv); err != nil {
				return err
			}
		}

		payment = p

		return nil
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info().
		Str("payment_id", payment.ID.String()).
		Str("refund", amount.StringFixed(2)).
		Str("status", string(payment.Status)).
		Msg("payment refunded")

	g.publish(messages)

	return payment, nil
}

// FailPayment records a declined pending payment. An active subscription waiting on it
// becomes past_due; a pending subscription stays pending.
func (g *Generator) FailPayment(ctx context.Context, userID, paymentID uuid.UUID, reason string) (*store.Payment, error) {
	if err := g.authorizePayment(ctx, userID, paymentID, access.Managers); err != nil {
		return nil, err
	}

	var payment *store.Payment

	err := g.store.RunTransaction(ctx, func(ctx context.Context, tx store.Repositories) error {
		p, err := tx.Payments().GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}

		if p.Status != store.PaymentPending {
			return apperr.BadRequest("payment is %s, only pending payments can fail", p.Status)
		}

		p.Status = store.PaymentFailed
		if reason != "" {
			p.FailureReason = &reason
		}

		if err := tx.Payments().UpdatePayment(ctx, p); err != nil {
			return err
		}

		payment = p

		if p.InvoiceID == nil {
			return nil
		}

		inv, err := tx.Invoices().GetInvoiceForUpdate(ctx, *p.InvoiceID)
		if err != nil {
			return err
		}

		if inv.SubscriptionID == nil {
			return nil
		}

		sub, err := tx.Subscriptions().GetSubscriptionForUpdate(ctx, *inv.SubscriptionID)
		if err != nil {
			return err
		}

		if sub.Status != store.SubscriptionActive {
			return nil
		}

		sub.Status = store.SubscriptionPastDue

		return tx.Subscriptions().UpdateSubscription(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	g.logger.Warn().
		Str("payment_id", payment.ID.String()).
		Str("reason", reason).
		Msg("payment failed")

	event := paymentEvent(payment)
	event.Details = map[string]any{"reason": reason}
	g.publish([]bus.Message{{Topic: bus.TopicPaymentFailed, Event: event}})

	return payment, nil
}

func (g *Generator) GetInvoice(ctx context.Context, userID, invoiceID uuid.UUID) (*store.Invoice, error) {
	inv, err := g.store.Invoices().GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	if err := g.guard.Authorize(ctx, userID, inv.TenantID, access.Readers...); err != nil {
		return nil, err
	}

	return inv, nil
}

func (g *Generator) ListInvoices(ctx context.Context, userID, tenantID uuid.UUID, limit int) ([]*store.Invoice, error) {
	if err := g.guard.Authorize(ctx, userID, tenantID, access.Readers...); err != nil {
		return nil, err
	}

	return g.store.Invoices().ListTenantInvoices(ctx, tenantID, listLimit(limit))
}

func (g *Generator) GetPayment(ctx context.Context, userID, paymentID uuid.UUID) (*store.Payment, error) {
	p, err := g.store.Payments().GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if err := g.guard.Authorize(ctx, userID, p.TenantID, access.Readers...); err != nil {
		return nil, err
	}

	return p, nil
}

func (g *Generator) ListPayments(ctx context.Context, userID, tenantID uuid.UUID, limit int) ([]*store.Payment, error) {
	if err := g.guard.Authorize(ctx, userID, tenantID, access.Readers...); err != nil {
		return nil, err
	}

	return g.store.Payments().ListTenantPayments(ctx, tenantID, listLimit(limit))
}

func (g *Generator) publish(messages []bus.Message) {
	if err := bus.PublishAll(g.publisher, messages); err != nil {
		g.logger.Error().Err(err).Msg("unable to publish billing events")
	}
}

func (g *Generator) authorizePayment(ctx context.Context, userID, paymentID uuid.UUID, roles []store.Role) error {
	p, err := g.store.Payments().GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}

	return g.guard.Authorize(ctx, userID, p.TenantID, roles...)
}

func totals(items []store.InvoiceItem) (subtotal, tax, discount decimal.Decimal) {
	for _, item := range items {
		subtotal = subtotal.Add(item.Amount)
		tax = tax.Add(item.Tax)
		discount = discount.Add(item.Discount)
	}

	return subtotal, tax, discount
}

func describePeriod(c Charge) string {
	const layout = "2006-01-02"
	return c.PlanName + " subscription " + c.PeriodStart.Format(layout) + " - " + c.PeriodEnd.Format(layout)
}

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}

	return limit
}

func invoiceEvent(inv *store.Invoice) bus.Event {
	return bus.Event{
		TenantID:       inv.TenantID,
		SubscriptionID: inv.SubscriptionID,
		InvoiceID:      lo.ToPtr(inv.ID),
		Status:         string(inv.Status),
		Amount:         inv.Total.StringFixed(2),
		Currency:       inv.Currency,
		Details:        map[string]any{"invoice_number": inv.InvoiceNumber},
		OccurredAt:     inv.UpdatedAt,
	}
}

func paymentEvent(p *store.Payment) bus.Event {
	return bus.Event{
		TenantID:   p.TenantID,
		InvoiceID:  p.InvoiceID,
		PaymentID:  lo.ToPtr(p.ID),
		Status:     string(p.Status),
		Amount:     p.Amount.StringFixed(2),
		Currency:   p.Currency,
		OccurredAt: p.UpdatedAt,
	}
}
