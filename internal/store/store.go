// Package store declares the persistence contracts of the billing engine.
//
// Services depend on the narrow per-entity repositories below. Multi-row workflows obtain
// a transaction-bound set of repositories from Transactor.RunTransaction; every read path of
// every implementation excludes soft-deleted rows.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PlanFilter struct {
	OnlyActive bool
	OnlyPublic bool
}

type PlanRepository interface {
	// GetPlan returns the plan with its features regardless of IsActive.
	GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error)
	ListPlans(ctx context.Context, filter PlanFilter) ([]*Plan, error)
}

type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, sub *Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// GetSubscriptionForUpdate reads the row and holds a write lock on it until the transaction ends.
	GetSubscriptionForUpdate(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// GetSubscriptionForShare reads the row and blocks writers of it until the transaction ends.
	GetSubscriptionForShare(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// FindTenantSubscription returns the most recent subscription of the tenant in one of statuses.
	FindTenantSubscription(ctx context.Context, tenantID uuid.UUID, statuses []SubscriptionStatus) (*Subscription, error)
	ListTenantSubscriptions(ctx context.Context, tenantID uuid.UUID) ([]*Subscription, error)
	UpdateSubscription(ctx context.Context, sub *Subscription) error
	// LockTenant serializes subscription workflows of a single tenant for the rest of the transaction.
	LockTenant(ctx context.Context, tenantID uuid.UUID) error
}

type FeatureRepository interface {
	CreateSubscriptionFeatures(ctx context.Context, features []SubscriptionFeature) error
	ListSubscriptionFeatures(ctx context.Context, subscriptionID uuid.UUID) ([]SubscriptionFeature, error)
}

type UsageRepository interface {
	// InsertUsageIfAbsent creates the counter unless a live one exists for the same key.
	InsertUsageIfAbsent(ctx context.Context, usage *SubscriptionUsage) error
	GetUsage(ctx context.Context, key UsageKey) (*SubscriptionUsage, error)
	// IncrementUsage atomically adds by to the counter only when the result stays within its limit.
	// It returns applied=false and leaves the counter untouched otherwise.
	IncrementUsage(ctx context.Context, key UsageKey, by int64) (usage *SubscriptionUsage, applied bool, err error)
	ListPeriodUsage(ctx context.Context, subscriptionID uuid.UUID, periodStart, periodEnd time.Time) ([]*SubscriptionUsage, error)
	ListUsageHistory(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*SubscriptionUsage, error)
}

type InvoiceRepository interface {
	// CreateInvoice persists the invoice together with its items.
	CreateInvoice(ctx context.Context, invoice *Invoice) error
	GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)
	UpdateInvoice(ctx context.Context, invoice *Invoice) error
	ListTenantInvoices(ctx context.Context, tenantID uuid.UUID, limit int) ([]*Invoice, error)
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error)
	UpdatePayment(ctx context.Context, payment *Payment) error
	ListTenantPayments(ctx context.Context, tenantID uuid.UUID, limit int) ([]*Payment, error)
}

// MembershipRepository is a read-only view of tenant membership owned by another system.
type MembershipRepository interface {
	GetMembership(ctx context.Context, userID, tenantID uuid.UUID) (*Membership, error)
}

// Repositories is the full set of repositories bound to one connection or transaction.
type Repositories interface {
	Plans() PlanRepository
	Subscriptions() SubscriptionRepository
	Features() FeatureRepository
	Usage() UsageRepository
	Invoices() InvoiceRepository
	Payments() PaymentRepository
}

type TxFunc func(ctx context.Context, tx Repositories) error

type Transactor interface {
	// RunTransaction commits when fn returns nil and rolls everything back otherwise.
	RunTransaction(ctx context.Context, fn TxFunc) error
}

type Store interface {
	Repositories
	Transactor
	Memberships() MembershipRepository
}
