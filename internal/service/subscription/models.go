package subscription

import (
	"time"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/store"
)

type CreateParams struct {
	TenantID uuid.UUID
	PlanID   uuid.UUID
	// StartDate defaults to now.
	StartDate *time.Time
	Metadata  map[string]any
}

// UpdateParams carries an administrative patch. Nil fields are left untouched.
type UpdateParams struct {
	Status            *store.SubscriptionStatus
	CancelAtPeriodEnd *bool
	Metadata          map[string]any
}

// Result is returned by workflows that may bill the tenant.
// Invoice and Payment are nil when nothing was billed.
type Result struct {
	Subscription *store.Subscription
	Features     []store.SubscriptionFeature
	Usage        []*store.SubscriptionUsage
	Invoice      *store.Invoice
	Payment      *store.Payment
	IsFree       bool
}

// CurrentStatuses are the statuses reported as the tenant's current subscription.
var CurrentStatuses = []store.SubscriptionStatus{
	store.SubscriptionTrial,
	store.SubscriptionActive,
	store.SubscriptionPending,
	store.SubscriptionPastDue,
}
