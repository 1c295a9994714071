package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/billing"
	"github.com/shopspring/decimal"
)

// Plan is a priced offering. Nil ceilings mean unlimited.
type Plan struct {
	ID                   uuid.UUID       `json:"id"`
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	Price                decimal.Decimal `json:"price"`
	Currency             string          `json:"currency"`
	BillingCycle         billing.Cycle   `json:"billing_cycle"`
	TrialDays            int             `json:"trial_days"`
	MaxUsers             *int64          `json:"max_users"`
	MaxWhatsappInstances *int64          `json:"max_whatsapp_instances"`
	MaxMessagesPerMonth  *int64          `json:"max_messages_per_month"`
	MaxAPICallsPerMonth  *int64          `json:"max_api_calls_per_month"`
	MaxContacts          *int64          `json:"max_contacts"`
	MaxCampaigns         *int64          `json:"max_campaigns"`
	IsActive             bool            `json:"is_active"`
	IsPublic             bool            `json:"is_public"`
	Features             []PlanFeature   `json:"features"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	DeletedAt            *time.Time      `json:"-"`
}

func (p *Plan) IsFree() bool {
	return p.Price.IsZero()
}

type PlanFeature struct {
	ID      uuid.UUID `json:"id"`
	PlanID  uuid.UUID `json:"plan_id"`
	Key     string    `json:"key"`
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Enabled bool      `json:"enabled"`
}

type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// LiveStatuses are the statuses a tenant may hold at most one subscription in.
var LiveStatuses = []SubscriptionStatus{SubscriptionTrial, SubscriptionActive, SubscriptionPending}

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionTrial, SubscriptionPending, SubscriptionActive,
		SubscriptionPastDue, SubscriptionCancelled, SubscriptionExpired:
		return true
	}

	return false
}

func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionCancelled || s == SubscriptionExpired
}

func (s SubscriptionStatus) Live() bool {
	return s == SubscriptionTrial || s == SubscriptionActive || s == SubscriptionPending
}

type Subscription struct {
	ID                 uuid.UUID          `json:"id"`
	TenantID           uuid.UUID          `json:"tenant_id"`
	PlanID             uuid.UUID          `json:"plan_id"`
	Status             SubscriptionStatus `json:"status"`
	BillingAnchor      time.Time          `json:"billing_anchor"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	TrialStart         *time.Time         `json:"trial_start"`
	TrialEnd           *time.Time         `json:"trial_end"`
	CancelledAt        *time.Time         `json:"cancelled_at"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	Price              decimal.Decimal    `json:"price"`
	Currency           string             `json:"currency"`
	Metadata           map[string]any     `json:"metadata"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	DeletedAt          *time.Time         `json:"-"`
}

func (s *Subscription) IsFree() bool {
	return s.Price.IsZero()
}

type SubscriptionFeature struct {
	ID             uuid.UUID `json:"id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Key            string    `json:"key"`
	Name           string    `json:"name"`
	Value          string    `json:"value"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
}

// SubscriptionUsage is a per-period counter. A nil Limit means unlimited.
type SubscriptionUsage struct {
	ID             uuid.UUID  `json:"id"`
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	FeatureKey     string     `json:"feature_key"`
	PeriodStart    time.Time  `json:"period_start"`
	PeriodEnd      time.Time  `json:"period_end"`
	UsageCount     int64      `json:"usage_count"`
	Limit          *int64     `json:"limit"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"-"`
}

// UsageKey addresses a single counter.
type UsageKey struct {
	SubscriptionID uuid.UUID
	FeatureKey     string
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
	InvoiceRefunded  InvoiceStatus = "refunded"
)

type Invoice struct {
	ID             uuid.UUID       `json:"id"`
	InvoiceNumber  string          `json:"invoice_number"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	SubscriptionID *uuid.UUID      `json:"subscription_id"`
	Status         InvoiceStatus   `json:"status"`
	Currency       string          `json:"currency"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	PeriodStart    *time.Time      `json:"period_start"`
	PeriodEnd      *time.Time      `json:"period_end"`
	DueDate        time.Time       `json:"due_date"`
	PaidAt         *time.Time      `json:"paid_at"`
	Items          []InvoiceItem   `json:"items"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      *time.Time      `json:"-"`
}

type InvoiceItemType string

const (
	ItemPlan   InvoiceItemType = "plan"
	ItemAddon  InvoiceItemType = "addon"
	ItemCustom InvoiceItemType = "custom"
)

type InvoiceItem struct {
	ID          uuid.UUID       `json:"id"`
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	ItemType    InvoiceItemType `json:"item_type"`
	ReferenceID *uuid.UUID      `json:"reference_id"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
	Tax         decimal.Decimal `json:"tax"`
	Discount    decimal.Decimal `json:"discount"`
	CreatedAt   time.Time       `json:"created_at"`
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

// PaymentMethodPending marks a payment awaiting external settlement.
const PaymentMethodPending = "pending"

type Payment struct {
	ID             uuid.UUID       `json:"id"`
	PaymentNumber  string          `json:"payment_number"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	InvoiceID      *uuid.UUID      `json:"invoice_id"`
	Status         PaymentStatus   `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	Currency       string          `json:"currency"`
	PaymentMethod  string          `json:"payment_method"`
	TransactionID  *string         `json:"transaction_id"`
	PaymentDate    *time.Time      `json:"payment_date"`
	FailureReason  *string         `json:"failure_reason"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      *time.Time      `json:"-"`
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

type Membership struct {
	UserID   uuid.UUID `json:"user_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Role     Role      `json:"role"`
}
