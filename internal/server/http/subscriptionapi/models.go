package subscriptionapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Requests

type CreateSubscriptionRequest struct {
	PlanID    uuid.UUID      `json:"plan_id"`
	StartDate *time.Time     `json:"start_date"`
	Metadata  map[string]any `json:"metadata"`
}

type CancelSubscriptionRequest struct {
	CancelAtPeriodEnd bool `json:"cancel_at_period_end"`
}

type UpdateSubscriptionRequest struct {
	Status            *string        `json:"status"`
	CancelAtPeriodEnd *bool          `json:"cancel_at_period_end"`
	Metadata          map[string]any `json:"metadata"`
}

type TrackUsageRequest struct {
	// IncrementBy defaults to 1.
	IncrementBy *int64         `json:"increment_by"`
	Metadata    map[string]any `json:"metadata"`
}

type CompletePaymentRequest struct {
	TransactionID *string `json:"transaction_id"`
}

type RefundPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type FailPaymentRequest struct {
	Reason string `json:"reason"`
}

// Responses

type PlanFeatureResponse struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

type PlanResponse struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	Description          string                `json:"description"`
	Price                string                `json:"price"`
	Currency             string                `json:"currency"`
	BillingCycle         string                `json:"billing_cycle"`
	TrialDays            int                   `json:"trial_days"`
	MaxUsers             *int64                `json:"max_users"` // null = unlimited
	MaxWhatsappInstances *int64                `json:"max_whatsapp_instances"`
	MaxMessagesPerMonth  *int64                `json:"max_messages_per_month"`
	MaxAPICallsPerMonth  *int64                `json:"max_api_calls_per_month"`
	MaxContacts          *int64                `json:"max_contacts"`
	MaxCampaigns         *int64                `json:"max_campaigns"`
	Features             []PlanFeatureResponse `json:"features"`
}

type SubscriptionResponse struct {
	ID                 string         `json:"id"`
	TenantID           string         `json:"tenant_id"`
	PlanID             string         `json:"plan_id"`
	Status             string         `json:"status"`
	CurrentPeriodStart string         `json:"current_period_start"`
	CurrentPeriodEnd   string         `json:"current_period_end"`
	TrialStart         *string        `json:"trial_start"`
	TrialEnd           *string        `json:"trial_end"`
	CancelledAt        *string        `json:"cancelled_at"`
	CancelAtPeriodEnd  bool           `json:"cancel_at_period_end"`
	Price              string         `json:"price"`
	Currency           string         `json:"currency"`
	Metadata           map[string]any `json:"metadata"`
	CreatedAt          string         `json:"created_at"`
	UpdatedAt          string         `json:"updated_at"`
}

type SubscriptionFeatureResponse struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

type UsageResponse struct {
	FeatureKey  string `json:"feature_key"`
	UsageCount  int64  `json:"usage_count"`
	Limit       *int64 `json:"limit"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

type LimitStatusResponse struct {
	FeatureKey string `json:"feature_key"`
	Allowed    bool   `json:"allowed"`
	Current    int64  `json:"current"`
	Limit      *int64 `json:"limit"`
	Remaining  *int64 `json:"remaining"`
}

type InvoiceItemResponse struct {
	ItemType    string `json:"item_type"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Amount      string `json:"amount"`
	Tax         string `json:"tax"`
	Discount    string `json:"discount"`
}

type InvoiceResponse struct {
	ID             string                `json:"id"`
	InvoiceNumber  string                `json:"invoice_number"`
	TenantID       string                `json:"tenant_id"`
	SubscriptionID *string               `json:"subscription_id"`
	Status         string                `json:"status"`
	Currency       string                `json:"currency"`
	Subtotal       string                `json:"subtotal"`
	Tax            string                `json:"tax"`
	Discount       string                `json:"discount"`
	Total          string                `json:"total"`
	PeriodStart    *string               `json:"period_start"`
	PeriodEnd      *string               `json:"period_end"`
	DueDate        string                `json:"due_date"`
	PaidAt         *string               `json:"paid_at"`
	Items          []InvoiceItemResponse `json:"items"`
	CreatedAt      string                `json:"created_at"`
}

type PaymentResponse struct {
	ID             string  `json:"id"`
	PaymentNumber  string  `json:"payment_number"`
	TenantID       string  `json:"tenant_id"`
	InvoiceID      *string `json:"invoice_id"`
	Status         string  `json:"status"`
	Amount         string  `json:"amount"`
	RefundedAmount string  `json:"refunded_amount"`
	Currency       string  `json:"currency"`
	PaymentMethod  string  `json:"payment_method"`
	TransactionID  *string `json:"transaction_id"`
	PaymentDate    *string `json:"payment_date"`
	FailureReason  *string `json:"failure_reason"`
	CreatedAt      string  `json:"created_at"`
}

// SubscriptionResultResponse is returned by create and renew.
// Invoice and payment are null when nothing was billed.
type SubscriptionResultResponse struct {
	Subscription *SubscriptionResponse         `json:"subscription"`
	Features     []SubscriptionFeatureResponse `json:"features,omitempty"`
	Usage        []UsageResponse               `json:"usage"`
	Invoice      *InvoiceResponse              `json:"invoice"`
	Payment      *PaymentResponse              `json:"payment"`
	IsFree       bool                          `json:"is_free"`
}
