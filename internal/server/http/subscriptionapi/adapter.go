package subscriptionapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/service/subscription"
	"github.com/msgdeck/msgdeck/internal/service/usage"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}

	return lo.ToPtr(formatTime(*t))
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatUUIDPtr(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}

	return lo.ToPtr(id.String())
}

func planToResponse(p *store.Plan) *PlanResponse {
	return &PlanResponse{
		ID:                   p.ID.String(),
		Name:                 p.Name,
		Description:          p.Description,
		Price:                formatMoney(p.Price),
		Currency:             p.Currency,
		BillingCycle:         p.BillingCycle.String(),
		TrialDays:            p.TrialDays,
		MaxUsers:             p.MaxUsers,
		MaxWhatsappInstances: p.MaxWhatsappInstances,
		MaxMessagesPerMonth:  p.MaxMessagesPerMonth,
		MaxAPICallsPerMonth:  p.MaxAPICallsPerMonth,
		MaxContacts:          p.MaxContacts,
		MaxCampaigns:         p.MaxCampaigns,
		Features: lo.Map(p.Features, func(f store.PlanFeature, _ int) PlanFeatureResponse {
			return PlanFeatureResponse{Key: f.Key, Name: f.Name, Value: f.Value, Enabled: f.Enabled}
		}),
	}
}

func subscriptionToResponse(sub *store.Subscription) *SubscriptionResponse {
	metadata := sub.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return &SubscriptionResponse{
		ID:                 sub.ID.String(),
		TenantID:           sub.TenantID.String(),
		PlanID:             sub.PlanID.String(),
		Status:             string(sub.Status),
		CurrentPeriodStart: formatTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   formatTime(sub.CurrentPeriodEnd),
		TrialStart:         formatTimePtr(sub.TrialStart),
		TrialEnd:           formatTimePtr(sub.TrialEnd),
		CancelledAt:        formatTimePtr(sub.CancelledAt),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		Price:              formatMoney(sub.Price),
		Currency:           sub.Currency,
		Metadata:           metadata,
		CreatedAt:          formatTime(sub.CreatedAt),
		UpdatedAt:          formatTime(sub.UpdatedAt),
	}
}

func featuresToResponse(features []store.SubscriptionFeature) []SubscriptionFeatureResponse {
	return lo.Map(features, func(f store.SubscriptionFeature, _ int) SubscriptionFeatureResponse {
		return SubscriptionFeatureResponse{Key: f.Key, Name: f.Name, Value: f.Value, Enabled: f.Enabled}
	})
}

func usageToResponse(u *store.SubscriptionUsage) UsageResponse {
	return UsageResponse{
		FeatureKey:  u.FeatureKey,
		UsageCount:  u.UsageCount,
		Limit:       u.Limit,
		PeriodStart: formatTime(u.PeriodStart),
		PeriodEnd:   formatTime(u.PeriodEnd),
	}
}

func usageListToResponse(counters []*store.SubscriptionUsage) []UsageResponse {
	return lo.Map(counters, func(u *store.SubscriptionUsage, _ int) UsageResponse {
		return usageToResponse(u)
	})
}

func limitStatusToResponse(s *usage.LimitStatus) *LimitStatusResponse {
	return &LimitStatusResponse{
		FeatureKey: s.FeatureKey,
		Allowed:    s.Allowed,
		Current:    s.Current,
		Limit:      s.Limit,
		Remaining:  s.Remaining,
	}
}

func invoiceToResponse(inv *store.Invoice) *InvoiceResponse {
	if inv == nil {
		return nil
	}

	return &InvoiceResponse{
		ID:             inv.ID.String(),
		InvoiceNumber:  inv.InvoiceNumber,
		TenantID:       inv.TenantID.String(),
		SubscriptionID: formatUUIDPtr(inv.SubscriptionID),
		Status:         string(inv.Status),
		Currency:       inv.Currency,
		Subtotal:       formatMoney(inv.Subtotal),
		Tax:            formatMoney(inv.Tax),
		Discount:       formatMoney(inv.Discount),
		Total:          formatMoney(inv.Total),
		PeriodStart:    formatTimePtr(inv.PeriodStart),
		PeriodEnd:      formatTimePtr(inv.PeriodEnd),
		DueDate:        formatTime(inv.DueDate),
		PaidAt:         formatTimePtr(inv.PaidAt),
		Items: lo.Map(inv.Items, func(item store.InvoiceItem, _ int) InvoiceItemResponse {
			return InvoiceItemResponse{
				ItemType:    string(item.ItemType),
				Description: item.Description,
				Quantity:    item.Quantity,
				UnitPrice:   formatMoney(item.UnitPrice),
				Amount:      formatMoney(item.Amount),
				Tax:         formatMoney(item.Tax),
				Discount:    formatMoney(item.Discount),
			}
		}),
		CreatedAt: formatTime(inv.CreatedAt),
	}
}

func paymentToResponse(p *store.Payment) *PaymentResponse {
	if p == nil {
		return nil
	}

	return &PaymentResponse{
		ID:             p.ID.String(),
		PaymentNumber:  p.PaymentNumber,
		TenantID:       p.TenantID.String(),
		InvoiceID:      formatUUIDPtr(p.InvoiceID),
		Status:         string(p.Status),
		Amount:         formatMoney(p.Amount),
		RefundedAmount: formatMoney(p.RefundedAmount),
		Currency:       p.Currency,
		PaymentMethod:  p.PaymentMethod,
		TransactionID:  p.TransactionID,
		PaymentDate:    formatTimePtr(p.PaymentDate),
		FailureReason:  p.FailureReason,
		CreatedAt:      formatTime(p.CreatedAt),
	}
}

func resultToResponse(r *subscription.Result) *SubscriptionResultResponse {
	return &SubscriptionResultResponse{
		Subscription: subscriptionToResponse(r.Subscription),
		Features:     featuresToResponse(r.Features),
		Usage:        usageListToResponse(r.Usage),
		Invoice:      invoiceToResponse(r.Invoice),
		Payment:      paymentToResponse(r.Payment),
		IsFree:       r.IsFree,
	}
}
