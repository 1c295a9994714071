package subscriptionapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/msgdeck/msgdeck/internal/server/http/common"
	"github.com/msgdeck/msgdeck/internal/server/http/middleware"
	"github.com/msgdeck/msgdeck/internal/service/invoice"
	"github.com/msgdeck/msgdeck/internal/service/plan"
	"github.com/msgdeck/msgdeck/internal/service/subscription"
	"github.com/msgdeck/msgdeck/internal/service/usage"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	paramTenantID       = "tenantId"
	paramPlanID         = "planId"
	paramSubscriptionID = "subscriptionId"
	paramFeatureKey     = "featureKey"
	paramInvoiceID      = "invoiceId"
	paramPaymentID      = "paymentId"
	queryLimit          = "limit"
)

type Handler struct {
	plans         *plan.Service
	subscriptions *subscription.Service
	ledger        *usage.Ledger
	invoices      *invoice.Generator
	logger        *zerolog.Logger
}

func New(
	plans *plan.Service,
	subscriptions *subscription.Service,
	ledger *usage.Ledger,
	invoices *invoice.Generator,
	logger *zerolog.Logger,
) *Handler {
	log := logger.With().Str("channel", "subscription_api").Logger()

	return &Handler{
		plans:         plans,
		subscriptions: subscriptions,
		ledger:        ledger,
		invoices:      invoices,
		logger:        &log,
	}
}

func (h *Handler) errorResponse(c echo.Context, err error) error {
	return common.ErrorFromService(c, h.logger, err)
}

// ListPlans returns public plans
// GET /api/v1/plans
func (h *Handler) ListPlans(c echo.Context) error {
	plans, err := h.plans.ListPublicPlans(c.Request().Context())
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, lo.Map(plans, func(p *store.Plan, _ int) *PlanResponse {
		return planToResponse(p)
	}))
}

// GetPlan GET /api/v1/plans/:planId
func (h *Handler) GetPlan(c echo.Context) error {
	planID, err := common.UUIDParam(c, paramPlanID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	p, err := h.plans.GetPlan(c.Request().Context(), planID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, planToResponse(p))
}

// CreateSubscription subscribes the tenant to a plan
// POST /api/v1/tenants/:tenantId/subscriptions
func (h *Handler) CreateSubscription(c echo.Context) error {
	tenantID, err := common.UUIDParam(c, paramTenantID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	var req CreateSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return common.ValidationErrorResponse(c, "invalid request body")
	}

	result, err := h.subscriptions.Create(c.Request().Context(), middleware.ResolveUserID(c), subscription.CreateParams{
		TenantID:  tenantID,
		PlanID:    req.PlanID,
		StartDate: req.StartDate,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusCreated, resultToResponse(result))
}

// GetCurrentSubscription GET /api/v1/tenants/:tenantId/subscription
func (h *Handler) GetCurrentSubscription(c echo.Context) error {
	tenantID, err := common.UUIDParam(c, paramTenantID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	sub, err := h.subscriptions.GetCurrent(c.Request().Context(), middleware.ResolveUserID(c), tenantID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, subscriptionToResponse(sub))
}

// ListSubscriptions returns the tenant's subscription history
// GET /api/v1/tenants/:tenantId/subscriptions
func (h *Handler) ListSubscriptions(c echo.Context) error {
	tenantID, err := common.UUIDParam(c, paramTenantID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	subs, err := h.subscriptions.ListHistory(c.Request().Context(), middleware.ResolveUserID(c), tenantID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, lo.Map(subs, func(sub *store.Subscription, _ int) *SubscriptionResponse {
		return subscriptionToResponse(sub)
	}))
}

// GetSubscription GET /api/v1/subscriptions/:subscriptionId
func (h *Handler) GetSubscription(c echo.Context) error {
	subscriptionID, err := common.UUIDParam(c, paramSubscriptionID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	sub, err := h.subscriptions.Get(c.Request().Context(), middleware.ResolveUserID(c), subscriptionID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, subscriptionToResponse(sub))
}

// ListSubscriptionFeatures GET /api/v1/subscriptions/:subscriptionId/features
func (h *Handler) ListSubscriptionFeatures(c echo.Context) error {
	subscriptionID, err := common.UUIDParam(c, paramSubscriptionID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	features, err := h.subscriptions.ListFeatures(c.Request().Context(), middleware.ResolveUserID(c), subscriptionID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, featuresToResponse(features))
}

// RenewSubscription advances the subscription by one billing cycle
// POST /api/v1/subscriptions/:subscriptionId/renew
func (h *Handler) RenewSubscription(c echo.Context) error {
	subscriptionID, err := common.UUIDParam(c, paramSubscriptionID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	result, err := h.subscriptions.Renew(c.Request().Context(), middleware.ResolveUserID(c), subscriptionID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, resultToResponse(result))
}

// CancelSubscription POST /api/v1/subscriptions/:subscriptionId/cancel
func (h *Handler) CancelSubscription(c echo.Context) error {
	subscriptionID, err := common.UUIDParam(c, paramSubscriptionID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	var req CancelSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return common.ValidationErrorResponse(c, "invalid request body")
	}

	sub, err := h.subscriptions.Cancel(c.Request().Context(), middleware.ResolveUserID(c), subscriptionID, req.CancelAtPeriodEnd)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, subscriptionToResponse(sub))
}

// UpdateSubscription applies an administrative patch
// PATCH /api/v1/subscriptions/:subscriptionId
func (h *Handler) UpdateSubscription(c echo.Context) error {
	subscriptionID, err := common.UUIDParam(c, paramSubscriptionID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	var req UpdateSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return common.ValidationErrorResponse(c, "invalid request body")
	}

	params := subscription.UpdateParams{
		CancelAtPeriodEnd: req.CancelAtPeriodEnd,
		Metadata:          req.Metadata,
	}

	if req.Status != nil {
		params.Status = lo.ToPtr(store.SubscriptionStatus(*req.Status))
	}

	sub, err := h.subscriptions.Update(c.Request().Context(), middleware.ResolveUserID(c), subscriptionID, params)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, subscriptionToResponse(sub))
}
