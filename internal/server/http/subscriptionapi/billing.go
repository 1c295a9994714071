package subscriptionapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/msgdeck/msgdeck/internal/server/http/common"
	"github.com/msgdeck/msgdeck/internal/server/http/middleware"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/samber/lo"
)

// ListInvoices GET /api/v1/tenants/:tenantId/invoices?limit=N
func (h *Handler) ListInvoices(c echo.Context) error {
	tenantID, err := common.UUIDParam(c, paramTenantID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	limit, err := bindLimit(c)
	if err != nil {
		return common.ValidationErrorResponse(c, "invalid limit")
	}

	invoices, err := h.invoices.ListInvoices(c.Request().Context(), middleware.ResolveUserID(c), tenantID, limit)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, lo.Map(invoices, func(inv *store.Invoice, _ int) *InvoiceResponse {
		return invoiceToResponse(inv)
	}))
}

// GetInvoice GET /api/v1/invoices/:invoiceId
func (h *Handler) GetInvoice(c echo.Context) error {
	invoiceID, err := common.UUIDParam(c, paramInvoiceID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	inv, err := h.invoices.GetInvoice(c.Request().Context(), middleware.ResolveUserID(c), invoiceID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, invoiceToResponse(inv))
}

// ListPayments GET /api/v1/tenants/:tenantId/payments?limit=N
func (h *Handler) ListPayments(c echo.Context) error {
	tenantID, err := common.UUIDParam(c, paramTenantID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	limit, err := bindLimit(c)
	if err != nil {
		return common.ValidationErrorResponse(c, "invalid limit")
	}

	payments, err := h.invoices.ListPayments(c.Request().Context(), middleware.ResolveUserID(c), tenantID, limit)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, lo.Map(payments, func(p *store.Payment, _ int) *PaymentResponse {
		return paymentToResponse(p)
	}))
}

// GetPayment GET /api/v1/payments/:paymentId
func (h *Handler) GetPayment(c echo.Context) error {
	paymentID, err := common.UUIDParam(c, paramPaymentID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	p, err := h.invoices.GetPayment(c.Request().Context(), middleware.ResolveUserID(c), paymentID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, paymentToResponse(p))
}

// CompletePayment settles a pending payment and activates its subscription
// POST /api/v1/payments/:paymentId/complete
func (h *Handler) CompletePayment(c echo.Context) error {
	paymentID, err := common.UUIDParam(c, paramPaymentID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	var req CompletePaymentRequest
	if err := c.Bind(&req); err != nil {
		return common.ValidationErrorResponse(c, "invalid request body")
	}

	p, err := h.invoices.CompletePayment(c.Request().Context(), middleware.ResolveUserID(c), paymentID, req.TransactionID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, paymentToResponse(p))
}

// RefundPayment POST /api/v1/payments/:paymentId/refund
func (h *Handler) RefundPayment(c echo.Context) error {
	paymentID, err := common.UUIDParam(c, paramPaymentID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	var req RefundPaymentRequest
	if err := c.Bind(&req); err != nil {
		return common.ValidationErrorResponse(c, "invalid request body")
	}

	p, err := h.invoices.RefundPayment(c.Request().Context(), middleware.ResolveUserID(c), paymentID, req.Amount)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, paymentToResponse(p))
}

// FailPayment POST /api/v1/payments/:paymentId/fail
func (h *Handler) FailPayment(c echo.Context) error {
	paymentID, err := common.UUIDParam(c, paramPaymentID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	var req FailPaymentRequest
	if err := c.Bind(&req); err != nil {
		return common.ValidationErrorResponse(c, "invalid request body")
	}

	p, err := h.invoices.FailPayment(c.Request().Context(), middleware.ResolveUserID(c), paymentID, req.Reason)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, paymentToResponse(p))
}
