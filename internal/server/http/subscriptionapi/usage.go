package subscriptionapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/msgdeck/msgdeck/internal/server/http/common"
	"github.com/msgdeck/msgdeck/internal/server/http/middleware"
)

// TrackUsage consumes quota of a metered feature. Exhausted quota yields 429.
// POST /api/v1/tenants/:tenantId/usage/:featureKey
func (h *Handler) TrackUsage(c echo.Context) error {
	tenantID, err := common.UUIDParam(c, paramTenantID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	var req TrackUsageRequest
	if err := c.Bind(&req); err != nil {
		return common.ValidationErrorResponse(c, "invalid request body")
	}

	incrementBy := int64(1)
	if req.IncrementBy != nil {
		incrementBy = *req.IncrementBy
	}

	counter, err := h.ledger.TrackUsage(
		c.Request().Context(),
		middleware.ResolveUserID(c),
		tenantID,
		c.Param(paramFeatureKey),
		incrementBy,
		req.Metadata,
	)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, usageToResponse(counter))
}

// CheckUsageLimit GET /api/v1/tenants/:tenantId/usage/:featureKey
func (h *Handler) CheckUsageLimit(c echo.Context) error {
	tenantID, err := common.UUIDParam(c, paramTenantID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	status, err := h.ledger.CheckUsageLimit(c.Request().Context(), middleware.ResolveUserID(c), tenantID, c.Param(paramFeatureKey))
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, limitStatusToResponse(status))
}

// GetUsageStats returns the counters of the current period
// GET /api/v1/tenants/:tenantId/usage
func (h *Handler) GetUsageStats(c echo.Context) error {
	tenantID, err := common.UUIDParam(c, paramTenantID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	counters, err := h.ledger.GetUsageStats(c.Request().Context(), middleware.ResolveUserID(c), tenantID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, usageListToResponse(counters))
}

// GetUsageHistory GET /api/v1/tenants/:tenantId/usage/history?limit=N
func (h *Handler) GetUsageHistory(c echo.Context) error {
	tenantID, err := common.UUIDParam(c, paramTenantID)
	if err != nil {
		return h.errorResponse(c, err)
	}

	limit, err := bindLimit(c)
	if err != nil {
		return common.ValidationErrorResponse(c, "invalid limit")
	}

	counters, err := h.ledger.GetUsageHistory(c.Request().Context(), middleware.ResolveUserID(c), tenantID, limit)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, usageListToResponse(counters))
}

// bindLimit reads the optional limit query parameter; 0 means the service default.
func bindLimit(c echo.Context) (int, error) {
	var limit int
	if err := echo.QueryParamsBinder(c).Int(queryLimit, &limit).BindError(); err != nil {
		return 0, err
	}

	if limit < 0 {
		return 0, echo.ErrBadRequest
	}

	return limit, nil
}
