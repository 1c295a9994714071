package subscriptionapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/msgdeck/msgdeck/internal/bus"
	httpserver "github.com/msgdeck/msgdeck/internal/server/http"
	"github.com/msgdeck/msgdeck/internal/server/http/middleware"
	"github.com/msgdeck/msgdeck/internal/server/http/subscriptionapi"
	"github.com/msgdeck/msgdeck/internal/service/access"
	"github.com/msgdeck/msgdeck/internal/service/invoice"
	"github.com/msgdeck/msgdeck/internal/service/plan"
	"github.com/msgdeck/msgdeck/internal/service/subscription"
	"github.com/msgdeck/msgdeck/internal/service/usage"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/msgdeck/msgdeck/internal/store/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	echo     *echo.Echo
	tenantID uuid.UUID
	ownerID  uuid.UUID
	memberID uuid.UUID
	viewerID uuid.UUID
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := zerolog.Nop()
	db := memory.New()

	for _, p := range plan.Defaults() {
		db.AddPlan(p)
	}

	api := &testAPI{
		tenantID: uuid.New(),
		ownerID:  uuid.New(),
		memberID: uuid.New(),
		viewerID: uuid.New(),
	}

	db.AddMembership(api.ownerID, api.tenantID, store.RoleOwner)
	db.AddMembership(api.memberID, api.tenantID, store.RoleMember)
	db.AddMembership(api.viewerID, api.tenantID, store.RoleViewer)

	guard := access.New(db.Memberships(), &logger)
	plans := plan.New(db.Plans(), &logger)
	invoices := invoice.New(invoice.Config{}, db, guard, bus.Nop{}, &logger)
	ledger := usage.New(db, guard, &logger)
	subscriptions := subscription.New(db, plans, invoices, guard, bus.Nop{}, &logger)

	handler := subscriptionapi.New(plans, subscriptions, ledger, invoices, &logger)
	server := httpserver.New(httpserver.Config{}, false, &logger, httpserver.WithBillingAPI(handler))

	api.echo = server.Echo()

	return api
}

func (a *testAPI) do(t *testing.T, method, path string, userID uuid.UUID, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	if userID != uuid.Nil {
		req.Header.Set(middleware.UserIDHeader, userID.String())
	}

	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())

	return out
}

func (a *testAPI) tenantPath(suffix string) string {
	return "/api/v1/tenants/" + a.tenantID.String() + suffix
}

func TestHandler_ListPlans(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/plans", uuid.Nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	plans := decode[[]subscriptionapi.PlanResponse](t, rec)
	require.Len(t, plans, 3)
	assert.Equal(t, "0.00", plans[0].Price)
	assert.Equal(t, "49.00", plans[1].Price)
	assert.Equal(t, "199.00", plans[2].Price)
	assert.Equal(t, "monthly", plans[1].BillingCycle)
	assert.Nil(t, plans[2].MaxMessagesPerMonth)

	rec = api.do(t, http.MethodGet, "/api/v1/plans/"+plan.StarterPlanID.String(), uuid.Nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Starter", decode[subscriptionapi.PlanResponse](t, rec).Name)

	rec = api.do(t, http.MethodGet, "/api/v1/plans/"+uuid.NewString(), uuid.Nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/plans/oops", uuid.Nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_FreeSubscriptionAndUsage(t *testing.T) {
	api := setupAPI(t)

	// anonymous
	rec := api.do(t, http.MethodPost, api.tenantPath("/subscriptions"), uuid.Nil, `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// viewer cannot subscribe
	body := `{"plan_id":"` + plan.FreePlanID.String() + `","metadata":{"source":"api"}}`
	rec = api.do(t, http.MethodPost, api.tenantPath("/subscriptions"), api.viewerID, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[map[string]string](t, rec)["status"])

	rec = api.do(t, http.MethodPost, api.tenantPath("/subscriptions"), api.ownerID, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[subscriptionapi.SubscriptionResultResponse](t, rec)
	assert.True(t, created.IsFree)
	assert.Equal(t, "active", created.Subscription.Status)
	assert.Equal(t, "0.00", created.Subscription.Price)
	assert.Equal(t, "api", created.Subscription.Metadata["source"])
	assert.Nil(t, created.Invoice)
	assert.Nil(t, created.Payment)
	assert.Len(t, created.Usage, len(plan.TrackedFeatures))

	// second live subscription
	rec = api.do(t, http.MethodPost, api.tenantPath("/subscriptions"), api.ownerID, body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// free plan allows two campaigns
	rec = api.do(t, http.MethodPost, api.tenantPath("/usage/campaigns"), api.memberID, `{"increment_by":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(2), decode[subscriptionapi.UsageResponse](t, rec).UsageCount)

	rec = api.do(t, http.MethodPost, api.tenantPath("/usage/campaigns"), api.memberID, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "usage_limit_exceeded", decode[map[string]string](t, rec)["status"])

	rec = api.do(t, http.MethodPost, api.tenantPath("/usage/campaigns"), api.memberID, `{"increment_by":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, api.tenantPath("/usage/campaigns"), api.viewerID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	status := decode[subscriptionapi.LimitStatusResponse](t, rec)
	assert.False(t, status.Allowed)
	assert.Equal(t, int64(2), status.Current)
	require.NotNil(t, status.Remaining)
	assert.Equal(t, int64(0), *status.Remaining)

	rec = api.do(t, http.MethodGet, api.tenantPath("/usage"), api.viewerID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]subscriptionapi.UsageResponse](t, rec), len(plan.TrackedFeatures))

	rec = api.do(t, http.MethodGet, api.tenantPath("/usage/history?limit=-1"), api.viewerID, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// cancel immediately
	rec = api.do(t, http.MethodPost, "/api/v1/subscriptions/"+created.Subscription.ID+"/cancel", api.ownerID, `{"cancel_at_period_end":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	cancelled := decode[subscriptionapi.SubscriptionResponse](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	// metering requires a live subscription
	rec = api.do(t, http.MethodGet, api.tenantPath("/usage"), api.viewerID, "")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = api.do(t, http.MethodGet, api.tenantPath("/subscriptions"), api.viewerID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]subscriptionapi.SubscriptionResponse](t, rec), 1)
}

func TestHandler_PaidSubscriptionPaymentFlow(t *testing.T) {
	api := setupAPI(t)

	body := `{"plan_id":"` + plan.StarterPlanID.String() + `","start_date":"2024-01-31T10:00:00Z"}`
	rec := api.do(t, http.MethodPost, api.tenantPath("/subscriptions"), api.ownerID, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[subscriptionapi.SubscriptionResultResponse](t, rec)
	assert.Equal(t, "pending", created.Subscription.Status)
	assert.Equal(t, "2024-01-31T10:00:00Z", created.Subscription.CurrentPeriodStart)
	assert.Equal(t, "2024-02-29T10:00:00Z", created.Subscription.CurrentPeriodEnd)
	require.NotNil(t, created.Invoice)
	require.NotNil(t, created.Payment)
	assert.Equal(t, "49.00", created.Invoice.Total)
	assert.True(t, strings.HasPrefix(created.Invoice.InvoiceNumber, "INV-"))
	assert.Equal(t, "pending", created.Payment.Status)

	paymentPath := "/api/v1/payments/" + created.Payment.ID

	// member cannot settle payments
	rec = api.do(t, http.MethodPost, paymentPath+"/complete", api.memberID, `{"transaction_id":"tx_1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, paymentPath+"/complete", api.ownerID, `{"transaction_id":"tx_1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	completed := decode[subscriptionapi.PaymentResponse](t, rec)
	assert.Equal(t, "completed", completed.Status)
	require.NotNil(t, completed.TransactionID)
	assert.Equal(t, "tx_1", *completed.TransactionID)

	rec = api.do(t, http.MethodGet, api.tenantPath("/subscription"), api.viewerID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", decode[subscriptionapi.SubscriptionResponse](t, rec).Status)

	rec = api.do(t, http.MethodGet, "/api/v1/invoices/"+created.Invoice.ID, api.viewerID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paid", decode[subscriptionapi.InvoiceResponse](t, rec).Status)

	// over-refund is rejected and nothing changes
	rec = api.do(t, http.MethodPost, paymentPath+"/refund", api.ownerID, `{"amount":"49.01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, paymentPath+"/refund", api.ownerID, `{"amount":"9.00"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	refunded := decode[subscriptionapi.PaymentResponse](t, rec)
	assert.Equal(t, "completed", refunded.Status)
	assert.Equal(t, "9.00", refunded.RefundedAmount)

	// renewal bills the next period
	rec = api.do(t, http.MethodPost, "/api/v1/subscriptions/"+created.Subscription.ID+"/renew", api.ownerID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	renewed := decode[subscriptionapi.SubscriptionResultResponse](t, rec)
	assert.Equal(t, "2024-02-29T10:00:00Z", renewed.Subscription.CurrentPeriodStart)
	assert.Equal(t, "2024-03-31T10:00:00Z", renewed.Subscription.CurrentPeriodEnd)
	require.NotNil(t, renewed.Payment)

	rec = api.do(t, http.MethodPost, "/api/v1/payments/"+renewed.Payment.ID+"/fail", api.ownerID, `{"reason":"card declined"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", decode[subscriptionapi.PaymentResponse](t, rec).Status)

	rec = api.do(t, http.MethodGet, "/api/v1/subscriptions/"+created.Subscription.ID, api.viewerID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "past_due", decode[subscriptionapi.SubscriptionResponse](t, rec).Status)

	rec = api.do(t, http.MethodGet, api.tenantPath("/payments"), api.viewerID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]subscriptionapi.PaymentResponse](t, rec), 2)

	rec = api.do(t, http.MethodGet, api.tenantPath("/invoices?limit=1"), api.viewerID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]subscriptionapi.InvoiceResponse](t, rec), 1)
}

func TestHandler_UpdateSubscription(t *testing.T) {
	api := setupAPI(t)

	body := `{"plan_id":"` + plan.ProPlanID.String() + `"}`
	rec := api.do(t, http.MethodPost, api.tenantPath("/subscriptions"), api.ownerID, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[subscriptionapi.SubscriptionResultResponse](t, rec)
	assert.Equal(t, "trial", created.Subscription.Status)
	assert.NotNil(t, created.Subscription.TrialEnd)

	path := "/api/v1/subscriptions/" + created.Subscription.ID

	rec = api.do(t, http.MethodPatch, path, api.ownerID, `{"status":"paused"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPatch, path, api.ownerID, `{"cancel_at_period_end":true,"metadata":{"note":"vip"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	updated := decode[subscriptionapi.SubscriptionResponse](t, rec)
	assert.True(t, updated.CancelAtPeriodEnd)
	assert.Equal(t, "vip", updated.Metadata["note"])

	rec = api.do(t, http.MethodGet, path+"/features", api.viewerID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]subscriptionapi.SubscriptionFeatureResponse](t, rec), 2)

	rec = api.do(t, http.MethodGet, path, uuid.New(), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
