package http

import (
	"github.com/msgdeck/msgdeck/internal/server/http/middleware"
	"github.com/msgdeck/msgdeck/internal/server/http/subscriptionapi"
)

// WithBillingAPI setups the subscription, usage and billing routes under /api/v1.
// Every route except the plan catalog requires the caller identity header.
func WithBillingAPI(handler *subscriptionapi.Handler) Opt {
	return func(s *Server) {
		api := s.echo.Group("/api/v1")

		// Plan catalog
		api.GET("/plans", handler.ListPlans)
		api.GET("/plans/:planId", handler.GetPlan)

		// Tenant scoped
		tenantGroup := api.Group("/tenants/:tenantId", middleware.ResolvesUser())

		tenantGroup.POST("/subscriptions", handler.CreateSubscription)
		tenantGroup.GET("/subscriptions", handler.ListSubscriptions)
		tenantGroup.GET("/subscription", handler.GetCurrentSubscription)

		tenantGroup.GET("/usage", handler.GetUsageStats)
		tenantGroup.GET("/usage/history", handler.GetUsageHistory)
		tenantGroup.GET("/usage/:featureKey", handler.CheckUsageLimit)
		tenantGroup.POST("/usage/:featureKey", handler.TrackUsage)

		tenantGroup.GET("/invoices", handler.ListInvoices)
		tenantGroup.GET("/payments", handler.ListPayments)

		// Subscription
		subscriptionGroup := api.Group("/subscriptions/:subscriptionId", middleware.ResolvesUser())

		subscriptionGroup.GET("", handler.GetSubscription)
		subscriptionGroup.PATCH("", handler.UpdateSubscription)
		subscriptionGroup.GET("/features", handler.ListSubscriptionFeatures)
		subscriptionGroup.POST("/renew", handler.RenewSubscription)
		subscriptionGroup.POST("/cancel", handler.CancelSubscription)

		// Invoices & payments
		api.GET("/invoices/:invoiceId", handler.GetInvoice, middleware.ResolvesUser())

		paymentGroup := api.Group("/payments/:paymentId", middleware.ResolvesUser())

		paymentGroup.GET("", handler.GetPayment)
		paymentGroup.POST("/complete", handler.CompletePayment)
		paymentGroup.POST("/refund", handler.RefundPayment)
		paymentGroup.POST("/fail", handler.FailPayment)
	}
}
