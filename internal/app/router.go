// internal/app/router.go
package app

import (
	"net/http"

	adminHandler "saas-billing/internal/handlers/admin"
	authHandler "saas-billing/internal/handlers/auth"
	dashboardHandler "saas-billing/internal/handlers/dashboard"
	refundHandler "saas-billing/internal/handlers/refund"
	subscriptionHandler "saas-billing/internal/handlers/subscription"
	tierHandler "saas-billing/internal/handlers/tier"
	usageHandler "saas-billing/internal/handlers/usage"
	webhookHandler "saas-billing/internal/handlers/webhook"
	wsHandler "saas-billing/internal/handlers/websocket"
	"saas-billing/internal/middleware"
	"saas-billing/internal/pkg/rbac"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Version = "1.0.0"

type Handlers struct {
	AuthHandler         *authHandler.AuthHandler
	TierHandler         *tierHandler.TierHandler
	SubscriptionHandler *subscriptionHandler.SubscriptionHandler
	RefundHandler       *refundHandler.RefundHandler
	UsageHandler        *usageHandler.UsageHandler
	WebhookHandler      *webhookHandler.WebhookHandler
	AdminHandler        *adminHandler.AdminHandler
	DashboardHandler    *dashboardHandler.DashboardHandler
	WSHandler           *wsHandler.WebSocketHandler
	AuthMiddleware      *middleware.AuthMiddleware
}

// SetupRouter mounts every route on r. Global middleware is installed by
// the caller.
func SetupRouter(r *gin.Engine, h *Handlers) {
	mw := h.AuthMiddleware

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Guarded Pages ====================
	r.GET("/dashboard", mw.RequireAuthPage(), h.DashboardHandler.User)
	r.GET("/admin", mw.RequireAdminPage(), h.DashboardHandler.Admin)

	api := r.Group("/api/v1")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
	})

	// ==================== Auth ====================
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.AuthHandler.Register)
		authGroup.POST("/login", h.AuthHandler.Login)
		authGroup.POST("/logout", mw.Auth(), h.AuthHandler.Logout)
		authGroup.GET("/me", mw.Auth(), h.AuthHandler.Me)
	}

	// ==================== Billing ====================
	billing := api.Group("/billing")
	{
		billing.GET("/tiers", h.TierHandler.ListActive)
		billing.GET("/tiers/:id", h.TierHandler.Get)
	}

	billingAuth := billing.Group("", mw.Auth())
	{
		billingAuth.POST("/subscribe", h.SubscriptionHandler.Subscribe)
		billingAuth.GET("/subscription", h.SubscriptionHandler.GetCurrent)
		billingAuth.POST("/subscription/change", h.SubscriptionHandler.ChangePlan)
		billingAuth.POST("/subscription/pause", h.SubscriptionHandler.Pause)
		billingAuth.POST("/subscription/resume", h.SubscriptionHandler.Resume)
		billingAuth.POST("/subscription/cancel", h.SubscriptionHandler.Cancel)

		billingAuth.GET("/invoices", h.SubscriptionHandler.ListInvoices)
		billingAuth.GET("/invoices/:id", h.SubscriptionHandler.GetInvoice)

		billingAuth.GET("/payment-methods", h.SubscriptionHandler.ListPaymentMethods)
		billingAuth.POST("/payment-methods", h.SubscriptionHandler.AttachPaymentMethod)
		billingAuth.POST("/payment-methods/:id/default", h.SubscriptionHandler.SetDefaultPaymentMethod)
		billingAuth.DELETE("/payment-methods/:id", h.SubscriptionHandler.DetachPaymentMethod)
	}

	// ==================== Refunds ====================
	refunds := api.Group("/refund", mw.Auth())
	{
		refunds.POST("/request", h.RefundHandler.Create)
		refunds.GET("/mine", h.RefundHandler.ListMine)
	}

	// ==================== Usage ====================
	usage := api.Group("/usage", mw.Auth())
	{
		usage.POST("/track", h.UsageHandler.Track)
		usage.GET("/current", h.UsageHandler.Current)
		usage.GET("/:metric", h.UsageHandler.ByMetric)
	}

	// ==================== Webhooks ====================
	api.POST("/webhooks/stripe", h.WebhookHandler.Stripe)

	// ==================== Admin ====================
	admin := api.Group("/admin", mw.AdminOnly()...)
	{
		admin.GET("/stats", h.AdminHandler.Stats)
		admin.GET("/subscriptions/stats", h.AdminHandler.SubscriptionStats)
		admin.GET("/ws/stats", h.WSHandler.GetStats)

		admin.GET("/users", h.AdminHandler.ListUsers)
		admin.POST("/users", h.AdminHandler.InviteUser)
		admin.GET("/users/:id", h.AdminHandler.GetUser)
		admin.PATCH("/users/:id/role", h.AdminHandler.UpdateUserRole)

		admin.GET("/tiers", h.TierHandler.ListAll)
		admin.POST("/tiers", h.TierHandler.Create)
		admin.PUT("/tiers/:id", h.TierHandler.Update)
		admin.PATCH("/tiers/:id/status", h.TierHandler.SetStatus)

		adminBilling := admin.Group("", mw.RequirePermission(rbac.ManageBilling))
		{
			adminBilling.GET("/refunds", h.RefundHandler.List)
			adminBilling.POST("/refund/approve", h.RefundHandler.Approve)
			adminBilling.POST("/refund/reject", h.RefundHandler.Reject)
		}
	}
}
