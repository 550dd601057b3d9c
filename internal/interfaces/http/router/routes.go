package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jdfresh/backend/internal/domain/identity"
	"github.com/jdfresh/backend/internal/interfaces/http/handler"
	"github.com/jdfresh/backend/internal/interfaces/http/middleware"
)

// Handlers bundles the HTTP handlers wired into the API
type Handlers struct {
	Auth          *handler.AuthHandler
	Product       *handler.ProductHandler
	Order         *handler.OrderHandler
	Payment       *handler.PaymentHandler
	StripeWebhook *handler.StripeWebhookHandler
	Delivery      *handler.DeliveryHandler
}

// RegisterAPIRoutes wires all domain routes into the router. authMW is
// the JWT middleware applied to protected groups; public endpoints
// (registration, login, catalog reads, the Stripe webhook) skip it.
func RegisterAPIRoutes(r *Router, h Handlers, authMW gin.HandlerFunc) {
	adminOnly := middleware.RequireRole(identity.RoleAdmin)
	agentOrAdmin := middleware.RequireRole(identity.RoleDelivery, identity.RoleAdmin)

	// Credential endpoints get a stricter limiter than the global one
	loginLimiter := middleware.AuthRateLimit(middleware.NewRateLimiter(10, time.Minute))

	auth := NewDomainGroup("auth", "/auth").
		POST("/register", loginLimiter, h.Auth.Register).
		POST("/login", loginLimiter, h.Auth.Login).
		POST("/refresh", loginLimiter, h.Auth.Refresh).
		POST("/logout", authMW, h.Auth.Logout).
		GET("/me", authMW, h.Auth.Me)

	products := NewDomainGroup("catalog", "/products").
		GET("", h.Product.List).
		GET("/:id", h.Product.Get).
		POST("", authMW, adminOnly, h.Product.Create).
		PUT("/:id", authMW, adminOnly, h.Product.Update).
		POST("/:id/restock", authMW, adminOnly, h.Product.Restock)

	orders := NewDomainGroup("orders", "/orders").
		Use(authMW).
		POST("", h.Order.Create).
		GET("", h.Order.List).
		GET("/:id", h.Order.Get).
		GET("/number/:number", h.Order.GetByNumber).
		POST("/:id/cancel", h.Order.Cancel).
		POST("/:id/advance", agentOrAdmin, h.Order.Advance).
		GET("/:id/tracking", h.Order.Tracking).
		GET("/:id/track", h.Delivery.Track)

	payments := NewDomainGroup("payments", "/payments").
		POST("/stripe/webhook", h.StripeWebhook.Handle).
		POST("/intent", authMW, h.Payment.CreateIntent).
		POST("/razorpay/verify", authMW, h.Payment.VerifyRazorpay).
		POST("/refund", authMW, adminOnly, h.Payment.Refund).
		POST("/orders/:id/settle-cod", authMW, adminOnly, h.Payment.SettleCOD).
		GET("/orders/:id", authMW, h.Payment.GetByOrder)

	deliveries := NewDomainGroup("deliveries", "/deliveries").
		Use(authMW).
		POST("/assign", adminOnly, h.Delivery.Assign).
		GET("/active", agentOrAdmin, h.Delivery.Active).
		POST("/:id/accept", agentOrAdmin, h.Delivery.Accept).
		POST("/:id/picked-up", agentOrAdmin, h.Delivery.PickedUp).
		POST("/:id/in-transit", agentOrAdmin, h.Delivery.InTransit).
		POST("/:id/location", agentOrAdmin, h.Delivery.UpdateLocation).
		POST("/:id/delivered", agentOrAdmin, h.Delivery.Delivered).
		POST("/orders/:id/rate", h.Delivery.Rate).
		GET("/orders/:id", h.Delivery.GetByOrder)

	r.Register(auth).
		Register(products).
		Register(orders).
		Register(payments).
		Register(deliveries)
}
