package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-checkout/internal/handler"
	"github.com/iliyamo/bus-seat-checkout/internal/middleware"
	"github.com/iliyamo/bus-seat-checkout/internal/utils"
)

// RegisterRoutes registers the unauthenticated health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterCheckout registers the hold hand-off, the countdown view and the
// gateway callback.  limit is applied to the hand-off and the callback.
func RegisterCheckout(e *echo.Echo, holds *handler.HoldHandler, pay *handler.PaymentHandler, secret string, limit echo.MiddlewareFunc) {
	// Checkout calls this before redirecting; it opens the session.
	e.POST("/v1/holds", holds.Create, limit)

	// The gateway redirect may arrive without the cookie (another browser,
	// cleared storage); the callback still answers with a reference.
	e.GET("/v1/payment/callback", pay.Callback, middleware.SessionLookup(secret), limit)

	e.GET("/v1/holds/current", holds.Current,
		middleware.SessionAuth(secret), middleware.RequireRole(utils.RoleCustomer))
}

// RegisterSupport registers staff-only lookups behind a SUPPORT token.
func RegisterSupport(e *echo.Echo, sup *handler.SupportHandler, secret string) {
	g := e.Group("/v1/support", middleware.SessionAuth(secret), middleware.RequireRole(utils.RoleSupport))
	g.GET("/attempts", sup.SearchAttempts)
}
