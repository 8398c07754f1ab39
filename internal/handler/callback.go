package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-checkout/internal/middleware"
	"github.com/iliyamo/bus-seat-checkout/internal/payment"
	"github.com/iliyamo/bus-seat-checkout/internal/repository"
)

// PaymentHandler runs the gateway callback.
type PaymentHandler struct {
	Deps  payment.Deps
	Store repository.HoldStore
}

// Callback handles GET /v1/payment/callback?pidx=&status=&purchase_order_id=.
// It always answers 200 with the outcome; the UI renders CONFIRMED,
// EXPIRED and FAILED alike.  A request without a session runs against an
// empty store and so ends in FAILED with a cached-only reference.
func (h *PaymentHandler) Callback(c echo.Context) error {
	sid := middleware.SessionID(c)
	store := h.Store
	if sid == "" {
		store = repository.NewMemoryHoldStore()
		sid = "anonymous"
	}
	// A customer closing the tab mid-verify must not turn a paid booking
	// into a release.
	ctx := context.WithoutCancel(c.Request().Context())
	out := payment.New(h.Deps, sid, store.ForSession(sid)).Run(ctx, c.QueryParams())
	return c.JSON(http.StatusOK, out)
}
