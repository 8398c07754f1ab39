package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-seat-checkout/internal/middleware"
	"github.com/iliyamo/bus-seat-checkout/internal/model"
	"github.com/iliyamo/bus-seat-checkout/internal/repository"
	"github.com/iliyamo/bus-seat-checkout/internal/utils"
)

// ExpiryIndexer registers a session's hold with the abandoned-hold sweeper.
type ExpiryIndexer interface {
	IndexExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error
}

// HoldHandler serves the checkout hand-off and the hold countdown.
type HoldHandler struct {
	Store  repository.HoldStore
	Index  ExpiryIndexer // nil when no sweeper runs
	Secret string
	TTL    time.Duration
	Secure bool // mark the session cookie Secure
	Now    func() time.Time
	Log    *logrus.Logger
}

type createHoldRequest struct {
	ReservationID string             `json:"reservationId" validate:"required,max=64"`
	ExpiresAt     time.Time          `json:"expiresAt" validate:"required"`
	Seats         []string           `json:"seats" validate:"omitempty,dive,required,max=16"`
	PaymentURL    string             `json:"paymentUrl" validate:"omitempty,url"`
	PaymentData   *model.PaymentData `json:"paymentData"`
}

// Create handles POST /v1/holds.  Checkout calls it right before sending
// the customer to the gateway: it opens a fresh hold session, stores the
// hold keys, and returns the session token (also set as a cookie so it
// comes back with the gateway redirect).
func (h *HoldHandler) Create(c echo.Context) error {
	var body createHoldRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request", "fields": fieldErrors(err)})
	}
	now := h.Now()
	if !body.ExpiresAt.After(now) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "hold already expired"})
	}

	sid := uuid.NewString()
	tok, err := utils.NewSessionToken(h.Secret, sid, utils.RoleCustomer, h.TTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue session"})
	}
	ctx := c.Request().Context()
	hold := model.ReservationHold{ReservationID: body.ReservationID, ExpiresAt: body.ExpiresAt, Seats: body.Seats}
	if err := repository.SaveHold(ctx, h.Store.ForSession(sid), hold, body.PaymentData, body.PaymentURL); err != nil {
		h.Log.WithError(err).WithField("session", sid).Error("save hold")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage error"})
	}
	if h.Index != nil {
		if err := h.Index.IndexExpiry(ctx, sid, body.ExpiresAt); err != nil {
			h.Log.WithError(err).WithField("session", sid).Warn("index hold expiry")
		}
	}

	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    tok.Token,
		Path:     "/",
		Expires:  tok.Exp,
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	h.Log.WithFields(logrus.Fields{"session": sid, "reservation_id": body.ReservationID}).Info("hold handed off")
	return c.JSON(http.StatusCreated, echo.Map{
		"sessionId":    sid,
		"sessionToken": tok.Token,
		"expiresAt":    body.ExpiresAt.UTC(),
	})
}

// holdView is what the countdown and the invoice page read.
type holdView struct {
	ReservationID    string     `json:"reservationId,omitempty"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	RemainingSeconds int64      `json:"remainingSeconds"`
	Expired          bool       `json:"expired"`
	PaymentInitiated bool       `json:"paymentInitiated"`
	PaymentURL       string     `json:"paymentUrl,omitempty"`
	Verified         bool       `json:"verified"`
	BookingID        string     `json:"bookingId,omitempty"`
	TicketID         string     `json:"ticketId,omitempty"`
}

// Current handles GET /v1/holds/current for the session in context.
func (h *HoldHandler) Current(c echo.Context) error {
	ctx := c.Request().Context()
	repo := h.Store.ForSession(middleware.SessionID(c))

	hold, err := repository.LoadHold(ctx, repo)
	if err != nil && !errors.Is(err, repository.ErrInvalidValue) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage error"})
	}
	verified, err := repository.IsVerified(ctx, repo)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage error"})
	}
	if hold.ReservationID == "" && !verified {
		return c.JSON(http.StatusNotFound, echo.Map{"error": repository.ErrNotFound.Error()})
	}

	now := h.Now()
	v := holdView{ReservationID: hold.ReservationID, Verified: verified}
	if !hold.ExpiresAt.IsZero() {
		exp := hold.ExpiresAt
		v.ExpiresAt = &exp
		v.RemainingSeconds = int64(hold.Remaining(now) / time.Second)
		v.Expired = hold.Expired(now)
	}
	initiated, _, _ := repo.Get(ctx, repository.KeyPaymentInitiated)
	v.PaymentInitiated = initiated == "true"
	v.PaymentURL, _, _ = repo.Get(ctx, repository.KeyPaymentURL)
	v.BookingID, _, _ = repo.Get(ctx, repository.KeyBookingID)
	v.TicketID, _, _ = repo.Get(ctx, repository.KeyTicketID)
	return c.JSON(http.StatusOK, v)
}
