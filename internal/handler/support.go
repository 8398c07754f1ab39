package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-seat-checkout/internal/model"
)

// AttemptSearcher finds recorded payment attempts by reference.
type AttemptSearcher interface {
	Search(ctx context.Context, ref string, limit int) ([]model.AttemptRecord, error)
}

// SupportHandler lets staff look up an attempt by whatever reference the
// customer was shown: a booking id, an order id or a pidx.
type SupportHandler struct {
	Attempts AttemptSearcher
	Log      *logrus.Logger
}

// SearchAttempts handles GET /v1/support/attempts?ref=&limit=.
func (h *SupportHandler) SearchAttempts(c echo.Context) error {
	if h.Attempts == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "attempt log disabled"})
	}
	ref := strings.TrimSpace(c.QueryParam("ref"))
	if ref == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ref is required"})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	rows, err := h.Attempts.Search(c.Request().Context(), ref, limit)
	if err != nil {
		h.Log.WithError(err).WithField("ref", ref).Error("search attempts")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if rows == nil {
		rows = []model.AttemptRecord{}
	}
	return c.JSON(http.StatusOK, echo.Map{"attempts": rows})
}
