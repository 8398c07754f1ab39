package handler // declare the package name; contains HTTP handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is the liveness check for load balancers.  It answers 200 "ok"
// without touching Redis or the backend.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
