package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-checkout/internal/utils"
)

// SessionCookie is the cookie carrying the hold session token.
const SessionCookie = "hold_session"

// Context keys set by SessionAuth.
const (
	CtxSessionID = "session_id"
	CtxRole      = "role"
)

// SessionAuth returns an Echo middleware that reads the session token from
// the hold_session cookie, or from a Bearer Authorization header, and
// stores its subject and role in the request context.  The gateway
// redirect is a top-level navigation, so the cookie travels with it.
func SessionAuth(secret string) echo.MiddlewareFunc { return session(secret, true) }

// SessionLookup is SessionAuth for routes that must also serve callers
// without a session: a missing or invalid token leaves the context empty
// instead of failing the request.
func SessionLookup(secret string) echo.MiddlewareFunc { return session(secret, false) }

func session(secret string, required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearer(c)
			if raw == "" {
				if ck, err := c.Cookie(SessionCookie); err == nil {
					raw = ck.Value
				}
			}
			if raw == "" {
				if !required {
					return next(c)
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing session"})
			}
			claims, err := utils.ParseSessionToken(secret, raw)
			if err != nil {
				if !required {
					return next(c)
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
			}
			c.Set(CtxSessionID, claims.Subject)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}

func bearer(c echo.Context) string {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}
