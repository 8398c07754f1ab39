package middleware

import "github.com/labstack/echo/v4"

// SessionID returns the hold session SessionAuth stored in the context,
// or "" on routes that do not run it.
func SessionID(c echo.Context) string {
	s, _ := c.Get(CtxSessionID).(string)
	return s
}

// sessionOrAnon keys rate limits; unauthenticated callers share "anon".
func sessionOrAnon(c echo.Context) string {
	if s := SessionID(c); s != "" {
		return s
	}
	return "anon"
}
