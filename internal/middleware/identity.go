package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// ActorID returns the authenticated staff member's id, or 0 when the
// request went through no JWTAuth.
func ActorID(c echo.Context) uint64 {
	id, _ := c.Get("actor_id").(uint64)
	return id
}

func parseID(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil && n > 0
}

// currentUserID names the caller for rate limit keys.
func currentUserID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s
	}
	return "anon"
}
