package middleware

import "github.com/labstack/echo/v4"

// UserID returns the authenticated caller's id, or "" when JWTAuth has not
// run.
func UserID(c echo.Context) string {
	s, _ := c.Get(ContextUserID).(string)
	return s
}

// IsAdmin reports whether the caller holds RoleAdmin.
func IsAdmin(c echo.Context) bool {
	role, _ := c.Get(ContextRole).(string)
	return role == RoleAdmin
}

// rateKeyUser is the user component of a rate limit key.
func rateKeyUser(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
