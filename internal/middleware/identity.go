package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/real-estate-listings/internal/model"
)

// UserID returns the authenticated user's id set by JWTAuth. JSON numbers
// decode as float64, so every numeric form is accepted.
func UserID(c echo.Context) (uint64, bool) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		return t, t > 0
	case int:
		return uint64(t), t > 0
	case int64:
		return uint64(t), t > 0
	case float64:
		return uint64(t), t > 0
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

// Role returns the role claim, or "" for anonymous requests.
func Role(c echo.Context) string {
	r, _ := c.Get("role").(string)
	return r
}

func IsAdmin(c echo.Context) bool { return Role(c) == model.RoleAdmin }

// identityKey names the caller for rate limiting: the user id when
// authenticated, "anon" otherwise.
func identityKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
