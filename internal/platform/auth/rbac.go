package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Role values. Each actor holds exactly one. An emergency responder session
// carries RoleEmergency but reads records only through the emergency token.
const (
	RolePatient   = "patient"
	RoleDoctor    = "doctor"
	RoleAdmin     = "admin"
	RoleEmergency = "emergency"
)

// RequireRole returns middleware that admits only callers holding one of the
// given roles. Admin is not implied; routes that admit admins say so.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			for _, required := range roles {
				if role == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
	}
}
