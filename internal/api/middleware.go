package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/roach88/carta/internal/auth"
)

// AdminKey is the context key holding the verified token subject.
const AdminKey = "admin"

// RequireAdmin rejects requests without a valid bearer token.
func RequireAdmin(tokens *auth.Tokens) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return errorJSON(c, http.StatusUnauthorized, "missing bearer token")
			}
			subject, err := tokens.Verify(raw)
			if err != nil {
				return errorJSON(c, http.StatusUnauthorized, "invalid token")
			}
			c.Set(AdminKey, subject)
			return next(c)
		}
	}
}
