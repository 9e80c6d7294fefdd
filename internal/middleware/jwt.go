package middleware // reusable HTTP middleware for the echo router

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/driveshare/rental-booking/internal/identity"
	"github.com/driveshare/rental-booking/internal/utils"
	"github.com/driveshare/rental-booking/internal/workflow"
)

// JWTAuth validates a Bearer access token. On success the user id (uint64)
// and role are stored in the echo context under "user_id" and "role", and
// the principal is attached to the request context for the identity
// provider.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			uid, err := claims.UserID()
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			c.Set("user_id", uid)
			c.Set("role", claims.Role)
			p := workflow.Principal{ID: uid, Email: claims.Email, Name: claims.Name, Role: claims.Role}
			c.SetRequest(c.Request().WithContext(identity.WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}
