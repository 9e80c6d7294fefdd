// Package router registers the HTTP routes on the echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/driveshare/rental-booking/internal/handler"
	"github.com/driveshare/rental-booking/internal/middleware"
)

// RegisterRoutes registers routes that need no authentication: the health
// check and the cached quote endpoint.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, cache echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/v1/quote", handler.Quote, cache)
}

// RegisterAuth registers the auth endpoints. Token exchange lives under
// /v1/auth; /v1/me and /v1/auth/signout need a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)              // rotates the refresh token
	g.POST("/refresh-access", a.RefreshAccess) // keeps the refresh token
	// logout accepts a refresh token in the body, so no JWT is required
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
	auth.POST("/auth/signout", a.SignOut)
}
