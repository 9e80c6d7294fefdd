package router

import (
	"github.com/labstack/echo/v4"

	"github.com/driveshare/rental-booking/internal/handler"
	"github.com/driveshare/rental-booking/internal/middleware"
	"github.com/driveshare/rental-booking/internal/model"
)

// RegisterCustomer registers the booking wizard, the booking dashboard and
// the profile under /v1. Every route requires a valid JWT with the CUSTOMER role.
// Extra middleware, such as the rate limiter, runs after authentication
// so it can key on the user.
func RegisterCustomer(e *echo.Echo, d *handler.DraftHandler, b *handler.BookingHandler, p *handler.ProfileHandler, jwtSecret string, extra ...echo.MiddlewareFunc) {
	mws := append([]echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer),
	}, extra...)
	g := e.Group("/v1", mws...)

	g.POST("/drafts", d.Create)
	g.GET("/drafts/:id", d.Get)
	g.PATCH("/drafts/:id", d.Patch)
	g.DELETE("/drafts/:id", d.Discard)
	g.POST("/drafts/:id/advance", d.Advance)
	g.POST("/drafts/:id/retreat", d.Retreat)
	g.POST("/drafts/:id/documents/:kind", d.UploadDocument)
	g.POST("/drafts/:id/payment", d.ConfirmPayment)
	g.POST("/drafts/:id/photos", d.UploadPhoto)
	g.POST("/drafts/:id/signature", d.SetSignature)
	g.DELETE("/drafts/:id/signature", d.ClearSignature)

	g.GET("/bookings", b.List)
	g.GET("/bookings/:id", b.Get)
	g.GET("/bookings/:id/photos", b.Photos)
	g.GET("/bookings/:id/agreement.pdf", b.Agreement)
	g.DELETE("/bookings/:id", b.Cancel)

	g.GET("/me/profile", p.Get)
	g.PUT("/me/documents/:kind", p.UploadDocument)
}
