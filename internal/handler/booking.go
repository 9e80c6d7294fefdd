package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/driveshare/rental-booking/internal/service"
	"github.com/driveshare/rental-booking/internal/workflow"
)

// BookingHandler serves the customer's booking dashboard.
type BookingHandler struct {
	Svc      *service.BookingService
	Identity workflow.IdentityProvider
	Log      *zap.Logger
}

func NewBookingHandler(svc *service.BookingService, id workflow.IdentityProvider, log *zap.Logger) *BookingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingHandler{Svc: svc, Identity: id, Log: log}
}

// List returns the caller's bookings. ?limit= (default 20) and ?offset=.
func (h *BookingHandler) List(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	items, err := h.Svc.ListBookings(ctx, uid, limit, offset)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *BookingHandler) Get(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	b, err := h.Svc.GetBooking(ctx, uid, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) Photos(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	items, err := h.Svc.BookingPhotos(ctx, uid, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Agreement downloads the rental agreement as a PDF.
func (h *BookingHandler) Agreement(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	pdf, name, err := h.Svc.Agreement(ctx, uid, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

// Cancel cancels a confirmed booking that has not been checked in.
func (h *BookingHandler) Cancel(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	if err := h.Svc.CancelBooking(ctx, uid, c.Param("id")); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
