package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/driveshare/rental-booking/internal/service"
	"github.com/driveshare/rental-booking/internal/workflow"
)

// requestTimeout bounds a whole draft request. Advance and uploads make
// external calls that have their own, shorter, timeouts.
const requestTimeout = 30 * time.Second

var errTooLarge = errors.New("file too large")

// DraftHandler serves the booking wizard.
type DraftHandler struct {
	Svc       *service.BookingService
	Identity  workflow.IdentityProvider
	MaxUpload int64
	Log       *zap.Logger
}

func NewDraftHandler(svc *service.BookingService, id workflow.IdentityProvider, maxUpload int64, log *zap.Logger) *DraftHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &DraftHandler{Svc: svc, Identity: id, MaxUpload: maxUpload, Log: log}
}

// draftPatch is the part of a draft a client may edit directly. Documents,
// payment, photos and the signature have their own endpoints.
type draftPatch struct {
	VehicleID        *string  `json:"vehicle_id"`
	VehicleName      *string  `json:"vehicle_name"`
	VehicleType      *string  `json:"vehicle_type"`
	PricePerDay      *float64 `json:"price_per_day"`
	PickupLocation   *string  `json:"pickup_location"`
	PickupDate       *string  `json:"pickup_date"`
	ReturnDate       *string  `json:"return_date"`
	CheckinFuelLevel *int     `json:"checkin_fuel_level"`
	CheckinMileage   *int     `json:"checkin_mileage"`
}

func (p draftPatch) update() workflow.DraftUpdate {
	return workflow.DraftUpdate{
		VehicleID:        p.VehicleID,
		VehicleName:      p.VehicleName,
		VehicleType:      p.VehicleType,
		PricePerDay:      p.PricePerDay,
		PickupLocation:   p.PickupLocation,
		PickupDate:       p.PickupDate,
		ReturnDate:       p.ReturnDate,
		CheckinFuelLevel: p.CheckinFuelLevel,
		CheckinMileage:   p.CheckinMileage,
	}
}

type signatureReq struct {
	DataURL string `json:"data_url"`
}

// caller asks the identity provider for the signed-in user and returns a
// bounded request context.
func caller(c echo.Context, id workflow.IdentityProvider) (uint64, context.Context, context.CancelFunc, bool) {
	if id == nil {
		return 0, nil, nil, false
	}
	p, ok := id.Current(c.Request().Context())
	if !ok {
		return 0, nil, nil, false
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	return p.ID, ctx, cancel, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// Create starts a draft from the catalog query string.
func (h *DraftHandler) Create(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	v, err := h.Svc.Create(ctx, uid, c.QueryParams())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *DraftHandler) Get(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	v, err := h.Svc.Get(ctx, uid, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, v)
}

// Patch merges the body into the draft. Unknown fields are rejected.
func (h *DraftHandler) Patch(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()

	var p draftPatch
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body: " + err.Error()})
	}
	u := p.update()
	if u.Empty() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "nothing to update"})
	}
	v, err := h.Svc.Patch(ctx, uid, c.Param("id"), u)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *DraftHandler) Advance(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	v, err := h.Svc.Advance(ctx, uid, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *DraftHandler) Retreat(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	v, err := h.Svc.Retreat(ctx, uid, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, v)
}

// Discard cancels the wizard.
func (h *DraftHandler) Discard(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	if err := h.Svc.Discard(ctx, uid, c.Param("id")); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// readUpload reads the multipart file field, refusing anything over max
// bytes.
func readUpload(c echo.Context, field string, max int64) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, err
	}
	if max > 0 && fh.Size > max {
		return nil, errTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r io.Reader = f
	if max > 0 {
		r = io.LimitReader(f, max+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if max > 0 && int64(len(data)) > max {
		return nil, errTooLarge
	}
	return data, nil
}

func uploadError(c echo.Context, err error) error {
	if errors.Is(err, errTooLarge) {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "file too large"})
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "multipart field \"file\" required"})
}

// UploadDocument stores the driver's license ("license") or ID ("id").
func (h *DraftHandler) UploadDocument(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	kind, ok := workflow.ParseDocumentKind(c.Param("kind"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "document kind must be license or id"})
	}
	data, err := readUpload(c, "file", h.MaxUpload)
	if err != nil {
		return uploadError(c, err)
	}
	v, err := h.Svc.UploadDocument(ctx, uid, c.Param("id"), kind, data)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, v)
}

// ConfirmPayment takes the mocked card form.
func (h *DraftHandler) ConfirmPayment(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	var f service.PaymentForm
	if err := c.Bind(&f); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	v, err := h.Svc.ConfirmPayment(ctx, uid, c.Param("id"), f)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, v)
}

// UploadPhoto stores one check-in inspection photo.
func (h *DraftHandler) UploadPhoto(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	data, err := readUpload(c, "file", h.MaxUpload)
	if err != nil {
		return uploadError(c, err)
	}
	v, err := h.Svc.UploadPhoto(ctx, uid, c.Param("id"), c.FormValue("photo_type"), data)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, v)
}

// SetSignature stores the signature pad image sent as a data URL.
func (h *DraftHandler) SetSignature(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	var req signatureReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if h.MaxUpload > 0 && int64(len(req.DataURL)) > h.MaxUpload*4/3+64 {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "signature too large"})
	}
	v, err := h.Svc.SetSignature(ctx, uid, c.Param("id"), req.DataURL)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *DraftHandler) ClearSignature(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	v, err := h.Svc.ClearSignature(ctx, uid, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, v)
}
