package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/driveshare/rental-booking/internal/model"
	"github.com/driveshare/rental-booking/internal/service"
	"github.com/driveshare/rental-booking/internal/workflow"
)

// ProfileHandler serves the customer's stored documents.
type ProfileHandler struct {
	Svc       *service.BookingService
	Identity  workflow.IdentityProvider
	MaxUpload int64
	Log       *zap.Logger
}

func NewProfileHandler(svc *service.BookingService, id workflow.IdentityProvider, maxUpload int64, log *zap.Logger) *ProfileHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileHandler{Svc: svc, Identity: id, MaxUpload: maxUpload, Log: log}
}

type profileResp struct {
	ID             uint64 `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	DriversLicense string `json:"drivers_license,omitempty"`
	IDDocument     string `json:"id_document,omitempty"`
}

func toProfile(u model.User) profileResp {
	return profileResp{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.FullName,
		Role:           u.Role,
		DriversLicense: u.DriversLicenseURL,
		IDDocument:     u.IDDocumentURL,
	}
}

// Get returns the caller's profile.
func (h *ProfileHandler) Get(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c, h.Identity)
	if !ok {
		return unauthorized(c)
	}
	defer cancel()
	u, err := h.Svc.Profile(ctx, uid)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toProfile(u))
}

// UploadDocument replaces the license ("license") or ID ("id") on the
// profile. New drafts start with it filled in.
func (h *ProfileHandler) UploadDocument(c echo.Context) error {
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
	u, err := h.Svc.UploadProfileDocument(ctx, uid, kind, data)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toProfile(u))
}
