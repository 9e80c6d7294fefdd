package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type requestValidator struct {
	v *validator.Validate
}

// NewValidator returns the echo.Validator used by c.Validate on request
// DTOs.
func NewValidator() echo.Validator {
	return &requestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (r *requestValidator) Validate(i any) error { return r.v.Struct(i) }
