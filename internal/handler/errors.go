package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/driveshare/rental-booking/internal/repository"
	"github.com/driveshare/rental-booking/internal/session"
	"github.com/driveshare/rental-booking/internal/workflow"
)

// errorBody is the shape of workflow errors: a title and message the
// client shows as a toast, plus how to present it.
type errorBody struct {
	Kind     string            `json:"kind"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Severity workflow.Severity `json:"severity"`
}

// writeError maps service errors onto HTTP responses.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var ue workflow.UserError
	if errors.As(err, &ue) {
		status := http.StatusBadGateway
		if workflow.IsValidation(err) {
			status = http.StatusUnprocessableEntity
		} else {
			log.Warn("external write failed", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.JSON(status, echo.Map{"error": errorBody{
			Kind:     ue.Kind(),
			Title:    ue.Title(),
			Message:  ue.UserMessage(),
			Severity: ue.Severity(),
		}})
	}
	switch {
	case errors.Is(err, session.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "draft not found"})
	case errors.Is(err, repository.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking can no longer be cancelled"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "draft is busy, try again"})
	}
	log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
