package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/study-room-booking/internal/service"
)

// statusOf maps every service.Kind to its HTTP status.  Anything that is
// not a *service.Error is an internal failure.
func statusOf(k service.Kind) int {
	switch k {
	case service.KindInvalidInterval, service.KindPastInterval:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindBookingConflict, service.KindInvalidTransition:
		return http.StatusConflict
	case service.KindOutOfWindow:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *BookingHandler) fail(c echo.Context, err error) error {
	var be *service.Error
	if !errors.As(err, &be) {
		h.logger.Error("Booking request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "internal_error",
			"message": "internal server error",
		})
	}

	body := echo.Map{"error": be.Kind.String(), "message": be.Message}
	if be.Kind == service.KindBookingConflict && be.ConflictInterval != nil {
		body["conflict"] = echo.Map{
			"booking_id": be.ConflictID,
			"start_time": be.ConflictInterval.Start,
			"end_time":   be.ConflictInterval.End,
		}
	}
	return c.JSON(statusOf(be.Kind), body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "bad_request", "message": msg})
}

func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "booking belongs to another user"})
}
