package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/study-room-booking/internal/middleware"
	"github.com/iliyamo/study-room-booking/internal/model"
	"github.com/iliyamo/study-room-booking/internal/service"
)

// BookingService is the set of booking operations the HTTP layer calls.
// *service.BookingService implements it.
type BookingService interface {
	Create(ctx context.Context, userID, seatID string, start, end time.Time) (model.Booking, error)
	Get(ctx context.Context, id string) (model.Booking, error)
	PageByUser(ctx context.Context, userID string, limit, offset int) ([]model.Booking, error)
	ListBySeat(ctx context.Context, seatID string) ([]model.Booking, error)
	Search(ctx context.Context, f model.BookingFilter) ([]model.Booking, error)
	Availability(ctx context.Context, seatID string, from, to time.Time) ([]model.Interval, error)
	CheckIn(ctx context.Context, id string) (model.Booking, error)
	CheckOut(ctx context.Context, id string) (model.Booking, error)
	Cancel(ctx context.Context, id string) (model.Booking, error)
	Update(ctx context.Context, b model.Booking) (service.UpdateResult, error)
	Delete(ctx context.Context, id string) error
}

// BookingHandler exposes the booking operations over HTTP.  All methods
// assume JWTAuth has already run.  Non-admin callers only see and act on
// their own bookings.
type BookingHandler struct {
	svc    BookingService
	logger *zap.Logger
}

func NewBookingHandler(svc BookingService, logger *zap.Logger) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingHandler{svc: svc, logger: logger}
}

type createRequest struct {
	SeatID    string    `json:"seat_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	// UserID books on behalf of another user; admins only.
	UserID string `json:"user_id,omitempty"`
}

// Create handles POST /v1/bookings.
func (h *BookingHandler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.SeatID = strings.TrimSpace(req.SeatID)
	if req.SeatID == "" {
		return badRequest(c, "seat_id is required")
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return badRequest(c, "start_time and end_time are required")
	}

	userID := middleware.UserID(c)
	if req.UserID != "" && req.UserID != userID {
		if !middleware.IsAdmin(c) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "only admins may book for another user"})
		}
		userID = req.UserID
	}

	b, err := h.svc.Create(c.Request().Context(), userID, req.SeatID, req.StartTime, req.EndTime)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	b, ok, err := h.owned(c)
	if !ok {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

// MyBookings handles GET /v1/my-bookings?limit=&offset=, newest first.
func (h *BookingHandler) MyBookings(c echo.Context) error {
	limit, offset, ok, err := page(c)
	if !ok {
		return err
	}
	list, err := h.svc.PageByUser(c.Request().Context(), middleware.UserID(c), limit, offset)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list, "limit": limit, "offset": offset})
}

// SeatBookings handles GET /v1/seats/:id/bookings.
func (h *BookingHandler) SeatBookings(c echo.Context) error {
	list, err := h.svc.ListBySeat(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// Availability handles GET /v1/seats/:id/availability?from=&to=.
func (h *BookingHandler) Availability(c echo.Context) error {
	from, err := parseTime(c.QueryParam("from"))
	if err != nil || from.IsZero() {
		return badRequest(c, "from must be an RFC 3339 timestamp")
	}
	to, err := parseTime(c.QueryParam("to"))
	if err != nil || to.IsZero() {
		return badRequest(c, "to must be an RFC 3339 timestamp")
	}
	free, err := h.svc.Availability(c.Request().Context(), c.Param("id"), from, to)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"seat_id": c.Param("id"), "free": free})
}

// CheckIn handles POST /v1/bookings/:id/check-in.
func (h *BookingHandler) CheckIn(c echo.Context) error {
	return h.transition(c, h.svc.CheckIn)
}

// CheckOut handles POST /v1/bookings/:id/check-out.
func (h *BookingHandler) CheckOut(c echo.Context) error {
	return h.transition(c, h.svc.CheckOut)
}

// Cancel handles POST /v1/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	return h.transition(c, h.svc.Cancel)
}

func (h *BookingHandler) transition(c echo.Context, op func(context.Context, string) (model.Booking, error)) error {
	if _, ok, err := h.owned(c); !ok {
		return err
	}
	b, err := op(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Search handles GET /v1/bookings (admin).  Query parameters: seat_id,
// user_id, state, from, to, limit, offset.
func (h *BookingHandler) Search(c echo.Context) error {
	f := model.BookingFilter{
		SeatID: c.QueryParam("seat_id"),
		UserID: c.QueryParam("user_id"),
		State:  model.BookingState(strings.ToUpper(c.QueryParam("state"))),
	}
	if f.State != "" && !f.State.Valid() {
		return badRequest(c, "unknown state")
	}
	var err error
	if f.From, err = parseTime(c.QueryParam("from")); err != nil {
		return badRequest(c, "from must be an RFC 3339 timestamp")
	}
	if f.To, err = parseTime(c.QueryParam("to")); err != nil {
		return badRequest(c, "to must be an RFC 3339 timestamp")
	}
	var ok bool
	if f.Limit, f.Offset, ok, err = page(c); !ok {
		return err
	}

	list, err := h.svc.Search(c.Request().Context(), f)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list, "limit": f.Limit, "offset": f.Offset})
}

type updateRequest struct {
	SeatID       string             `json:"seat_id"`
	StartTime    time.Time          `json:"start_time"`
	EndTime      time.Time          `json:"end_time"`
	State        model.BookingState `json:"state"`
	CheckInTime  *time.Time         `json:"check_in_time"`
	CheckOutTime *time.Time         `json:"check_out_time"`
}

// Update handles PUT /v1/bookings/:id (admin).
func (h *BookingHandler) Update(c echo.Context) error {
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return badRequest(c, "start_time and end_time are required")
	}
	req.State = model.BookingState(strings.ToUpper(string(req.State)))
	if !req.State.Valid() {
		return badRequest(c, "unknown state")
	}

	res, err := h.svc.Update(c.Request().Context(), model.Booking{
		ID:           c.Param("id"),
		SeatID:       strings.TrimSpace(req.SeatID),
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		State:        req.State,
		CheckInTime:  req.CheckInTime,
		CheckOutTime: req.CheckOutTime,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Delete handles DELETE /v1/bookings/:id (admin).
func (h *BookingHandler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// owned loads the booking named by :id and checks the caller may act on
// it.  When ok is false the response has already been written and err is
// the result of writing it.
func (h *BookingHandler) owned(c echo.Context) (b model.Booking, ok bool, err error) {
	b, err = h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return model.Booking{}, false, h.fail(c, err)
	}
	if !middleware.IsAdmin(c) && b.UserID != middleware.UserID(c) {
		return model.Booking{}, false, forbidden(c)
	}
	return b, true, nil
}

// page reads limit and offset.  A missing or oversized limit becomes
// model.DefaultLimit.  When ok is false a 400 has been written.
func page(c echo.Context) (limit, offset int, ok bool, err error) {
	if limit, err = parseInt(c.QueryParam("limit")); err != nil {
		return 0, 0, false, badRequest(c, "limit must be a non-negative integer")
	}
	if offset, err = parseInt(c.QueryParam("offset")); err != nil {
		return 0, 0, false, badRequest(c, "offset must be a non-negative integer")
	}
	return model.BookingFilter{Limit: limit}.PageLimit(), offset, true, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}
