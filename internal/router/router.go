// Package router registers the HTTP routes of the booking API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/study-room-booking/internal/handler"
	"github.com/iliyamo/study-room-booking/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterBookings registers the booking endpoints under /v1.  Every route
// requires a valid JWT with the USER or ADMIN role; update, delete and
// search additionally require ADMIN.  Extra middleware (rate limiting)
// runs after authentication so limits can be keyed per user.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, extra ...echo.MiddlewareFunc) {
	mw := append([]echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleUser, middleware.RoleAdmin),
	}, extra...)
	g := e.Group("/v1", mw...)

	g.POST("/bookings", h.Create)
	g.GET("/bookings/:id", h.Get)
	g.POST("/bookings/:id/check-in", h.CheckIn)
	g.POST("/bookings/:id/check-out", h.CheckOut)
	g.POST("/bookings/:id/cancel", h.Cancel)
	g.GET("/my-bookings", h.MyBookings)
	g.GET("/seats/:id/bookings", h.SeatBookings)
	g.GET("/seats/:id/availability", h.Availability)

	adminOnly := middleware.RequireRole(middleware.RoleAdmin)
	g.GET("/bookings", h.Search, adminOnly)
	g.PUT("/bookings/:id", h.Update, adminOnly)
	g.DELETE("/bookings/:id", h.Delete, adminOnly)
}
