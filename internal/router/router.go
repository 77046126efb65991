package router // package router registers the HTTP routes of the reservation core

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-pms-core/internal/handler"
	"github.com/iliyamo/hotel-pms-core/internal/middleware"
)

// Roles allowed on every /v1 route.
var staffRoles = []string{"FRONT_DESK", "MANAGER"}

// Options carries the handlers and the optional Redis-backed layers.
// RateLimit and Cache may be nil.
type Options struct {
	JWTSecret    string
	Reservations *handler.ReservationHandler
	Guests       *handler.GuestHandler
	Rooms        *handler.RoomHandler
	Health       echo.HandlerFunc
	RateLimit    echo.MiddlewareFunc
	Cache        echo.MiddlewareFunc
}

// RegisterRoutes mounts /healthz and the authenticated /v1 API.
func RegisterRoutes(e *echo.Echo, o Options) {
	health := o.Health
	if health == nil {
		health = handler.Health(nil)
	}
	e.GET("/healthz", health)

	g := e.Group("/v1", middleware.JWTAuth(o.JWTSecret), middleware.RequireRole(staffRoles...))
	if o.RateLimit != nil {
		g.Use(o.RateLimit)
	}
	if o.Cache != nil {
		g.Use(o.Cache)
	}
	registerReservations(g, o.Reservations)
	registerAssignments(g, o.Reservations)
	registerFolios(g, o.Reservations)
	if o.Guests != nil {
		g.GET("/guests/:id/summary", o.Guests.Summary)
		g.GET("/guests/:id/reservations", o.Guests.Reservations)
	}
	if o.Rooms != nil {
		g.GET("/hotels/:id/rooms", o.Rooms.List)
	}
}

func registerReservations(g *echo.Group, h *handler.ReservationHandler) {
	g.POST("/reservations", h.Create)
	g.GET("/reservations/:id", h.Get)
	g.GET("/reservations/:id/balance", h.Balance)
	g.POST("/reservations/:id/confirm", h.Confirm)
	g.POST("/reservations/:id/check-in", h.CheckIn)
	g.POST("/reservations/:id/check-out", h.CheckOut)
	g.POST("/reservations/:id/undo-check-in", h.UndoCheckIn)
	g.POST("/reservations/:id/undo-check-out", h.UndoCheckOut)
	g.POST("/reservations/:id/cancel", h.Cancel)
	g.POST("/reservations/:id/no-show", h.NoShow)
	g.POST("/reservations/:id/void", h.Void)
	g.POST("/reservations/:id/amend", h.Amend)
}

func registerAssignments(g *echo.Group, h *handler.ReservationHandler) {
	g.PUT("/assignments/:id/room", h.AssignRoom)
	g.DELETE("/assignments/:id/room", h.UnassignRoom)
	g.POST("/assignments/:id/move", h.MoveRoom)
	g.PUT("/assignments/:id/stop-move", h.StopMove)
	g.POST("/room-exchanges", h.ExchangeRooms)
}

func registerFolios(g *echo.Group, h *handler.ReservationHandler) {
	g.POST("/folios/:id/transactions", h.PostTransaction)
	g.POST("/folios/:id/recalculate", h.RecalculateTotals)
	g.POST("/folio-transfers", h.Transfer)
	g.POST("/transactions/:id/void", h.VoidTransaction)
}
