package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// RoomLister reads the room registry of a hotel.
type RoomLister interface {
	ListByHotel(ctx context.Context, hotelID uint64) ([]model.Room, error)
}

type RoomHandler struct {
	rooms RoomLister
}

func NewRoomHandler(rooms RoomLister) *RoomHandler { return &RoomHandler{rooms: rooms} }

// List handles GET /v1/hotels/:id/rooms.  Callers whose token is bound to
// another hotel get 403.
func (h *RoomHandler) List(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if hid, ok := c.Get("hotel_id").(uint64); ok && hid != id {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	rooms, err := h.rooms.ListByHotel(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": rooms, "count": len(rooms)})
}
