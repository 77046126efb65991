package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-pms-core/internal/service"
)

// AssignRoom handles PUT /v1/assignments/:id/room.
func (h *ReservationHandler) AssignRoom(c echo.Context) error {
	var req service.AssignRoomRequest
	actor, err := bind(c, &req)
	if err != nil {
		return respondError(c, err)
	}
	if req.AssignmentID, err = pathID(c, "id"); err != nil {
		return respondError(c, err)
	}
	req.ActorID = actor
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	line, err := h.svc.AssignRoom(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, line)
}

// UnassignRoom handles DELETE /v1/assignments/:id/room.
func (h *ReservationHandler) UnassignRoom(c echo.Context) error {
	actor, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	line, err := h.svc.UnassignRoom(c.Request().Context(), service.UnassignRoomRequest{AssignmentID: id, ActorID: actor})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, line)
}

// MoveRoom handles POST /v1/assignments/:id/move.  The response says
// whether the stay was split.
func (h *ReservationHandler) MoveRoom(c echo.Context) error {
	var req service.MoveRoomRequest
	actor, err := bind(c, &req)
	if err != nil {
		return respondError(c, err)
	}
	if req.AssignmentID, err = pathID(c, "id"); err != nil {
		return respondError(c, err)
	}
	req.ActorID = actor
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	res, err := h.svc.MoveRoom(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// StopMove handles PUT /v1/assignments/:id/stop-move.
func (h *ReservationHandler) StopMove(c echo.Context) error {
	var req service.StopMoveRequest
	actor, err := bind(c, &req)
	if err != nil {
		return respondError(c, err)
	}
	if req.AssignmentID, err = pathID(c, "id"); err != nil {
		return respondError(c, err)
	}
	req.ActorID = actor
	line, err := h.svc.SetStopMove(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, line)
}

// ExchangeRooms handles POST /v1/room-exchanges.
func (h *ReservationHandler) ExchangeRooms(c echo.Context) error {
	var req service.ExchangeRoomsRequest
	actor, err := bind(c, &req)
	if err != nil {
		return respondError(c, err)
	}
	req.ActorID = actor
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	lines, err := h.svc.ExchangeRooms(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": lines, "count": len(lines)})
}
