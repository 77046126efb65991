package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-pms-core/internal/service"
)

// ReservationHandler serves the reservation lifecycle and folio routes.
type ReservationHandler struct {
	svc Reservations
}

// NewReservationHandler panics on a nil service.
func NewReservationHandler(svc Reservations) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{svc: svc}
}

// Create handles POST /v1/reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req service.CreateReservationRequest
	actor, err := bind(c, &req)
	if err != nil {
		return respondError(c, err)
	}
	req.ActorID = actor
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	res, err := h.svc.CreateReservation(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	res, err := h.svc.GetReservation(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Balance handles GET /v1/reservations/:id/balance?open_only=true.
func (h *ReservationHandler) Balance(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	openOnly, _ := strconv.ParseBool(c.QueryParam("open_only"))
	bal, err := h.svc.GetReservationBalance(c.Request().Context(), id, openOnly)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, bal)
}

// transition binds a request addressed to /v1/reservations/:id, fills in
// the path id and actor, validates it and runs op.
func transition[R any](c echo.Context, set func(r *R, id, actor uint64), op func(r R) (*service.ReservationResult, error)) error {
	var req R
	actor, err := bind(c, &req)
	if err != nil {
		return respondError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	set(&req, id, actor)
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	res, err := op(req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Confirm handles POST /v1/reservations/:id/confirm.
func (h *ReservationHandler) Confirm(c echo.Context) error {
	return transition(c, func(r *service.ConfirmRequest, id, actor uint64) { r.ReservationID, r.ActorID = id, actor },
		func(r service.ConfirmRequest) (*service.ReservationResult, error) {
			return h.svc.Confirm(c.Request().Context(), r)
		})
}

// CheckIn handles POST /v1/reservations/:id/check-in.
func (h *ReservationHandler) CheckIn(c echo.Context) error {
	return transition(c, func(r *service.CheckInRequest, id, actor uint64) { r.ReservationID, r.ActorID = id, actor },
		func(r service.CheckInRequest) (*service.ReservationResult, error) {
			return h.svc.CheckIn(c.Request().Context(), r)
		})
}

// CheckOut handles POST /v1/reservations/:id/check-out.
func (h *ReservationHandler) CheckOut(c echo.Context) error {
	return transition(c, func(r *service.CheckOutRequest, id, actor uint64) { r.ReservationID, r.ActorID = id, actor },
		func(r service.CheckOutRequest) (*service.ReservationResult, error) {
			return h.svc.CheckOut(c.Request().Context(), r)
		})
}

func (h *ReservationHandler) UndoCheckIn(c echo.Context) error {
	return transition(c, func(r *service.UndoRequest, id, actor uint64) { r.ReservationID, r.ActorID = id, actor },
		func(r service.UndoRequest) (*service.ReservationResult, error) {
			return h.svc.UndoCheckIn(c.Request().Context(), r)
		})
}

func (h *ReservationHandler) UndoCheckOut(c echo.Context) error {
	return transition(c, func(r *service.UndoRequest, id, actor uint64) { r.ReservationID, r.ActorID = id, actor },
		func(r service.UndoRequest) (*service.ReservationResult, error) {
			return h.svc.UndoCheckOut(c.Request().Context(), r)
		})
}

// Cancel handles POST /v1/reservations/:id/cancel.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	return transition(c, func(r *service.CancelRequest, id, actor uint64) { r.ReservationID, r.ActorID = id, actor },
		func(r service.CancelRequest) (*service.ReservationResult, error) {
			return h.svc.Cancel(c.Request().Context(), r)
		})
}

// NoShow handles POST /v1/reservations/:id/no-show.
func (h *ReservationHandler) NoShow(c echo.Context) error {
	return transition(c, func(r *service.NoShowRequest, id, actor uint64) { r.ReservationID, r.ActorID = id, actor },
		func(r service.NoShowRequest) (*service.ReservationResult, error) {
			return h.svc.MarkNoShow(c.Request().Context(), r)
		})
}

// Void handles POST /v1/reservations/:id/void.
func (h *ReservationHandler) Void(c echo.Context) error {
	return transition(c, func(r *service.VoidRequest, id, actor uint64) { r.ReservationID, r.ActorID = id, actor },
		func(r service.VoidRequest) (*service.ReservationResult, error) {
			return h.svc.Void(c.Request().Context(), r)
		})
}

// Amend handles POST /v1/reservations/:id/amend.
func (h *ReservationHandler) Amend(c echo.Context) error {
	return transition(c, func(r *service.AmendStayRequest, id, actor uint64) { r.ReservationID, r.ActorID = id, actor },
		func(r service.AmendStayRequest) (*service.ReservationResult, error) {
			return h.svc.AmendStay(c.Request().Context(), r)
		})
}
