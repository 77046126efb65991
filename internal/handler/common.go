package handler // handler exposes the reservation core over HTTP; each handler binds, validates and delegates to the service

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/hotel-pms-core/internal/model"
	"github.com/iliyamo/hotel-pms-core/internal/service"
)

// Reservations is the slice of the reservation service the HTTP surface
// calls.  *service.ReservationService satisfies it.
type Reservations interface {
	GetReservation(ctx context.Context, id uint64) (*service.ReservationResult, error)
	CreateReservation(ctx context.Context, req service.CreateReservationRequest) (*service.ReservationResult, error)
	Confirm(ctx context.Context, req service.ConfirmRequest) (*service.ReservationResult, error)
	CheckIn(ctx context.Context, req service.CheckInRequest) (*service.ReservationResult, error)
	CheckOut(ctx context.Context, req service.CheckOutRequest) (*service.ReservationResult, error)
	UndoCheckIn(ctx context.Context, req service.UndoRequest) (*service.ReservationResult, error)
	UndoCheckOut(ctx context.Context, req service.UndoRequest) (*service.ReservationResult, error)
	Cancel(ctx context.Context, req service.CancelRequest) (*service.ReservationResult, error)
	MarkNoShow(ctx context.Context, req service.NoShowRequest) (*service.ReservationResult, error)
	Void(ctx context.Context, req service.VoidRequest) (*service.ReservationResult, error)
	AmendStay(ctx context.Context, req service.AmendStayRequest) (*service.ReservationResult, error)

	AssignRoom(ctx context.Context, req service.AssignRoomRequest) (*model.ReservationRoom, error)
	UnassignRoom(ctx context.Context, req service.UnassignRoomRequest) (*model.ReservationRoom, error)
	SetStopMove(ctx context.Context, req service.StopMoveRequest) (*model.ReservationRoom, error)
	MoveRoom(ctx context.Context, req service.MoveRoomRequest) (*service.MoveResult, error)
	ExchangeRooms(ctx context.Context, req service.ExchangeRoomsRequest) ([]model.ReservationRoom, error)

	PostTransaction(ctx context.Context, req service.PostTransactionRequest) (*model.FolioTransaction, error)
	VoidTransaction(ctx context.Context, req service.VoidTransactionRequest) (*model.FolioTransaction, error)
	UpdateFolioTotals(ctx context.Context, folioID uint64) (*model.Folio, error)
	GetReservationBalance(ctx context.Context, reservationID uint64, openOnly bool) (*service.ReservationBalance, error)
	TransferBetweenFolios(ctx context.Context, req service.TransferRequest) ([]model.FolioTransaction, error)
}

// RequestValidator plugs the service's request validation into echo so
// handlers can call c.Validate.
type RequestValidator struct{}

func (RequestValidator) Validate(i interface{}) error { return service.ValidateRequest(i) }

// getUserID extracts the authenticated staff id from the context.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("actor_id").(type) {
	case uint64:
		if t > 0 {
			return t, nil
		}
	}
	if s, ok := c.Get("user_id").(string); ok {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

func pathID(c echo.Context, name string) (uint64, error) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, model.Validation("invalid "+name, map[string]any{"param": name, "value": c.Param(name)})
	}
	return n, nil
}

// bind decodes the body into req and returns the caller's id.  Path ids
// are filled in by the caller before validation.
func bind(c echo.Context, req any) (uint64, error) {
	actor, err := getUserID(c)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := c.Bind(req); err != nil {
		return 0, model.Validation("malformed request body", map[string]any{"cause": err.Error()})
	}
	return actor, nil
}

var statusByKind = map[model.ErrorKind]int{
	model.KindNotFound:           http.StatusNotFound,
	model.KindInvalidState:       http.StatusConflict,
	model.KindOutstandingBalance: http.StatusConflict,
	model.KindRoomUnavailable:    http.StatusConflict,
	model.KindWindowExpired:      http.StatusConflict,
	model.KindConcurrency:        http.StatusConflict,
	model.KindValidation:         http.StatusUnprocessableEntity,
	model.KindMissingRoom:        http.StatusUnprocessableEntity,
}

// respondError writes a classified error with its kind and details.
// Anything unclassified is logged and reported as 500.
func respondError(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return c.JSON(he.Code, echo.Map{"error": he.Message})
	}
	var me *model.Error
	if !errors.As(err, &me) {
		c.Logger().Errorj(log.JSON{
			"event":  "request_failed",
			"method": c.Request().Method,
			"path":   c.Path(),
			"error":  err.Error(),
		})
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	status, ok := statusByKind[me.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := echo.Map{"error": me.Message, "kind": me.Kind}
	if len(me.Details) > 0 {
		body["details"] = me.Details
	}
	if me.Kind == model.KindConcurrency {
		body["retryable"] = true
	}
	return c.JSON(status, body)
}
