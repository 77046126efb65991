package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// GuestSummaries reads derived guest statistics.
type GuestSummaries interface {
	Summary(ctx context.Context, guestID uint64) (*model.GuestSummary, error)
}

// GuestReservations lists a guest's reservation headers.
type GuestReservations interface {
	ListByGuest(ctx context.Context, guestID uint64) ([]model.Reservation, error)
}

type GuestHandler struct {
	summaries    GuestSummaries
	reservations GuestReservations
}

func NewGuestHandler(summaries GuestSummaries, reservations GuestReservations) *GuestHandler {
	return &GuestHandler{summaries: summaries, reservations: reservations}
}

// Summary handles GET /v1/guests/:id/summary.  The summary is recomputed
// after commit, so it may trail the latest operation briefly.
func (h *GuestHandler) Summary(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	s, err := h.summaries.Summary(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Reservations handles GET /v1/guests/:id/reservations.
func (h *GuestHandler) Reservations(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	items, err := h.reservations.ListByGuest(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}
