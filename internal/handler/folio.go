package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-pms-core/internal/service"
)

// PostTransaction handles POST /v1/folios/:id/transactions.
func (h *ReservationHandler) PostTransaction(c echo.Context) error {
	var req service.PostTransactionRequest
	actor, err := bind(c, &req)
	if err != nil {
		return respondError(c, err)
	}
	if req.FolioID, err = pathID(c, "id"); err != nil {
		return respondError(c, err)
	}
	req.ActorID = actor
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	txn, err := h.svc.PostTransaction(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, txn)
}

// VoidTransaction handles POST /v1/transactions/:id/void.  Voiding an
// already voided entry returns it unchanged.
func (h *ReservationHandler) VoidTransaction(c echo.Context) error {
	var req service.VoidTransactionRequest
	actor, err := bind(c, &req)
	if err != nil {
		return respondError(c, err)
	}
	if req.TransactionID, err = pathID(c, "id"); err != nil {
		return respondError(c, err)
	}
	req.ActorID = actor
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	txn, err := h.svc.VoidTransaction(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, txn)
}

// RecalculateTotals handles POST /v1/folios/:id/recalculate.
func (h *ReservationHandler) RecalculateTotals(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	f, err := h.svc.UpdateFolioTotals(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, f)
}

// Transfer handles POST /v1/folio-transfers.
func (h *ReservationHandler) Transfer(c echo.Context) error {
	var req service.TransferRequest
	actor, err := bind(c, &req)
	if err != nil {
		return respondError(c, err)
	}
	req.ActorID = actor
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	txns, err := h.svc.TransferBetweenFolios(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"items": txns, "count": len(txns)})
}
