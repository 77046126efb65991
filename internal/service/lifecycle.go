package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jinzhu/now"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/hotel-pms-core/internal/ledger"
	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// Notification templates emitted by the lifecycle.
const (
	TemplateReservationConfirmed  = "reservation_confirmed"
	TemplateReservationCheckedIn  = "reservation_checked_in"
	TemplateReservationCheckedOut = "reservation_checked_out"
	TemplateReservationCancelled  = "reservation_cancelled"
	TemplateReservationNoShow     = "reservation_no_show"
)

// ReservationResult is the snapshot every lifecycle operation returns.
type ReservationResult struct {
	Reservation model.Reservation       `json:"reservation"`
	Rooms       []model.ReservationRoom `json:"rooms"`
	Folios      []model.Folio           `json:"folios"`
}

// RoomLineRequest is one room of a new reservation.
type RoomLineRequest struct {
	RoomTypeID uint64          `json:"room_type_id" validate:"required"`
	RoomID     *uint64         `json:"room_id"`
	RateAmount decimal.Decimal `json:"rate_amount"`
	TaxRate    decimal.Decimal `json:"tax_rate"`
	Adults     int             `json:"adults" validate:"min=1,max=20"`
	Children   int             `json:"children" validate:"min=0,max=20"`
	IsOwner    bool            `json:"is_owner"`
	Notes      string          `json:"notes" validate:"max=500"`
}

// CreateReservationRequest books a new reservation with its room lines.
type CreateReservationRequest struct {
	HotelID    uint64            `json:"hotel_id" validate:"required"`
	GuestID    uint64            `json:"guest_id"`
	CheckInAt  time.Time         `json:"check_in_at" validate:"required"`
	CheckOutAt time.Time         `json:"check_out_at" validate:"required"`
	Currency   string            `json:"currency" validate:"required,len=3"`
	Confirm    bool              `json:"confirm"`
	Rooms      []RoomLineRequest `json:"rooms" validate:"dive"`
	ActorID    uint64            `json:"-" validate:"required"`
}

// ConfirmRequest confirms a pending reservation.
type ConfirmRequest struct {
	ReservationID uint64 `json:"-" validate:"required"`
	ActorID       uint64 `json:"-" validate:"required"`
}

// CheckInRequest checks in the given lines.
type CheckInRequest struct {
	ReservationID uint64   `json:"-" validate:"required"`
	AssignmentIDs []uint64 `json:"assignment_ids" validate:"required,min=1,dive,required"`
	// CheckedInAt records when the guest actually arrived; defaults to now.
	CheckedInAt *time.Time `json:"checked_in_at"`
	ActorID     uint64     `json:"-" validate:"required"`
}

// CheckOutRequest checks out the given lines, or every checked-in line when
// AssignmentIDs is empty.
type CheckOutRequest struct {
	ReservationID uint64   `json:"-" validate:"required"`
	AssignmentIDs []uint64 `json:"assignment_ids" validate:"dive,required"`
	ActorID       uint64   `json:"-" validate:"required"`
}

// UndoRequest reverses a check-in or check-out of the given lines, or of
// every eligible line when none are given.
type UndoRequest struct {
	ReservationID uint64   `json:"-" validate:"required"`
	AssignmentIDs []uint64 `json:"assignment_ids" validate:"dive,required"`
	ActorID       uint64   `json:"-" validate:"required"`
}

// CancelRequest cancels the selected lines, or all of them when none are
// selected.  Fee is posted as a cancellation charge when positive.
type CancelRequest struct {
	ReservationID uint64          `json:"-" validate:"required"`
	AssignmentIDs []uint64        `json:"assignment_ids" validate:"dive,required"`
	Reason        string          `json:"reason" validate:"required,max=255"`
	Fee           decimal.Decimal `json:"fee"`
	ActorID       uint64          `json:"-" validate:"required"`
}

// NoShowRequest marks the selected lines, or all reserved lines, as no-show.
type NoShowRequest struct {
	ReservationID uint64          `json:"-" validate:"required"`
	AssignmentIDs []uint64        `json:"assignment_ids" validate:"dive,required"`
	Reason        string          `json:"reason" validate:"required,max=255"`
	Fee           decimal.Decimal `json:"fee"`
	ActorID       uint64          `json:"-" validate:"required"`
}

// VoidRequest voids the selected lines, or all of them when none are selected.
type VoidRequest struct {
	ReservationID uint64   `json:"-" validate:"required"`
	AssignmentIDs []uint64 `json:"assignment_ids" validate:"dive,required"`
	Reason        string   `json:"reason" validate:"required,max=255"`
	ActorID       uint64   `json:"-" validate:"required"`
}

func snapshot(ctx context.Context, tx Tx, res *model.Reservation, lines []model.ReservationRoom) (*ReservationResult, error) {
	folios, err := tx.Folios().ListByReservation(ctx, res.ID)
	if err != nil {
		return nil, fmt.Errorf("load folios: %w", err)
	}
	return &ReservationResult{Reservation: *res, Rooms: lines, Folios: folios}, nil
}

// recalcTotals rewrites the reservation's monetary totals from its lines.
func recalcTotals(res *model.Reservation, lines []model.ReservationRoom) {
	total := decimal.Zero
	for i := range lines {
		if lines[i].Status.Active() {
			total = total.Add(lines[i].NetAmount)
		}
	}
	res.TotalAmount = total
	res.FinalAmount = total
	res.RemainingAmount = total.Sub(res.PaidAmount)
}

// GetReservation returns the current snapshot of a reservation.
func (s *ReservationService) GetReservation(ctx context.Context, id uint64) (*ReservationResult, error) {
	var out *ReservationResult
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, _ *Effects) error {
		res, lines, err := loadReservation(ctx, tx, id)
		if err != nil {
			return err
		}
		out, err = snapshot(ctx, tx, res, lines)
		return err
	})
	return out, err
}

// CreateReservation books a stay with one line per requested room.  A
// confirmed booking gets its folio opened after commit.
func (s *ReservationService) CreateReservation(ctx context.Context, req CreateReservationRequest) (*ReservationResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	checkIn, checkOut := req.CheckInAt.In(s.loc), req.CheckOutAt.In(s.loc)
	if !checkOut.After(checkIn) {
		return nil, model.Validation("check-out must be after check-in", map[string]any{
			"check_in_at":  checkIn,
			"check_out_at": checkOut,
		})
	}
	for i, r := range req.Rooms {
		if r.RateAmount.IsNegative() || r.TaxRate.IsNegative() {
			return nil, model.Validation("rates cannot be negative", map[string]any{"room_index": i})
		}
	}
	at := s.now()
	nights := model.NightsBetween(checkIn, checkOut)

	var out *ReservationResult
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		for _, r := range req.Rooms {
			if r.RoomID == nil {
				continue
			}
			if _, err := tx.Rooms().FindRoom(ctx, *r.RoomID); err != nil {
				return err
			}
			if err := ensureRoomFree(ctx, tx, *r.RoomID, checkIn, checkOut); err != nil {
				return err
			}
		}

		status := model.ReservationPending
		if req.Confirm {
			status = model.ReservationConfirmed
		}
		res := &model.Reservation{
			HotelID:        req.HotelID,
			GuestID:        req.GuestID,
			Status:         status,
			ArrivalDate:    now.With(checkIn).BeginningOfDay(),
			DepartureDate:  now.With(checkOut).BeginningOfDay(),
			CheckInAt:      checkIn,
			CheckOutAt:     checkOut,
			NumberOfNights: nights,
			Currency:       req.Currency,
			CreatedBy:      req.ActorID,
			ModifiedBy:     req.ActorID,
			CreatedAt:      at,
			UpdatedAt:      at,
		}
		if err := tx.Reservations().Create(ctx, res); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}

		owner := false
		for _, r := range req.Rooms {
			owner = owner || r.IsOwner
		}
		lines := make([]model.ReservationRoom, 0, len(req.Rooms))
		for i, r := range req.Rooms {
			line := model.ReservationRoom{
				ReservationID: res.ID,
				RoomID:        r.RoomID,
				RoomTypeID:    r.RoomTypeID,
				Status:        model.AssignmentReserved,
				CheckInAt:     checkIn,
				CheckOutAt:    checkOut,
				Nights:        nights,
				RateAmount:    r.RateAmount,
				TaxRate:       r.TaxRate,
				Adults:        r.Adults,
				Children:      r.Children,
				IsOwner:       r.IsOwner || (!owner && i == 0),
				Notes:         r.Notes,
				CreatedAt:     at,
				UpdatedAt:     at,
			}
			line.Reprice()
			if err := tx.Assignments().Create(ctx, &line); err != nil {
				return fmt.Errorf("create room line: %w", err)
			}
			lines = append(lines, line)
		}

		recalcTotals(res, lines)
		if err := settle(ctx, tx, res, lines, req.ActorID, at); err != nil {
			return err
		}
		if err := audit(ctx, tx, res, req.ActorID, "reservation.create", "Reservation created", map[string]any{
			"rooms":  len(lines),
			"nights": nights,
			"status": res.Status,
		}); err != nil {
			return err
		}
		if res.Status == model.ReservationConfirmed {
			fx.CreateFolios(res.ID, req.ActorID)
			notifyGuest(fx, res, TemplateReservationConfirmed, req.ActorID, nil)
		}
		fx.RefreshGuestSummary(res.ID)

		var err error
		out, err = snapshot(ctx, tx, res, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Confirm moves a pending reservation to confirmed.  Folio creation runs
// after commit.
func (s *ReservationService) Confirm(ctx context.Context, req ConfirmRequest) (*ReservationResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	at := s.now()

	var out *ReservationResult
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		res, lines, err := loadReservation(ctx, tx, req.ReservationID)
		if err != nil {
			return err
		}
		if res.Status != model.ReservationPending {
			return model.InvalidState("confirm", res.Status, model.ReservationPending)
		}
		res.Status = model.ReservationConfirmed
		if err := settle(ctx, tx, res, lines, req.ActorID, at); err != nil {
			return err
		}
		if err := audit(ctx, tx, res, req.ActorID, "reservation.confirm", "Reservation confirmed", nil); err != nil {
			return err
		}
		fx.CreateFolios(res.ID, req.ActorID)
		notifyGuest(fx, res, TemplateReservationConfirmed, req.ActorID, nil)
		fx.RefreshGuestSummary(res.ID)
		out, err = snapshot(ctx, tx, res, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CheckIn checks in the selected lines.  The reservation becomes checked_in
// only when every active line is checked in; otherwise it stays confirmed.
func (s *ReservationService) CheckIn(ctx context.Context, req CheckInRequest) (*ReservationResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	at := s.now()
	arrived := at
	if req.CheckedInAt != nil {
		arrived = req.CheckedInAt.In(s.loc)
	}

	var out *ReservationResult
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		res, lines, err := loadReservation(ctx, tx, req.ReservationID)
		if err != nil {
			return err
		}
		if !res.Status.In(model.ReservationConfirmed, model.ReservationPending) {
			return model.InvalidState("check in", res.Status, model.ReservationConfirmed, model.ReservationPending)
		}
		targets, err := pick(res.ID, lines, req.AssignmentIDs, nil)
		if err != nil {
			return err
		}
		var missing []uint64
		for _, l := range targets {
			if l.Status != model.AssignmentReserved {
				e := model.InvalidState("check in room", l.Status, model.AssignmentReserved)
				e.Details["assignment_id"] = l.ID
				return e
			}
			if l.RoomID == nil {
				missing = append(missing, l.ID)
			}
		}
		if len(missing) > 0 {
			return model.MissingRoom(missing)
		}
		rooms := make(map[uint64]*model.Room, len(targets))
		for _, l := range targets {
			room, err := tx.Rooms().FindRoom(ctx, *l.RoomID)
			if err != nil {
				return err
			}
			rooms[l.ID] = room
		}

		for _, l := range targets {
			l.Status = model.AssignmentCheckedIn
			l.CheckedInAt = ptr(arrived)
			l.UpdatedAt = at
			if err := tx.Assignments().Update(ctx, l); err != nil {
				return fmt.Errorf("update room line: %w", err)
			}
			room := rooms[l.ID]
			if err := tx.Rooms().SaveRoomStatus(ctx, room.ID, model.RoomOccupied, room.HousekeepingStatus); err != nil {
				return fmt.Errorf("occupy room: %w", err)
			}
		}
		if err := settle(ctx, tx, res, lines, req.ActorID, at); err != nil {
			return err
		}
		if err := audit(ctx, tx, res, req.ActorID, "reservation.check_in", "Rooms checked in", map[string]any{
			"assignment_ids": ids(targets),
			"status":         res.Status,
		}); err != nil {
			return err
		}
		notifyGuest(fx, res, TemplateReservationCheckedIn, req.ActorID, map[string]any{"rooms": len(targets)})
		fx.RefreshGuestSummary(res.ID)
		out, err = snapshot(ctx, tx, res, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CheckOut checks out the selected lines once the open folios carry no
// outstanding balance.  Folios are closed when the whole stay is checked
// out.
func (s *ReservationService) CheckOut(ctx context.Context, req CheckOutRequest) (*ReservationResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	at := s.now()

	var out *ReservationResult
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		res, lines, err := loadReservation(ctx, tx, req.ReservationID)
		if err != nil {
			return err
		}
		if res.Status != model.ReservationCheckedIn {
			return model.InvalidState("check out", res.Status, model.ReservationCheckedIn)
		}
		targets, err := pick(res.ID, lines, req.AssignmentIDs, func(l *model.ReservationRoom) bool {
			return l.Status == model.AssignmentCheckedIn
		})
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			return model.Validation("no checked-in rooms to check out", nil)
		}
		for _, l := range targets {
			if l.Status != model.AssignmentCheckedIn {
				e := model.InvalidState("check out room", l.Status, model.AssignmentCheckedIn)
				e.Details["assignment_id"] = l.ID
				return e
			}
		}

		folios, err := tx.Folios().ListByReservation(ctx, res.ID)
		if err != nil {
			return err
		}
		fs := newFolioSet(folios)
		open := make([]model.Folio, 0, len(folios))
		for _, f := range fs.open() {
			open = append(open, *f)
		}
		if sum := ledger.ComputeBalance(open); sum.OutstandingBalance.IsPositive() {
			return model.OutstandingBalance(sum.OutstandingBalance)
		}

		for _, l := range targets {
			l.Status = model.AssignmentCheckedOut
			l.CheckedOutAt = ptr(at)
			l.UpdatedAt = at
			if err := tx.Assignments().Update(ctx, l); err != nil {
				return fmt.Errorf("update room line: %w", err)
			}
			if l.RoomID != nil {
				if err := tx.Rooms().SaveRoomStatus(ctx, *l.RoomID, model.RoomAvailable, model.HousekeepingDirty); err != nil {
					return fmt.Errorf("release room: %w", err)
				}
			}
		}
		if err := settle(ctx, tx, res, lines, req.ActorID, at); err != nil {
			return err
		}
		if res.Status == model.ReservationCheckedOut {
			for _, f := range fs.open() {
				if err := closeFolio(ctx, tx, f, req.ActorID, at); err != nil {
					return err
				}
			}
		}
		if err := audit(ctx, tx, res, req.ActorID, "reservation.check_out", "Rooms checked out", map[string]any{
			"assignment_ids": ids(targets),
			"status":         res.Status,
		}); err != nil {
			return err
		}
		if res.Status == model.ReservationCheckedOut {
			notifyGuest(fx, res, TemplateReservationCheckedOut, req.ActorID, nil)
		}
		fx.RefreshGuestSummary(res.ID)
		out, err = snapshot(ctx, tx, res, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UndoCheckIn returns checked-in lines to reserved.  Only check-ins made
// on the current calendar day can be undone.
func (s *ReservationService) UndoCheckIn(ctx context.Context, req UndoRequest) (*ReservationResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	at := s.now()

	var out *ReservationResult
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		res, lines, err := loadReservation(ctx, tx, req.ReservationID)
		if err != nil {
			return err
		}
		// confirmed covers a partially checked-in reservation.
		if !res.Status.In(model.ReservationCheckedIn, model.ReservationConfirmed) {
			return model.InvalidState("undo check in", res.Status, model.ReservationCheckedIn, model.ReservationConfirmed)
		}
		targets, err := pick(res.ID, lines, req.AssignmentIDs, func(l *model.ReservationRoom) bool {
			return l.Status == model.AssignmentCheckedIn
		})
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			return model.Validation("no checked-in rooms to undo", nil)
		}
		for _, l := range targets {
			if l.Status != model.AssignmentCheckedIn || l.IsSplitDestination {
				e := model.InvalidState("undo check in", l.Status, model.AssignmentCheckedIn)
				e.Details["assignment_id"] = l.ID
				return e
			}
			occurred := l.CheckInAt
			if l.CheckedInAt != nil {
				occurred = *l.CheckedInAt
			}
			if !model.SameDay(at, occurred) {
				return model.WindowExpired("undo check in", occurred.In(s.loc), at)
			}
		}

		for _, l := range targets {
			l.Status = model.AssignmentReserved
			l.CheckedInAt = nil
			l.UpdatedAt = at
			if err := tx.Assignments().Update(ctx, l); err != nil {
				return fmt.Errorf("update room line: %w", err)
			}
			if l.RoomID == nil {
				continue
			}
			room, err := tx.Rooms().FindRoom(ctx, *l.RoomID)
			if err != nil {
				return err
			}
			if err := tx.Rooms().SaveRoomStatus(ctx, room.ID, model.RoomAvailable, room.HousekeepingStatus); err != nil {
				return fmt.Errorf("release room: %w", err)
			}
		}
		if err := settle(ctx, tx, res, lines, req.ActorID, at); err != nil {
			return err
		}
		if err := audit(ctx, tx, res, req.ActorID, "reservation.undo_check_in", "Check-in undone", map[string]any{
			"assignment_ids": ids(targets),
			"status":         res.Status,
		}); err != nil {
			return err
		}
		fx.RefreshGuestSummary(res.ID)
		out, err = snapshot(ctx, tx, res, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UndoCheckOut returns checked-out lines to checked_in and reopens folios
// closed by the same-day check-out.
func (s *ReservationService) UndoCheckOut(ctx context.Context, req UndoRequest) (*ReservationResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	at := s.now()

	var out *ReservationResult
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		res, lines, err := loadReservation(ctx, tx, req.ReservationID)
		if err != nil {
			return err
		}
		// checked_in covers a partially checked-out reservation.
		if !res.Status.In(model.ReservationCheckedOut, model.ReservationCheckedIn) {
			return model.InvalidState("undo check out", res.Status, model.ReservationCheckedOut, model.ReservationCheckedIn)
		}
		targets, err := pick(res.ID, lines, req.AssignmentIDs, func(l *model.ReservationRoom) bool {
			return l.Status == model.AssignmentCheckedOut && !l.IsSplitOrigin
		})
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			return model.Validation("no checked-out rooms to undo", nil)
		}
		rooms := make(map[uint64]*model.Room, len(targets))
		for _, l := range targets {
			if l.Status != model.AssignmentCheckedOut || l.IsSplitOrigin {
				e := model.InvalidState("undo check out", l.Status, model.AssignmentCheckedOut)
				e.Details["assignment_id"] = l.ID
				return e
			}
			occurred := l.CheckOutAt
			if l.CheckedOutAt != nil {
				occurred = *l.CheckedOutAt
			}
			if !model.SameDay(at, occurred) {
				return model.WindowExpired("undo check out", occurred.In(s.loc), at)
			}
			if l.RoomID == nil {
				continue
			}
			room, err := tx.Rooms().FindRoom(ctx, *l.RoomID)
			if err != nil {
				return err
			}
			if room.Status == model.RoomOccupied {
				return model.RoomUnavailable(room.ID, nil)
			}
			rooms[l.ID] = room
		}

		for _, l := range targets {
			l.Status = model.AssignmentCheckedIn
			l.CheckedOutAt = nil
			l.UpdatedAt = at
			if err := tx.Assignments().Update(ctx, l); err != nil {
				return fmt.Errorf("update room line: %w", err)
			}
			if room, ok := rooms[l.ID]; ok {
				if err := tx.Rooms().SaveRoomStatus(ctx, room.ID, model.RoomOccupied, room.HousekeepingStatus); err != nil {
					return fmt.Errorf("occupy room: %w", err)
				}
			}
		}

		folios, err := tx.Folios().ListByReservation(ctx, res.ID)
		if err != nil {
			return err
		}
		var reopened []uint64
		for i := range folios {
			ok, err := reopenFolio(ctx, tx, &folios[i], at)
			if err != nil {
				return err
			}
			if ok {
				reopened = append(reopened, folios[i].ID)
			}
		}

		if err := settle(ctx, tx, res, lines, req.ActorID, at); err != nil {
			return err
		}
		if err := audit(ctx, tx, res, req.ActorID, "reservation.undo_check_out", "Check-out undone", map[string]any{
			"assignment_ids":     ids(targets),
			"reopened_folio_ids": reopened,
			"status":             res.Status,
		}); err != nil {
			return err
		}
		fx.RefreshGuestSummary(res.ID)
		out, err = snapshot(ctx, tx, res, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel cancels the selected lines and frees their rooms.  A full cancel
// cancels the folio ledgers, posts the fee and closes every open folio; a
// partial cancel only cancels the ledger entries of the cancelled lines.
func (s *ReservationService) Cancel(ctx context.Context, req CancelRequest) (*ReservationResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if req.Fee.IsNegative() {
		return nil, model.Validation("fee cannot be negative", map[string]any{"fee": req.Fee.String()})
	}
	at := s.now()

	var out *ReservationResult
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		res, lines, err := loadReservation(ctx, tx, req.ReservationID)
		if err != nil {
			return err
		}
		if !res.Status.In(model.ReservationPending, model.ReservationConfirmed) {
			return model.InvalidState("cancel", res.Status, model.ReservationPending, model.ReservationConfirmed)
		}
		targets, err := pick(res.ID, lines, req.AssignmentIDs, func(l *model.ReservationRoom) bool {
			return l.Status == model.AssignmentReserved
		})
		if err != nil {
			return err
		}
		if len(targets) == 0 && len(lines) > 0 {
			return model.Validation("no reserved rooms to cancel", nil)
		}
		for _, l := range targets {
			if l.Status != model.AssignmentReserved {
				e := model.InvalidState("cancel room", l.Status, model.AssignmentReserved)
				e.Details["assignment_id"] = l.ID
				return e
			}
		}
		folios, err := tx.Folios().ListByReservation(ctx, res.ID)
		if err != nil {
			return err
		}
		fs := newFolioSet(folios)

		for _, l := range targets {
			l.Status = model.AssignmentCancelled
			l.UpdatedAt = at
			if err := tx.Assignments().Update(ctx, l); err != nil {
				return fmt.Errorf("update room line: %w", err)
			}
			if err := releaseRoom(ctx, tx, l); err != nil {
				return err
			}
		}

		full := len(lines) == 0 || model.DeriveReservationStatus(res.Status, lines) == model.ReservationCancelled
		var match func(*model.FolioTransaction) bool
		if !full {
			match = onLines(lineSet(targets))
		}
		for _, f := range fs.open() {
			if err := cancelTransactions(ctx, tx, f, match, req.ActorID, req.Reason, at); err != nil {
				return err
			}
			if err := updateFolioTotals(ctx, tx, f); err != nil {
				return err
			}
		}
		if req.Fee.IsPositive() {
			var feeLine *model.ReservationRoom
			if !full {
				feeLine = targets[0]
			}
			f, err := fs.forLine(ctx, tx, res, feeLine, req.ActorID, at)
			if err != nil {
				return err
			}
			if _, err := postFee(ctx, tx, f, feeLine, model.CategoryCancellationFee, req.Fee, "Cancellation fee", req.ActorID, at); err != nil {
				return err
			}
		}
		if full {
			for _, f := range fs.open() {
				if err := closeFolio(ctx, tx, f, req.ActorID, at); err != nil {
					return err
				}
			}
		}

		res.CancellationReason = ptr(req.Reason)
		res.CancellationFee = res.CancellationFee.Add(req.Fee)
		if full {
			res.Status = model.ReservationCancelled
			res.CancelledAt = ptr(at)
			res.CancelledBy = ptr(req.ActorID)
		}
		recalcTotals(res, lines)
		// The aggregate status is the last write of the unit, after the
		// folios it depends on are closed.
		if err := settle(ctx, tx, res, lines, req.ActorID, at); err != nil {
			return err
		}
		if err := audit(ctx, tx, res, req.ActorID, "reservation.cancel", req.Reason, map[string]any{
			"assignment_ids": ids(targets),
			"fee":            req.Fee.StringFixed(2),
			"full":           full,
		}); err != nil {
			return err
		}
		notifyGuest(fx, res, TemplateReservationCancelled, req.ActorID, map[string]any{
			"reason": req.Reason,
			"fee":    req.Fee.StringFixed(2),
		})
		fx.RefreshGuestSummary(res.ID)
		out, err = snapshot(ctx, tx, res, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkNoShow marks reserved lines as no-show once the arrival date has
// come.  A fee is posted per line, every other active entry of the touched
// folios is reversed and those folios are voided.
func (s *ReservationService) MarkNoShow(ctx context.Context, req NoShowRequest) (*ReservationResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if req.Fee.IsNegative() {
		return nil, model.Validation("fee cannot be negative", map[string]any{"fee": req.Fee.String()})
	}
	at := s.now()

	var out *ReservationResult
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		res, lines, err := loadReservation(ctx, tx, req.ReservationID)
		if err != nil {
			return err
		}
		if !res.Status.In(model.ReservationPending, model.ReservationConfirmed, model.ReservationCheckedIn) {
			return model.InvalidState("mark no-show", res.Status,
				model.ReservationPending, model.ReservationConfirmed, model.ReservationCheckedIn)
		}
		if now.With(at).BeginningOfDay().Before(now.With(res.ArrivalDate.In(s.loc)).BeginningOfDay()) {
			return model.Validation("no-show cannot be marked before the arrival date", map[string]any{
				"arrival_date": res.ArrivalDate.Format("2006-01-02"),
				"today":        at.Format("2006-01-02"),
			})
		}
		targets, err := pick(res.ID, lines, req.AssignmentIDs, func(l *model.ReservationRoom) bool {
			return l.Status == model.AssignmentReserved
		})
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			return model.Validation("no reserved rooms to mark as no-show", nil)
		}
		for _, l := range targets {
			if l.Status != model.AssignmentReserved {
				e := model.InvalidState("mark room no-show", l.Status, model.AssignmentReserved)
				e.Details["assignment_id"] = l.ID
				return e
			}
		}
		folios, err := tx.Folios().ListByReservation(ctx, res.ID)
		if err != nil {
			return err
		}
		fs := newFolioSet(folios)

		for _, l := range targets {
			l.Status = model.AssignmentNoShow
			l.UpdatedAt = at
			if err := tx.Assignments().Update(ctx, l); err != nil {
				return fmt.Errorf("update room line: %w", err)
			}
			if err := releaseRoom(ctx, tx, l); err != nil {
				return err
			}
		}
		full := model.DeriveReservationStatus(res.Status, lines) == model.ReservationNoShow
		targetSet := lineSet(targets)

		fees := map[uint64]bool{}
		touched := map[uint64]*model.Folio{}
		if req.Fee.IsPositive() {
			for _, l := range targets {
				f, err := fs.forLine(ctx, tx, res, l, req.ActorID, at)
				if err != nil {
					return err
				}
				fee, err := postFee(ctx, tx, f, l, model.CategoryNoShowFee, req.Fee, "No-show fee", req.ActorID, at)
				if err != nil {
					return err
				}
				fees[fee.ID] = true
				touched[f.ID] = f
			}
		}
		for _, f := range fs.open() {
			switch {
			case full:
				touched[f.ID] = f
			case f.ReservationRoomID != nil && targetSet[*f.ReservationRoomID]:
				touched[f.ID] = f
			}
		}

		for _, f := range fs.list {
			if _, ok := touched[f.ID]; ok {
				if full || f.ReservationRoomID != nil {
					if err := voidFolio(ctx, tx, f, fees, req.ActorID, req.Reason, at); err != nil {
						return err
					}
					continue
				}
			}
			if full || f.Status != model.FolioOpen {
				continue
			}
			// Shared folio on a partial no-show: reverse only the entries
			// of the no-show lines.
			match := onLines(targetSet)
			if err := reverseTransactions(ctx, tx, f, func(t *model.FolioTransaction) bool {
				return match(t) && !fees[t.ID]
			}, req.ActorID, req.Reason, at); err != nil {
				return err
			}
			if err := updateFolioTotals(ctx, tx, f); err != nil {
				return err
			}
		}

		res.NoShowReason = ptr(req.Reason)
		res.NoShowFee = res.NoShowFee.Add(req.Fee.Mul(decimal.NewFromInt(int64(len(targets)))))
		res.NoShowAt = ptr(at)
		res.NoShowBy = ptr(req.ActorID)
		if err := settle(ctx, tx, res, lines, req.ActorID, at); err != nil {
			return err
		}
		if err := audit(ctx, tx, res, req.ActorID, "reservation.no_show", req.Reason, map[string]any{
			"assignment_ids": ids(targets),
			"fee":            req.Fee.StringFixed(2),
			"full":           full,
		}); err != nil {
			return err
		}
		notifyGuest(fx, res, TemplateReservationNoShow, req.ActorID, map[string]any{"fee": req.Fee.StringFixed(2)})
		fx.RefreshGuestSummary(res.ID)
		out, err = snapshot(ctx, tx, res, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Void voids the selected lines.  Selecting nothing, or every line that is
// not voided yet, voids the whole reservation and reverses its folios.  A
// partial void leaves the folios alone.
func (s *ReservationService) Void(ctx context.Context, req VoidRequest) (*ReservationResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	at := s.now()

	var out *ReservationResult
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		res, lines, err := loadReservation(ctx, tx, req.ReservationID)
		if err != nil {
			return err
		}
		if !res.Status.In(model.ReservationPending, model.ReservationConfirmed) {
			return model.InvalidState("void", res.Status, model.ReservationPending, model.ReservationConfirmed)
		}
		notVoided := func(l *model.ReservationRoom) bool { return l.Status != model.AssignmentVoided }
		targets, err := pick(res.ID, lines, req.AssignmentIDs, notVoided)
		if err != nil {
			return err
		}
		var pending []*model.ReservationRoom
		for _, l := range targets {
			switch l.Status {
			case model.AssignmentVoided:
				continue
			case model.AssignmentReserved, model.AssignmentCancelled:
				pending = append(pending, l)
			default:
				e := model.InvalidState("void room", l.Status, model.AssignmentReserved, model.AssignmentCancelled)
				e.Details["assignment_id"] = l.ID
				return e
			}
		}
		live, selected := 0, 0
		for i := range lines {
			if lines[i].Status.Active() {
				live++
			}
		}
		for _, l := range pending {
			if l.Status.Active() {
				selected++
			}
		}
		full := selected == live
		if full {
			// Escalation: every line left is voided, cancelled ones
			// included, whether selected or not.
			pending, _ = pick(res.ID, lines, nil, notVoided)
		}

		for _, l := range pending {
			wasReserved := l.Status == model.AssignmentReserved
			l.Status = model.AssignmentVoided
			l.UpdatedAt = at
			if err := tx.Assignments().Update(ctx, l); err != nil {
				return fmt.Errorf("update room line: %w", err)
			}
			if wasReserved {
				if err := releaseRoom(ctx, tx, l); err != nil {
					return err
				}
			}
		}

		if full {
			folios, err := tx.Folios().ListByReservation(ctx, res.ID)
			if err != nil {
				return err
			}
			for i := range folios {
				if folios[i].Status != model.FolioOpen {
					continue
				}
				if err := voidFolio(ctx, tx, &folios[i], nil, req.ActorID, req.Reason, at); err != nil {
					return err
				}
			}
			res.Status = model.ReservationVoided
			res.VoidReason = ptr(req.Reason)
			res.VoidedAt = ptr(at)
			res.VoidedBy = ptr(req.ActorID)
		}
		recalcTotals(res, lines)
		if err := settle(ctx, tx, res, lines, req.ActorID, at); err != nil {
			return err
		}
		if err := audit(ctx, tx, res, req.ActorID, "reservation.void", req.Reason, map[string]any{
			"assignment_ids": ids(pending),
			"full":           full,
		}); err != nil {
			return err
		}
		fx.RefreshGuestSummary(res.ID)
		out, err = snapshot(ctx, tx, res, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// releaseRoom makes the line's room available again, keeping its
// housekeeping state.  Rooms under maintenance are left alone.
func releaseRoom(ctx context.Context, tx Tx, l *model.ReservationRoom) error {
	if l.RoomID == nil {
		return nil
	}
	room, err := tx.Rooms().FindRoom(ctx, *l.RoomID)
	if err != nil {
		return err
	}
	if room.Status == model.RoomMaintenance {
		return nil
	}
	if err := tx.Rooms().SaveRoomStatus(ctx, room.ID, model.RoomAvailable, room.HousekeepingStatus); err != nil {
		return fmt.Errorf("release room: %w", err)
	}
	return nil
}
