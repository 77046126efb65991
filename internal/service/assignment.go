package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/now"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// Exchange modes.
const (
	ExchangeReservationSwap      = "reservation_swap"
	ExchangeRoomUpgradeDowngrade = "room_upgrade_downgrade"
)

// AssignRoomRequest puts a room on a reserved line.
type AssignRoomRequest struct {
	AssignmentID uint64 `json:"-" validate:"required"`
	RoomID       uint64 `json:"room_id" validate:"required"`
	ActorID      uint64 `json:"-" validate:"required"`
}

// UnassignRoomRequest takes the room off a reserved line.
type UnassignRoomRequest struct {
	AssignmentID uint64 `json:"-" validate:"required"`
	ActorID      uint64 `json:"-" validate:"required"`
}

// MoveRoomRequest moves a line to another room, splitting the stay once the
// guest has slept in the current one.
type MoveRoomRequest struct {
	AssignmentID uint64 `json:"-" validate:"required"`
	ToRoomID     uint64 `json:"to_room_id" validate:"required"`
	// EffectiveAt defaults to now.
	EffectiveAt *time.Time `json:"effective_at"`
	Reason      string     `json:"reason" validate:"max=255"`
	ActorID     uint64     `json:"-" validate:"required"`
}

// ExchangeRoomsRequest swaps the rooms of two reservations or moves one line
// to a room of another type.
type ExchangeRoomsRequest struct {
	Mode         string `json:"mode" validate:"required,oneof=reservation_swap room_upgrade_downgrade"`
	AssignmentID uint64 `json:"assignment_id" validate:"required"`
	// OtherAssignmentID is the line of the other reservation in a swap.
	OtherAssignmentID uint64 `json:"other_assignment_id" validate:"required_if=Mode reservation_swap"`
	// ToRoomID is the destination of an upgrade or downgrade.
	ToRoomID uint64 `json:"to_room_id" validate:"required_if=Mode room_upgrade_downgrade"`
	Reason   string `json:"reason" validate:"max=255"`
	ActorID  uint64 `json:"-" validate:"required"`
}

// StopMoveRequest sets or clears the do-not-move flag of a line.
type StopMoveRequest struct {
	AssignmentID uint64 `json:"-" validate:"required"`
	StopMove     bool   `json:"stop_move"`
	ActorID      uint64 `json:"-" validate:"required"`
}

// MoveResult tells the caller whether the move split the stay.
type MoveResult struct {
	Split       bool                   `json:"split"`
	Origin      model.ReservationRoom  `json:"origin"`
	Destination *model.ReservationRoom `json:"destination,omitempty"`
}

var amendable = []model.ReservationStatus{
	model.ReservationPending,
	model.ReservationConfirmed,
	model.ReservationCheckedIn,
}

// ensureRoomFree fails with RoomUnavailable when another active line holds
// roomID during [from, to).
func ensureRoomFree(ctx context.Context, tx Tx, roomID uint64, from, to time.Time, exclude ...uint64) error {
	clash, err := tx.Assignments().Overlapping(ctx, roomID, from, to, exclude...)
	if err != nil {
		return fmt.Errorf("check room availability: %w", err)
	}
	if len(clash) == 0 {
		return nil
	}
	conflicting := make([]uint64, len(clash))
	for i := range clash {
		conflicting[i] = clash[i].ID
	}
	return model.RoomUnavailable(roomID, conflicting)
}

// loadLine reads a line together with its locked reservation and siblings.
// The unlocked read only resolves the owning reservation; the line itself
// is locked by loadReservation after the reservation row.  The returned
// pointer aliases the matching element of lines.
func loadLine(ctx context.Context, tx Tx, assignmentID uint64) (*model.Reservation, []model.ReservationRoom, *model.ReservationRoom, error) {
	line, err := tx.Assignments().Get(ctx, assignmentID)
	if err != nil {
		return nil, nil, nil, err
	}
	res, lines, err := loadReservation(ctx, tx, line.ReservationID)
	if err != nil {
		return nil, nil, nil, err
	}
	for i := range lines {
		if lines[i].ID == assignmentID {
			return res, lines, &lines[i], nil
		}
	}
	return nil, nil, nil, model.NotFound("reservation room", assignmentID)
}

func lineAudit(ctx context.Context, tx Tx, res *model.Reservation, line *model.ReservationRoom, actorID uint64, action, desc string, meta map[string]any) error {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["assignment_id"] = line.ID
	return audit(ctx, tx, res, actorID, action, desc, meta)
}

// AssignRoom binds a room to a reserved line.
func (s *ReservationService) AssignRoom(ctx context.Context, req AssignRoomRequest) (*model.ReservationRoom, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	at := s.now()

	var out *model.ReservationRoom
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, _ *Effects) error {
		res, _, line, err := loadLine(ctx, tx, req.AssignmentID)
		if err != nil {
			return err
		}
		if !res.Status.In(model.ReservationPending, model.ReservationConfirmed) {
			return model.InvalidState("assign room", res.Status, model.ReservationPending, model.ReservationConfirmed)
		}
		if line.Status != model.AssignmentReserved {
			return model.InvalidState("assign room", line.Status, model.AssignmentReserved)
		}
		room, err := tx.Rooms().FindRoom(ctx, req.RoomID)
		if err != nil {
			return err
		}
		if room.Status == model.RoomMaintenance {
			return model.RoomUnavailable(room.ID, nil)
		}
		if err := ensureRoomFree(ctx, tx, room.ID, line.CheckInAt, line.CheckOutAt, line.ID); err != nil {
			return err
		}
		line.RoomID = ptr(room.ID)
		line.UpdatedAt = at
		if err := tx.Assignments().Update(ctx, line); err != nil {
			return fmt.Errorf("update room line: %w", err)
		}
		if err := lineAudit(ctx, tx, res, line, req.ActorID, "assignment.assign", "Room "+room.RoomNumber+" assigned", map[string]any{"room_id": room.ID}); err != nil {
			return err
		}
		out = line
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UnassignRoom clears the room of a reserved line and strips the room
// number from the line's posted charge descriptions.  Amounts are not
// touched.
func (s *ReservationService) UnassignRoom(ctx context.Context, req UnassignRoomRequest) (*model.ReservationRoom, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	at := s.now()

	var out *model.ReservationRoom
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, _ *Effects) error {
		res, _, line, err := loadLine(ctx, tx, req.AssignmentID)
		if err != nil {
			return err
		}
		if line.Status != model.AssignmentReserved {
			return model.InvalidState("unassign room", line.Status, model.AssignmentReserved)
		}
		if line.RoomID == nil {
			out = line
			return nil
		}
		room, err := tx.Rooms().FindRoom(ctx, *line.RoomID)
		if err != nil {
			return err
		}
		line.RoomID = nil
		line.UpdatedAt = at
		if err := tx.Assignments().Update(ctx, line); err != nil {
			return fmt.Errorf("update room line: %w", err)
		}
		if err := relabelCharges(ctx, tx, res.ID, line.ID, func(desc string) string {
			return stripRoomNumber(desc, room.RoomNumber)
		}); err != nil {
			return err
		}
		if err := lineAudit(ctx, tx, res, line, req.ActorID, "assignment.unassign", "Room "+room.RoomNumber+" unassigned", map[string]any{"room_id": room.ID}); err != nil {
			return err
		}
		out = line
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// relabelCharges rewrites the descriptions of the posted charges of a line.
func relabelCharges(ctx context.Context, tx Tx, reservationID, lineID uint64, rewrite func(string) string) error {
	folios, err := tx.Folios().ListByReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	for i := range folios {
		for j := range folios[i].Transactions {
			t := &folios[i].Transactions[j]
			if t.Status != model.TxnPosted || t.ReservationRoomID == nil || *t.ReservationRoomID != lineID {
				continue
			}
			if t.Type != model.TxnCharge && t.Type != model.TxnRoomPosting {
				continue
			}
			desc := rewrite(t.Description)
			if desc == t.Description {
				continue
			}
			t.Description = desc
			if err := tx.Folios().UpdateTransaction(ctx, t); err != nil {
				return fmt.Errorf("relabel charge: %w", err)
			}
		}
	}
	return nil
}

// SetStopMove sets or clears the stop-move flag of a line.
func (s *ReservationService) SetStopMove(ctx context.Context, req StopMoveRequest) (*model.ReservationRoom, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	at := s.now()

	var out *model.ReservationRoom
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, _ *Effects) error {
		res, _, line, err := loadLine(ctx, tx, req.AssignmentID)
		if err != nil {
			return err
		}
		if line.StopMove != req.StopMove {
			line.StopMove = req.StopMove
			line.UpdatedAt = at
			if err := tx.Assignments().Update(ctx, line); err != nil {
				return fmt.Errorf("update room line: %w", err)
			}
			if err := lineAudit(ctx, tx, res, line, req.ActorID, "assignment.stop_move", "Stop-move flag changed", map[string]any{"stop_move": req.StopMove}); err != nil {
				return err
			}
		}
		out = line
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MoveRoom relocates a line to another room.  Lines with the stop-move flag
// set cannot be moved.
func (s *ReservationService) MoveRoom(ctx context.Context, req MoveRoomRequest) (*MoveResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	at := s.now()
	effective := at
	if req.EffectiveAt != nil {
		effective = req.EffectiveAt.In(s.loc)
	}

	var out *MoveResult
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		res, lines, line, err := loadLine(ctx, tx, req.AssignmentID)
		if err != nil {
			return err
		}
		if line.StopMove {
			e := model.InvalidState("move room", "stop_move")
			e.Details["assignment_id"] = line.ID
			return e
		}
		out, err = moveRoom(ctx, tx, res, lines, line, req.ToRoomID, effective, req.Reason, req.ActorID, at)
		if err != nil {
			return err
		}
		fx.RefreshGuestSummary(res.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// moveRoom is the assignment manager's move.  Before check-in, or on the
// scheduled check-in day, the room is swapped in place.  After check-in the
// line is closed at effective and a new checked-in line carries the rest of
// the stay; ledger entries from effective on follow the new line.
func moveRoom(ctx context.Context, tx Tx, res *model.Reservation, lines []model.ReservationRoom, line *model.ReservationRoom, toRoomID uint64, effective time.Time, reason string, actorID uint64, at time.Time) (*MoveResult, error) {
	if !res.Status.In(amendable...) {
		return nil, model.InvalidState("move room", res.Status, amendable)
	}
	if !line.Status.In(model.AssignmentReserved, model.AssignmentCheckedIn) {
		return nil, model.InvalidState("move room", line.Status, model.AssignmentReserved, model.AssignmentCheckedIn)
	}
	if line.RoomID != nil && *line.RoomID == toRoomID {
		return nil, model.Validation("line is already in that room", map[string]any{"room_id": toRoomID})
	}
	to, err := tx.Rooms().FindRoom(ctx, toRoomID)
	if err != nil {
		return nil, err
	}
	if to.Status == model.RoomMaintenance {
		return nil, model.RoomUnavailable(to.ID, nil)
	}
	var from *model.Room
	if line.RoomID != nil {
		if from, err = tx.Rooms().FindRoom(ctx, *line.RoomID); err != nil {
			return nil, err
		}
	}

	if line.Status == model.AssignmentReserved || model.SameDay(line.CheckInAt, effective) {
		if err := ensureRoomFree(ctx, tx, to.ID, line.CheckInAt, line.CheckOutAt, line.ID); err != nil {
			return nil, err
		}
		return swapInPlace(ctx, tx, res, line, from, to, reason, actorID, at)
	}

	if !now.With(effective).BeginningOfDay().Before(now.With(line.CheckOutAt.In(effective.Location())).BeginningOfDay()) {
		return nil, model.Validation("effective date must be before the departure date", map[string]any{
			"effective_at": effective,
			"check_out_at": line.CheckOutAt,
		})
	}
	if err := ensureRoomFree(ctx, tx, to.ID, effective, line.CheckOutAt, line.ID); err != nil {
		return nil, err
	}

	dest := *line
	dest.ID = 0
	dest.RoomID = ptr(to.ID)
	dest.RoomTypeID = to.RoomTypeID
	dest.Status = model.AssignmentCheckedIn
	dest.CheckInAt = effective
	dest.CheckedInAt = ptr(effective)
	dest.CheckedOutAt = nil
	dest.Nights = model.NightsBetween(effective, line.CheckOutAt)
	dest.StopMove = false
	dest.IsSplitOrigin = false
	dest.IsSplitDestination = true
	dest.SplitFromID = ptr(line.ID)
	dest.Notes = strings.TrimSpace(fmt.Sprintf("Moved from assignment %d. %s", line.ID, reason))
	dest.CreatedAt = at
	dest.UpdatedAt = at
	dest.Reprice()

	line.Status = model.AssignmentCheckedOut
	line.CheckOutAt = effective
	line.CheckedOutAt = ptr(effective)
	line.Nights = model.NightsBetween(line.CheckInAt, effective)
	line.IsSplitOrigin = true
	line.Notes = strings.TrimSpace(line.Notes + fmt.Sprintf(" Moved to room %s.", to.RoomNumber))
	line.UpdatedAt = at
	line.Reprice()

	if err := tx.Assignments().Create(ctx, &dest); err != nil {
		return nil, fmt.Errorf("create split line: %w", err)
	}
	if err := tx.Assignments().Update(ctx, line); err != nil {
		return nil, fmt.Errorf("close split origin: %w", err)
	}
	if from != nil {
		if err := tx.Rooms().SaveRoomStatus(ctx, from.ID, model.RoomAvailable, model.HousekeepingDirty); err != nil {
			return nil, fmt.Errorf("release room: %w", err)
		}
	}
	if err := tx.Rooms().SaveRoomStatus(ctx, to.ID, model.RoomOccupied, to.HousekeepingStatus); err != nil {
		return nil, fmt.Errorf("occupy room: %w", err)
	}
	if err := ReassignTransactionsForMove(ctx, tx, res.ID, line, &dest, effective); err != nil {
		return nil, err
	}
	if from != nil {
		if err := relabelCharges(ctx, tx, res.ID, dest.ID, func(desc string) string {
			return strings.Replace(desc, " - Room "+from.RoomNumber, " - Room "+to.RoomNumber, 1)
		}); err != nil {
			return nil, err
		}
	}

	lines = append(lines, dest)
	recalcTotals(res, lines)
	if err := settle(ctx, tx, res, lines, actorID, at); err != nil {
		return nil, err
	}
	if err := lineAudit(ctx, tx, res, line, actorID, "assignment.move", reason, map[string]any{
		"split":          true,
		"to_room_id":     to.ID,
		"new_assignment": dest.ID,
		"effective_at":   effective,
	}); err != nil {
		return nil, err
	}
	return &MoveResult{Split: true, Origin: *line, Destination: &dest}, nil
}

// swapInPlace changes the room of a line without touching its history.
func swapInPlace(ctx context.Context, tx Tx, res *model.Reservation, line *model.ReservationRoom, from, to *model.Room, reason string, actorID uint64, at time.Time) (*MoveResult, error) {
	line.RoomID = ptr(to.ID)
	line.RoomTypeID = to.RoomTypeID
	line.UpdatedAt = at
	if err := tx.Assignments().Update(ctx, line); err != nil {
		return nil, fmt.Errorf("update room line: %w", err)
	}
	if line.Status == model.AssignmentCheckedIn {
		if from != nil {
			if err := tx.Rooms().SaveRoomStatus(ctx, from.ID, model.RoomAvailable, model.HousekeepingDirty); err != nil {
				return nil, fmt.Errorf("release room: %w", err)
			}
		}
		if err := tx.Rooms().SaveRoomStatus(ctx, to.ID, model.RoomOccupied, to.HousekeepingStatus); err != nil {
			return nil, fmt.Errorf("occupy room: %w", err)
		}
	}
	if from != nil {
		if err := relabelCharges(ctx, tx, res.ID, line.ID, func(desc string) string {
			return strings.Replace(desc, " - Room "+from.RoomNumber, " - Room "+to.RoomNumber, 1)
		}); err != nil {
			return nil, err
		}
	}
	meta := map[string]any{"split": false, "to_room_id": to.ID}
	if from != nil {
		meta["from_room_id"] = from.ID
	}
	if err := lineAudit(ctx, tx, res, line, actorID, "assignment.move", reason, meta); err != nil {
		return nil, err
	}
	return &MoveResult{Origin: *line}, nil
}

// ExchangeRooms swaps the rooms of two reservations or moves one line to a
// serviceable room of another type.
func (s *ReservationService) ExchangeRooms(ctx context.Context, req ExchangeRoomsRequest) ([]model.ReservationRoom, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	at := s.now()

	var out []model.ReservationRoom
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		var err error
		switch req.Mode {
		case ExchangeReservationSwap:
			out, err = swapReservations(ctx, tx, req, at)
		default:
			out, err = upgradeDowngrade(ctx, tx, req, at)
		}
		if err != nil {
			return err
		}
		for _, l := range out {
			fx.RefreshGuestSummary(l.ReservationID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func swapReservations(ctx context.Context, tx Tx, req ExchangeRoomsRequest, at time.Time) ([]model.ReservationRoom, error) {
	first, second := req.AssignmentID, req.OtherAssignmentID
	if first == second {
		return nil, model.Validation("cannot swap a line with itself", nil)
	}
	// Lock in id order so two opposite swaps cannot deadlock.
	if first > second {
		first, second = second, first
	}
	resA, _, a, err := loadLine(ctx, tx, first)
	if err != nil {
		return nil, err
	}
	resB, _, b, err := loadLine(ctx, tx, second)
	if err != nil {
		return nil, err
	}
	if resA.ID == resB.ID {
		return nil, model.Validation("swap needs lines of two different reservations", map[string]any{"reservation_id": resA.ID})
	}
	for _, r := range []*model.Reservation{resA, resB} {
		if !r.Status.In(amendable...) {
			e := model.InvalidState("exchange rooms", r.Status, amendable)
			e.Details["reservation_id"] = r.ID
			return nil, e
		}
	}
	var missing []uint64
	for _, l := range []*model.ReservationRoom{a, b} {
		if !l.Status.In(model.AssignmentReserved, model.AssignmentCheckedIn) {
			e := model.InvalidState("exchange rooms", l.Status, model.AssignmentReserved, model.AssignmentCheckedIn)
			e.Details["assignment_id"] = l.ID
			return nil, e
		}
		if l.RoomID == nil {
			missing = append(missing, l.ID)
		}
	}
	if len(missing) > 0 {
		return nil, model.MissingRoom(missing)
	}
	if err := ensureRoomFree(ctx, tx, *b.RoomID, a.CheckInAt, a.CheckOutAt, a.ID, b.ID); err != nil {
		return nil, err
	}
	if err := ensureRoomFree(ctx, tx, *a.RoomID, b.CheckInAt, b.CheckOutAt, a.ID, b.ID); err != nil {
		return nil, err
	}
	roomA, err := tx.Rooms().FindRoom(ctx, *a.RoomID)
	if err != nil {
		return nil, err
	}
	roomB, err := tx.Rooms().FindRoom(ctx, *b.RoomID)
	if err != nil {
		return nil, err
	}

	a.RoomID, b.RoomID = b.RoomID, a.RoomID
	a.RoomTypeID, b.RoomTypeID = roomB.RoomTypeID, roomA.RoomTypeID
	a.UpdatedAt, b.UpdatedAt = at, at
	for _, l := range []*model.ReservationRoom{a, b} {
		if err := tx.Assignments().Update(ctx, l); err != nil {
			return nil, fmt.Errorf("update room line: %w", err)
		}
	}
	// Occupancy follows whichever line is in house.
	if a.Status != b.Status {
		occ := func(l *model.ReservationRoom, room *model.Room) error {
			status := model.RoomAvailable
			if l.Status == model.AssignmentCheckedIn {
				status = model.RoomOccupied
			}
			return tx.Rooms().SaveRoomStatus(ctx, room.ID, status, room.HousekeepingStatus)
		}
		if err := occ(a, roomB); err != nil {
			return nil, err
		}
		if err := occ(b, roomA); err != nil {
			return nil, err
		}
	}
	if err := relabelCharges(ctx, tx, resA.ID, a.ID, func(d string) string {
		return strings.Replace(d, " - Room "+roomA.RoomNumber, " - Room "+roomB.RoomNumber, 1)
	}); err != nil {
		return nil, err
	}
	if err := relabelCharges(ctx, tx, resB.ID, b.ID, func(d string) string {
		return strings.Replace(d, " - Room "+roomB.RoomNumber, " - Room "+roomA.RoomNumber, 1)
	}); err != nil {
		return nil, err
	}
	meta := map[string]any{"mode": ExchangeReservationSwap, "room_a": roomA.ID, "room_b": roomB.ID}
	if err := lineAudit(ctx, tx, resA, a, req.ActorID, "assignment.exchange", req.Reason, meta); err != nil {
		return nil, err
	}
	if err := lineAudit(ctx, tx, resB, b, req.ActorID, "assignment.exchange", req.Reason, meta); err != nil {
		return nil, err
	}
	return []model.ReservationRoom{*a, *b}, nil
}

func upgradeDowngrade(ctx context.Context, tx Tx, req ExchangeRoomsRequest, at time.Time) ([]model.ReservationRoom, error) {
	res, _, line, err := loadLine(ctx, tx, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	if !res.Status.In(amendable...) {
		return nil, model.InvalidState("exchange rooms", res.Status, amendable)
	}
	if !line.Status.In(model.AssignmentReserved, model.AssignmentCheckedIn) {
		return nil, model.InvalidState("exchange rooms", line.Status, model.AssignmentReserved, model.AssignmentCheckedIn)
	}
	to, err := tx.Rooms().FindRoom(ctx, req.ToRoomID)
	if err != nil {
		return nil, err
	}
	if !to.Serviceable() {
		e := model.RoomUnavailable(to.ID, nil)
		e.Details["status"] = to.Status
		e.Details["housekeeping_status"] = to.HousekeepingStatus
		return nil, e
	}
	if err := ensureRoomFree(ctx, tx, to.ID, line.CheckInAt, line.CheckOutAt, line.ID); err != nil {
		return nil, err
	}
	var from *model.Room
	if line.RoomID != nil {
		if from, err = tx.Rooms().FindRoom(ctx, *line.RoomID); err != nil {
			return nil, err
		}
	}
	if _, err := swapInPlace(ctx, tx, res, line, from, to, req.Reason, req.ActorID, at); err != nil {
		return nil, err
	}
	return []model.ReservationRoom{*line}, nil
}
