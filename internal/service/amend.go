package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jinzhu/now"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

const TemplateReservationAmended = "reservation_amended"

// AmendStayRequest changes the dates or room type of the selected lines, or
// of every line when none are selected.  Dates keep the time of day of the
// line's current check-in and check-out.
type AmendStayRequest struct {
	ReservationID uint64     `json:"-" validate:"required"`
	AssignmentIDs []uint64   `json:"assignment_ids" validate:"dive,required"`
	NewArrival    *time.Time `json:"new_arrival"`
	NewDeparture  *time.Time `json:"new_departure"`
	NewRoomTypeID *uint64    `json:"new_room_type_id" validate:"omitempty,gt=0"`
	Reason        string     `json:"reason" validate:"required,max=255"`
	ActorID       uint64     `json:"-" validate:"required"`
}

// RepostSummary reports what RetractAndRepostRoomCharges did.
type RepostSummary struct {
	Retracted []uint64 `json:"retracted"`
	Posted    int      `json:"posted"`
}

// AmendStay applies new stay bounds to the selected lines, reprices them at
// their existing nightly rate and rebuilds the room charges of the
// reservation's open folios.
func (s *ReservationService) AmendStay(ctx context.Context, req AmendStayRequest) (*ReservationResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if req.NewArrival == nil && req.NewDeparture == nil && req.NewRoomTypeID == nil {
		return nil, model.Validation("nothing to amend", nil)
	}
	at := s.now()

	var out *ReservationResult
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		res, lines, err := loadReservation(ctx, tx, req.ReservationID)
		if err != nil {
			return err
		}
		if !res.Status.In(amendable...) {
			return model.InvalidState("amend stay", res.Status, model.ReservationPending, model.ReservationConfirmed, model.ReservationCheckedIn)
		}
		targets, err := pick(res.ID, lines, req.AssignmentIDs, func(l *model.ReservationRoom) bool {
			return l.Status.In(model.AssignmentReserved, model.AssignmentCheckedIn)
		})
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			return model.Validation("no rooms to amend", nil)
		}

		type change struct {
			in, out time.Time
		}
		changes := make([]change, len(targets))
		for i, l := range targets {
			if !l.Status.In(model.AssignmentReserved, model.AssignmentCheckedIn) {
				e := model.InvalidState("amend stay", l.Status, model.AssignmentReserved, model.AssignmentCheckedIn)
				e.Details["assignment_id"] = l.ID
				return e
			}
			arrive, depart := l.CheckInAt, l.CheckOutAt
			if req.NewArrival != nil {
				arrive = model.AtDate(req.NewArrival.In(s.loc), l.CheckInAt)
				if l.Status == model.AssignmentCheckedIn && !model.SameDay(arrive, l.CheckInAt) {
					return model.Validation("arrival cannot change after check-in", map[string]any{"assignment_id": l.ID})
				}
			}
			if req.NewDeparture != nil {
				depart = model.AtDate(req.NewDeparture.In(s.loc), l.CheckOutAt)
			}
			if !depart.After(arrive) {
				return model.Validation("departure must be after arrival", map[string]any{
					"assignment_id": l.ID,
					"check_in_at":   arrive,
					"check_out_at":  depart,
				})
			}
			if l.RoomID != nil {
				if err := ensureRoomFree(ctx, tx, *l.RoomID, arrive, depart, l.ID); err != nil {
					return err
				}
				if req.NewRoomTypeID != nil {
					room, err := tx.Rooms().FindRoom(ctx, *l.RoomID)
					if err != nil {
						return err
					}
					if room.RoomTypeID != *req.NewRoomTypeID {
						return model.Validation("assigned room does not match the new room type", map[string]any{
							"assignment_id": l.ID,
							"room_id":       room.ID,
						})
					}
				}
			}
			changes[i] = change{in: arrive, out: depart}
		}

		before := make(map[uint64]int, len(targets))
		for i, l := range targets {
			before[l.ID] = l.Nights
			l.CheckInAt, l.CheckOutAt = changes[i].in, changes[i].out
			l.Nights = model.NightsBetween(l.CheckInAt, l.CheckOutAt)
			if req.NewRoomTypeID != nil {
				l.RoomTypeID = *req.NewRoomTypeID
			}
			l.UpdatedAt = at
			l.Reprice()
			if err := tx.Assignments().Update(ctx, l); err != nil {
				return fmt.Errorf("update room line: %w", err)
			}
		}
		stayBounds(res, lines)
		recalcTotals(res, lines)

		repost, err := RetractAndRepostRoomCharges(ctx, tx, res, lines, req.ActorID, at)
		if err != nil {
			return err
		}
		if err := settle(ctx, tx, res, lines, req.ActorID, at); err != nil {
			return err
		}
		if err := audit(ctx, tx, res, req.ActorID, "reservation.amend_stay", req.Reason, map[string]any{
			"assignment_ids": ids(targets),
			"nights_before":  before,
			"arrival":        res.ArrivalDate.Format("2006-01-02"),
			"departure":      res.DepartureDate.Format("2006-01-02"),
			"retracted":      len(repost.Retracted),
			"reposted":       repost.Posted,
			"new_room_type":  req.NewRoomTypeID,
		}); err != nil {
			return err
		}
		notifyGuest(fx, res, TemplateReservationAmended, req.ActorID, map[string]any{"nights": res.NumberOfNights})
		fx.RefreshGuestSummary(res.ID)
		out, err = snapshot(ctx, tx, res, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// stayBounds recomputes the reservation's dates from its active lines.
func stayBounds(res *model.Reservation, lines []model.ReservationRoom) {
	var first, last time.Time
	for i := range lines {
		l := &lines[i]
		if !l.Status.Active() || l.Status == model.AssignmentNoShow {
			continue
		}
		if first.IsZero() || l.CheckInAt.Before(first) {
			first = l.CheckInAt
		}
		if last.IsZero() || l.CheckOutAt.After(last) {
			last = l.CheckOutAt
		}
	}
	if first.IsZero() {
		return
	}
	res.CheckInAt, res.CheckOutAt = first, last
	res.ArrivalDate = now.With(first).BeginningOfDay()
	res.DepartureDate = now.With(last).BeginningOfDay()
	res.NumberOfNights = model.NightsBetween(res.ArrivalDate, res.DepartureDate)
}

// RetractAndRepostRoomCharges deletes every posted room charge on the
// reservation's open folios, then posts one
// charge per night for each line still taking part in the stay.  This is
// the only path that removes ledger rows; voided and cancelled charges are
// kept.  A reservation without an open folio has nothing to rebuild.
func RetractAndRepostRoomCharges(ctx context.Context, tx Tx, res *model.Reservation, lines []model.ReservationRoom, actorID uint64, at time.Time) (RepostSummary, error) {
	var sum RepostSummary
	folios, err := tx.Folios().ListByReservation(ctx, res.ID)
	if err != nil {
		return sum, err
	}
	fs := newFolioSet(folios)
	open := fs.open()
	if len(open) == 0 {
		return sum, nil
	}

	for _, f := range open {
		for _, t := range f.Transactions {
			if t.IsRoomCharge() && t.Status == model.TxnPosted {
				sum.Retracted = append(sum.Retracted, t.ID)
			}
		}
	}
	if len(sum.Retracted) > 0 {
		if err := tx.Folios().DeleteTransactions(ctx, sum.Retracted); err != nil {
			return sum, fmt.Errorf("retract room charges: %w", err)
		}
	}
	for _, f := range open {
		if err := updateFolioTotals(ctx, tx, f); err != nil {
			return sum, err
		}
	}

	for i := range lines {
		l := &lines[i]
		if !l.Status.In(model.AssignmentReserved, model.AssignmentCheckedIn, model.AssignmentCheckedOut) {
			continue
		}
		f, err := fs.forLine(ctx, tx, res, l, actorID, at)
		if err != nil {
			return sum, err
		}
		if err := postRoomCharges(ctx, tx, f, l, actorID, at); err != nil {
			return sum, err
		}
		sum.Posted += l.BillableUnits()
	}

	if err := tx.Audit().Log(ctx, model.AuditEntry{
		ActorID:     actorID,
		Action:      "folio.retract_repost",
		EntityType:  "reservation",
		EntityID:    res.ID,
		HotelID:     res.HotelID,
		Description: "Room charges retracted and reposted",
		Meta:        map[string]any{"retracted_ids": sum.Retracted, "posted": sum.Posted},
	}); err != nil {
		return sum, err
	}
	return sum, nil
}
