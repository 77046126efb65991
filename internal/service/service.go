// Package service holds the reservation lifecycle, room assignment, stay
// amendment and folio operations.  Every public method runs inside one unit
// of work through the Orchestrator and reads the clock once at entry.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// Options configures a ReservationService.
type Options struct {
	// Location is the hotel timezone used for calendar-day comparisons.
	Location *time.Location
	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger echo.Logger
}

// ReservationService is the produced interface of the core.
type ReservationService struct {
	orch   *Orchestrator
	loc    *time.Location
	clock  func() time.Time
	logger echo.Logger
}

func NewReservationService(orch *Orchestrator, opts Options) *ReservationService {
	s := &ReservationService{orch: orch, loc: opts.Location, clock: opts.Clock, logger: opts.Logger}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// now is read once per operation.
func (s *ReservationService) now() time.Time {
	return s.clock().In(s.loc)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRequest checks the struct tags of an operation request and
// converts failures into a validation error listing field → rule.
func ValidateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.Validation(err.Error(), nil)
	}
	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return model.Validation("invalid request", map[string]any{"fields": fields})
}

// loadReservation reads and locks the reservation with all of its lines.
func loadReservation(ctx context.Context, tx Tx, id uint64) (*model.Reservation, []model.ReservationRoom, error) {
	res, err := tx.Reservations().Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	lines, err := tx.Assignments().ListByReservation(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load room lines: %w", err)
	}
	return res, lines, nil
}

// pick returns pointers into lines for the requested ids.  An empty
// selection returns every line accepted by keep.
func pick(reservationID uint64, lines []model.ReservationRoom, ids []uint64, keep func(*model.ReservationRoom) bool) ([]*model.ReservationRoom, error) {
	var out []*model.ReservationRoom
	if len(ids) == 0 {
		for i := range lines {
			if keep == nil || keep(&lines[i]) {
				out = append(out, &lines[i])
			}
		}
		return out, nil
	}
	byID := make(map[uint64]*model.ReservationRoom, len(lines))
	for i := range lines {
		byID[lines[i].ID] = &lines[i]
	}
	seen := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		l, ok := byID[id]
		if !ok {
			nf := model.NotFound("reservation room", id)
			nf.Details["reservation_id"] = reservationID
			return nil, nf
		}
		out = append(out, l)
	}
	return out, nil
}

// settle recomputes the aggregate status and stores the reservation.
func settle(ctx context.Context, tx Tx, res *model.Reservation, lines []model.ReservationRoom, actorID uint64, at time.Time) error {
	res.Status = model.DeriveReservationStatus(res.Status, lines)
	res.ModifiedBy = actorID
	res.UpdatedAt = at
	if err := tx.Reservations().Update(ctx, res); err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	return nil
}

// audit writes one entry for the reservation and one for its guest.
func audit(ctx context.Context, tx Tx, res *model.Reservation, actorID uint64, action, description string, meta map[string]any) error {
	if err := tx.Audit().Log(ctx, model.AuditEntry{
		ActorID:     actorID,
		Action:      action,
		EntityType:  "reservation",
		EntityID:    res.ID,
		HotelID:     res.HotelID,
		Description: description,
		Meta:        meta,
	}); err != nil {
		return fmt.Errorf("audit reservation: %w", err)
	}
	if res.GuestID == 0 {
		return nil
	}
	if err := tx.Audit().Log(ctx, model.AuditEntry{
		ActorID:     actorID,
		Action:      action,
		EntityType:  "guest",
		EntityID:    res.GuestID,
		HotelID:     res.HotelID,
		Description: description,
		Meta:        map[string]any{"reservation_id": res.ID},
	}); err != nil {
		return fmt.Errorf("audit guest: %w", err)
	}
	return nil
}

func notifyGuest(fx *Effects, res *model.Reservation, template string, actorID uint64, extra map[string]any) {
	if res.GuestID == 0 {
		return
	}
	ctx := map[string]any{
		"reservation_id": res.ID,
		"status":         string(res.Status),
		"arrival_date":   res.ArrivalDate.Format("2006-01-02"),
		"departure_date": res.DepartureDate.Format("2006-01-02"),
	}
	for k, v := range extra {
		ctx[k] = v
	}
	fx.Notify(NotificationEffect{
		TemplateCode:      template,
		RecipientType:     "guest",
		RecipientID:       res.GuestID,
		Context:           ctx,
		RelatedEntityType: "reservation",
		RelatedEntityID:   res.ID,
		ActorID:           actorID,
		HotelID:           res.HotelID,
	})
}

func ids(lines []*model.ReservationRoom) []uint64 {
	out := make([]uint64, len(lines))
	for i, l := range lines {
		out[i] = l.ID
	}
	return out
}

func ptr[T any](v T) *T { return &v }
