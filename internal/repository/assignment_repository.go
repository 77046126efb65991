package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// AssignmentRepo persists reservation_rooms, the room lines of a
// reservation.
type AssignmentRepo struct {
	db *sqlx.DB
}

func NewAssignmentRepo(db *sqlx.DB) *AssignmentRepo { return &AssignmentRepo{db: db} }

const assignmentColumns = `id, reservation_id, room_id, room_type_id, status,
	check_in_at, check_out_at, checked_in_at, checked_out_at, nights,
	rate_amount, tax_rate, total_room_charges, total_taxes_amount, net_amount,
	adults, children, is_owner, stop_move, is_split_origin, is_split_destination,
	split_from_id, notes, created_at, updated_at`

const (
	lineByIDQuery           = `SELECT ` + assignmentColumns + ` FROM reservation_rooms WHERE id = ?`
	linesByReservationQuery = `SELECT ` + assignmentColumns + ` FROM reservation_rooms WHERE reservation_id = ? ORDER BY id FOR UPDATE`
)

// GetTx reads a line without locking it.  Callers lock the owning
// reservation and then its lines, in that order.
func (r *AssignmentRepo) GetTx(ctx context.Context, tx *sqlx.Tx, id uint64) (*model.ReservationRoom, error) {
	var a model.ReservationRoom
	if err := tx.GetContext(ctx, &a, lineByIDQuery, id); err != nil {
		return nil, mapErr(err, "reservation room", id)
	}
	return &a, nil
}

// ListByReservationTx returns the lines of a reservation in id order,
// locking them.
func (r *AssignmentRepo) ListByReservationTx(ctx context.Context, tx *sqlx.Tx, reservationID uint64) ([]model.ReservationRoom, error) {
	out := []model.ReservationRoom{}
	if err := tx.SelectContext(ctx, &out, linesByReservationQuery, reservationID); err != nil {
		return nil, mapErr(err, "reservation room", 0)
	}
	return out, nil
}

func (r *AssignmentRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, a *model.ReservationRoom) error {
	const q = `INSERT INTO reservation_rooms (
		reservation_id, room_id, room_type_id, status,
		check_in_at, check_out_at, checked_in_at, checked_out_at, nights,
		rate_amount, tax_rate, total_room_charges, total_taxes_amount, net_amount,
		adults, children, is_owner, stop_move, is_split_origin, is_split_destination,
		split_from_id, notes, created_at, updated_at
	) VALUES (
		:reservation_id, :room_id, :room_type_id, :status,
		:check_in_at, :check_out_at, :checked_in_at, :checked_out_at, :nights,
		:rate_amount, :tax_rate, :total_room_charges, :total_taxes_amount, :net_amount,
		:adults, :children, :is_owner, :stop_move, :is_split_origin, :is_split_destination,
		:split_from_id, :notes, :created_at, :updated_at
	)`
	result, err := tx.NamedExecContext(ctx, q, a)
	if err != nil {
		return mapErr(err, "reservation room", 0)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

func (r *AssignmentRepo) UpdateTx(ctx context.Context, tx *sqlx.Tx, a *model.ReservationRoom) error {
	const q = `UPDATE reservation_rooms SET
		room_id = :room_id, room_type_id = :room_type_id, status = :status,
		check_in_at = :check_in_at, check_out_at = :check_out_at,
		checked_in_at = :checked_in_at, checked_out_at = :checked_out_at, nights = :nights,
		rate_amount = :rate_amount, tax_rate = :tax_rate,
		total_room_charges = :total_room_charges, total_taxes_amount = :total_taxes_amount,
		net_amount = :net_amount, adults = :adults, children = :children,
		is_owner = :is_owner, stop_move = :stop_move,
		is_split_origin = :is_split_origin, is_split_destination = :is_split_destination,
		split_from_id = :split_from_id, notes = :notes, updated_at = :updated_at
	WHERE id = :id`
	result, err := tx.NamedExecContext(ctx, q, a)
	if err != nil {
		return mapErr(err, "reservation room", a.ID)
	}
	return expectRow(result, "reservation room", a.ID)
}

// OverlappingTx returns the reserved or checked-in lines on roomID whose
// stay intersects [from, to).  The matching rows are locked so two units
// cannot book the same room at once.
func (r *AssignmentRepo) OverlappingTx(ctx context.Context, tx *sqlx.Tx, roomID uint64, from, to time.Time, exclude []uint64) ([]model.ReservationRoom, error) {
	q := `SELECT ` + assignmentColumns + ` FROM reservation_rooms
		WHERE room_id = ? AND status IN (?, ?) AND check_in_at < ? AND check_out_at > ?`
	args := []any{roomID, model.AssignmentReserved, model.AssignmentCheckedIn, to, from}
	if len(exclude) > 0 {
		q += ` AND id NOT IN (?)`
		args = append(args, exclude)
	}
	q += ` ORDER BY id FOR UPDATE`
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, fmt.Errorf("build overlap query: %w", err)
	}
	out := []model.ReservationRoom{}
	if err := tx.SelectContext(ctx, &out, tx.Rebind(q), args...); err != nil {
		return nil, mapErr(err, "reservation room", 0)
	}
	return out, nil
}

type txAssignments struct {
	repo *AssignmentRepo
	tx   *sqlx.Tx
}

func (s txAssignments) Get(ctx context.Context, id uint64) (*model.ReservationRoom, error) {
	return s.repo.GetTx(ctx, s.tx, id)
}

func (s txAssignments) ListByReservation(ctx context.Context, reservationID uint64) ([]model.ReservationRoom, error) {
	return s.repo.ListByReservationTx(ctx, s.tx, reservationID)
}

func (s txAssignments) Create(ctx context.Context, a *model.ReservationRoom) error {
	return s.repo.CreateTx(ctx, s.tx, a)
}

func (s txAssignments) Update(ctx context.Context, a *model.ReservationRoom) error {
	return s.repo.UpdateTx(ctx, s.tx, a)
}

func (s txAssignments) Overlapping(ctx context.Context, roomID uint64, from, to time.Time, exclude ...uint64) ([]model.ReservationRoom, error) {
	return s.repo.OverlappingTx(ctx, s.tx, roomID, from, to, exclude)
}
