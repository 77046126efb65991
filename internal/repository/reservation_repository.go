package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// ReservationRepo persists the reservations table.  Reservations are never
// deleted; terminal bookings keep their row and status.
type ReservationRepo struct {
	db *sqlx.DB
}

func NewReservationRepo(db *sqlx.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, hotel_id, guest_id, status, arrival_date, departure_date,
	check_in_at, check_out_at, number_of_nights, currency,
	total_amount, final_amount, paid_amount, remaining_amount,
	cancellation_reason, cancellation_fee, cancelled_at, cancelled_by,
	no_show_reason, no_show_fee, no_show_at, no_show_by,
	void_reason, voided_at, voided_by,
	created_by, modified_by, created_at, updated_at`

// GetForUpdateTx loads a reservation and locks its row until the
// transaction ends.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uint64) (*model.Reservation, error) {
	var res model.Reservation
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ? FOR UPDATE`
	if err := tx.GetContext(ctx, &res, q, id); err != nil {
		return nil, mapErr(err, "reservation", id)
	}
	return &res, nil
}

// CreateTx inserts res and sets its generated ID.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations (
		hotel_id, guest_id, status, arrival_date, departure_date,
		check_in_at, check_out_at, number_of_nights, currency,
		total_amount, final_amount, paid_amount, remaining_amount,
		cancellation_reason, cancellation_fee, cancelled_at, cancelled_by,
		no_show_reason, no_show_fee, no_show_at, no_show_by,
		void_reason, voided_at, voided_by,
		created_by, modified_by, created_at, updated_at
	) VALUES (
		:hotel_id, :guest_id, :status, :arrival_date, :departure_date,
		:check_in_at, :check_out_at, :number_of_nights, :currency,
		:total_amount, :final_amount, :paid_amount, :remaining_amount,
		:cancellation_reason, :cancellation_fee, :cancelled_at, :cancelled_by,
		:no_show_reason, :no_show_fee, :no_show_at, :no_show_by,
		:void_reason, :voided_at, :voided_by,
		:created_by, :modified_by, :created_at, :updated_at
	)`
	result, err := tx.NamedExecContext(ctx, q, res)
	if err != nil {
		return mapErr(err, "reservation", 0)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// UpdateTx writes every mutable column of res.
func (r *ReservationRepo) UpdateTx(ctx context.Context, tx *sqlx.Tx, res *model.Reservation) error {
	const q = `UPDATE reservations SET
		status = :status, arrival_date = :arrival_date, departure_date = :departure_date,
		check_in_at = :check_in_at, check_out_at = :check_out_at,
		number_of_nights = :number_of_nights,
		total_amount = :total_amount, final_amount = :final_amount,
		paid_amount = :paid_amount, remaining_amount = :remaining_amount,
		cancellation_reason = :cancellation_reason, cancellation_fee = :cancellation_fee,
		cancelled_at = :cancelled_at, cancelled_by = :cancelled_by,
		no_show_reason = :no_show_reason, no_show_fee = :no_show_fee,
		no_show_at = :no_show_at, no_show_by = :no_show_by,
		void_reason = :void_reason, voided_at = :voided_at, voided_by = :voided_by,
		modified_by = :modified_by, updated_at = :updated_at
	WHERE id = :id`
	result, err := tx.NamedExecContext(ctx, q, res)
	if err != nil {
		return mapErr(err, "reservation", res.ID)
	}
	return expectRow(result, "reservation", res.ID)
}

// ListByGuest returns the guest's reservations, newest arrival first.
func (r *ReservationRepo) ListByGuest(ctx context.Context, guestID uint64) ([]model.Reservation, error) {
	out := []model.Reservation{}
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE guest_id = ? ORDER BY arrival_date DESC, id DESC`
	if err := r.db.SelectContext(ctx, &out, q, guestID); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

type txReservations struct {
	repo *ReservationRepo
	tx   *sqlx.Tx
}

func (s txReservations) Get(ctx context.Context, id uint64) (*model.Reservation, error) {
	return s.repo.GetForUpdateTx(ctx, s.tx, id)
}

func (s txReservations) Create(ctx context.Context, res *model.Reservation) error {
	return s.repo.CreateTx(ctx, s.tx, res)
}

func (s txReservations) Update(ctx context.Context, res *model.Reservation) error {
	return s.repo.UpdateTx(ctx, s.tx, res)
}
