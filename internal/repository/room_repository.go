package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// RoomRepo is the room registry.  The core only reads rooms and writes
// their occupancy and housekeeping status.
type RoomRepo struct {
	db *sqlx.DB
}

func NewRoomRepo(db *sqlx.DB) *RoomRepo { return &RoomRepo{db: db} }

const roomColumns = `id, hotel_id, room_number, room_type_id, status, housekeeping_status`

// FindForUpdateTx loads a room and locks it for the rest of the unit.
func (r *RoomRepo) FindForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uint64) (*model.Room, error) {
	var room model.Room
	if err := tx.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms WHERE id = ? FOR UPDATE`, id); err != nil {
		return nil, mapErr(err, "room", id)
	}
	return &room, nil
}

func (r *RoomRepo) SaveStatusTx(ctx context.Context, tx *sqlx.Tx, id uint64, status model.RoomStatus, hk model.HousekeepingStatus) error {
	result, err := tx.ExecContext(ctx, `UPDATE rooms SET status = ?, housekeeping_status = ? WHERE id = ?`, status, hk, id)
	if err != nil {
		return mapErr(err, "room", id)
	}
	return expectRow(result, "room", id)
}

// ListByHotel returns the rooms of a hotel ordered by number.
func (r *RoomRepo) ListByHotel(ctx context.Context, hotelID uint64) ([]model.Room, error) {
	out := []model.Room{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+roomColumns+` FROM rooms WHERE hotel_id = ? ORDER BY room_number`, hotelID)
	return out, err
}

type txRooms struct {
	repo *RoomRepo
	tx   *sqlx.Tx
}

func (s txRooms) FindRoom(ctx context.Context, id uint64) (*model.Room, error) {
	return s.repo.FindForUpdateTx(ctx, s.tx, id)
}

func (s txRooms) SaveRoomStatus(ctx context.Context, id uint64, status model.RoomStatus, hk model.HousekeepingStatus) error {
	return s.repo.SaveStatusTx(ctx, s.tx, id, status, hk)
}
