package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// Guest is the slice of the guest profile the core reads to address
// notifications.
type Guest struct {
	ID        uint64  `db:"id" json:"id"`
	HotelID   uint64  `db:"hotel_id" json:"hotel_id"`
	FirstName string  `db:"first_name" json:"first_name"`
	LastName  string  `db:"last_name" json:"last_name"`
	Email     *string `db:"email" json:"email,omitempty"`
	Phone     *string `db:"phone" json:"phone,omitempty"`
}

// FullName joins first and last name.
func (g *Guest) FullName() string {
	if g.LastName == "" {
		return g.FirstName
	}
	return g.FirstName + " " + g.LastName
}

// GuestRepo reads guests and maintains the derived guest_summaries table.
// Summaries are cached in Redis when a client is configured.
type GuestRepo struct {
	db  *sqlx.DB
	rdb *redis.Client
	ttl time.Duration
}

func NewGuestRepo(db *sqlx.DB, rdb *redis.Client, ttl time.Duration) *GuestRepo {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &GuestRepo{db: db, rdb: rdb, ttl: ttl}
}

func (r *GuestRepo) FindByID(ctx context.Context, id uint64) (*Guest, error) {
	var g Guest
	const q = `SELECT id, hotel_id, first_name, last_name, email, phone FROM guests WHERE id = ?`
	if err := r.db.GetContext(ctx, &g, q, id); err != nil {
		return nil, mapErr(err, "guest", id)
	}
	return &g, nil
}

func summaryKey(guestID uint64) string {
	return "guest_summary:" + strconv.FormatUint(guestID, 10)
}

// Summary returns the stored summary of a guest, from Redis when cached.
func (r *GuestRepo) Summary(ctx context.Context, guestID uint64) (*model.GuestSummary, error) {
	if r.rdb != nil {
		if bs, err := r.rdb.Get(ctx, summaryKey(guestID)).Bytes(); err == nil {
			var s model.GuestSummary
			if json.Unmarshal(bs, &s) == nil {
				return &s, nil
			}
		}
	}
	var s model.GuestSummary
	const q = `SELECT guest_id, total_stays, total_nights, cancellations, no_shows,
		total_spent, last_departure_at, updated_at
		FROM guest_summaries WHERE guest_id = ?`
	if err := r.db.GetContext(ctx, &s, q, guestID); err != nil {
		return nil, mapErr(err, "guest summary", guestID)
	}
	r.cache(ctx, &s)
	return &s, nil
}

func (r *GuestRepo) cache(ctx context.Context, s *model.GuestSummary) {
	if r.rdb == nil {
		return
	}
	if bs, err := json.Marshal(s); err == nil {
		_ = r.rdb.SetEx(ctx, summaryKey(s.GuestID), bs, r.ttl).Err()
	}
}

// RecomputeFromReservation rebuilds the summary of the guest who owns the
// reservation.
func (r *GuestRepo) RecomputeFromReservation(ctx context.Context, reservationID uint64) error {
	var guestID uint64
	if err := r.db.GetContext(ctx, &guestID, `SELECT guest_id FROM reservations WHERE id = ?`, reservationID); err != nil {
		return mapErr(err, "reservation", reservationID)
	}
	_, err := r.Recompute(ctx, guestID)
	return err
}

// Recompute derives a guest's statistics from their reservations and
// folios and upserts them.
func (r *GuestRepo) Recompute(ctx context.Context, guestID uint64) (*model.GuestSummary, error) {
	s := model.GuestSummary{GuestID: guestID, UpdatedAt: time.Now().UTC()}
	const statsQ = `SELECT
		COUNT(CASE WHEN status IN ('checked_in','checked_out','completed') THEN 1 END) AS total_stays,
		COALESCE(SUM(CASE WHEN status IN ('checked_out','completed') THEN number_of_nights END), 0) AS total_nights,
		COUNT(CASE WHEN status = 'cancelled' THEN 1 END) AS cancellations,
		COUNT(CASE WHEN status = 'no_show' THEN 1 END) AS no_shows,
		MAX(CASE WHEN status IN ('checked_out','completed') THEN check_out_at END) AS last_departure_at
		FROM reservations WHERE guest_id = ?`
	if err := r.db.QueryRowxContext(ctx, statsQ, guestID).StructScan(&s); err != nil {
		return nil, fmt.Errorf("aggregate reservations: %w", err)
	}
	const spentQ = `SELECT COALESCE(SUM(f.total_payments), 0)
		FROM folios f JOIN reservations r ON r.id = f.reservation_id
		WHERE r.guest_id = ? AND f.status <> 'voided'`
	if err := r.db.GetContext(ctx, &s.TotalSpent, spentQ, guestID); err != nil {
		return nil, fmt.Errorf("aggregate payments: %w", err)
	}

	const upsert = `INSERT INTO guest_summaries
		(guest_id, total_stays, total_nights, cancellations, no_shows, total_spent, last_departure_at, updated_at)
		VALUES (:guest_id, :total_stays, :total_nights, :cancellations, :no_shows, :total_spent, :last_departure_at, :updated_at)
		ON DUPLICATE KEY UPDATE
		total_stays = VALUES(total_stays), total_nights = VALUES(total_nights),
		cancellations = VALUES(cancellations), no_shows = VALUES(no_shows),
		total_spent = VALUES(total_spent), last_departure_at = VALUES(last_departure_at),
		updated_at = VALUES(updated_at)`
	if _, err := r.db.NamedExecContext(ctx, upsert, &s); err != nil {
		return nil, fmt.Errorf("upsert guest summary: %w", err)
	}
	r.cache(ctx, &s)
	return &s, nil
}
