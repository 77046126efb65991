package service

import (
	"context"
	"time"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// UnitOfWork runs fn inside one atomic database transaction.  Every store
// reached through tx reads from and writes to that transaction; when fn
// returns an error nothing is committed.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of stores bound to one unit of work.
type Tx interface {
	Reservations() ReservationStore
	Assignments() AssignmentStore
	Rooms() RoomRegistry
	Folios() FolioStore
	Audit() AuditLogger
}

// ReservationStore persists reservations.
type ReservationStore interface {
	// Get loads and locks the reservation for the rest of the unit.
	Get(ctx context.Context, id uint64) (*model.Reservation, error)
	Create(ctx context.Context, r *model.Reservation) error
	Update(ctx context.Context, r *model.Reservation) error
}

// AssignmentStore persists reservation room lines.
type AssignmentStore interface {
	// Get reads a line without locking it; lock through the reservation.
	Get(ctx context.Context, id uint64) (*model.ReservationRoom, error)
	ListByReservation(ctx context.Context, reservationID uint64) ([]model.ReservationRoom, error)
	Create(ctx context.Context, a *model.ReservationRoom) error
	Update(ctx context.Context, a *model.ReservationRoom) error
	// Overlapping returns the active lines booked on roomID whose stay
	// intersects [from, to), leaving out the ids in exclude.
	Overlapping(ctx context.Context, roomID uint64, from, to time.Time, exclude ...uint64) ([]model.ReservationRoom, error)
}

// RoomRegistry is the boundary to the physical room records.
type RoomRegistry interface {
	FindRoom(ctx context.Context, id uint64) (*model.Room, error)
	SaveRoomStatus(ctx context.Context, id uint64, status model.RoomStatus, housekeeping model.HousekeepingStatus) error
}

// FolioStore persists folios and their transactions.
type FolioStore interface {
	Get(ctx context.Context, id uint64) (*model.Folio, error)
	// ListByReservation returns the reservation's folios with their
	// transactions loaded.
	ListByReservation(ctx context.Context, reservationID uint64) ([]model.Folio, error)
	Create(ctx context.Context, f *model.Folio) error
	Update(ctx context.Context, f *model.Folio) error

	ListTransactions(ctx context.Context, folioID uint64) ([]model.FolioTransaction, error)
	GetTransaction(ctx context.Context, id uint64) (*model.FolioTransaction, error)
	CreateTransaction(ctx context.Context, t *model.FolioTransaction) error
	UpdateTransaction(ctx context.Context, t *model.FolioTransaction) error
	DeleteTransactions(ctx context.Context, ids []uint64) error
}

// AuditLogger writes audit records inside the caller's unit of work.
type AuditLogger interface {
	Log(ctx context.Context, entry model.AuditEntry) error
}

// NotificationRequest is what the notification boundary sends once the
// variables for its template are built.
type NotificationRequest struct {
	TemplateCode      string         `json:"template_code"`
	RecipientType     string         `json:"recipient_type"`
	RecipientID       uint64         `json:"recipient_id"`
	Variables         map[string]any `json:"variables"`
	RelatedEntityType string         `json:"related_entity_type"`
	RelatedEntityID   uint64         `json:"related_entity_id"`
	ActorID           uint64         `json:"actor_id"`
	HotelID           uint64         `json:"hotel_id"`
}

// NotificationDispatcher renders and delivers guest notifications.  It is
// only ever invoked after commit.
type NotificationDispatcher interface {
	BuildVariables(ctx context.Context, templateCode string, vars map[string]any) (map[string]any, error)
	SendWithTemplate(ctx context.Context, req NotificationRequest) error
}

// GuestSummaryRecomputer refreshes derived per-guest statistics.
type GuestSummaryRecomputer interface {
	RecomputeFromReservation(ctx context.Context, reservationID uint64) error
}
