package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/hotel-pms-core/internal/service"
)

// maxAttempts bounds how often a unit that hit a deadlock is re-run.
const maxAttempts = 3

// Store implements service.UnitOfWork on top of MySQL.
type Store struct {
	db     *sqlx.DB
	logger echo.Logger

	reservations *ReservationRepo
	assignments  *AssignmentRepo
	rooms        *RoomRepo
	folios       *FolioRepo
	audit        *AuditRepo
}

func NewStore(db *sqlx.DB, logger echo.Logger) *Store {
	return &Store{
		db:           db,
		logger:       logger,
		reservations: NewReservationRepo(db),
		assignments:  NewAssignmentRepo(db),
		rooms:        NewRoomRepo(db),
		folios:       NewFolioRepo(db),
		audit:        NewAuditRepo(db),
	}
}

// Do runs fn in one transaction.  A unit that fails with a deadlock or a
// lock wait timeout is rolled back and run again from the start.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx service.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.do(ctx, fn)
		if err == nil || !retryable(err) || ctx.Err() != nil {
			return err
		}
		if s.logger != nil {
			s.logger.Warnj(log.JSON{"event": "unit_retry", "attempt": attempt, "error": err.Error()})
		}
	}
	return err
}

func (s *Store) do(ctx context.Context, fn func(ctx context.Context, tx service.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	unit := &sqlTx{s: s, tx: tx, correlation: uuid.New()}
	if err := fn(ctx, unit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr(fmt.Errorf("commit: %w", err), "", 0)
	}
	committed = true
	return nil
}

// sqlTx binds the repositories to one open transaction.
type sqlTx struct {
	s           *Store
	tx          *sqlx.Tx
	correlation uuid.UUID
}

func (t *sqlTx) Reservations() service.ReservationStore {
	return txReservations{repo: t.s.reservations, tx: t.tx}
}

func (t *sqlTx) Assignments() service.AssignmentStore {
	return txAssignments{repo: t.s.assignments, tx: t.tx}
}

func (t *sqlTx) Rooms() service.RoomRegistry {
	return txRooms{repo: t.s.rooms, tx: t.tx}
}

func (t *sqlTx) Folios() service.FolioStore {
	return txFolios{repo: t.s.folios, tx: t.tx}
}

func (t *sqlTx) Audit() service.AuditLogger {
	return txAudit{repo: t.s.audit, tx: t.tx, correlation: t.correlation}
}
