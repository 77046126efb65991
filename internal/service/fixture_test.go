package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/hotel-pms-core/internal/ledger"
	"github.com/iliyamo/hotel-pms-core/internal/model"
)

const actor = uint64(7)

type fixture struct {
	db  *memStore
	rec *recorder
	clk *clock
	svc *ReservationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newMemStore()
	rec := &recorder{}
	clk := &clock{t: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)}
	svc := NewReservationService(NewOrchestrator(db, rec), Options{Location: time.UTC, Clock: clk.now})
	return &fixture{db: db, rec: rec, clk: clk, svc: svc}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(d int, hour int) time.Time {
	return time.Date(2026, 3, d, hour, 0, 0, 0, time.UTC)
}

// stay describes a seeded booking.
type stay struct {
	status    model.ReservationStatus
	lineState model.AssignmentStatus
	rooms     int
	arrival   int // day of March 2026
	nights    int
	noRoom    bool
}

type booking struct {
	res   model.Reservation
	lines []model.ReservationRoom
	rooms []model.Room
}

// book seeds a reservation whose lines check in at 15:00 and out at 11:00
// at a rate of 100 plus 10% tax per night.
func (f *fixture) book(s stay) booking {
	if s.status == "" {
		s.status = model.ReservationConfirmed
	}
	if s.lineState == "" {
		s.lineState = model.AssignmentReserved
	}
	if s.rooms == 0 {
		s.rooms = 1
	}
	if s.arrival == 0 {
		s.arrival = 10
	}
	if s.nights == 0 {
		s.nights = 2
	}
	in, out := day(s.arrival, 15), day(s.arrival+s.nights, 11)
	res := f.db.addReservation(model.Reservation{
		HotelID:        1,
		GuestID:        55,
		Status:         s.status,
		ArrivalDate:    day(s.arrival, 0),
		DepartureDate:  day(s.arrival+s.nights, 0),
		CheckInAt:      in,
		CheckOutAt:     out,
		NumberOfNights: s.nights,
		Currency:       "EUR",
	})
	b := booking{res: res}
	for i := 0; i < s.rooms; i++ {
		room := f.db.addRoom(model.Room{HotelID: 1, RoomNumber: string(rune('A'+i)) + "10", RoomTypeID: 3})
		line := model.ReservationRoom{
			ReservationID: res.ID,
			RoomTypeID:    3,
			Status:        s.lineState,
			CheckInAt:     in,
			CheckOutAt:    out,
			Nights:        s.nights,
			RateAmount:    dec("100"),
			TaxRate:       dec("0.10"),
			Adults:        2,
			IsOwner:       i == 0,
		}
		if !s.noRoom {
			line.RoomID = ptr(room.ID)
		}
		if s.lineState == model.AssignmentCheckedIn {
			line.CheckedInAt = ptr(in)
			room.Status = model.RoomOccupied
			f.db.state.rooms[room.ID] = room
		}
		b.lines = append(b.lines, f.db.addLine(line))
		b.rooms = append(b.rooms, room)
	}
	return b
}

func (f *fixture) openFolio(reservationID uint64) model.Folio {
	return f.db.addFolio(model.Folio{
		HotelID:        1,
		ReservationID:  reservationID,
		GuestID:        ptr(uint64(55)),
		Status:         model.FolioOpen,
		WorkflowStatus: model.WorkflowActive,
		Currency:       "EUR",
		OpenedAt:       day(1, 9),
	})
}

func (f *fixture) post(folio model.Folio, typ model.TransactionType, amount, tax string) model.FolioTransaction {
	return f.db.addTxn(model.FolioTransaction{
		FolioID:         folio.ID,
		ReservationID:   folio.ReservationID,
		Type:            typ,
		Category:        defaultCategory(typ),
		Amount:          dec(amount),
		TaxAmount:       dec(tax),
		PostingDate:     day(9, 10),
		ServiceDate:     day(9, 10),
		TransactionDate: day(9, 10),
	})
}

// balance recomputes a folio's balance from the stored ledger.
func (f *fixture) balance(folioID uint64) ledger.Summary {
	return ledger.Aggregate(f.db.txnsOf(folioID))
}

func effectsOf[T Effect](effects []Effect) []T {
	var out []T
	for _, e := range effects {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
