package model

import (
	"time"

	"github.com/jinzhu/now"
	"github.com/shopspring/decimal"
)

// Reservation is the aggregate booking.  A reservation owns zero or more
// room lines (ReservationRoom) and zero or more folios.  Reservations are
// never deleted: cancelled, voided and checked-out bookings stay in the
// table with their terminal status.
//
// Fields:
//
//	ArrivalDate / DepartureDate – date-only stay bounds.
//	CheckInAt / CheckOutAt      – scheduled times; same-day values with
//	                              hour precision describe a day-use stay.
//	NumberOfNights              – 0 exactly when the stay is day-use.
//	TotalAmount … RemainingAmount – monetary totals, already priced.
type Reservation struct {
	ID              uint64            `db:"id" json:"id"`
	HotelID         uint64            `db:"hotel_id" json:"hotel_id"`
	GuestID         uint64            `db:"guest_id" json:"guest_id"`
	Status          ReservationStatus `db:"status" json:"status"`
	ArrivalDate     time.Time         `db:"arrival_date" json:"arrival_date"`
	DepartureDate   time.Time         `db:"departure_date" json:"departure_date"`
	CheckInAt       time.Time         `db:"check_in_at" json:"check_in_at"`
	CheckOutAt      time.Time         `db:"check_out_at" json:"check_out_at"`
	NumberOfNights  int               `db:"number_of_nights" json:"number_of_nights"`
	Currency        string            `db:"currency" json:"currency"`
	TotalAmount     decimal.Decimal   `db:"total_amount" json:"total_amount"`
	FinalAmount     decimal.Decimal   `db:"final_amount" json:"final_amount"`
	PaidAmount      decimal.Decimal   `db:"paid_amount" json:"paid_amount"`
	RemainingAmount decimal.Decimal   `db:"remaining_amount" json:"remaining_amount"`

	CancellationReason *string         `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancellationFee    decimal.Decimal `db:"cancellation_fee" json:"cancellation_fee"`
	CancelledAt        *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy        *uint64         `db:"cancelled_by" json:"cancelled_by,omitempty"`
	NoShowReason       *string         `db:"no_show_reason" json:"no_show_reason,omitempty"`
	NoShowFee          decimal.Decimal `db:"no_show_fee" json:"no_show_fee"`
	NoShowAt           *time.Time      `db:"no_show_at" json:"no_show_at,omitempty"`
	NoShowBy           *uint64         `db:"no_show_by" json:"no_show_by,omitempty"`
	VoidReason         *string         `db:"void_reason" json:"void_reason,omitempty"`
	VoidedAt           *time.Time      `db:"voided_at" json:"voided_at,omitempty"`
	VoidedBy           *uint64         `db:"voided_by" json:"voided_by,omitempty"`

	CreatedBy  uint64    `db:"created_by" json:"created_by"`
	ModifiedBy uint64    `db:"modified_by" json:"modified_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// IsDayUse reports whether arrival and departure share a calendar date.
func (r *Reservation) IsDayUse() bool {
	return SameDay(r.ArrivalDate, r.DepartureDate)
}

// ReservationRoom is one room-stay line of a reservation.  RoomID is nil
// while the line is unassigned.  A room move after check-in closes the
// line (IsSplitOrigin) and creates a new one (IsSplitDestination) pointing
// back through SplitFromID, so room identity is never rewritten on a line
// that already accrued nights.
type ReservationRoom struct {
	ID            uint64           `db:"id" json:"id"`
	ReservationID uint64           `db:"reservation_id" json:"reservation_id"`
	RoomID        *uint64          `db:"room_id" json:"room_id,omitempty"`
	RoomTypeID    uint64           `db:"room_type_id" json:"room_type_id"`
	Status        AssignmentStatus `db:"status" json:"status"`
	CheckInAt     time.Time        `db:"check_in_at" json:"check_in_at"`
	CheckOutAt    time.Time        `db:"check_out_at" json:"check_out_at"`
	CheckedInAt   *time.Time       `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CheckedOutAt  *time.Time       `db:"checked_out_at" json:"checked_out_at,omitempty"`
	Nights        int              `db:"nights" json:"nights"`

	RateAmount       decimal.Decimal `db:"rate_amount" json:"rate_amount"`
	TaxRate          decimal.Decimal `db:"tax_rate" json:"tax_rate"`
	TotalRoomCharges decimal.Decimal `db:"total_room_charges" json:"total_room_charges"`
	TotalTaxesAmount decimal.Decimal `db:"total_taxes_amount" json:"total_taxes_amount"`
	NetAmount        decimal.Decimal `db:"net_amount" json:"net_amount"`

	Adults   int `db:"adults" json:"adults"`
	Children int `db:"children" json:"children"`

	IsOwner            bool    `db:"is_owner" json:"is_owner"`
	StopMove           bool    `db:"stop_move" json:"stop_move"`
	IsSplitOrigin      bool    `db:"is_split_origin" json:"is_split_origin"`
	IsSplitDestination bool    `db:"is_split_destination" json:"is_split_destination"`
	SplitFromID        *uint64 `db:"split_from_id" json:"split_from_id,omitempty"`
	Notes              string  `db:"notes" json:"notes"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BillableUnits is the number of nightly charges the line produces.  A
// day-use line is billed once for its time window.
func (a *ReservationRoom) BillableUnits() int {
	if a.Nights <= 0 {
		return 1
	}
	return a.Nights
}

// Reprice recomputes the line's charge totals from its per-night rate and
// tax rate without consulting any rate plan.
func (a *ReservationRoom) Reprice() {
	units := decimal.NewFromInt(int64(a.BillableUnits()))
	a.TotalRoomCharges = a.RateAmount.Mul(units).Round(2)
	a.TotalTaxesAmount = a.TotalRoomCharges.Mul(a.TaxRate).Round(2)
	a.NetAmount = a.TotalRoomCharges.Add(a.TotalTaxesAmount)
}

// Room is the physical unit owned by the room registry.
type Room struct {
	ID                 uint64             `db:"id" json:"id"`
	HotelID            uint64             `db:"hotel_id" json:"hotel_id"`
	RoomNumber         string             `db:"room_number" json:"room_number"`
	RoomTypeID         uint64             `db:"room_type_id" json:"room_type_id"`
	Status             RoomStatus         `db:"status" json:"status"`
	HousekeepingStatus HousekeepingStatus `db:"housekeeping_status" json:"housekeeping_status"`
}

// Serviceable reports whether a guest can be put into the room right now.
func (r *Room) Serviceable() bool {
	return r.Status == RoomAvailable && r.HousekeepingStatus == HousekeepingClean
}

// SameDay compares the calendar dates of a and b in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return now.With(a).BeginningOfDay().Equal(now.With(b).BeginningOfDay())
}

// NightsBetween counts the calendar nights from the arrival date to the
// departure date.  It never returns a negative value.
func NightsBetween(arrival, departure time.Time) int {
	from := now.With(arrival).BeginningOfDay()
	to := now.With(departure.In(arrival.Location())).BeginningOfDay()
	if !to.After(from) {
		return 0
	}
	// Round to absorb DST shifts of one hour.
	return int((to.Sub(from) + 12*time.Hour) / (24 * time.Hour))
}

// AtDate returns date's calendar day combined with the clock time of clock.
func AtDate(date, clock time.Time) time.Time {
	clock = clock.In(date.Location())
	y, m, d := date.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), 0, date.Location())
}
