package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReservationStatus(t *testing.T) {
	for raw, want := range map[string]ReservationStatus{
		"Checked-In":   ReservationCheckedIn,
		"checked in":   ReservationCheckedIn,
		"CHECKED_OUT":  ReservationCheckedOut,
		"canceled":     ReservationCancelled,
		" no-show ":    ReservationNoShow,
		"NoShow":       ReservationNoShow,
		"voided":       ReservationVoided,
		"pending":      ReservationPending,
		"Confirmed":    ReservationConfirmed,
		"checkedout":   ReservationCheckedOut,
		"completed":    ReservationCompleted,
		"Cancelled":    ReservationCancelled,
		"checked-out ": ReservationCheckedOut,
	} {
		got, err := ParseReservationStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseReservationStatus("on hold")
	assert.Error(t, err)
}

func TestStatusScan(t *testing.T) {
	var s AssignmentStatus
	require.NoError(t, s.Scan([]byte("Checked-Out")))
	assert.Equal(t, AssignmentCheckedOut, s)
	assert.Error(t, s.Scan("lost"))

	var ts TransactionStatus
	require.NoError(t, ts.Scan("POSTED"))
	assert.Equal(t, TxnPosted, ts)
}

func lines(statuses ...AssignmentStatus) []ReservationRoom {
	out := make([]ReservationRoom, len(statuses))
	for i, s := range statuses {
		out[i] = ReservationRoom{ID: uint64(i + 1), Status: s}
	}
	return out
}

func TestDeriveReservationStatus(t *testing.T) {
	tests := []struct {
		name    string
		current ReservationStatus
		lines   []ReservationRoom
		want    ReservationStatus
	}{
		{"no lines keeps status", ReservationConfirmed, nil, ReservationConfirmed},
		{"pending stays pending", ReservationPending, lines(AssignmentReserved), ReservationPending},
		{"reserved is confirmed", ReservationConfirmed, lines(AssignmentReserved, AssignmentReserved), ReservationConfirmed},
		{"partial check-in", ReservationConfirmed, lines(AssignmentCheckedIn, AssignmentReserved), ReservationConfirmed},
		{"all checked in", ReservationConfirmed, lines(AssignmentCheckedIn, AssignmentCheckedIn), ReservationCheckedIn},
		{"partial check-out", ReservationCheckedIn, lines(AssignmentCheckedIn, AssignmentCheckedOut), ReservationCheckedIn},
		{"all checked out", ReservationCheckedIn, lines(AssignmentCheckedOut, AssignmentCheckedOut), ReservationCheckedOut},
		{"checked out with a no-show", ReservationCheckedIn, lines(AssignmentCheckedOut, AssignmentNoShow), ReservationCheckedOut},
		{"all cancelled", ReservationConfirmed, lines(AssignmentCancelled, AssignmentCancelled), ReservationCancelled},
		{"cancelled and voided", ReservationConfirmed, lines(AssignmentCancelled, AssignmentVoided), ReservationCancelled},
		{"all voided", ReservationConfirmed, lines(AssignmentVoided), ReservationVoided},
		{"all no-show", ReservationConfirmed, lines(AssignmentNoShow, AssignmentNoShow), ReservationNoShow},
		{"no-show and cancelled", ReservationConfirmed, lines(AssignmentNoShow, AssignmentCancelled), ReservationNoShow},
		{"partial no-show", ReservationConfirmed, lines(AssignmentNoShow, AssignmentReserved), ReservationConfirmed},
		{"checked in with a no-show", ReservationConfirmed, lines(AssignmentCheckedIn, AssignmentNoShow), ReservationCheckedIn},
		{"one cancelled line ignored", ReservationConfirmed, lines(AssignmentCancelled, AssignmentCheckedIn), ReservationCheckedIn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveReservationStatus(tt.current, tt.lines))
		})
	}
}

func TestNightsBetween(t *testing.T) {
	at := func(d, h int) time.Time { return time.Date(2026, 3, d, h, 0, 0, 0, time.UTC) }
	assert.Equal(t, 2, NightsBetween(at(10, 15), at(12, 11)))
	assert.Equal(t, 0, NightsBetween(at(10, 9), at(10, 17)), "day use")
	assert.Equal(t, 0, NightsBetween(at(12, 0), at(10, 0)))

	ams, err := time.LoadLocation("Europe/Amsterdam")
	if err == nil {
		// 29 March 2026 has 23 hours in Amsterdam.
		assert.Equal(t, 2, NightsBetween(time.Date(2026, 3, 28, 15, 0, 0, 0, ams), time.Date(2026, 3, 30, 11, 0, 0, 0, ams)))
	}
}

func TestSameDayUsesFirstLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	late := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC) // 11 March in Tokyo
	assert.True(t, SameDay(late, time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)))
	assert.False(t, SameDay(late.In(tokyo), time.Date(2026, 3, 10, 1, 0, 0, 0, tokyo)))
}

func TestAtDateKeepsClock(t *testing.T) {
	got := AtDate(time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 4, 2, 15, 30, 0, 0, time.UTC), got)
}

func TestReprice(t *testing.T) {
	l := ReservationRoom{Nights: 3, RateAmount: decimal.RequireFromString("80"), TaxRate: decimal.RequireFromString("0.05")}
	l.Reprice()
	assert.Equal(t, "240.00", l.TotalRoomCharges.StringFixed(2))
	assert.Equal(t, "12.00", l.TotalTaxesAmount.StringFixed(2))
	assert.Equal(t, "252.00", l.NetAmount.StringFixed(2))

	dayUse := ReservationRoom{RateAmount: decimal.RequireFromString("60")}
	dayUse.Reprice()
	assert.Equal(t, 1, dayUse.BillableUnits())
	assert.Equal(t, "60.00", dayUse.NetAmount.StringFixed(2))
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("check out: %w", OutstandingBalance(decimal.RequireFromString("60")))
	assert.ErrorIs(t, err, ErrOutstandingBalance)
	assert.Equal(t, KindOutstandingBalance, KindOf(err))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "60.00", e.Details["balance"])

	cause := errors.New("Deadlock found")
	c := Concurrency(cause)
	assert.ErrorIs(t, c, ErrConcurrency)
	assert.ErrorIs(t, c, cause)
	assert.Equal(t, ErrorKind(""), KindOf(cause))
}

func TestTransactionActive(t *testing.T) {
	posted := FolioTransaction{Type: TxnCharge, Status: TxnPosted}
	assert.True(t, posted.Active())
	rev := FolioTransaction{Type: TxnVoid, Status: TxnPosted}
	assert.False(t, rev.Active())
	cancelled := FolioTransaction{Type: TxnCharge, Status: TxnCancelled}
	assert.False(t, cancelled.Active())

	room := FolioTransaction{Type: TxnCharge, Category: CategoryRoomCharge}
	assert.True(t, room.IsRoomCharge())
	fee := FolioTransaction{Type: TxnCharge, Category: CategoryNoShowFee}
	assert.False(t, fee.IsRoomCharge())
}
