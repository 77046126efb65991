package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

func TestAmendStayExtendsAndRepostsCharges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(stay{arrival: 12})
	require.NoError(t, f.svc.EnsureFolios(ctx, b.res.ID, actor))

	var folio model.Folio
	for _, v := range f.db.state.folios {
		folio = v
	}
	old := f.db.txnsOf(folio.ID)
	require.Len(t, old, 2)

	departure := day(16, 0)
	out, err := f.svc.AmendStay(ctx, AmendStayRequest{
		ReservationID: b.res.ID,
		NewDeparture:  &departure,
		Reason:        "guest extends",
		ActorID:       actor,
	})
	require.NoError(t, err)

	for _, tx := range old {
		_, ok := f.db.txn(tx.ID)
		assert.False(t, ok, "previous room charges are retracted")
	}
	charges := f.db.txnsOf(folio.ID)
	require.Len(t, charges, 4)
	for i, tx := range charges {
		assert.Equal(t, day(12+i, 0), tx.ServiceDate)
		assert.Equal(t, model.TxnRoomPosting, tx.Type)
	}

	line := f.db.line(b.lines[0].ID)
	assert.Equal(t, 4, line.Nights)
	assert.Equal(t, day(16, 11), line.CheckOutAt, "time of day is kept")
	assert.Equal(t, "440.00", line.NetAmount.StringFixed(2))
	assert.Equal(t, 4, out.Reservation.NumberOfNights)
	assert.Equal(t, day(16, 0), out.Reservation.DepartureDate)
	assert.Equal(t, "440.00", f.balance(folio.ID).OutstandingBalance.StringFixed(2))
	assert.Equal(t, "440.00", f.db.folio(folio.ID).Balance.StringFixed(2))
}

func TestAmendStayKeepsVoidedCharges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(stay{arrival: 12})
	folio := f.openFolio(b.res.ID)
	voided := f.post(folio, model.TxnRoomPosting, "100", "10")
	voided.Status = model.TxnVoided
	f.db.state.txns[voided.ID] = voided
	minibar := f.post(folio, model.TxnCharge, "12", "0")

	departure := day(13, 0)
	_, err := f.svc.AmendStay(ctx, AmendStayRequest{ReservationID: b.res.ID, NewDeparture: &departure, Reason: "shorter", ActorID: actor})
	require.NoError(t, err)

	_, ok := f.db.txn(voided.ID)
	assert.True(t, ok, "voided history stays")
	_, ok = f.db.txn(minibar.ID)
	assert.True(t, ok, "other charges are untouched")
	assert.Equal(t, "122.00", f.balance(folio.ID).OutstandingBalance.StringFixed(2))
}

func TestAmendStayWithoutFolio(t *testing.T) {
	f := newFixture(t)
	b := f.book(stay{arrival: 12})
	arrival := day(11, 0)
	out, err := f.svc.AmendStay(context.Background(), AmendStayRequest{ReservationID: b.res.ID, NewArrival: &arrival, Reason: "early", ActorID: actor})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Reservation.NumberOfNights)
	assert.Equal(t, day(11, 15), f.db.line(b.lines[0].ID).CheckInAt)
	assert.Empty(t, f.db.state.folios)
}

func TestAmendStayRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing to amend", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(stay{arrival: 12})
		_, err := f.svc.AmendStay(ctx, AmendStayRequest{ReservationID: b.res.ID, Reason: "x", ActorID: actor})
		require.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("departure before arrival", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(stay{arrival: 12})
		departure := day(11, 0)
		_, err := f.svc.AmendStay(ctx, AmendStayRequest{ReservationID: b.res.ID, NewDeparture: &departure, Reason: "x", ActorID: actor})
		require.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("arrival after check-in", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(stay{status: model.ReservationCheckedIn, lineState: model.AssignmentCheckedIn})
		arrival := day(9, 0)
		_, err := f.svc.AmendStay(ctx, AmendStayRequest{ReservationID: b.res.ID, NewArrival: &arrival, Reason: "x", ActorID: actor})
		require.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("extension collides", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(stay{arrival: 12})
		next := f.db.addLine(model.ReservationRoom{
			ReservationID: f.book(stay{arrival: 20}).res.ID,
			RoomID:        b.lines[0].RoomID,
			RoomTypeID:    3,
			Status:        model.AssignmentReserved,
			CheckInAt:     day(14, 15),
			CheckOutAt:    day(15, 11),
			Nights:        1,
			RateAmount:    dec("100"),
		})
		departure := day(15, 0)
		_, err := f.svc.AmendStay(ctx, AmendStayRequest{ReservationID: b.res.ID, NewDeparture: &departure, Reason: "x", ActorID: actor})
		require.ErrorIs(t, err, model.ErrRoomUnavailable)
		assert.Equal(t, day(14, 11), f.db.line(b.lines[0].ID).CheckOutAt)
		assert.NotZero(t, next.ID)
	})

	t.Run("room type mismatch", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(stay{arrival: 12})
		_, err := f.svc.AmendStay(ctx, AmendStayRequest{ReservationID: b.res.ID, NewRoomTypeID: ptr(uint64(9)), Reason: "x", ActorID: actor})
		require.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("closed reservation", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(stay{status: model.ReservationCancelled, lineState: model.AssignmentCancelled})
		departure := day(15, 0)
		_, err := f.svc.AmendStay(ctx, AmendStayRequest{ReservationID: b.res.ID, NewDeparture: &departure, Reason: "x", ActorID: actor})
		require.ErrorIs(t, err, model.ErrInvalidState)
	})
}

func TestAmendStayKeepsCancelledCharges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(stay{rooms: 2, arrival: 12})
	require.NoError(t, f.svc.EnsureFolios(ctx, b.res.ID, actor))
	_, err := f.svc.Cancel(ctx, CancelRequest{ReservationID: b.res.ID, AssignmentIDs: []uint64{b.lines[1].ID}, Reason: "one room less", ActorID: actor})
	require.NoError(t, err)

	var cancelled []model.FolioTransaction
	for _, tx := range f.db.state.txns {
		if tx.ReservationRoomID != nil && *tx.ReservationRoomID == b.lines[1].ID && tx.Status == model.TxnCancelled {
			cancelled = append(cancelled, tx)
		}
	}
	require.Len(t, cancelled, 2)

	departure := day(15, 0)
	_, err = f.svc.AmendStay(ctx, AmendStayRequest{
		ReservationID: b.res.ID,
		AssignmentIDs: []uint64{b.lines[0].ID},
		NewDeparture:  &departure,
		Reason:        "guest extends",
		ActorID:       actor,
	})
	require.NoError(t, err)

	for _, tx := range cancelled {
		stored, ok := f.db.txn(tx.ID)
		require.True(t, ok, "cancelled charge %d stays in the ledger", tx.ID)
		assert.Equal(t, model.TxnCancelled, stored.Status)
	}
	var reposted int
	for _, tx := range f.db.state.txns {
		if tx.ReservationRoomID != nil && *tx.ReservationRoomID == b.lines[0].ID && tx.Status == model.TxnPosted {
			reposted++
		}
	}
	assert.Equal(t, 3, reposted)
}
