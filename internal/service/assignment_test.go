package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

func TestMoveRoomBeforeCheckInSwapsInPlace(t *testing.T) {
	f := newFixture(t)
	b := f.book(stay{arrival: 12})
	dest := f.db.addRoom(model.Room{HotelID: 1, RoomNumber: "204", RoomTypeID: 5})

	out, err := f.svc.MoveRoom(context.Background(), MoveRoomRequest{AssignmentID: b.lines[0].ID, ToRoomID: dest.ID, Reason: "quieter room", ActorID: actor})
	require.NoError(t, err)
	assert.False(t, out.Split)
	assert.Nil(t, out.Destination)

	lines := f.db.linesOf(b.res.ID)
	require.Len(t, lines, 1, "a move before check-in never creates a second line")
	require.NotNil(t, lines[0].RoomID)
	assert.Equal(t, dest.ID, *lines[0].RoomID)
	assert.Equal(t, uint64(5), lines[0].RoomTypeID)
}

func TestLineOperationsLockReservationFirst(t *testing.T) {
	f := newFixture(t)
	b := f.book(stay{arrival: 12})
	dest := f.db.addRoom(model.Room{HotelID: 1, RoomNumber: "204", RoomTypeID: 3})
	f.db.state.locks = nil

	_, err := f.svc.MoveRoom(context.Background(), MoveRoomRequest{AssignmentID: b.lines[0].ID, ToRoomID: dest.ID, ActorID: actor})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(f.db.state.locks), 2)
	want := []string{fmt.Sprintf("reservation:%d", b.res.ID), fmt.Sprintf("lines:%d", b.res.ID)}
	assert.Equal(t, want, f.db.state.locks[:2])
}

func TestMoveRoomOnCheckInDaySwapsInPlace(t *testing.T) {
	f := newFixture(t)
	b := f.book(stay{status: model.ReservationCheckedIn, lineState: model.AssignmentCheckedIn})
	dest := f.db.addRoom(model.Room{HotelID: 1, RoomNumber: "204", RoomTypeID: 3})

	out, err := f.svc.MoveRoom(context.Background(), MoveRoomRequest{AssignmentID: b.lines[0].ID, ToRoomID: dest.ID, ActorID: actor})
	require.NoError(t, err)
	assert.False(t, out.Split)
	assert.Len(t, f.db.linesOf(b.res.ID), 1)
	assert.Equal(t, model.RoomOccupied, f.db.room(dest.ID).Status)
	assert.Equal(t, model.RoomAvailable, f.db.room(b.rooms[0].ID).Status)
	assert.Equal(t, model.HousekeepingDirty, f.db.room(b.rooms[0].ID).HousekeepingStatus)
}

func TestMoveRoomAfterCheckInSplitsStay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(stay{status: model.ReservationCheckedIn, lineState: model.AssignmentCheckedIn, arrival: 9, nights: 3})
	dest := f.db.addRoom(model.Room{HotelID: 1, RoomNumber: "B20", RoomTypeID: 3})

	require.NoError(t, f.svc.EnsureFolios(ctx, b.res.ID, actor))
	var nights []model.FolioTransaction
	for _, folio := range f.db.state.folios {
		nights = append(nights, f.db.txnsOf(folio.ID)...)
	}
	require.Len(t, nights, 3)

	out, err := f.svc.MoveRoom(ctx, MoveRoomRequest{AssignmentID: b.lines[0].ID, ToRoomID: dest.ID, Reason: "air conditioning", ActorID: actor})
	require.NoError(t, err)
	require.True(t, out.Split)
	require.NotNil(t, out.Destination)

	lines := f.db.linesOf(b.res.ID)
	require.Len(t, lines, 2, "exactly one new line")
	origin, moved := lines[0], lines[1]
	assert.Equal(t, model.AssignmentCheckedOut, origin.Status)
	assert.True(t, origin.IsSplitOrigin)
	assert.Equal(t, 1, origin.Nights)
	assert.Equal(t, model.AssignmentCheckedIn, moved.Status)
	assert.True(t, moved.IsSplitDestination)
	require.NotNil(t, moved.SplitFromID)
	assert.Equal(t, origin.ID, *moved.SplitFromID)
	assert.Equal(t, 2, moved.Nights)
	assert.Equal(t, dest.ID, *moved.RoomID)

	assert.Equal(t, model.RoomAvailable, f.db.room(b.rooms[0].ID).Status)
	assert.Equal(t, model.HousekeepingDirty, f.db.room(b.rooms[0].ID).HousekeepingStatus)
	assert.Equal(t, model.RoomOccupied, f.db.room(dest.ID).Status)
	assert.Equal(t, model.ReservationCheckedIn, f.db.reservation(b.res.ID).Status)

	for _, n := range nights {
		stored, _ := f.db.txn(n.ID)
		require.NotNil(t, stored.ReservationRoomID)
		if stored.ServiceDate.Before(day(10, 0)) {
			assert.Equal(t, origin.ID, *stored.ReservationRoomID, "past nights stay on the original line")
			assert.Contains(t, stored.Description, "Room A10")
		} else {
			assert.Equal(t, moved.ID, *stored.ReservationRoomID)
			assert.Contains(t, stored.Description, "Room B20")
		}
	}
}

func TestMoveRoomStopMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(stay{arrival: 12})
	dest := f.db.addRoom(model.Room{HotelID: 1, RoomNumber: "204", RoomTypeID: 3})

	_, err := f.svc.SetStopMove(ctx, StopMoveRequest{AssignmentID: b.lines[0].ID, StopMove: true, ActorID: actor})
	require.NoError(t, err)
	_, err = f.svc.MoveRoom(ctx, MoveRoomRequest{AssignmentID: b.lines[0].ID, ToRoomID: dest.ID, ActorID: actor})
	require.ErrorIs(t, err, model.ErrInvalidState)
	assert.Equal(t, b.rooms[0].ID, *f.db.line(b.lines[0].ID).RoomID)
}

func TestMoveRoomDestinationTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(stay{arrival: 12})
	other := f.book(stay{arrival: 13})

	_, err := f.svc.MoveRoom(ctx, MoveRoomRequest{AssignmentID: b.lines[0].ID, ToRoomID: other.rooms[0].ID, ActorID: actor})
	require.ErrorIs(t, err, model.ErrRoomUnavailable)
	var e *model.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, []uint64{other.lines[0].ID}, e.Details["conflicting_assignment_ids"])
}

func TestAssignAndUnassignRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(stay{arrival: 12, noRoom: true})
	room := f.db.addRoom(model.Room{HotelID: 1, RoomNumber: "707", RoomTypeID: 3})

	line, err := f.svc.AssignRoom(ctx, AssignRoomRequest{AssignmentID: b.lines[0].ID, RoomID: room.ID, ActorID: actor})
	require.NoError(t, err)
	assert.Equal(t, room.ID, *line.RoomID)

	require.NoError(t, f.svc.EnsureFolios(ctx, b.res.ID, actor))
	line, err = f.svc.UnassignRoom(ctx, UnassignRoomRequest{AssignmentID: b.lines[0].ID, ActorID: actor})
	require.NoError(t, err)
	assert.Nil(t, line.RoomID)

	for _, folio := range f.db.state.folios {
		for _, tx := range f.db.txnsOf(folio.ID) {
			assert.NotContains(t, tx.Description, "707")
			assert.Equal(t, "100.00", tx.Amount.StringFixed(2), "unassign never changes amounts")
		}
	}
}

func TestAssignRoomRejectsMaintenance(t *testing.T) {
	f := newFixture(t)
	b := f.book(stay{arrival: 12, noRoom: true})
	room := f.db.addRoom(model.Room{HotelID: 1, RoomNumber: "808", RoomTypeID: 3, Status: model.RoomMaintenance})
	_, err := f.svc.AssignRoom(context.Background(), AssignRoomRequest{AssignmentID: b.lines[0].ID, RoomID: room.ID, ActorID: actor})
	require.ErrorIs(t, err, model.ErrRoomUnavailable)
}

func TestExchangeReservationSwap(t *testing.T) {
	f := newFixture(t)
	a := f.book(stay{arrival: 12})
	b := f.book(stay{arrival: 12})

	out, err := f.svc.ExchangeRooms(context.Background(), ExchangeRoomsRequest{
		Mode:              ExchangeReservationSwap,
		AssignmentID:      a.lines[0].ID,
		OtherAssignmentID: b.lines[0].ID,
		ActorID:           actor,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, b.rooms[0].ID, *f.db.line(a.lines[0].ID).RoomID)
	assert.Equal(t, a.rooms[0].ID, *f.db.line(b.lines[0].ID).RoomID)
	assert.Len(t, effectsOf[GuestSummaryEffect](f.rec.all()), 2)
}

func TestExchangeRejectsSameReservation(t *testing.T) {
	f := newFixture(t)
	a := f.book(stay{arrival: 12, rooms: 2})
	_, err := f.svc.ExchangeRooms(context.Background(), ExchangeRoomsRequest{
		Mode:              ExchangeReservationSwap,
		AssignmentID:      a.lines[0].ID,
		OtherAssignmentID: a.lines[1].ID,
		ActorID:           actor,
	})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestExchangeUpgradeNeedsServiceableRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(stay{arrival: 12})
	dirty := f.db.addRoom(model.Room{HotelID: 1, RoomNumber: "901", RoomTypeID: 9, HousekeepingStatus: model.HousekeepingDirty})
	suite := f.db.addRoom(model.Room{HotelID: 1, RoomNumber: "902", RoomTypeID: 9})

	_, err := f.svc.ExchangeRooms(ctx, ExchangeRoomsRequest{Mode: ExchangeRoomUpgradeDowngrade, AssignmentID: b.lines[0].ID, ToRoomID: dirty.ID, ActorID: actor})
	require.ErrorIs(t, err, model.ErrRoomUnavailable)

	out, err := f.svc.ExchangeRooms(ctx, ExchangeRoomsRequest{Mode: ExchangeRoomUpgradeDowngrade, AssignmentID: b.lines[0].ID, ToRoomID: suite.ID, ActorID: actor})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, suite.ID, *out[0].RoomID)
	assert.Equal(t, uint64(9), out[0].RoomTypeID)
}

func TestExchangeRejectedForClosedReservation(t *testing.T) {
	f := newFixture(t)
	b := f.book(stay{status: model.ReservationCheckedOut, lineState: model.AssignmentCheckedOut})
	suite := f.db.addRoom(model.Room{HotelID: 1, RoomNumber: "902", RoomTypeID: 9})
	_, err := f.svc.ExchangeRooms(context.Background(), ExchangeRoomsRequest{Mode: ExchangeRoomUpgradeDowngrade, AssignmentID: b.lines[0].ID, ToRoomID: suite.ID, ActorID: actor})
	require.ErrorIs(t, err, model.ErrInvalidState)
}
