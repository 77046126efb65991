package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// memStore is an in-memory UnitOfWork.  Each unit works on a copy of the
// state that replaces the committed state only when fn succeeds.
type memStore struct {
	mu        sync.Mutex
	state     *memState
	failAudit error
}

type memState struct {
	nextID       uint64
	reservations map[uint64]model.Reservation
	lines        map[uint64]model.ReservationRoom
	rooms        map[uint64]model.Room
	folios       map[uint64]model.Folio
	txns         map[uint64]model.FolioTransaction
	audit        []model.AuditEntry
	// locks records the row locks a unit takes, in order.
	locks []string
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		nextID:       1000,
		reservations: map[uint64]model.Reservation{},
		lines:        map[uint64]model.ReservationRoom{},
		rooms:        map[uint64]model.Room{},
		folios:       map[uint64]model.Folio{},
		txns:         map[uint64]model.FolioTransaction{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:       s.nextID,
		reservations: make(map[uint64]model.Reservation, len(s.reservations)),
		lines:        make(map[uint64]model.ReservationRoom, len(s.lines)),
		rooms:        make(map[uint64]model.Room, len(s.rooms)),
		folios:       make(map[uint64]model.Folio, len(s.folios)),
		txns:         make(map[uint64]model.FolioTransaction, len(s.txns)),
		audit:        append([]model.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = v
	}
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	for k, v := range s.folios {
		c.folios[k] = v
	}
	for k, v := range s.txns {
		c.txns[k] = v
	}
	return c
}

func (m *memStore) Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(ctx, &memTx{s: work, failAudit: m.failAudit}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) id() uint64 {
	m.state.nextID++
	return m.state.nextID
}

// Seeding helpers write straight into the committed state.

func (m *memStore) addRoom(r model.Room) model.Room {
	if r.ID == 0 {
		r.ID = m.id()
	}
	if r.Status == "" {
		r.Status = model.RoomAvailable
	}
	if r.HousekeepingStatus == "" {
		r.HousekeepingStatus = model.HousekeepingClean
	}
	m.state.rooms[r.ID] = r
	return r
}

func (m *memStore) addReservation(r model.Reservation) model.Reservation {
	if r.ID == 0 {
		r.ID = m.id()
	}
	m.state.reservations[r.ID] = r
	return r
}

func (m *memStore) addLine(l model.ReservationRoom) model.ReservationRoom {
	if l.ID == 0 {
		l.ID = m.id()
	}
	l.Reprice()
	m.state.lines[l.ID] = l
	return l
}

func (m *memStore) addFolio(f model.Folio) model.Folio {
	if f.ID == 0 {
		f.ID = m.id()
	}
	if f.Status == "" {
		f.Status = model.FolioOpen
	}
	f.Transactions = nil
	m.state.folios[f.ID] = f
	return f
}

func (m *memStore) addTxn(t model.FolioTransaction) model.FolioTransaction {
	if t.ID == 0 {
		t.ID = m.id()
	}
	if t.Status == "" {
		t.Status = model.TxnPosted
	}
	m.state.txns[t.ID] = t
	return t
}

func (m *memStore) reservation(id uint64) model.Reservation { return m.state.reservations[id] }
func (m *memStore) line(id uint64) model.ReservationRoom    { return m.state.lines[id] }
func (m *memStore) room(id uint64) model.Room               { return m.state.rooms[id] }
func (m *memStore) folio(id uint64) model.Folio             { return m.state.folios[id] }
func (m *memStore) txn(id uint64) (model.FolioTransaction, bool) {
	t, ok := m.state.txns[id]
	return t, ok
}

func (m *memStore) linesOf(reservationID uint64) []model.ReservationRoom {
	var out []model.ReservationRoom
	for _, l := range m.state.lines {
		if l.ReservationID == reservationID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) txnsOf(folioID uint64) []model.FolioTransaction {
	return m.state.txnsOf(folioID)
}

func (s *memState) txnsOf(folioID uint64) []model.FolioTransaction {
	var out []model.FolioTransaction
	for _, t := range s.txns {
		if t.FolioID == folioID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memTx struct {
	s         *memState
	failAudit error
}

func (t *memTx) Reservations() ReservationStore { return memReservations{t.s} }
func (t *memTx) Assignments() AssignmentStore   { return memAssignments{t.s} }
func (t *memTx) Rooms() RoomRegistry            { return memRooms{t.s} }
func (t *memTx) Folios() FolioStore             { return memFolios{t.s} }
func (t *memTx) Audit() AuditLogger             { return memAudit{t.s, t.failAudit} }

func (s *memState) id() uint64 {
	s.nextID++
	return s.nextID
}

type memReservations struct{ s *memState }

func (r memReservations) Get(_ context.Context, id uint64) (*model.Reservation, error) {
	r.s.locks = append(r.s.locks, fmt.Sprintf("reservation:%d", id))
	v, ok := r.s.reservations[id]
	if !ok {
		return nil, model.NotFound("reservation", id)
	}
	return &v, nil
}

func (r memReservations) Create(_ context.Context, v *model.Reservation) error {
	v.ID = r.s.id()
	r.s.reservations[v.ID] = *v
	return nil
}

func (r memReservations) Update(_ context.Context, v *model.Reservation) error {
	if _, ok := r.s.reservations[v.ID]; !ok {
		return model.NotFound("reservation", v.ID)
	}
	r.s.reservations[v.ID] = *v
	return nil
}

type memAssignments struct{ s *memState }

func (a memAssignments) Get(_ context.Context, id uint64) (*model.ReservationRoom, error) {
	v, ok := a.s.lines[id]
	if !ok {
		return nil, model.NotFound("reservation room", id)
	}
	return &v, nil
}

func (a memAssignments) ListByReservation(_ context.Context, reservationID uint64) ([]model.ReservationRoom, error) {
	a.s.locks = append(a.s.locks, fmt.Sprintf("lines:%d", reservationID))
	var out []model.ReservationRoom
	for _, l := range a.s.lines {
		if l.ReservationID == reservationID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a memAssignments) Create(_ context.Context, v *model.ReservationRoom) error {
	v.ID = a.s.id()
	a.s.lines[v.ID] = *v
	return nil
}

func (a memAssignments) Update(_ context.Context, v *model.ReservationRoom) error {
	if _, ok := a.s.lines[v.ID]; !ok {
		return model.NotFound("reservation room", v.ID)
	}
	a.s.lines[v.ID] = *v
	return nil
}

func (a memAssignments) Overlapping(_ context.Context, roomID uint64, from, to time.Time, exclude ...uint64) ([]model.ReservationRoom, error) {
	skip := map[uint64]bool{}
	for _, id := range exclude {
		skip[id] = true
	}
	var out []model.ReservationRoom
	for _, l := range a.s.lines {
		if skip[l.ID] || l.RoomID == nil || *l.RoomID != roomID {
			continue
		}
		if !l.Status.In(model.AssignmentReserved, model.AssignmentCheckedIn) {
			continue
		}
		if l.CheckInAt.Before(to) && l.CheckOutAt.After(from) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memRooms struct{ s *memState }

func (r memRooms) FindRoom(_ context.Context, id uint64) (*model.Room, error) {
	v, ok := r.s.rooms[id]
	if !ok {
		return nil, model.NotFound("room", id)
	}
	return &v, nil
}

func (r memRooms) SaveRoomStatus(_ context.Context, id uint64, status model.RoomStatus, hk model.HousekeepingStatus) error {
	v, ok := r.s.rooms[id]
	if !ok {
		return model.NotFound("room", id)
	}
	v.Status, v.HousekeepingStatus = status, hk
	r.s.rooms[id] = v
	return nil
}

type memFolios struct{ s *memState }

func (f memFolios) Get(_ context.Context, id uint64) (*model.Folio, error) {
	v, ok := f.s.folios[id]
	if !ok {
		return nil, model.NotFound("folio", id)
	}
	v.Transactions = f.s.txnsOf(id)
	return &v, nil
}

func (f memFolios) ListByReservation(_ context.Context, reservationID uint64) ([]model.Folio, error) {
	var out []model.Folio
	for _, v := range f.s.folios {
		if v.ReservationID == reservationID {
			v.Transactions = f.s.txnsOf(v.ID)
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f memFolios) Create(_ context.Context, v *model.Folio) error {
	v.ID = f.s.id()
	stored := *v
	stored.Transactions = nil
	f.s.folios[v.ID] = stored
	return nil
}

func (f memFolios) Update(_ context.Context, v *model.Folio) error {
	if _, ok := f.s.folios[v.ID]; !ok {
		return model.NotFound("folio", v.ID)
	}
	stored := *v
	stored.Transactions = nil
	f.s.folios[v.ID] = stored
	return nil
}

func (f memFolios) ListTransactions(_ context.Context, folioID uint64) ([]model.FolioTransaction, error) {
	return f.s.txnsOf(folioID), nil
}

func (f memFolios) GetTransaction(_ context.Context, id uint64) (*model.FolioTransaction, error) {
	v, ok := f.s.txns[id]
	if !ok {
		return nil, model.NotFound("folio transaction", id)
	}
	return &v, nil
}

func (f memFolios) CreateTransaction(_ context.Context, v *model.FolioTransaction) error {
	v.ID = f.s.id()
	f.s.txns[v.ID] = *v
	return nil
}

func (f memFolios) UpdateTransaction(_ context.Context, v *model.FolioTransaction) error {
	if _, ok := f.s.txns[v.ID]; !ok {
		return model.NotFound("folio transaction", v.ID)
	}
	f.s.txns[v.ID] = *v
	return nil
}

func (f memFolios) DeleteTransactions(_ context.Context, ids []uint64) error {
	for _, id := range ids {
		delete(f.s.txns, id)
	}
	return nil
}

type memAudit struct {
	s    *memState
	fail error
}

func (a memAudit) Log(_ context.Context, e model.AuditEntry) error {
	if a.fail != nil {
		return a.fail
	}
	a.s.audit = append(a.s.audit, e)
	return nil
}

var errAuditDown = errors.New("audit sink down")

// recorder is a Dispatcher that keeps what it was handed.
type recorder struct {
	mu      sync.Mutex
	batches [][]Effect
}

func (r *recorder) Dispatch(_ context.Context, effects []Effect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, effects)
}

func (r *recorder) all() []Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Effect
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

// clock is a settable time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
