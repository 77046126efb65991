package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/now"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/hotel-pms-core/internal/ledger"
	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// PostTransactionRequest posts one manual entry to an open folio.
type PostTransactionRequest struct {
	FolioID             uint64                    `json:"-" validate:"required"`
	ReservationRoomID   *uint64                   `json:"reservation_room_id"`
	Type                model.TransactionType     `json:"type" validate:"required"`
	Category            model.TransactionCategory `json:"category"`
	Description         string                    `json:"description" validate:"max=255"`
	Amount              decimal.Decimal           `json:"amount"`
	TaxAmount           decimal.Decimal           `json:"tax_amount"`
	ServiceChargeAmount decimal.Decimal           `json:"service_charge_amount"`
	DiscountAmount      decimal.Decimal           `json:"discount_amount"`
	ServiceDate         *time.Time                `json:"service_date"`
	ActorID             uint64                    `json:"-" validate:"required"`
}

// VoidTransactionRequest voids a posted entry.
type VoidTransactionRequest struct {
	TransactionID uint64 `json:"-" validate:"required"`
	Reason        string `json:"reason" validate:"required,max=255"`
	// Reverse additionally posts an equal and opposite void entry.
	Reverse bool   `json:"reverse"`
	ActorID uint64 `json:"-" validate:"required"`
}

// TransferRequest moves an amount between two open folios as a paired
// transfer out and transfer in.
type TransferRequest struct {
	FromFolioID uint64          `json:"from_folio_id" validate:"required"`
	ToFolioID   uint64          `json:"to_folio_id" validate:"required,nefield=FromFolioID"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=255"`
	ActorID     uint64          `json:"-" validate:"required"`
}

// ReservationBalance is the balance of a reservation's folios.
type ReservationBalance struct {
	ReservationID uint64 `json:"reservation_id"`
	ledger.Summary
	Folios []model.Folio `json:"folios"`
}

// PostTransaction appends an entry to an open folio and rewrites the
// folio's running totals in the same unit of work.
func (s *ReservationService) PostTransaction(ctx context.Context, req PostTransactionRequest) (*model.FolioTransaction, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	typ, err := model.ParseTransactionType(string(req.Type))
	if err != nil {
		return nil, model.Validation(err.Error(), map[string]any{"type": req.Type})
	}
	if typ == model.TxnVoid {
		return nil, model.Validation("void entries are created by voiding a transaction", map[string]any{"type": typ})
	}
	if req.Amount.IsZero() && req.TaxAmount.IsZero() && req.ServiceChargeAmount.IsZero() {
		return nil, model.Validation("amount is required", nil)
	}
	at := s.now()

	var out *model.FolioTransaction
	err = s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		f, err := tx.Folios().Get(ctx, req.FolioID)
		if err != nil {
			return err
		}
		if f.Status != model.FolioOpen {
			return model.InvalidState("post transaction", f.Status, model.FolioOpen)
		}
		if req.ReservationRoomID != nil {
			line, err := tx.Assignments().Get(ctx, *req.ReservationRoomID)
			if err != nil {
				return err
			}
			if line.ReservationID != f.ReservationID {
				return model.Validation("room line belongs to another reservation", map[string]any{
					"reservation_room_id": line.ID,
					"folio_reservation":   f.ReservationID,
				})
			}
		}
		category := req.Category
		if category == "" {
			category = defaultCategory(typ)
		}
		serviceDate := at
		if req.ServiceDate != nil {
			serviceDate = req.ServiceDate.In(s.loc)
		}
		t := model.FolioTransaction{
			FolioID:             f.ID,
			ReservationID:       f.ReservationID,
			ReservationRoomID:   req.ReservationRoomID,
			Type:                typ,
			Category:            category,
			Description:         req.Description,
			Amount:              req.Amount,
			TaxAmount:           req.TaxAmount,
			ServiceChargeAmount: req.ServiceChargeAmount,
			DiscountAmount:      req.DiscountAmount,
			Status:              model.TxnPosted,
			PostingDate:         at,
			ServiceDate:         serviceDate,
			TransactionDate:     at,
			CreatedBy:           req.ActorID,
			CreatedAt:           at,
		}
		if err := postTransaction(ctx, tx, f, &t); err != nil {
			return err
		}
		if err := tx.Audit().Log(ctx, model.AuditEntry{
			ActorID:     req.ActorID,
			Action:      "folio.post",
			EntityType:  "folio",
			EntityID:    f.ID,
			HotelID:     f.HotelID,
			Description: fmt.Sprintf("Posted %s %s", typ, t.Amount.StringFixed(2)),
			Meta:        map[string]any{"transaction_id": t.ID, "category": category},
		}); err != nil {
			return err
		}
		fx.RefreshGuestSummary(f.ReservationID)
		out = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// VoidTransaction marks a posted entry voided.  Voiding an entry that is
// already voided or cancelled returns it unchanged.
func (s *ReservationService) VoidTransaction(ctx context.Context, req VoidTransactionRequest) (*model.FolioTransaction, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	at := s.now()

	var out *model.FolioTransaction
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		t, err := tx.Folios().GetTransaction(ctx, req.TransactionID)
		if err != nil {
			return err
		}
		out = t
		if t.Status != model.TxnPosted {
			return nil
		}
		if t.Type == model.TxnVoid {
			return model.InvalidState("void transaction", t.Type, "non-void entry")
		}
		f, err := tx.Folios().Get(ctx, t.FolioID)
		if err != nil {
			return err
		}
		if _, err := voidTransaction(ctx, tx, t, at, req.ActorID, req.Reason, req.Reverse); err != nil {
			return err
		}
		if err := updateFolioTotals(ctx, tx, f); err != nil {
			return err
		}
		if err := tx.Audit().Log(ctx, model.AuditEntry{
			ActorID:     req.ActorID,
			Action:      "folio.void_transaction",
			EntityType:  "folio",
			EntityID:    f.ID,
			HotelID:     f.HotelID,
			Description: req.Reason,
			Meta:        map[string]any{"transaction_id": t.ID, "reversed": req.Reverse},
		}); err != nil {
			return err
		}
		fx.RefreshGuestSummary(f.ReservationID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateFolioTotals re-derives the folio's running totals from its ledger.
func (s *ReservationService) UpdateFolioTotals(ctx context.Context, folioID uint64) (*model.Folio, error) {
	var out *model.Folio
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, _ *Effects) error {
		f, err := tx.Folios().Get(ctx, folioID)
		if err != nil {
			return err
		}
		if err := updateFolioTotals(ctx, tx, f); err != nil {
			return err
		}
		out = f
		return nil
	})
	return out, err
}

// GetReservationBalance computes the balance across the reservation's
// folios, or only its open ones.
func (s *ReservationService) GetReservationBalance(ctx context.Context, reservationID uint64, openOnly bool) (*ReservationBalance, error) {
	var out *ReservationBalance
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, _ *Effects) error {
		if _, err := tx.Reservations().Get(ctx, reservationID); err != nil {
			return err
		}
		folios, err := tx.Folios().ListByReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if openOnly {
			folios = filterFolios(folios, model.FolioOpen)
		}
		out = &ReservationBalance{
			ReservationID: reservationID,
			Summary:       ledger.ComputeBalance(folios),
			Folios:        folios,
		}
		return nil
	})
	return out, err
}

// TransferBetweenFolios moves an amount from one open folio to another of
// the same reservation as a transfer_out / transfer_in pair.
func (s *ReservationService) TransferBetweenFolios(ctx context.Context, req TransferRequest) ([]model.FolioTransaction, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, model.Validation("transfer amount must be positive", map[string]any{"amount": req.Amount.String()})
	}
	at := s.now()

	var out []model.FolioTransaction
	err := s.orch.Execute(ctx, func(ctx context.Context, tx Tx, fx *Effects) error {
		from, err := tx.Folios().Get(ctx, req.FromFolioID)
		if err != nil {
			return err
		}
		to, err := tx.Folios().Get(ctx, req.ToFolioID)
		if err != nil {
			return err
		}
		for _, f := range []*model.Folio{from, to} {
			if f.Status != model.FolioOpen {
				return model.InvalidState("transfer", f.Status, model.FolioOpen)
			}
		}
		if from.ReservationID != to.ReservationID {
			return model.Validation("folios belong to different reservations", map[string]any{
				"from_reservation_id": from.ReservationID,
				"to_reservation_id":   to.ReservationID,
			})
		}
		desc := req.Description
		if desc == "" {
			desc = fmt.Sprintf("Transfer folio %d to folio %d", from.ID, to.ID)
		}
		outTxn := model.FolioTransaction{
			FolioID: from.ID, ReservationID: from.ReservationID, ReservationRoomID: from.ReservationRoomID,
			Type: model.TxnTransfer, Category: model.CategoryTransferOut, Description: desc,
			Amount: req.Amount.Neg(), Status: model.TxnPosted,
			PostingDate: at, ServiceDate: at, TransactionDate: at, CreatedBy: req.ActorID, CreatedAt: at,
		}
		inTxn := outTxn
		inTxn.FolioID, inTxn.ReservationRoomID = to.ID, to.ReservationRoomID
		inTxn.Category, inTxn.Amount = model.CategoryTransferIn, req.Amount
		if err := postTransaction(ctx, tx, from, &outTxn); err != nil {
			return err
		}
		if err := postTransaction(ctx, tx, to, &inTxn); err != nil {
			return err
		}
		if err := tx.Audit().Log(ctx, model.AuditEntry{
			ActorID:     req.ActorID,
			Action:      "folio.transfer",
			EntityType:  "folio",
			EntityID:    from.ID,
			HotelID:     from.HotelID,
			Description: desc,
			Meta:        map[string]any{"to_folio_id": to.ID, "amount": req.Amount.StringFixed(2)},
		}); err != nil {
			return err
		}
		out = []model.FolioTransaction{outTxn, inTxn}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EnsureFolios opens the guest folio of a reservation that has none yet and
// posts its nightly room charges.  It is the post-confirmation job and is
// safe to run more than once.
func (s *ReservationService) EnsureFolios(ctx context.Context, reservationID, actorID uint64) error {
	at := s.now()
	return s.orch.Execute(ctx, func(ctx context.Context, tx Tx, _ *Effects) error {
		res, lines, err := loadReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if !res.Status.In(model.ReservationPending, model.ReservationConfirmed, model.ReservationCheckedIn) {
			return nil
		}
		existing, err := tx.Folios().ListByReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
		f, err := openFolio(ctx, tx, res, nil, actorID, at)
		if err != nil {
			return err
		}
		for i := range lines {
			if !lines[i].Status.Active() || lines[i].Status == model.AssignmentNoShow {
				continue
			}
			if err := postRoomCharges(ctx, tx, f, &lines[i], actorID, at); err != nil {
				return err
			}
		}
		return tx.Audit().Log(ctx, model.AuditEntry{
			ActorID:     actorID,
			Action:      "folio.open",
			EntityType:  "folio",
			EntityID:    f.ID,
			HotelID:     f.HotelID,
			Description: "Guest folio opened on confirmation",
			Meta:        map[string]any{"reservation_id": res.ID},
		})
	})
}

func defaultCategory(t model.TransactionType) model.TransactionCategory {
	switch t {
	case model.TxnRoomPosting:
		return model.CategoryRoomCharge
	case model.TxnPayment:
		return model.CategoryPayment
	case model.TxnRefund:
		return model.CategoryRefund
	}
	return model.CategoryMisc
}

func filterFolios(folios []model.Folio, status model.FolioStatus) []model.Folio {
	var out []model.Folio
	for _, f := range folios {
		if f.Status == status {
			out = append(out, f)
		}
	}
	return out
}

// postTransaction stores t and rewrites f's totals.  f.Transactions must be
// the loaded ledger of f.
func postTransaction(ctx context.Context, tx Tx, f *model.Folio, t *model.FolioTransaction) error {
	if err := tx.Folios().CreateTransaction(ctx, t); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return updateFolioTotals(ctx, tx, f)
}

// voidTransaction marks t voided and optionally records the reversal.  It
// reports false when t was no longer posted.
func voidTransaction(ctx context.Context, tx Tx, t *model.FolioTransaction, at time.Time, actorID uint64, reason string, reverse bool) (bool, error) {
	orig := *t
	if !ledger.MarkVoided(t, at, actorID, reason) {
		return false, nil
	}
	if err := tx.Folios().UpdateTransaction(ctx, t); err != nil {
		return false, fmt.Errorf("void transaction: %w", err)
	}
	if reverse {
		rev := ledger.Reversal(orig, at, actorID, reason)
		if err := tx.Folios().CreateTransaction(ctx, &rev); err != nil {
			return false, fmt.Errorf("post reversal: %w", err)
		}
	}
	return true, nil
}

// updateFolioTotals reloads the ledger of f and rewrites its aggregates.
func updateFolioTotals(ctx context.Context, tx Tx, f *model.Folio) error {
	txns, err := tx.Folios().ListTransactions(ctx, f.ID)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	f.Transactions = txns
	ledger.ApplyTotals(f, ledger.Aggregate(txns))
	if err := tx.Folios().Update(ctx, f); err != nil {
		return fmt.Errorf("update folio: %w", err)
	}
	return nil
}

func openFolio(ctx context.Context, tx Tx, res *model.Reservation, lineID *uint64, actorID uint64, at time.Time) (*model.Folio, error) {
	var guest *uint64
	if res.GuestID != 0 {
		guest = ptr(res.GuestID)
	}
	f := &model.Folio{
		HotelID:           res.HotelID,
		ReservationID:     res.ID,
		ReservationRoomID: lineID,
		GuestID:           guest,
		Status:            model.FolioOpen,
		WorkflowStatus:    model.WorkflowActive,
		Currency:          res.Currency,
		OpenedAt:          at,
		OpenedBy:          actorID,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
	if err := tx.Folios().Create(ctx, f); err != nil {
		return nil, fmt.Errorf("open folio: %w", err)
	}
	return f, nil
}

// folioSet tracks the folios of one reservation through an operation,
// including folios opened while it runs.
type folioSet struct {
	list []*model.Folio
}

func newFolioSet(folios []model.Folio) *folioSet {
	fs := &folioSet{list: make([]*model.Folio, len(folios))}
	for i := range folios {
		fs.list[i] = &folios[i]
	}
	return fs
}

func (fs *folioSet) open() []*model.Folio {
	var out []*model.Folio
	for _, f := range fs.list {
		if f.Status == model.FolioOpen {
			out = append(out, f)
		}
	}
	return out
}

// forLine picks the open folio a fee for line belongs to: the line's own
// folio, else the guest folio, else any open folio.  A folio is opened when
// the reservation has none.
func (fs *folioSet) forLine(ctx context.Context, tx Tx, res *model.Reservation, line *model.ReservationRoom, actorID uint64, at time.Time) (*model.Folio, error) {
	var guest, fallback *model.Folio
	for _, f := range fs.open() {
		if line != nil && f.ReservationRoomID != nil && *f.ReservationRoomID == line.ID {
			return f, nil
		}
		if guest == nil && f.ReservationRoomID == nil {
			guest = f
		}
		if fallback == nil {
			fallback = f
		}
	}
	if guest != nil {
		return guest, nil
	}
	if fallback != nil {
		return fallback, nil
	}
	f, err := openFolio(ctx, tx, res, nil, actorID, at)
	if err != nil {
		return nil, err
	}
	fs.list = append(fs.list, f)
	return f, nil
}

// postRoomCharges posts one room_posting per billable night of line.
func postRoomCharges(ctx context.Context, tx Tx, f *model.Folio, line *model.ReservationRoom, actorID uint64, at time.Time) error {
	roomLabel := ""
	if line.RoomID != nil {
		room, err := tx.Rooms().FindRoom(ctx, *line.RoomID)
		if err != nil {
			return err
		}
		roomLabel = " - Room " + room.RoomNumber
	}
	first := now.With(line.CheckInAt).BeginningOfDay()
	tax := line.RateAmount.Mul(line.TaxRate).Round(2)
	for i := 0; i < line.BillableUnits(); i++ {
		day := first.AddDate(0, 0, i)
		t := model.FolioTransaction{
			FolioID:           f.ID,
			ReservationID:     line.ReservationID,
			ReservationRoomID: ptr(line.ID),
			Type:              model.TxnRoomPosting,
			Category:          model.CategoryRoomCharge,
			Description:       "Room charge" + roomLabel + " - " + day.Format("2006-01-02"),
			Amount:            line.RateAmount,
			TaxAmount:         tax,
			Status:            model.TxnPosted,
			PostingDate:       at,
			ServiceDate:       day,
			TransactionDate:   at,
			CreatedBy:         actorID,
			CreatedAt:         at,
		}
		if err := tx.Folios().CreateTransaction(ctx, &t); err != nil {
			return fmt.Errorf("post room charge: %w", err)
		}
	}
	return updateFolioTotals(ctx, tx, f)
}

// stripRoomNumber removes the " - Room <number>" part of a charge
// description.
func stripRoomNumber(desc, number string) string {
	return strings.Replace(desc, " - Room "+number, "", 1)
}

// ReassignTransactionsForMove points every ledger entry of from whose
// service date is on or after the effective date at to.  Earlier entries
// stay on the original line.
func ReassignTransactionsForMove(ctx context.Context, tx Tx, reservationID uint64, from, to *model.ReservationRoom, effective time.Time) error {
	folios, err := tx.Folios().ListByReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	cutoff := now.With(effective).BeginningOfDay()
	for i := range folios {
		f := &folios[i]
		for j := range f.Transactions {
			t := &f.Transactions[j]
			if t.ReservationRoomID == nil || *t.ReservationRoomID != from.ID {
				continue
			}
			if t.ServiceDate.Before(cutoff) {
				continue
			}
			t.ReservationRoomID = ptr(to.ID)
			if err := tx.Folios().UpdateTransaction(ctx, t); err != nil {
				return fmt.Errorf("reassign transaction: %w", err)
			}
		}
		if f.Status == model.FolioOpen && f.ReservationRoomID != nil && *f.ReservationRoomID == from.ID {
			f.ReservationRoomID = ptr(to.ID)
			f.ReservationID = to.ReservationID
			if err := tx.Folios().Update(ctx, f); err != nil {
				return fmt.Errorf("repoint folio: %w", err)
			}
		}
	}
	return nil
}

// postFee posts a fee charge for line (or the whole reservation when line
// is nil) onto f.
func postFee(ctx context.Context, tx Tx, f *model.Folio, line *model.ReservationRoom, category model.TransactionCategory, amount decimal.Decimal, desc string, actorID uint64, at time.Time) (*model.FolioTransaction, error) {
	t := &model.FolioTransaction{
		FolioID:         f.ID,
		ReservationID:   f.ReservationID,
		Type:            model.TxnCharge,
		Category:        category,
		Description:     desc,
		Amount:          amount,
		Status:          model.TxnPosted,
		PostingDate:     at,
		ServiceDate:     at,
		TransactionDate: at,
		CreatedBy:       actorID,
		CreatedAt:       at,
	}
	if line != nil {
		t.ReservationRoomID = ptr(line.ID)
	}
	if err := postTransaction(ctx, tx, f, t); err != nil {
		return nil, err
	}
	return t, nil
}

// cancelTransactions marks the posted entries of f accepted by match as
// cancelled.
func cancelTransactions(ctx context.Context, tx Tx, f *model.Folio, match func(*model.FolioTransaction) bool, actorID uint64, reason string, at time.Time) error {
	for i := range f.Transactions {
		t := &f.Transactions[i]
		if match != nil && !match(t) {
			continue
		}
		if !ledger.MarkCancelled(t, at, actorID, reason) {
			continue
		}
		if err := tx.Folios().UpdateTransaction(ctx, t); err != nil {
			return fmt.Errorf("cancel transaction: %w", err)
		}
	}
	return nil
}

// reverseTransactions voids with a reversal every active entry of f
// accepted by match.
func reverseTransactions(ctx context.Context, tx Tx, f *model.Folio, match func(*model.FolioTransaction) bool, actorID uint64, reason string, at time.Time) error {
	// Iterate over a copy; reversals are appended to the ledger as we go.
	txns := append([]model.FolioTransaction(nil), f.Transactions...)
	for i := range txns {
		t := &txns[i]
		if !t.Active() || (match != nil && !match(t)) {
			continue
		}
		if _, err := voidTransaction(ctx, tx, t, at, actorID, reason, true); err != nil {
			return err
		}
	}
	return nil
}

// closeFolio closes an open folio.  Closed folios keep their ledger.
func closeFolio(ctx context.Context, tx Tx, f *model.Folio, actorID uint64, at time.Time) error {
	if f.Status != model.FolioOpen {
		return nil
	}
	f.Status = model.FolioClosed
	f.WorkflowStatus = model.WorkflowSettled
	f.ClosedAt = ptr(at)
	f.ClosedBy = ptr(actorID)
	f.UpdatedAt = at
	return updateFolioTotals(ctx, tx, f)
}

// voidFolio reverses every active entry of f except those in keep and
// marks the folio voided.  Already voided folios are left alone.
func voidFolio(ctx context.Context, tx Tx, f *model.Folio, keep map[uint64]bool, actorID uint64, reason string, at time.Time) error {
	if f.Status == model.FolioVoided {
		return nil
	}
	if err := reverseTransactions(ctx, tx, f, func(t *model.FolioTransaction) bool { return !keep[t.ID] }, actorID, reason, at); err != nil {
		return err
	}
	f.Status = model.FolioVoided
	f.WorkflowStatus = model.WorkflowReversed
	f.ClosedAt = ptr(at)
	f.ClosedBy = ptr(actorID)
	f.UpdatedAt = at
	return updateFolioTotals(ctx, tx, f)
}

// reopenFolio undoes a close made at the same calendar day as at.
func reopenFolio(ctx context.Context, tx Tx, f *model.Folio, at time.Time) (bool, error) {
	if f.Status != model.FolioClosed || f.ClosedAt == nil || !model.SameDay(at, *f.ClosedAt) {
		return false, nil
	}
	f.Status = model.FolioOpen
	f.WorkflowStatus = model.WorkflowActive
	f.ClosedAt = nil
	f.ClosedBy = nil
	f.UpdatedAt = at
	return true, updateFolioTotals(ctx, tx, f)
}

func lineSet(lines []*model.ReservationRoom) map[uint64]bool {
	set := make(map[uint64]bool, len(lines))
	for _, l := range lines {
		set[l.ID] = true
	}
	return set
}

func onLines(set map[uint64]bool) func(*model.FolioTransaction) bool {
	return func(t *model.FolioTransaction) bool {
		return t.ReservationRoomID != nil && set[*t.ReservationRoomID]
	}
}
