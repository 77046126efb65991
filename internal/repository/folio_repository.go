package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// FolioRepo persists folios and their ledger entries.
type FolioRepo struct {
	db *sqlx.DB
}

func NewFolioRepo(db *sqlx.DB) *FolioRepo { return &FolioRepo{db: db} }

const folioColumns = `id, hotel_id, reservation_id, reservation_room_id, guest_id,
	status, workflow_status, total_charges, total_payments, total_adjustments,
	total_taxes, total_service_charges, total_discounts, balance, currency,
	opened_at, opened_by, closed_at, closed_by, created_at, updated_at`

const transactionColumns = `id, folio_id, reservation_id, reservation_room_id, type, category,
	description, amount, tax_amount, service_charge_amount, discount_amount, status,
	posting_date, service_date, transaction_date, reverses_id,
	void_reason, voided_at, voided_by, created_by, created_at`

// GetTx loads and locks a folio with its transactions.
func (r *FolioRepo) GetTx(ctx context.Context, tx *sqlx.Tx, id uint64) (*model.Folio, error) {
	var f model.Folio
	if err := tx.GetContext(ctx, &f, `SELECT `+folioColumns+` FROM folios WHERE id = ? FOR UPDATE`, id); err != nil {
		return nil, mapErr(err, "folio", id)
	}
	txns, err := r.ListTransactionsTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	f.Transactions = txns
	return &f, nil
}

// ListByReservationTx loads and locks the folios of a reservation with
// their transactions, in id order.
func (r *FolioRepo) ListByReservationTx(ctx context.Context, tx *sqlx.Tx, reservationID uint64) ([]model.Folio, error) {
	folios := []model.Folio{}
	q := `SELECT ` + folioColumns + ` FROM folios WHERE reservation_id = ? ORDER BY id FOR UPDATE`
	if err := tx.SelectContext(ctx, &folios, q, reservationID); err != nil {
		return nil, mapErr(err, "folio", 0)
	}
	if len(folios) == 0 {
		return folios, nil
	}
	ids := make([]uint64, len(folios))
	index := make(map[uint64]int, len(folios))
	for i, f := range folios {
		ids[i] = f.ID
		index[f.ID] = i
	}
	q, args, err := sqlx.In(`SELECT `+transactionColumns+` FROM folio_transactions WHERE folio_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("build transaction query: %w", err)
	}
	var txns []model.FolioTransaction
	if err := tx.SelectContext(ctx, &txns, tx.Rebind(q), args...); err != nil {
		return nil, mapErr(err, "folio transaction", 0)
	}
	for _, t := range txns {
		i := index[t.FolioID]
		folios[i].Transactions = append(folios[i].Transactions, t)
	}
	return folios, nil
}

func (r *FolioRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, f *model.Folio) error {
	const q = `INSERT INTO folios (
		hotel_id, reservation_id, reservation_room_id, guest_id, status, workflow_status,
		total_charges, total_payments, total_adjustments, total_taxes,
		total_service_charges, total_discounts, balance, currency,
		opened_at, opened_by, closed_at, closed_by, created_at, updated_at
	) VALUES (
		:hotel_id, :reservation_id, :reservation_room_id, :guest_id, :status, :workflow_status,
		:total_charges, :total_payments, :total_adjustments, :total_taxes,
		:total_service_charges, :total_discounts, :balance, :currency,
		:opened_at, :opened_by, :closed_at, :closed_by, :created_at, :updated_at
	)`
	result, err := tx.NamedExecContext(ctx, q, f)
	if err != nil {
		return mapErr(err, "folio", 0)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = uint64(id)
	return nil
}

// UpdateTx writes the folio header.  Transactions are stored separately.
func (r *FolioRepo) UpdateTx(ctx context.Context, tx *sqlx.Tx, f *model.Folio) error {
	const q = `UPDATE folios SET
		reservation_id = :reservation_id, reservation_room_id = :reservation_room_id,
		status = :status, workflow_status = :workflow_status,
		total_charges = :total_charges, total_payments = :total_payments,
		total_adjustments = :total_adjustments, total_taxes = :total_taxes,
		total_service_charges = :total_service_charges, total_discounts = :total_discounts,
		balance = :balance, closed_at = :closed_at, closed_by = :closed_by,
		updated_at = :updated_at
	WHERE id = :id`
	result, err := tx.NamedExecContext(ctx, q, f)
	if err != nil {
		return mapErr(err, "folio", f.ID)
	}
	return expectRow(result, "folio", f.ID)
}

func (r *FolioRepo) ListTransactionsTx(ctx context.Context, tx *sqlx.Tx, folioID uint64) ([]model.FolioTransaction, error) {
	out := []model.FolioTransaction{}
	q := `SELECT ` + transactionColumns + ` FROM folio_transactions WHERE folio_id = ? ORDER BY id`
	if err := tx.SelectContext(ctx, &out, q, folioID); err != nil {
		return nil, mapErr(err, "folio transaction", 0)
	}
	return out, nil
}

func (r *FolioRepo) GetTransactionTx(ctx context.Context, tx *sqlx.Tx, id uint64) (*model.FolioTransaction, error) {
	var t model.FolioTransaction
	q := `SELECT ` + transactionColumns + ` FROM folio_transactions WHERE id = ? FOR UPDATE`
	if err := tx.GetContext(ctx, &t, q, id); err != nil {
		return nil, mapErr(err, "folio transaction", id)
	}
	return &t, nil
}

func (r *FolioRepo) CreateTransactionTx(ctx context.Context, tx *sqlx.Tx, t *model.FolioTransaction) error {
	const q = `INSERT INTO folio_transactions (
		folio_id, reservation_id, reservation_room_id, type, category, description,
		amount, tax_amount, service_charge_amount, discount_amount, status,
		posting_date, service_date, transaction_date, reverses_id,
		void_reason, voided_at, voided_by, created_by, created_at
	) VALUES (
		:folio_id, :reservation_id, :reservation_room_id, :type, :category, :description,
		:amount, :tax_amount, :service_charge_amount, :discount_amount, :status,
		:posting_date, :service_date, :transaction_date, :reverses_id,
		:void_reason, :voided_at, :voided_by, :created_by, :created_at
	)`
	result, err := tx.NamedExecContext(ctx, q, t)
	if err != nil {
		return mapErr(err, "folio transaction", 0)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// UpdateTransactionTx writes the columns that may change after posting:
// status, void metadata, line, folio and description.
func (r *FolioRepo) UpdateTransactionTx(ctx context.Context, tx *sqlx.Tx, t *model.FolioTransaction) error {
	const q = `UPDATE folio_transactions SET
		folio_id = :folio_id, reservation_room_id = :reservation_room_id,
		description = :description, status = :status,
		void_reason = :void_reason, voided_at = :voided_at, voided_by = :voided_by
	WHERE id = :id`
	result, err := tx.NamedExecContext(ctx, q, t)
	if err != nil {
		return mapErr(err, "folio transaction", t.ID)
	}
	return expectRow(result, "folio transaction", t.ID)
}

// DeleteTransactionsTx removes ledger rows.  Only the room charge
// retraction of a stay amendment calls it.
func (r *FolioRepo) DeleteTransactionsTx(ctx context.Context, tx *sqlx.Tx, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM folio_transactions WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build delete query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
		return mapErr(err, "folio transaction", 0)
	}
	return nil
}

type txFolios struct {
	repo *FolioRepo
	tx   *sqlx.Tx
}

func (s txFolios) Get(ctx context.Context, id uint64) (*model.Folio, error) {
	return s.repo.GetTx(ctx, s.tx, id)
}

func (s txFolios) ListByReservation(ctx context.Context, reservationID uint64) ([]model.Folio, error) {
	return s.repo.ListByReservationTx(ctx, s.tx, reservationID)
}

func (s txFolios) Create(ctx context.Context, f *model.Folio) error {
	return s.repo.CreateTx(ctx, s.tx, f)
}

func (s txFolios) Update(ctx context.Context, f *model.Folio) error {
	return s.repo.UpdateTx(ctx, s.tx, f)
}

func (s txFolios) ListTransactions(ctx context.Context, folioID uint64) ([]model.FolioTransaction, error) {
	return s.repo.ListTransactionsTx(ctx, s.tx, folioID)
}

func (s txFolios) GetTransaction(ctx context.Context, id uint64) (*model.FolioTransaction, error) {
	return s.repo.GetTransactionTx(ctx, s.tx, id)
}

func (s txFolios) CreateTransaction(ctx context.Context, t *model.FolioTransaction) error {
	return s.repo.CreateTransactionTx(ctx, s.tx, t)
}

func (s txFolios) UpdateTransaction(ctx context.Context, t *model.FolioTransaction) error {
	return s.repo.UpdateTransactionTx(ctx, s.tx, t)
}

func (s txFolios) DeleteTransactions(ctx context.Context, ids []uint64) error {
	return s.repo.DeleteTransactionsTx(ctx, s.tx, ids)
}
