// Package ledger is the folio balance engine.  Everything here is a pure
// function over already-loaded folios and transactions so the same code
// backs the checkout gate, the folio running totals and the balance
// endpoints.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// BalanceStatus classifies the sign of an outstanding balance.
type BalanceStatus string

const (
	BalanceOutstanding BalanceStatus = "outstanding"
	BalanceCredit      BalanceStatus = "credit"
	BalanceSettled     BalanceStatus = "settled"
)

// Summary is the aggregate of a set of transactions.  All amounts are
// rounded to two decimal places once, after aggregation.
type Summary struct {
	TotalCharges        decimal.Decimal `json:"total_charges"`
	TotalPayments       decimal.Decimal `json:"total_payments"`
	TotalAdjustments    decimal.Decimal `json:"total_adjustments"`
	TotalTaxes          decimal.Decimal `json:"total_taxes"`
	TotalServiceCharges decimal.Decimal `json:"total_service_charges"`
	TotalDiscounts      decimal.Decimal `json:"total_discounts"`
	OutstandingBalance  decimal.Decimal `json:"outstanding_balance"`
	BalanceStatus       BalanceStatus   `json:"balance_status"`
}

// ComputeBalance aggregates the transactions of every given folio.
func ComputeBalance(folios []model.Folio) Summary {
	var acc accumulator
	for i := range folios {
		for j := range folios[i].Transactions {
			acc.add(&folios[i].Transactions[j])
		}
	}
	return acc.summary()
}

// Aggregate is ComputeBalance over a flat transaction list.
func Aggregate(txns []model.FolioTransaction) Summary {
	var acc accumulator
	for i := range txns {
		acc.add(&txns[i])
	}
	return acc.summary()
}

type accumulator struct {
	charges, payments, adjustments, taxes, service, discounts decimal.Decimal
}

// add folds one entry into the running sums.  Voided and cancelled entries
// are skipped, and so are void-type reversal entries: the original they
// offset is already excluded, counting the reversal too would offset it
// twice.  Payments, refunds and discounts are taken by magnitude so both
// sign conventions used by payment gateways produce the same balance.
func (a *accumulator) add(t *model.FolioTransaction) {
	if !t.Active() {
		return
	}
	switch t.Type {
	case model.TxnCharge, model.TxnRoomPosting:
		a.charges = a.charges.Add(t.Amount)
	case model.TxnTransfer:
		switch t.Category {
		case model.CategoryTransferIn:
			a.charges = a.charges.Add(t.Amount)
		case model.CategoryTransferOut:
			a.payments = a.payments.Add(t.Amount.Abs())
		}
	case model.TxnPayment:
		a.payments = a.payments.Add(t.Amount.Abs())
	case model.TxnAdjustment:
		a.adjustments = a.adjustments.Add(t.Amount)
	case model.TxnTax:
		a.taxes = a.taxes.Add(t.Amount)
	case model.TxnDiscount:
		d := t.Amount.Abs()
		a.discounts = a.discounts.Add(d)
		a.charges = a.charges.Sub(d)
	case model.TxnRefund:
		a.payments = a.payments.Sub(t.Amount.Abs())
	}
	a.service = a.service.Add(t.ServiceChargeAmount)
	a.taxes = a.taxes.Add(t.TaxAmount)
}

func (a *accumulator) summary() Summary {
	s := Summary{
		TotalCharges:        a.charges.Round(2),
		TotalPayments:       a.payments.Round(2),
		TotalAdjustments:    a.adjustments.Round(2),
		TotalTaxes:          a.taxes.Round(2),
		TotalServiceCharges: a.service.Round(2),
		TotalDiscounts:      a.discounts.Round(2),
	}
	outstanding := a.charges.Add(a.taxes).Add(a.service).Sub(a.payments).Add(a.adjustments)
	s.OutstandingBalance = outstanding.Round(2)
	s.BalanceStatus = StatusOf(s.OutstandingBalance)
	return s
}

// StatusOf classifies a balance.
func StatusOf(balance decimal.Decimal) BalanceStatus {
	switch balance.Sign() {
	case 1:
		return BalanceOutstanding
	case -1:
		return BalanceCredit
	}
	return BalanceSettled
}

// ApplyTotals overwrites the folio's running aggregates with s.
func ApplyTotals(f *model.Folio, s Summary) {
	f.TotalCharges = s.TotalCharges
	f.TotalPayments = s.TotalPayments
	f.TotalAdjustments = s.TotalAdjustments
	f.TotalTaxes = s.TotalTaxes
	f.TotalServiceCharges = s.TotalServiceCharges
	f.TotalDiscounts = s.TotalDiscounts
	f.Balance = s.OutstandingBalance
}

// Reversal builds the equal-and-opposite entry recorded next to a voided
// transaction.  The original keeps its amounts; only its status changes.
func Reversal(orig model.FolioTransaction, at time.Time, actorID uint64, reason string) model.FolioTransaction {
	id := orig.ID
	return model.FolioTransaction{
		FolioID:             orig.FolioID,
		ReservationID:       orig.ReservationID,
		ReservationRoomID:   orig.ReservationRoomID,
		Type:                model.TxnVoid,
		Category:            model.CategoryReversal,
		Description:         "Reversal: " + orig.Description,
		Amount:              orig.Amount.Neg(),
		TaxAmount:           orig.TaxAmount.Neg(),
		ServiceChargeAmount: orig.ServiceChargeAmount.Neg(),
		DiscountAmount:      orig.DiscountAmount.Neg(),
		Status:              model.TxnPosted,
		PostingDate:         at,
		ServiceDate:         orig.ServiceDate,
		TransactionDate:     at,
		ReversesID:          &id,
		VoidReason:          &reason,
		CreatedBy:           actorID,
		CreatedAt:           at,
	}
}

// MarkVoided sets the void metadata on t.  It returns false when t was
// already voided or cancelled, leaving it untouched.
func MarkVoided(t *model.FolioTransaction, at time.Time, actorID uint64, reason string) bool {
	if t.Status != model.TxnPosted {
		return false
	}
	t.Status = model.TxnVoided
	t.VoidReason = &reason
	t.VoidedAt = &at
	t.VoidedBy = &actorID
	return true
}

// MarkCancelled is MarkVoided for the cancellation path, which closes the
// folio instead of reversing it.
func MarkCancelled(t *model.FolioTransaction, at time.Time, actorID uint64, reason string) bool {
	if t.Status != model.TxnPosted || t.Type == model.TxnVoid {
		return false
	}
	t.Status = model.TxnCancelled
	t.VoidReason = &reason
	t.VoidedAt = &at
	t.VoidedBy = &actorID
	return true
}
