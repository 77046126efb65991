package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Folio is a guest-facing sub-ledger tied to a reservation.  The running
// aggregates are a cache of what ledger.ComputeBalance derives from the
// folio's transactions; they are rewritten whole by UpdateFolioTotals and
// never decremented in place.
type Folio struct {
	ID                  uint64              `db:"id" json:"id"`
	HotelID             uint64              `db:"hotel_id" json:"hotel_id"`
	ReservationID       uint64              `db:"reservation_id" json:"reservation_id"`
	ReservationRoomID   *uint64             `db:"reservation_room_id" json:"reservation_room_id,omitempty"`
	GuestID             *uint64             `db:"guest_id" json:"guest_id,omitempty"`
	Status              FolioStatus         `db:"status" json:"status"`
	WorkflowStatus      FolioWorkflowStatus `db:"workflow_status" json:"workflow_status"`
	TotalCharges        decimal.Decimal     `db:"total_charges" json:"total_charges"`
	TotalPayments       decimal.Decimal     `db:"total_payments" json:"total_payments"`
	TotalAdjustments    decimal.Decimal     `db:"total_adjustments" json:"total_adjustments"`
	TotalTaxes          decimal.Decimal     `db:"total_taxes" json:"total_taxes"`
	TotalServiceCharges decimal.Decimal     `db:"total_service_charges" json:"total_service_charges"`
	TotalDiscounts      decimal.Decimal     `db:"total_discounts" json:"total_discounts"`
	Balance             decimal.Decimal     `db:"balance" json:"balance"`
	Currency            string              `db:"currency" json:"currency"`
	OpenedAt            time.Time           `db:"opened_at" json:"opened_at"`
	OpenedBy            uint64              `db:"opened_by" json:"opened_by"`
	ClosedAt            *time.Time          `db:"closed_at" json:"closed_at,omitempty"`
	ClosedBy            *uint64             `db:"closed_by" json:"closed_by,omitempty"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at" json:"updated_at"`

	// Transactions is loaded separately by the folio store.
	Transactions []FolioTransaction `db:"-" json:"transactions,omitempty"`
}

// FolioTransaction is an append-mostly ledger entry.  After posting, only
// the status and void metadata change; room charges are the one exception
// and are retracted and reposted as a whole by a stay amendment.
type FolioTransaction struct {
	ID                  uint64              `db:"id" json:"id"`
	FolioID             uint64              `db:"folio_id" json:"folio_id"`
	ReservationID       uint64              `db:"reservation_id" json:"reservation_id"`
	ReservationRoomID   *uint64             `db:"reservation_room_id" json:"reservation_room_id,omitempty"`
	Type                TransactionType     `db:"type" json:"type"`
	Category            TransactionCategory `db:"category" json:"category"`
	Description         string              `db:"description" json:"description"`
	Amount              decimal.Decimal     `db:"amount" json:"amount"`
	TaxAmount           decimal.Decimal     `db:"tax_amount" json:"tax_amount"`
	ServiceChargeAmount decimal.Decimal     `db:"service_charge_amount" json:"service_charge_amount"`
	DiscountAmount      decimal.Decimal     `db:"discount_amount" json:"discount_amount"`
	Status              TransactionStatus   `db:"status" json:"status"`
	PostingDate         time.Time           `db:"posting_date" json:"posting_date"`
	ServiceDate         time.Time           `db:"service_date" json:"service_date"`
	TransactionDate     time.Time           `db:"transaction_date" json:"transaction_date"`
	ReversesID          *uint64             `db:"reverses_id" json:"reverses_id,omitempty"`
	VoidReason          *string             `db:"void_reason" json:"void_reason,omitempty"`
	VoidedAt            *time.Time          `db:"voided_at" json:"voided_at,omitempty"`
	VoidedBy            *uint64             `db:"voided_by" json:"voided_by,omitempty"`
	CreatedBy           uint64              `db:"created_by" json:"created_by"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
}

// Active reports whether the entry still counts toward the folio balance.
func (t *FolioTransaction) Active() bool {
	return t.Status.Counts() && t.Type != TxnVoid
}

// IsRoomCharge reports whether the entry is a nightly room charge, the only
// kind of entry a stay amendment retracts.
func (t *FolioTransaction) IsRoomCharge() bool {
	return t.Type == TxnRoomPosting ||
		(t.Type == TxnCharge && t.Category == CategoryRoomCharge)
}

// AuditEntry is one audit-log record written inside the unit of work that
// performs the mutation it describes.
type AuditEntry struct {
	ActorID     uint64         `json:"actor_id"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entity_type"`
	EntityID    uint64         `json:"entity_id"`
	HotelID     uint64         `json:"hotel_id"`
	Description string         `json:"description"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// GuestSummary holds per-guest statistics derived from reservations and
// folios.  It is recomputed after commit and may lag briefly.
type GuestSummary struct {
	GuestID         uint64          `db:"guest_id" json:"guest_id"`
	TotalStays      int             `db:"total_stays" json:"total_stays"`
	TotalNights     int             `db:"total_nights" json:"total_nights"`
	Cancellations   int             `db:"cancellations" json:"cancellations"`
	NoShows         int             `db:"no_shows" json:"no_shows"`
	TotalSpent      decimal.Decimal `db:"total_spent" json:"total_spent"`
	LastDepartureAt *time.Time      `db:"last_departure_at" json:"last_departure_at,omitempty"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}
