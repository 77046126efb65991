package model

import (
	"fmt"
	"strings"
)

// ReservationStatus is the aggregate state of a booking.  It is derived from
// the statuses of the reservation's room lines; see DeriveReservationStatus.
type ReservationStatus string

const (
	ReservationPending    ReservationStatus = "pending"
	ReservationConfirmed  ReservationStatus = "confirmed"
	ReservationCheckedIn  ReservationStatus = "checked_in"
	ReservationCheckedOut ReservationStatus = "checked_out"
	ReservationCompleted  ReservationStatus = "completed"
	ReservationCancelled  ReservationStatus = "cancelled"
	ReservationNoShow     ReservationStatus = "no_show"
	ReservationVoided     ReservationStatus = "voided"
)

// AssignmentStatus is the state of a single room line of a reservation.
type AssignmentStatus string

const (
	AssignmentReserved   AssignmentStatus = "reserved"
	AssignmentCheckedIn  AssignmentStatus = "checked_in"
	AssignmentCheckedOut AssignmentStatus = "checked_out"
	AssignmentCancelled  AssignmentStatus = "cancelled"
	AssignmentNoShow     AssignmentStatus = "no_show"
	AssignmentVoided     AssignmentStatus = "voided"
)

// FolioStatus is the ledger state of a folio.
type FolioStatus string

const (
	FolioOpen   FolioStatus = "open"
	FolioClosed FolioStatus = "closed"
	FolioVoided FolioStatus = "voided"
)

// FolioWorkflowStatus tracks where a folio is in the billing workflow,
// independent of whether it still accepts postings.
type FolioWorkflowStatus string

const (
	WorkflowActive      FolioWorkflowStatus = "active"
	WorkflowSettled     FolioWorkflowStatus = "settled"
	WorkflowTransferred FolioWorkflowStatus = "transferred"
	WorkflowReversed    FolioWorkflowStatus = "reversed"
)

type TransactionType string

const (
	TxnCharge      TransactionType = "charge"
	TxnRoomPosting TransactionType = "room_posting"
	TxnPayment     TransactionType = "payment"
	TxnAdjustment  TransactionType = "adjustment"
	TxnTax         TransactionType = "tax"
	TxnDiscount    TransactionType = "discount"
	TxnRefund      TransactionType = "refund"
	TxnTransfer    TransactionType = "transfer"
	TxnVoid        TransactionType = "void"
)

type TransactionCategory string

const (
	CategoryRoomCharge      TransactionCategory = "room_charge"
	CategoryNoShowFee       TransactionCategory = "no_show_fee"
	CategoryCancellationFee TransactionCategory = "cancellation_fee"
	CategoryTransferIn      TransactionCategory = "transfer_in"
	CategoryTransferOut     TransactionCategory = "transfer_out"
	CategoryPayment         TransactionCategory = "payment"
	CategoryRefund          TransactionCategory = "refund"
	CategoryMisc            TransactionCategory = "misc"
	CategoryReversal        TransactionCategory = "reversal"
)

type TransactionStatus string

const (
	TxnPosted    TransactionStatus = "posted"
	TxnVoided    TransactionStatus = "voided"
	TxnCancelled TransactionStatus = "cancelled"
)

type RoomStatus string

const (
	RoomAvailable   RoomStatus = "available"
	RoomOccupied    RoomStatus = "occupied"
	RoomMaintenance RoomStatus = "maintenance"
)

type HousekeepingStatus string

const (
	HousekeepingClean HousekeepingStatus = "clean"
	HousekeepingDirty HousekeepingStatus = "dirty"
)

// normalize folds the spellings seen in stored data and request bodies
// ("Checked-In", "checked in", "CANCELED") onto the canonical snake_case form.
func normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	switch s {
	case "canceled":
		return "cancelled"
	case "noshow":
		return "no_show"
	case "checkedin":
		return "checked_in"
	case "checkedout":
		return "checked_out"
	}
	return s
}

var reservationStatuses = map[string]ReservationStatus{
	"pending":     ReservationPending,
	"confirmed":   ReservationConfirmed,
	"checked_in":  ReservationCheckedIn,
	"checked_out": ReservationCheckedOut,
	"completed":   ReservationCompleted,
	"cancelled":   ReservationCancelled,
	"no_show":     ReservationNoShow,
	"voided":      ReservationVoided,
}

// ParseReservationStatus normalizes raw and maps it onto a known status.
func ParseReservationStatus(raw string) (ReservationStatus, error) {
	if st, ok := reservationStatuses[normalize(raw)]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown reservation status %q", raw)
}

var assignmentStatuses = map[string]AssignmentStatus{
	"reserved":    AssignmentReserved,
	"checked_in":  AssignmentCheckedIn,
	"checked_out": AssignmentCheckedOut,
	"cancelled":   AssignmentCancelled,
	"no_show":     AssignmentNoShow,
	"voided":      AssignmentVoided,
}

func ParseAssignmentStatus(raw string) (AssignmentStatus, error) {
	if st, ok := assignmentStatuses[normalize(raw)]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown assignment status %q", raw)
}

func ParseFolioStatus(raw string) (FolioStatus, error) {
	switch st := FolioStatus(normalize(raw)); st {
	case FolioOpen, FolioClosed, FolioVoided:
		return st, nil
	}
	return "", fmt.Errorf("unknown folio status %q", raw)
}

func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	switch st := TransactionStatus(normalize(raw)); st {
	case TxnPosted, TxnVoided, TxnCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown transaction status %q", raw)
}

func ParseTransactionType(raw string) (TransactionType, error) {
	switch t := TransactionType(normalize(raw)); t {
	case TxnCharge, TxnRoomPosting, TxnPayment, TxnAdjustment, TxnTax,
		TxnDiscount, TxnRefund, TxnTransfer, TxnVoid:
		return t, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", raw)
}

// Scan implementations let sqlx read legacy spellings straight into the
// canonical enums.

func (s *ReservationStatus) Scan(src any) error {
	st, err := ParseReservationStatus(asString(src))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (s *AssignmentStatus) Scan(src any) error {
	st, err := ParseAssignmentStatus(asString(src))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (s *FolioStatus) Scan(src any) error {
	st, err := ParseFolioStatus(asString(src))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (s *TransactionStatus) Scan(src any) error {
	st, err := ParseTransactionStatus(asString(src))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func asString(src any) string {
	switch v := src.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	}
	return fmt.Sprint(src)
}

// Terminal reports whether no further lifecycle operation may change s.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case ReservationCheckedOut, ReservationCompleted, ReservationCancelled, ReservationVoided:
		return true
	}
	return false
}

// In reports whether s is one of the given statuses.
func (s ReservationStatus) In(set ...ReservationStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func (s AssignmentStatus) In(set ...AssignmentStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Active is false for lines that no longer take part in the stay.
func (s AssignmentStatus) Active() bool {
	return s != AssignmentCancelled && s != AssignmentVoided
}

// Counts reports whether a transaction with status s takes part in balance
// aggregation.
func (s TransactionStatus) Counts() bool {
	return s == TxnPosted
}
