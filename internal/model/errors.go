package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrorKind is the stable classification callers switch on.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "not_found"
	KindInvalidState       ErrorKind = "invalid_state"
	KindValidation         ErrorKind = "validation"
	KindMissingRoom        ErrorKind = "missing_room"
	KindOutstandingBalance ErrorKind = "outstanding_balance"
	KindRoomUnavailable    ErrorKind = "room_unavailable"
	KindWindowExpired      ErrorKind = "window_expired"
	KindConcurrency        ErrorKind = "concurrency"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrValidation         = errors.New("validation error")
	ErrMissingRoom        = errors.New("room not assigned")
	ErrOutstandingBalance = errors.New("outstanding balance")
	ErrRoomUnavailable    = errors.New("room unavailable")
	ErrWindowExpired      = errors.New("undo window expired")
	ErrConcurrency        = errors.New("concurrent update")
)

var sentinels = map[ErrorKind]error{
	KindNotFound:           ErrNotFound,
	KindInvalidState:       ErrInvalidState,
	KindValidation:         ErrValidation,
	KindMissingRoom:        ErrMissingRoom,
	KindOutstandingBalance: ErrOutstandingBalance,
	KindRoomUnavailable:    ErrRoomUnavailable,
	KindWindowExpired:      ErrWindowExpired,
	KindConcurrency:        ErrConcurrency,
}

// Error is the typed error every core operation returns on a rejected
// request.  It unwraps to the sentinel of its kind so callers can use
// errors.Is(err, model.ErrOutstandingBalance).
type Error struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{sentinels[e.Kind], e.cause}
	}
	return []error{sentinels[e.Kind]}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err is not a classified error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func NotFound(entity string, id uint64) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %d not found", entity, id),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

func InvalidState(op string, current any, allowed ...any) *Error {
	return &Error{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf("%s not allowed while status is %v", op, current),
		Details: map[string]any{"operation": op, "current": current, "allowed": allowed},
	}
}

func Validation(msg string, details map[string]any) *Error {
	return &Error{Kind: KindValidation, Message: msg, Details: details}
}

func MissingRoom(assignmentIDs []uint64) *Error {
	return &Error{
		Kind:    KindMissingRoom,
		Message: "room lines have no room assigned",
		Details: map[string]any{"assignment_ids": assignmentIDs},
	}
}

func OutstandingBalance(balance decimal.Decimal) *Error {
	return &Error{
		Kind:    KindOutstandingBalance,
		Message: fmt.Sprintf("outstanding balance of %s must be settled", balance.StringFixed(2)),
		Details: map[string]any{"balance": balance.StringFixed(2)},
	}
}

func RoomUnavailable(roomID uint64, conflicting []uint64) *Error {
	return &Error{
		Kind:    KindRoomUnavailable,
		Message: fmt.Sprintf("room %d is not available for the requested dates", roomID),
		Details: map[string]any{"room_id": roomID, "conflicting_assignment_ids": conflicting},
	}
}

func WindowExpired(op string, occurred, today time.Time) *Error {
	return &Error{
		Kind:    KindWindowExpired,
		Message: fmt.Sprintf("%s is only possible on the day it happened", op),
		Details: map[string]any{
			"operation": op,
			"occurred":  occurred.Format("2006-01-02"),
			"today":     today.Format("2006-01-02"),
		},
	}
}

func Concurrency(cause error) *Error {
	return &Error{
		Kind:    KindConcurrency,
		Message: "the record was changed by another request, retry",
		Details: map[string]any{"retryable": true},
		cause:   cause,
	}
}
