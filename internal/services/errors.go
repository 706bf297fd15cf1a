package services

import (
	"errors"
	"fmt"

	"github.com/eventpass/cashless/internal/models"
)

// ErrorKind is the coarse failure class a caller can act on
type ErrorKind string

const (
	KindInvalidArgument    ErrorKind = "invalid_argument"
	KindNotFound           ErrorKind = "not_found"
	KindConflict           ErrorKind = "conflict"
	KindPreconditionFailed ErrorKind = "precondition_failed"
	KindPermissionDenied   ErrorKind = "permission_denied"
	KindInternalTransient  ErrorKind = "internal_transient"
	KindInternal           ErrorKind = "internal"
)

// Reason names the specific failure inside a kind
type Reason string

const (
	ReasonInvalidFormat       Reason = "invalid_format"
	ReasonInvalidAmount       Reason = "invalid_amount"
	ReasonInvalidArgument     Reason = "invalid_argument"
	ReasonNotFound            Reason = "not_found"
	ReasonAccountNotFound     Reason = "account_not_found"
	ReasonDestinationNotFound Reason = "destination_not_found"
	ReasonAlreadyActivated    Reason = "already_activated"
	ReasonDuplicateOwnership  Reason = "duplicate_ownership"
	ReasonBlocked             Reason = "blocked"
	ReasonAccountFrozen       Reason = "account_frozen"
	ReasonAccountInactive     Reason = "account_inactive"
	ReasonInsufficientBalance Reason = "insufficient_balance"
	ReasonEventMismatch       Reason = "event_mismatch"
	ReasonOwnershipMismatch   Reason = "ownership_mismatch"
	ReasonPermissionDenied    Reason = "permission_denied"
	ReasonTransient           Reason = "transient"
	ReasonReplayMismatch      Reason = "replay_mismatch"
	ReasonInternal            Reason = "internal"
)

var reasonKinds = map[Reason]ErrorKind{
	ReasonInvalidFormat:       KindInvalidArgument,
	ReasonInvalidAmount:       KindInvalidArgument,
	ReasonInvalidArgument:     KindInvalidArgument,
	ReasonNotFound:            KindNotFound,
	ReasonAccountNotFound:     KindNotFound,
	ReasonDestinationNotFound: KindNotFound,
	ReasonAlreadyActivated:    KindConflict,
	ReasonDuplicateOwnership:  KindConflict,
	ReasonBlocked:             KindPreconditionFailed,
	ReasonAccountFrozen:       KindPreconditionFailed,
	ReasonAccountInactive:     KindPreconditionFailed,
	ReasonInsufficientBalance: KindPreconditionFailed,
	ReasonEventMismatch:       KindPreconditionFailed,
	ReasonOwnershipMismatch:   KindPermissionDenied,
	ReasonPermissionDenied:    KindPermissionDenied,
	ReasonTransient:           KindInternalTransient,
	ReasonReplayMismatch:      KindInternal,
	ReasonInternal:            KindInternal,
}

// LedgerError is returned by every LedgerService operation that fails.
// Balance details are populated for insufficient-balance and status failures.
type LedgerError struct {
	Kind         ErrorKind
	Reason       Reason
	Message      string
	Balance      *int64
	BonusBalance *int64
	Status       models.AccountStatus
	Err          error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// Is matches another LedgerError by reason, so callers can compare against
// the sentinels below.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// Retryable reports whether the caller may retry the same request.
func (e *LedgerError) Retryable() bool {
	return e.Kind == KindInternalTransient
}

func newError(reason Reason, format string, args ...any) *LedgerError {
	return &LedgerError{
		Kind:    reasonKinds[reason],
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}

// PermissionDenied is used by callers outside the engine that enforce access
// to reads, such as the gateway's owner checks.
func PermissionDenied(format string, args ...any) *LedgerError {
	return newError(ReasonPermissionDenied, format, args...)
}

// withAccount attaches the account's balances and status to the error
func (e *LedgerError) withAccount(account *models.Account) *LedgerError {
	balance, bonus := account.Balance, account.BonusBalance
	e.Balance = &balance
	e.BonusBalance = &bonus
	e.Status = account.Status
	return e
}

func (e *LedgerError) wrap(err error) *LedgerError {
	e.Err = err
	return e
}

var (
	ErrInvalidFormat       = &LedgerError{Reason: ReasonInvalidFormat}
	ErrInvalidAmount       = &LedgerError{Reason: ReasonInvalidAmount}
	ErrInvalidArgument     = &LedgerError{Reason: ReasonInvalidArgument}
	ErrNotFound            = &LedgerError{Reason: ReasonNotFound}
	ErrAccountNotFound     = &LedgerError{Reason: ReasonAccountNotFound}
	ErrDestinationNotFound = &LedgerError{Reason: ReasonDestinationNotFound}
	ErrAlreadyActivated    = &LedgerError{Reason: ReasonAlreadyActivated}
	ErrDuplicateOwnership  = &LedgerError{Reason: ReasonDuplicateOwnership}
	ErrBlocked             = &LedgerError{Reason: ReasonBlocked}
	ErrAccountFrozen       = &LedgerError{Reason: ReasonAccountFrozen}
	ErrAccountInactive     = &LedgerError{Reason: ReasonAccountInactive}
	ErrInsufficientBalance = &LedgerError{Reason: ReasonInsufficientBalance}
	ErrEventMismatch       = &LedgerError{Reason: ReasonEventMismatch}
	ErrOwnershipMismatch   = &LedgerError{Reason: ReasonOwnershipMismatch}
	ErrPermissionDenied    = &LedgerError{Reason: ReasonPermissionDenied}
	ErrTransient           = &LedgerError{Reason: ReasonTransient}
	ErrReplayMismatch      = &LedgerError{Reason: ReasonReplayMismatch}
)

// AsLedgerError extracts the LedgerError from err, if any.
func AsLedgerError(err error) (*LedgerError, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
